package filter

import (
	"testing"
	"time"

	"github.com/programlife555/ape-dts/internal/event"
	"github.com/programlife555/ape-dts/internal/value"
	"github.com/stretchr/testify/require"
)

func rowChange(schema, table string) event.Event {
	after := value.NewRow([]string{`id`}, []value.Value{value.Int64(1)})
	return event.RowChange(event.TableName{Schema: schema, Table: table}, event.OpInsert, nil, &after, time.Now(), event.Position{})
}

func TestRouter_Admit_controlAlwaysPasses(t *testing.T) {
	r := New(Config{DoDbs: []string{`other`}})
	require.True(t, r.Admit(event.Heartbeat(event.Position{}, time.Now())))
	require.True(t, r.Admit(event.CheckpointMarker(event.Position{})))
}

func TestRouter_Admit_doDbsAllowList(t *testing.T) {
	r := New(Config{DoDbs: []string{`test_db`}})
	require.True(t, r.Admit(rowChange(`test_db`, `users`)))
	require.False(t, r.Admit(rowChange(`other_db`, `users`)))
}

func TestRouter_Admit_ignoreDbs(t *testing.T) {
	r := New(Config{IgnoreDbs: []string{`test_db`}})
	require.False(t, r.Admit(rowChange(`test_db`, `users`)))
	require.True(t, r.Admit(rowChange(`other_db`, `users`)))
}

func TestRouter_Admit_ignoreDbsOverriddenByDoTables(t *testing.T) {
	r := New(Config{
		IgnoreDbs: []string{`test_db`},
		DoTables:  []string{`test_db.keep_me`},
	})
	require.True(t, r.Admit(rowChange(`test_db`, `keep_me`)))
	require.False(t, r.Admit(rowChange(`test_db`, `drop_me`)))
}

func TestRouter_Admit_ignoreTablesOverriddenByDoTables(t *testing.T) {
	r := New(Config{
		IgnoreTables: []string{`test_db.*`},
		DoTables:     []string{`test_db.keep_me`},
	})
	require.True(t, r.Admit(rowChange(`test_db`, `keep_me`)))
	require.False(t, r.Admit(rowChange(`test_db`, `drop_me`)))
}

func TestRouter_Admit_redisDbFilter(t *testing.T) {
	r := New(Config{RedisDbs: []int{0}})
	e0 := event.RedisCommand(0, `SET`, nil, event.Position{})
	e1 := event.RedisCommand(1, `SET`, nil, event.Position{})
	require.True(t, r.Admit(e0))
	require.False(t, r.Admit(e1))
}

func TestRouter_Admit_redisHeartbeatKeyExempt(t *testing.T) {
	r := New(Config{RedisDbs: []int{0}, HeartbeatKey: `1:heartbeat`})
	hb := event.RedisCommand(1, `SET`, [][]byte{[]byte(`heartbeat`), []byte(`1`)}, event.Position{})
	require.True(t, r.Admit(hb))

	notHb := event.RedisCommand(1, `SET`, [][]byte{[]byte(`other_key`), []byte(`1`)}, event.Position{})
	require.False(t, r.Admit(notHb))
}

func TestRouter_Project(t *testing.T) {
	r := New(Config{DoColumns: map[string][]string{
		`test_db.users`: {`id`, `name`},
	}})
	after := value.NewRow([]string{`id`, `name`, `secret`}, []value.Value{value.Int64(1), value.String(`a`), value.String(`s`)})
	e := event.RowChange(event.TableName{Schema: `test_db`, Table: `users`}, event.OpInsert, nil, &after, time.Now(), event.Position{})

	projected := r.Project(e)
	require.Equal(t, 2, projected.After.Len())
	_, ok := projected.After.Get(`secret`)
	require.False(t, ok)
}

func TestRouter_Project_passthroughWhenUnconfigured(t *testing.T) {
	r := New(Config{})
	e := rowChange(`test_db`, `users`)
	projected := r.Project(e)
	require.Equal(t, e.After.Len(), projected.After.Len())
}

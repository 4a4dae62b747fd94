package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPosition_Compare_sameVariant(t *testing.T) {
	a := BinlogPosition(`mysql-bin.000001`, 100, ``)
	b := BinlogPosition(`mysql-bin.000001`, 200, ``)
	result, ok := a.Compare(b)
	require.True(t, ok)
	require.Equal(t, -1, result)
	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
}

func TestPosition_Compare_differentFile(t *testing.T) {
	a := BinlogPosition(`mysql-bin.000001`, 999, ``)
	b := BinlogPosition(`mysql-bin.000002`, 1, ``)
	result, ok := a.Compare(b)
	require.True(t, ok)
	require.Equal(t, -1, result)
}

func TestPosition_Compare_mixedVariants_incomparable(t *testing.T) {
	a := BinlogPosition(`mysql-bin.000001`, 1, ``)
	b := LSNPosition(1)
	_, ok := a.Compare(b)
	require.False(t, ok)
}

func TestPosition_Compare_mismatchedGTIDSet_incomparable(t *testing.T) {
	a := BinlogPosition(`f`, 1, `uuid1:1-5`)
	b := BinlogPosition(`f`, 2, `uuid2:1-5`)
	_, ok := a.Compare(b)
	require.False(t, ok)
}

func TestPosition_Compare_mongoResumeToken(t *testing.T) {
	a := MongoPosition([]byte{0x01, 0x02})
	b := MongoPosition([]byte{0x01, 0x03})
	result, ok := a.Compare(b)
	require.True(t, ok)
	require.Equal(t, -1, result)
}

func TestPosition_Compare_redisOffset_requiresSameReplicationID(t *testing.T) {
	a := RedisPosition(`repl-a`, 10)
	b := RedisPosition(`repl-b`, 5)
	_, ok := a.Compare(b)
	require.False(t, ok)

	c := RedisPosition(`repl-a`, 20)
	result, ok := a.Compare(c)
	require.True(t, ok)
	require.Equal(t, -1, result)
}

func TestPosition_MarshalBinary_roundTrips(t *testing.T) {
	p := BinlogPosition(`mysql-bin.000003`, 1942, `gtid-set-1`)
	data, err := p.MarshalBinary()
	require.NoError(t, err)

	var got Position
	require.NoError(t, got.UnmarshalBinary(data))
	require.Equal(t, p, got)
}

// Package filter implements the Filter & Router component (spec.md §4.6):
// per-event (schema,table) admit rules with allow-list-overrides-deny-list
// semantics, column projection, and a Redis DB-index filter. Heartbeats and
// checkpoint markers always pass, as does any event carrying the
// configured Redis heartbeat key, regardless of the Redis DB filter.
package filter

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/programlife555/ape-dts/internal/event"
	"github.com/programlife555/ape-dts/internal/value"
)

// Router admits or drops events, and projects columns on admitted
// RowChange events, before they reach the Parallelizer.
type Router struct {
	doDbs        map[string]struct{}
	ignoreDbs    map[string]struct{}
	doTables     []string // glob patterns against "schema.table"
	ignoreTables []string
	doColumns    map[string][]string // "schema.table" -> allowed columns
	redisDbs     map[int]struct{}    // nil/empty means "allow all"
	heartbeatDb  int
	heartbeatKey string
}

// Config mirrors config.FilterSection plus the Redis heartbeat exemption
// (spec.md §9's resolved open question), which is sourced from
// config.ExtractorSection.HeartbeatKey in the form "db_id:key".
type Config struct {
	DoDbs        []string
	IgnoreDbs    []string
	DoTables     []string
	IgnoreTables []string
	DoColumns    map[string][]string
	RedisDbs     []int
	HeartbeatKey string // "db_id:key", empty if not Redis or unset
}

// New builds a Router from cfg.
func New(cfg Config) *Router {
	r := &Router{
		doDbs:     toSet(cfg.DoDbs),
		ignoreDbs: toSet(cfg.IgnoreDbs),
		doTables:  cfg.DoTables,
		ignoreTables: cfg.IgnoreTables,
		doColumns: cfg.DoColumns,
		heartbeatDb: -1,
	}
	if len(cfg.RedisDbs) > 0 {
		r.redisDbs = make(map[int]struct{}, len(cfg.RedisDbs))
		for _, db := range cfg.RedisDbs {
			r.redisDbs[db] = struct{}{}
		}
	}
	if cfg.HeartbeatKey != `` {
		if db, key, ok := strings.Cut(cfg.HeartbeatKey, `:`); ok {
			if n, err := strconv.Atoi(db); err == nil {
				r.heartbeatDb = n
				r.heartbeatKey = key
			}
		}
	}
	return r
}

func toSet(ss []string) map[string]struct{} {
	if len(ss) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		m[s] = struct{}{}
	}
	return m
}

// Admit reports whether e should proceed to the Parallelizer. Heartbeats
// and checkpoint markers always pass.
func (r *Router) Admit(e event.Event) bool {
	if e.IsControl() {
		return true
	}

	switch e.Kind {
	case event.KindRedis:
		return r.admitRedis(e)
	default:
		return r.admitTable(e.Table)
	}
}

func (r *Router) admitRedis(e event.Event) bool {
	if r.heartbeatKey != `` && e.RedisDB == r.heartbeatDb &&
		len(e.RedisArgs) > 0 && string(e.RedisArgs[0]) == r.heartbeatKey {
		return true
	}
	if len(r.redisDbs) == 0 {
		return true
	}
	_, ok := r.redisDbs[e.RedisDB]
	return ok
}

func (r *Router) admitTable(t event.TableName) bool {
	full := t.String()

	if r.doDbs != nil {
		if _, ok := r.doDbs[t.Schema]; !ok {
			return false
		}
	}
	if r.ignoreDbs != nil {
		if _, ok := r.ignoreDbs[t.Schema]; ok {
			// allow-list at the table level can still override a db-level deny
			if !matchesAny(r.doTables, full) {
				return false
			}
		}
	}

	if matchesAny(r.ignoreTables, full) && !matchesAny(r.doTables, full) {
		return false
	}
	if len(r.doTables) > 0 && !matchesAny(r.doTables, full) {
		return false
	}

	return true
}

func matchesAny(patterns []string, full string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, full); ok {
			return true
		}
	}
	return false
}

// Project applies column projection (config.FilterSection.DoColumns) to
// e, returning a copy with Before/After rows restricted to the allowed
// column set for e.Table. Events for tables with no configured projection
// pass through unchanged.
func (r *Router) Project(e event.Event) event.Event {
	if e.Kind != event.KindRowChange {
		return e
	}
	cols, ok := r.doColumns[e.Table.String()]
	if !ok {
		return e
	}
	if e.Before != nil {
		projected := projectRow(*e.Before, cols)
		e.Before = &projected
	}
	if e.After != nil {
		projected := projectRow(*e.After, cols)
		e.After = &projected
	}
	return e
}

func projectRow(row value.Row, cols []string) value.Row {
	values := make([]value.Value, 0, len(cols))
	kept := make([]string, 0, len(cols))
	for _, c := range cols {
		if v, ok := row.Get(c); ok {
			kept = append(kept, c)
			values = append(values, v)
		}
	}
	return value.NewRow(kept, values)
}

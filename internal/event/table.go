package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// TableName identifies a (schema, table) pair. It is grounded directly on
// the teacher's export.Table: same two fields, same "schema.table" text
// form, same schema-then-name comparator, generalized from an
// export-specific "old id -> new id" concern to the engine's general
// (schema, table) admit/route/partition identity used throughout the
// Filter, Parallelizer and Sinker.
type TableName struct {
	Schema string
	Table  string
}

func (t TableName) String() string {
	if t.Schema == `` {
		return t.Table
	}
	return t.Schema + `.` + t.Table
}

// Less orders TableName values schema-first, then name, giving a
// deterministic ordering for sorting table sets.
func (t TableName) Less(other TableName) bool {
	if t.Schema != other.Schema {
		return t.Schema < other.Schema
	}
	return t.Table < other.Table
}

func (t *TableName) UnmarshalText(text []byte) error {
	p := bytes.Split(text, []byte(`.`))
	if len(p) > 2 {
		return fmt.Errorf(`event: invalid table name: %q`, text)
	}
	for _, v := range p {
		if len(v) == 0 {
			return fmt.Errorf(`event: invalid table name: %q`, text)
		}
	}
	if len(p) == 2 {
		t.Schema, t.Table = string(p[0]), string(p[1])
	} else {
		t.Schema, t.Table = ``, string(p[0])
	}
	return nil
}

func (t TableName) MarshalText() ([]byte, error) {
	if t.Table == `` || strings.ContainsRune(t.Table, '.') || strings.ContainsRune(t.Schema, '.') {
		return nil, fmt.Errorf(`event: invalid table name: %+v`, t)
	}
	return []byte(t.String()), nil
}

func (t *TableName) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return t.UnmarshalText([]byte(s))
}

func (t TableName) MarshalJSON() ([]byte, error) {
	b, err := t.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(b))
}

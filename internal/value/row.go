package value

// Row is an ordered mapping from column name to Value. Column order is
// preserved (for stable re-serialization towards sinks that care, e.g. a
// CSV-staged file writer) but is not semantically significant: Row.Equal
// ignores it, per spec.md §3.
type Row struct {
	columns []string
	values  map[string]Value
}

// NewRow builds a Row from parallel columns/values slices. The slices must
// be the same length; values are copied into an internal map.
func NewRow(columns []string, values []Value) Row {
	r := Row{
		columns: append([]string(nil), columns...),
		values:  make(map[string]Value, len(columns)),
	}
	for i, c := range columns {
		if i < len(values) {
			r.values[c] = values[i]
		}
	}
	return r
}

// Columns returns the row's column names, in insertion order.
func (r Row) Columns() []string { return r.columns }

// Get returns the value for column, and whether the column is present.
func (r Row) Get(column string) (Value, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Len returns the number of columns.
func (r Row) Len() int { return len(r.columns) }

// With returns a copy of r with column set to v, appending column to the
// column order if it wasn't already present.
func (r Row) With(column string, v Value) Row {
	out := Row{
		columns: r.columns,
		values:  make(map[string]Value, len(r.values)+1),
	}
	for k, val := range r.values {
		out.values[k] = val
	}
	if _, ok := r.values[column]; !ok {
		out.columns = append(append([]string(nil), r.columns...), column)
	}
	out.values[column] = v
	return out
}

// Equal compares two Rows for value equality, ignoring column order (per
// spec.md §3 Event Model: "Column order is preserved but not semantically
// significant; equality ignores column order").
func (r Row) Equal(other Row) bool {
	if len(r.values) != len(other.values) {
		return false
	}
	for k, v := range r.values {
		ov, ok := other.values[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Union returns the set of column names touched by any of the given rows,
// used by the Parallelizer's RdbMerge reduction (spec.md §4.3: "Column set
// of an Upsert is the union of columns touched by any member event").
func Union(rows ...Row) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range rows {
		for _, c := range row.columns {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

package sqlite

import "strings"

// upsertSpec describes a conflict-safe create-or-update for one table: insert
// columns, the uniqueness constraint to resolve conflicts on, and the
// allow-list of columns a conflicting insert may overwrite. Columns outside
// the allow-list (identity keys, creation metadata) keep their stored values.
type upsertSpec struct {
	table    string
	columns  []string
	conflict []string
	mutable  []string
}

// sql renders the INSERT ... ON CONFLICT statement. returning is appended as a
// RETURNING clause so callers can read back preserved immutable fields; with
// an empty mutable list the conflict resolves to DO NOTHING (and callers must
// handle the no-row case).
func (u upsertSpec) sql(returning ...string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(u.table)
	b.WriteString(" (")
	b.WriteString(strings.Join(u.columns, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(placeholders(len(u.columns)))
	b.WriteString(") ON CONFLICT (")
	b.WriteString(strings.Join(u.conflict, ", "))
	b.WriteString(")")

	if len(u.mutable) == 0 {
		b.WriteString(" DO NOTHING")
	} else {
		b.WriteString(" DO UPDATE SET ")
		for i, col := range u.mutable {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(col)
			b.WriteString(" = excluded.")
			b.WriteString(col)
		}
	}

	if len(returning) > 0 {
		b.WriteString(" RETURNING ")
		b.WriteString(strings.Join(returning, ", "))
	}
	return b.String()
}

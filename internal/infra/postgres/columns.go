package postgres

import "strings"

// qualified prefixes each column in a comma-separated list with a table
// alias, for RETURNING clauses on aliased updates.
func qualified(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

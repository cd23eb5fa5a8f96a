package sqlassets

import (
	_ "embed"
	"strings"
)

//go:embed schema/platform/registry.sql
var RegistrySQL string

//go:embed schema/tenant/schema.sql
var TenantSchemaSQL string

//go:embed schema/tenant/constraints.sql
var TenantConstraintsSQL string

//go:embed schema/tenant/seed.sql
var TenantSeedSQL string

// SplitStatements breaks an embedded SQL script into individual statements.
// Semicolons inside dollar-quoted bodies (DO blocks, function definitions)
// do not terminate a statement.
func SplitStatements(script string) []string {
	var (
		statements []string
		current    strings.Builder
		inDollar   bool
	)

	for i := 0; i < len(script); i++ {
		if i+1 < len(script) && script[i] == '$' && script[i+1] == '$' {
			inDollar = !inDollar
			current.WriteString("$$")
			i++
			continue
		}
		if script[i] == ';' && !inDollar {
			if stmt := trimStatement(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
			continue
		}
		current.WriteByte(script[i])
	}

	if stmt := trimStatement(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}

// trimStatement strips whitespace and leading comment-only lines; a chunk
// that is nothing but comments is not a statement.
func trimStatement(raw string) string {
	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))
	seenSQL := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !seenSQL && (trimmed == "" || strings.HasPrefix(trimmed, "--")) {
			continue
		}
		seenSQL = true
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// Package migrations embeds the schema scripts, one directory per database type.
package migrations

import "embed"

//go:embed sqlite/*.sql postgres/*.sql mysql/*.sql
var FS embed.FS

// Dir returns the script directory for a GORM dialector name.
func Dir(dialect string) string {
	switch dialect {
	case "postgres", "mysql":
		return dialect
	default:
		return "sqlite"
	}
}

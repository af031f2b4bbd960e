package migrations

import "embed"

// FS embeds the SQL migration files.
//
//go:embed sql/*.sql
var FS embed.FS

// Package migrations embeds the goose schema migrations, one directory per SQL dialect.
package migrations

import "embed"

//go:embed postgres/*.sql mysql/*.sql sqlite/*.sql
var FS embed.FS

// Package migrations embeds the schema of the client favorites cache.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

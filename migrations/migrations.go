// Package migrations embeds the SQL schema so the migrate command works
// without a checkout of this directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

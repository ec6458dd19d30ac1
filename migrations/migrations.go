// Package migrations embeds the SQL schema so the migrator binary and
// the test harness apply the exact files shipped with the repo.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

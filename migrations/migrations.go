// Package migrations embeds the ordered schema scripts applied by the
// migration runner. Filenames sort lexicographically in application
// order; only files ending in .up.sql are applied.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS

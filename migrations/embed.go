package migrations

import "embed"

// Files exposes embedded SQL migrations, one directory per SQL driver,
// ordered lexicographically within each.
//
//go:embed sqlite/*.sql postgres/*.sql
var Files embed.FS

// Package scriptgraph holds application-wide defaults shared by the
// config loader, the CLI, and tests.
package scriptgraph

const (
	DefaultAppName      = "scriptgraph"
	DefaultConfigPath   = "/etc/scriptgraph"
	DefaultDatabaseDir  = "./data"
	DefaultDatabaseDSN  = "file:./data/scriptgraph.db"
	DefaultDatabaseType = "libsql"

	// MaxCommitMessageRunes bounds the optional commit message attached to a
	// revision. Messages longer than this are rejected before any mutation.
	MaxCommitMessageRunes = 120
)

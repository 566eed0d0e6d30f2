package store

// Migration holds a single schema migration with its target version and SQL.
type Migration struct {
	Version int
	SQL     string
}

// aliasMigrations is the ordered list of alias schema migrations.
// Each migration's version must be sequential starting from 1.
var aliasMigrations = []Migration{
	{
		Version: 1,
		SQL: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS aliases (
	account    TEXT NOT NULL,
	folder     TEXT NOT NULL,
	native_id  TEXT NOT NULL,
	short_id   INTEGER NOT NULL CHECK(short_id > 0),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (account, folder, native_id),
	UNIQUE (account, folder, short_id)
);

CREATE TABLE IF NOT EXISTS alias_counters (
	account TEXT NOT NULL,
	folder  TEXT NOT NULL,
	next_id INTEGER NOT NULL DEFAULT 1 CHECK(next_id > 0),
	PRIMARY KEY (account, folder)
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}

package index

import "github.com/nhle/mailctl/internal/store"

// migrations is the ordered list of index schema migrations.
var migrations = []store.Migration{
	{
		Version: 1,
		SQL: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	folder         TEXT NOT NULL,
	message_id     TEXT NOT NULL,
	file_key       TEXT NOT NULL,
	in_reply_to    TEXT NOT NULL DEFAULT '',
	subject        TEXT NOT NULL DEFAULT '',
	from_name      TEXT NOT NULL DEFAULT '',
	from_addr      TEXT NOT NULL DEFAULT '',
	to_name        TEXT NOT NULL DEFAULT '',
	to_addr        TEXT NOT NULL DEFAULT '',
	date           INTEGER NOT NULL DEFAULT 0,
	flags          TEXT NOT NULL DEFAULT '',
	has_attachment INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (folder, message_id)
);

CREATE INDEX IF NOT EXISTS idx_messages_folder_date ON messages(folder, date DESC);
CREATE INDEX IF NOT EXISTS idx_messages_in_reply_to ON messages(in_reply_to);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}

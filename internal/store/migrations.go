package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_actions (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	data        TEXT NOT NULL DEFAULT '',
	payload     TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS notification_snapshot (
	id          TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	priority    TEXT NOT NULL DEFAULT 'medium',
	title       TEXT NOT NULL,
	message     TEXT NOT NULL,
	read        INTEGER NOT NULL DEFAULT 0,
	action_url  TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pending_created ON pending_actions(created_at);
CREATE INDEX IF NOT EXISTS idx_snapshot_read ON notification_snapshot(read);
CREATE INDEX IF NOT EXISTS idx_snapshot_created ON notification_snapshot(created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}

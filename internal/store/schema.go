package store

const schema = `
CREATE TABLE IF NOT EXISTS packages (
    owner TEXT NOT NULL,
    name TEXT NOT NULL,
    hash TEXT NOT NULL,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    root TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (owner, name)
);

CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    name TEXT NOT NULL,
    action TEXT NOT NULL,
    hash TEXT,
    size_bytes INTEGER,
    timestamp TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_package ON events(owner, name);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
`

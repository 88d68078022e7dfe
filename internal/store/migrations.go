package store

const schema = `
CREATE TABLE IF NOT EXISTS subreddits (
    name_key     TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    title        TEXT NOT NULL DEFAULT '',
    subscribers  INTEGER NOT NULL DEFAULT 0,
    description  TEXT NOT NULL DEFAULT '',
    url          TEXT NOT NULL DEFAULT '',
    over_18      BOOLEAN NOT NULL DEFAULT 0,
    fetched_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_subreddits_fetched_at ON subreddits(fetched_at);

CREATE TABLE IF NOT EXISTS lookups (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    subreddit   TEXT NOT NULL,
    mode        TEXT NOT NULL,
    related     TEXT NOT NULL DEFAULT '[]',
    sampled     INTEGER NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lookups_subreddit ON lookups(subreddit);
CREATE INDEX IF NOT EXISTS idx_lookups_created_at ON lookups(created_at);
`

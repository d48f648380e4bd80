package migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upInit, downInit)
}

func upInit(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE TABLE posts (
		id          TEXT PRIMARY KEY,
		platforms   TEXT[] NOT NULL,
		content_ref TEXT NOT NULL,
		title       TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		tags        TEXT[],
		schedule_at TIMESTAMPTZ,
		priority    INT NOT NULL,
		status      TEXT NOT NULL,
		attempt     INT NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE platform_outcomes (
		id           SERIAL PRIMARY KEY,
		post_id      TEXT NOT NULL REFERENCES posts (id),
		platform     TEXT NOT NULL,
		strategy     TEXT NOT NULL,
		strategy_ix  INT NOT NULL,
		success      BOOLEAN NOT NULL,
		escalated    BOOLEAN NOT NULL DEFAULT FALSE,
		external_id  TEXT NOT NULL DEFAULT '',
		error_detail TEXT NOT NULL DEFAULT '',
		attempt      INT NOT NULL,
		recorded_at  TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE throttle_state (
		platform     TEXT PRIMARY KEY,
		last_post_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE escalations (
		id            TEXT PRIMARY KEY,
		post_id       TEXT NOT NULL,
		platform      TEXT NOT NULL,
		attempts      JSONB NOT NULL,
		status        TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		external_url  TEXT,
		operator_note TEXT,
		resolved_at   TIMESTAMPTZ
	);

	CREATE TABLE platform_sessions (
		platform   TEXT PRIMARY KEY,
		blob       BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	);
	`)
	return err
}

func downInit(tx *sql.Tx) error {
	_, err := tx.Exec(`
	DROP TABLE platform_sessions;
	DROP TABLE escalations;
	DROP TABLE throttle_state;
	DROP TABLE platform_outcomes;
	DROP TABLE posts;
	`)
	return err
}

package migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upAddIndexes, downAddIndexes)
}

func upAddIndexes(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE INDEX idx_posts_status ON posts (status, created_at);
	CREATE INDEX idx_outcomes_post_platform ON platform_outcomes (post_id, platform, attempt DESC);
	CREATE INDEX idx_escalations_pending ON escalations (created_at) WHERE status = 'pending';
	`)
	return err
}

func downAddIndexes(tx *sql.Tx) error {
	_, err := tx.Exec(`
	DROP INDEX idx_escalations_pending;
	DROP INDEX idx_outcomes_post_platform;
	DROP INDEX idx_posts_status;
	`)
	return err
}

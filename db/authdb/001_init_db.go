package authdb

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
)

func init() {
	migrate(up001, down001)
}

func up001(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, strings.ReplaceAll(`
		CREATE TABLE sekai_users (
			id         TEXT PRIMARY KEY NOT NULL,
			credential TEXT NOT NULL,
			remark     TEXT NOT NULL DEFAULT ''
		) STRICT;
	`, `
		`, "\n")); err != nil {
		return apperror.New(apperror.KindDatabaseError, "create sekai_users table: %v", err)
	}

	if _, err := tx.ExecContext(ctx, strings.ReplaceAll(`
		CREATE TABLE sekai_user_servers (
			user_id TEXT NOT NULL,
			server  TEXT NOT NULL,
			PRIMARY KEY (user_id, server),
			FOREIGN KEY (user_id) REFERENCES sekai_users(id)
		) STRICT;
	`, `
		`, "\n")); err != nil {
		return apperror.New(apperror.KindDatabaseError, "create sekai_user_servers table: %v", err)
	}

	if _, err := tx.ExecContext(ctx, `CREATE INDEX sekai_user_servers_user_idx ON sekai_user_servers(user_id)`); err != nil {
		return apperror.New(apperror.KindDatabaseError, "create sekai_user_servers index: %v", err)
	}
	return nil
}

func down001(ctx context.Context, tx *sqlx.Tx) error {
	if _, err := tx.ExecContext(ctx, `DROP INDEX sekai_user_servers_user_idx`); err != nil {
		return apperror.New(apperror.KindDatabaseError, "drop sekai_user_servers_user_idx index: %v", err)
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE sekai_user_servers`); err != nil {
		return apperror.New(apperror.KindDatabaseError, "drop sekai_user_servers table: %v", err)
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE sekai_users`); err != nil {
		return apperror.New(apperror.KindDatabaseError, "drop sekai_users table: %v", err)
	}
	return nil
}

// Package authdb stores the relational authorization data backing
// pkg/authstore: which uids hold a credential, and which regional servers
// each uid is allowed to call. Grounded on the teacher's sqlite3 storage
// packages (db/pdatadb, db/atlasdb) for the Open/migration idiom, extended
// with an optional postgres driver since this project's database.driver
// config allows either (original_source/src/db.rs uses SeaORM against
// whatever DSN is configured, so the Go port keeps driver selection
// explicit rather than picking one backend for it).
package authdb

import (
	"database/sql"
	"errors"
	"net/url"

	"github.com/jmoiron/sqlx"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
)

// DB stores sekai_users / sekai_user_servers rows.
type DB struct {
	x *sqlx.DB
}

// Open connects to the authorization database. driver is either "sqlite3"
// or "postgres"; for sqlite3, dsn is treated as a plain filename and WAL
// pragmas are applied the same way the teacher's pdatadb/atlasdb packages do.
// maxConns caps the pool's open connections (database.max_connections); 0
// leaves database/sql's unlimited default in place.
func Open(driver, dsn string, maxConns uint32) (*DB, error) {
	switch driver {
	case "", "sqlite3":
		x, err := sqlx.Connect("sqlite3", (&url.URL{
			Path: dsn,
			RawQuery: (url.Values{
				"_journal":      {"WAL"},
				"_cache_size":   {"-32000"},
				"_busy_timeout": {"6000"},
				// sekai_user_servers.user_id references sekai_users.id; unlike
				// the teacher's single-table pdatadb/atlasdb schemas, this one
				// actually has a foreign key to enforce.
				"_foreign_keys": {"on"},
			}).Encode(),
		}).String())
		if err != nil {
			return nil, apperror.New(apperror.KindDatabaseError, "open authdb (sqlite3): %v", err)
		}
		applyMaxConns(x, maxConns)
		return &DB{x}, nil
	case "postgres":
		x, err := sqlx.Connect("postgres", dsn)
		if err != nil {
			return nil, apperror.New(apperror.KindDatabaseError, "open authdb (postgres): %v", err)
		}
		applyMaxConns(x, maxConns)
		return &DB{x}, nil
	default:
		return nil, apperror.New(apperror.KindDatabaseError, "authdb: unsupported driver %q", driver)
	}
}

func applyMaxConns(x *sqlx.DB, maxConns uint32) {
	if maxConns > 0 {
		x.SetMaxOpenConns(int(maxConns))
	}
}

func (db *DB) Close() error {
	return db.x.Close()
}

// User is a row of sekai_users.
type User struct {
	ID         string `db:"id"`
	Credential string `db:"credential"`
	Remark     string `db:"remark"`
}

// GetUser looks up a user by id, returning (nil, nil) if it does not exist.
func (db *DB) GetUser(uid string) (*User, error) {
	var u User
	if err := db.x.Get(&u, `SELECT id, credential, remark FROM sekai_users WHERE id = ?`, uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperror.New(apperror.KindDatabaseError, "get sekai_user %q: %v", uid, err)
	}
	return &u, nil
}

// IsAuthorizedForServer reports whether uid has a sekai_user_servers row
// granting access to the given region/server name.
func (db *DB) IsAuthorizedForServer(uid, server string) (bool, error) {
	var n int
	if err := db.x.Get(&n, `SELECT COUNT(1) FROM sekai_user_servers WHERE user_id = ? AND server = ?`, uid, server); err != nil {
		return false, apperror.New(apperror.KindDatabaseError, "check server authorization for %q/%q: %v", uid, server, err)
	}
	return n > 0, nil
}

// CreateUser inserts or replaces a sekai_users row.
func (db *DB) CreateUser(id, credential, remark string) error {
	if _, err := db.x.Exec(`INSERT OR REPLACE INTO sekai_users (id, credential, remark) VALUES (?, ?, ?)`, id, credential, remark); err != nil {
		return apperror.New(apperror.KindDatabaseError, "create sekai_user %q: %v", id, err)
	}
	return nil
}

// GrantServer authorizes uid for the given regional server.
func (db *DB) GrantServer(uid, server string) error {
	if _, err := db.x.Exec(`INSERT OR REPLACE INTO sekai_user_servers (user_id, server) VALUES (?, ?)`, uid, server); err != nil {
		return apperror.New(apperror.KindDatabaseError, "grant server %q to %q: %v", server, uid, err)
	}
	return nil
}

// RevokeServer withdraws uid's authorization for the given regional server.
func (db *DB) RevokeServer(uid, server string) error {
	if _, err := db.x.Exec(`DELETE FROM sekai_user_servers WHERE user_id = ? AND server = ?`, uid, server); err != nil {
		return apperror.New(apperror.KindDatabaseError, "revoke server %q from %q: %v", server, uid, err)
	}
	return nil
}

// Versioning here rides on PRAGMA user_version and so only applies to the
// sqlite3 driver; a postgres-backed deployment is expected to already carry
// the sekai_users / sekai_user_servers schema (e.g. applied once by hand from
// 001_init_db.go's statements) since sea_orm's original create-if-not-exists
// behavior (original_source/src/db.rs) has no direct equivalent against
// PRAGMA user_version.
package authdb

import (
	"context"
	"database/sql"
	"path"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
)

type migration struct {
	Name string
	Up   func(context.Context, *sqlx.Tx) error
	Down func(context.Context, *sqlx.Tx) error
}

var migrations = map[uint64]migration{}

func migrate(up, down func(context.Context, *sqlx.Tx) error) {
	_, fn, _, ok := runtime.Caller(1)
	if !ok {
		panic("add migration: failed to get filename")
	}
	fn = path.Base(strings.ReplaceAll(fn, `\`, `/`))

	if n, _, ok := strings.Cut(fn, "_"); !ok {
		panic("add migration: failed to parse filename")
	} else if v, err := strconv.ParseUint(n, 10, 64); err != nil {
		panic("add migration: failed to parse filename: " + err.Error())
	} else if v == 0 {
		panic("add migration: version must not be 0")
	} else {
		migrations[v] = migration{strings.TrimSuffix(n, ".go"), up, down}
	}
}

// Version gets the current and required database versions.
func (db *DB) Version() (current, required uint64, err error) {
	if err = db.x.Get(&current, `PRAGMA user_version`); err != nil {
		err = apperror.New(apperror.KindDatabaseError, "get version: %v", err)
		return
	}
	for v := range migrations {
		if v > required {
			required = v
		}
	}
	return
}

// MigrateUp migrates the database up to the provided version.
func (db *DB) MigrateUp(ctx context.Context, to uint64) error {
	tx, err := db.x.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return apperror.New(apperror.KindDatabaseError, "begin transaction: %v", err)
	}
	defer tx.Rollback()

	var cv uint64
	if err = tx.GetContext(ctx, &cv, `PRAGMA user_version`); err != nil {
		return apperror.New(apperror.KindDatabaseError, "get version: %v", err)
	}
	if to < cv {
		return apperror.New(apperror.KindDatabaseError, "target version %d is less than current version %d", to, cv)
	}

	var ms []uint64
	foundC, foundT := cv == 0, to == 0
	for v := range migrations {
		if v == cv {
			foundC = true
		}
		if v == to {
			foundT = true
		}
		if v > cv && v <= to {
			ms = append(ms, v)
		}
	}
	if !foundC {
		return apperror.New(apperror.KindDatabaseError, "unsupported db version %d", cv)
	}
	if !foundT {
		return apperror.New(apperror.KindDatabaseError, "unknown db version %d", to)
	}

	sort.Slice(ms, func(i, j int) bool { return ms[i] < ms[j] })

	for _, v := range ms {
		if err := migrations[v].Up(ctx, tx); err != nil {
			return apperror.New(apperror.KindDatabaseError, "migrate %d: %v", v, err)
		}
	}

	if err := checkForeignKeys(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `PRAGMA user_version = `+strconv.FormatUint(to, 10)); err != nil {
		return apperror.New(apperror.KindDatabaseError, "update version: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return apperror.New(apperror.KindDatabaseError, "commit transaction: %v", err)
	}
	return nil
}

// checkForeignKeys runs sqlite3's foreign_key_check within tx and turns any
// violation into an error naming the offending table and rowid. Unlike the
// teacher's single-table pdata/atlas schemas, sekai_user_servers carries a
// real foreign key to sekai_users, so a migration that leaves it dangling
// (e.g. a down-migration dropping sekai_users while grants still reference
// it) is a bug worth catching immediately rather than at query time.
func checkForeignKeys(ctx context.Context, tx *sqlx.Tx) error {
	rows, err := tx.QueryxContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		// non-sqlite3 drivers (e.g. postgres) don't support this pragma; their
		// own foreign key constraints are enforced by the engine itself.
		return nil
	}
	defer rows.Close()

	var violations []string
	for rows.Next() {
		var table string
		var rowid sql.NullInt64
		var refTable string
		var fkid int
		if err := rows.Scan(&table, &rowid, &refTable, &fkid); err != nil {
			return apperror.New(apperror.KindDatabaseError, "scan foreign_key_check row: %v", err)
		}
		rowidStr := "?"
		if rowid.Valid {
			rowidStr = strconv.FormatInt(rowid.Int64, 10)
		}
		violations = append(violations, table+" rowid "+rowidStr+" references missing "+refTable)
	}
	if err := rows.Err(); err != nil {
		return apperror.New(apperror.KindDatabaseError, "foreign_key_check: %v", err)
	}
	if len(violations) > 0 {
		return apperror.New(apperror.KindDatabaseError, "foreign key violations after migration: %s", strings.Join(violations, "; "))
	}
	return nil
}

// MigrateDown migrates the database down to the provided version. This will
// probably eat your data.
func (db *DB) MigrateDown(ctx context.Context, to uint64) error {
	tx, err := db.x.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return apperror.New(apperror.KindDatabaseError, "begin transaction: %v", err)
	}
	defer tx.Rollback()

	var cv uint64
	if err = tx.GetContext(ctx, &cv, `PRAGMA user_version`); err != nil {
		return apperror.New(apperror.KindDatabaseError, "get version: %v", err)
	}
	if cv < to {
		return apperror.New(apperror.KindDatabaseError, "current version %d is less than target version %d", cv, to)
	}

	var ms []uint64
	foundC, foundT := cv == 0, to == 0
	for v := range migrations {
		if v == cv {
			foundC = true
		}
		if v == to {
			foundT = true
		}
		if v <= cv && v > to {
			ms = append(ms, v)
		}
	}
	if !foundC {
		return apperror.New(apperror.KindDatabaseError, "unsupported db version %d", cv)
	}
	if !foundT {
		return apperror.New(apperror.KindDatabaseError, "unknown db version %d", to)
	}

	sort.Slice(ms, func(i, j int) bool { return ms[i] > ms[j] })

	for _, v := range ms {
		if err := migrations[v].Down(ctx, tx); err != nil {
			return apperror.New(apperror.KindDatabaseError, "migrate %d: %v", v, err)
		}
	}

	if err := checkForeignKeys(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `PRAGMA user_version = `+strconv.FormatUint(to, 10)); err != nil {
		return apperror.New(apperror.KindDatabaseError, "update version: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return apperror.New(apperror.KindDatabaseError, "commit transaction: %v", err)
	}
	return nil
}

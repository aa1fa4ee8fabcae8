package authdb

import (
	"context"
	"path/filepath"
	"testing"
)

func openMigrated(t *testing.T) *DB {
	t.Helper()
	db, err := Open("sqlite3", filepath.Join(t.TempDir(), "auth.db"), 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	_, tgt, err := db.Version()
	if err != nil {
		t.Fatal(err)
	}
	if err := db.MigrateUp(context.Background(), tgt); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestMigrateUpCreatesSchema(t *testing.T) {
	db := openMigrated(t)

	if _, err := db.x.Exec(`INSERT INTO sekai_users (id, credential, remark) VALUES (?, ?, ?)`, "u1", "cred1", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := db.x.Exec(`INSERT INTO sekai_user_servers (user_id, server) VALUES (?, ?)`, "u1", "jp"); err != nil {
		t.Fatal(err)
	}

	u, err := db.GetUser("u1")
	if err != nil {
		t.Fatal(err)
	}
	if u == nil || u.Credential != "cred1" {
		t.Fatalf("GetUser = %+v, want credential cred1", u)
	}

	ok, err := db.IsAuthorizedForServer("u1", "jp")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected u1 to be authorized for jp")
	}

	ok, err = db.IsAuthorizedForServer("u1", "en")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected u1 to not be authorized for en")
	}
}

func TestGetUserMissing(t *testing.T) {
	db := openMigrated(t)

	u, err := db.GetUser("nobody")
	if err != nil {
		t.Fatal(err)
	}
	if u != nil {
		t.Fatalf("GetUser(nobody) = %+v, want nil", u)
	}
}

func TestMigrateDownDropsSchema(t *testing.T) {
	db := openMigrated(t)

	if err := db.MigrateDown(context.Background(), 0); err != nil {
		t.Fatal(err)
	}

	if _, err := db.x.Exec(`INSERT INTO sekai_users (id, credential, remark) VALUES (?, ?, ?)`, "u1", "cred1", ""); err == nil {
		t.Fatal("expected insert to fail after migrating down")
	}
}

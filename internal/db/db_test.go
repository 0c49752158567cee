package db

import (
	"path/filepath"
	"testing"
)

func TestMySQLDSN(t *testing.T) {
	got := MySQLDSN("pitstop", "127.0.0.1", 3306, "pitstop")
	want := "pitstop@tcp(127.0.0.1:3306)/pitstop?parseTime=true"
	if got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestConnectSQLite_RequiresPath(t *testing.T) {
	if _, err := ConnectSQLite(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestConnectAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pitstop.db")
	gdb, err := ConnectSQLite(path)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !gdb.Migrator().HasTable("requests") {
		t.Error("expected requests table after migration")
	}
}

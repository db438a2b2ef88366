package db

import (
	"context"
	"strings"
	"testing"
)

func TestMigrationsAreOrderedAndReversible(t *testing.T) {
	names, err := Migrations()
	if err != nil {
		t.Fatalf("Migrations: %v", err)
	}
	if len(names) < 2 || names[0] != "00001_init.sql" || names[1] != "00002_history_note.sql" {
		t.Fatalf("migrations = %v", names)
	}
	for _, name := range names {
		data, err := migrationFiles.ReadFile(migrationDir + "/" + name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		text := string(data)
		if !strings.Contains(text, "-- +goose Up") || !strings.Contains(text, "-- +goose Down") {
			t.Fatalf("%s lacks goose Up/Down sections", name)
		}
	}
}

func TestRunMigrationsWithoutDatabase(t *testing.T) {
	version, err := RunMigrations(context.Background(), nil)
	if err != nil || version != 0 {
		t.Fatalf("version=%d err=%v", version, err)
	}
}

package histories

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func TestPGRepoOpenClose(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := &PGRepo{DB: sqlx.NewDb(db, "pgx")}

	mock.ExpectQuery("INSERT INTO histories").
		WithArgs("hs-1", "CLASSIFY").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectExec("UPDATE histories SET end_date").
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := repo.Open(context.Background(), "hs-1", StepClassify)
	if err != nil || id != 3 {
		t.Fatalf("Open: id=%d err=%v", id, err)
	}
	if err := repo.Close(context.Background(), id); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestMemoryRepoChain(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	for _, step := range []Step{StepClassify, StepChapterSplitter, StepExtraction} {
		id, _ := repo.Open(ctx, "hs-1", step)
		if err := repo.Close(ctx, id); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	_, _ = repo.Open(ctx, "hs-2", StepClassify)

	rows, _ := repo.List(ctx, "hs-1")
	if len(rows) != 3 || rows[1].Step != StepChapterSplitter || !rows[2].EndDate.Valid {
		t.Fatalf("unexpected chain: %+v", rows)
	}
	if err := repo.Close(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoNote(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := &PGRepo{DB: sqlx.NewDb(db, "pgx")}

	mock.ExpectExec("UPDATE histories SET note").
		WithArgs(int64(4), "status update failed after send").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE histories SET note").
		WithArgs(int64(99), "x").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Note(context.Background(), 4, "status update failed after send"); err != nil {
		t.Fatalf("Note: %v", err)
	}
	if err := repo.Note(context.Background(), 99, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

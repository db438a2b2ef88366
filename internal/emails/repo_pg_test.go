package emails

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: sqlx.NewDb(db, "pgx")}, mock
}

func TestPGRepoCreateDefaultsPending(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO email_contents").
		WithArgs("hs-1", "a@b.vn", "", "Gói thầu", "body", "hsmt.pdf", "hsmt/hs-1/hsmt.pdf", "", "CHUA_XU_LY", "<m1@x>").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(11), now, now))

	e := EmailContent{
		HSID: "hs-1", Sender: "a@b.vn", Subject: "Gói thầu", Body: "body",
		FileName: "hsmt.pdf", Link: "hsmt/hs-1/hsmt.pdf", OriginalMessageID: "<m1@x>",
	}
	if err := repo.Create(context.Background(), &e); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.ID != 11 || e.Status != StatusPending {
		t.Fatalf("unexpected row: %+v", e)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateStatusGuardsRegression(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE email_contents SET status").
		WithArgs("DANG_XU_LY", int64(7), "CHUA_XU_LY", "DANG_XU_LY").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM email_contents").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("DA_XU_LY"))

	err := repo.UpdateStatus(context.Background(), 7, StatusProcessing)
	if !errors.Is(err, ErrStatusRegression) {
		t.Fatalf("expected ErrStatusRegression, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoUpdateStatusMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE email_contents SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM email_contents").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	if err := repo.UpdateStatus(context.Background(), 9, StatusDone); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoUpdateStatusByHSIDFailedFromAnyOpenState(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE email_contents SET status").
		WithArgs("XU_LY_LOI", "hs-2", "CHUA_XU_LY", "DANG_XU_LY", "XU_LY_LOI").
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := repo.UpdateStatusByHSID(context.Background(), "hs-2", StatusFailed); err != nil {
		t.Fatalf("UpdateStatusByHSID: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoInsertDetailIfAbsentReplayIsNoop(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("INSERT INTO document_detail").
		WithArgs(int64(3), "hsmt_chuong_3", "hsmt/hs-1/hsmt_chuong_3.pdf", "markdown/hs-1/hsmt_chuong_3.md").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(40)))

	first := DocumentDetail{EmailContentID: 3, FileName: "hsmt_chuong_3", Link: "hsmt/hs-1/hsmt_chuong_3.pdf", LinkMD: "markdown/hs-1/hsmt_chuong_3.md"}
	inserted, err := repo.InsertDetailIfAbsent(context.Background(), &first)
	if err != nil || !inserted || first.ID != 40 {
		t.Fatalf("first insert: inserted=%v id=%d err=%v", inserted, first.ID, err)
	}

	mock.ExpectQuery("INSERT INTO document_detail").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT id, link_md FROM document_detail").
		WithArgs(int64(3), "hsmt_chuong_3").
		WillReturnRows(sqlmock.NewRows([]string{"id", "link_md"}).AddRow(int64(40), "markdown/hs-1/hsmt_chuong_3.md"))

	replay := DocumentDetail{EmailContentID: 3, FileName: "hsmt_chuong_3", Link: "x", LinkMD: "y"}
	inserted, err = repo.InsertDetailIfAbsent(context.Background(), &replay)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if inserted {
		t.Fatalf("replay should not insert")
	}
	if replay.ID != 40 || replay.LinkMD != "markdown/hs-1/hsmt_chuong_3.md" {
		t.Fatalf("replay should return existing row, got %+v", replay)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

package sqlanswer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func TestCheckReadOnly(t *testing.T) {
	ok := []string{
		"SELECT AVG(revenue) FROM financial_results;",
		"  with t as (select 1) select * from t",
	}
	for _, q := range ok {
		if _, err := CheckReadOnly(q); err != nil {
			t.Errorf("%q rejected: %v", q, err)
		}
	}
	bad := []string{
		"",
		"DELETE FROM financial_results",
		"SELECT 1; DROP TABLE financial_results",
		"WITH x AS (DELETE FROM financial_results RETURNING *) SELECT * FROM x",
	}
	for _, q := range bad {
		if _, err := CheckReadOnly(q); !errors.Is(err, ErrNotReadOnly) {
			t.Errorf("%q accepted", q)
		}
	}
}

func TestReadOnlyDBQueryRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT AVG\\(revenue\\)").
		WillReturnRows(sqlmock.NewRows([]string{"avg_revenue"}).AddRow([]byte("2808300000001")))
	mock.ExpectRollback()

	rows, err := ReadOnlyDB{DB: sqlx.NewDb(db, "pgx")}.Query(context.Background(), "SELECT AVG(revenue) AS avg_revenue FROM financial_results")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 1 || rows[0]["avg_revenue"] != "2808300000001" {
		t.Fatalf("rows = %v", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

type stubQuerier map[string][]map[string]any

func (s stubQuerier) Query(ctx context.Context, q string) ([]map[string]any, error) {
	if _, err := CheckReadOnly(q); err != nil {
		return nil, err
	}
	rows, ok := s[q]
	if !ok {
		return nil, errors.New("relation does not exist")
	}
	return rows, nil
}

func TestExecuteCapturesErrors(t *testing.T) {
	db := stubQuerier{"SELECT 1": {{"x": 1}}}
	out := Execute(context.Background(), db, []Query{
		{FinanceRequirementID: 1, SQL: "SELECT 1"},
		{FinanceRequirementID: 2, SQL: "DROP TABLE financial_results"},
	})
	if len(out) != 2 {
		t.Fatalf("len = %d", len(out))
	}
	if out[0].Failed || out[0].SQLResult != `[{"x":1}]` {
		t.Fatalf("first = %+v", out[0])
	}
	if !out[1].Failed || !strings.HasPrefix(out[1].SQLResult, "ERROR:") {
		t.Fatalf("second = %+v", out[1])
	}
}

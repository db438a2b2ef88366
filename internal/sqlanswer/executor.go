package sqlanswer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const maxRows = 50

var (
	// ErrNotReadOnly rejects anything but a single SELECT/WITH statement.
	ErrNotReadOnly = errors.New("only a single SELECT statement is allowed")

	writeKeyword = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|truncate|create|grant|revoke|copy|vacuum|call)\b`)
)

// Querier runs one read-only query and returns its rows.
type Querier interface {
	Query(ctx context.Context, query string) ([]map[string]any, error)
}

// ReadOnlyDB runs queries inside a read-only transaction that is always rolled back.
type ReadOnlyDB struct {
	DB *sqlx.DB
}

// Query implements Querier.
func (r ReadOnlyDB) Query(ctx context.Context, query string) ([]map[string]any, error) {
	query, err := CheckReadOnly(query)
	if err != nil {
		return nil, err
	}
	tx, err := r.DB.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read-only tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryxContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		if len(out) >= maxRows {
			break
		}
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		for k, v := range row {
			switch t := v.(type) {
			case []byte:
				row[k] = string(t)
			case time.Time:
				row[k] = t.Format("2006-01-02")
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CheckReadOnly trims a trailing semicolon and rejects statements that are
// not a single SELECT or WITH query.
func CheckReadOnly(query string) (string, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	if q == "" || strings.Contains(q, ";") {
		return "", ErrNotReadOnly
	}
	head := strings.ToLower(strings.Fields(q)[0])
	if head != "select" && head != "with" {
		return "", ErrNotReadOnly
	}
	if writeKeyword.MatchString(q) {
		return "", ErrNotReadOnly
	}
	return q, nil
}

// Query is one SQL statement for a finance requirement.
type Query struct {
	FinanceRequirementID int64  `json:"finance_requirement_id"`
	SQL                  string `json:"sql"`
}

// Execution is the outcome of one Query. Failures are carried as text.
type Execution struct {
	FinanceRequirementID int64  `json:"finance_requirement_id"`
	SQL                  string `json:"sql"`
	SQLResult            string `json:"sql_result"`
	Failed               bool   `json:"-"`
}

// Execute runs every query; a failing query yields an "ERROR:" result
// instead of an error.
func Execute(ctx context.Context, db Querier, queries []Query) []Execution {
	out := make([]Execution, 0, len(queries))
	for _, q := range queries {
		ex := Execution{FinanceRequirementID: q.FinanceRequirementID, SQL: q.SQL}
		rows, err := db.Query(ctx, q.SQL)
		if err != nil {
			ex.SQLResult = "ERROR: " + err.Error()
			ex.Failed = true
		} else {
			b, mErr := json.Marshal(rows)
			if mErr != nil {
				ex.SQLResult = "ERROR: " + mErr.Error()
				ex.Failed = true
			} else {
				ex.SQLResult = string(b)
			}
		}
		out = append(out, ex)
	}
	return out
}

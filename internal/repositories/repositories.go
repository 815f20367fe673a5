package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NextSequence atomically increments and returns the next sequence number for the given table.
//
// Task sequences give a strict creation order that breaks priority ties independently of clock resolution.
func NextSequence(ctx context.Context, db *sql.DB, table string) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequenceTable := table + "_sequence"

	var sequence int64
	err = tx.QueryRowContext(ctx, fmt.Sprintf("UPDATE %s SET value = value + 1 WHERE id = 1 RETURNING value", sequenceTable)).Scan(&sequence)
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sequence transaction: %w", err)
	}

	return sequence, nil
}

// rowScanner is satisfied by both [sql.Row] and [sql.Rows].
type rowScanner interface {
	Scan(dest ...any) error
}

// now returns the current time in UTC so stored timestamps compare lexically.
func now() time.Time {
	return time.Now().UTC()
}

// notFound maps [sql.ErrNoRows] to the sentinel for the entity.
func notFound(err error, sentinel error, what string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %v", sentinel, what, id)
	}
	return fmt.Errorf("failed to scan %s: %w", what, err)
}

// expectOne checks that an UPDATE or DELETE touched a row.
func expectOne(result sql.Result, sentinel error, what string, id any) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s %v", sentinel, what, id)
	}
	return nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// where accumulates " AND col = ?" clauses from a criteria map.
type where struct {
	clauses []string
	args    []any
}

func (w *where) eq(col string, v any) {
	w.clauses = append(w.clauses, col+" = ?")
	w.args = append(w.args, v)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func int64Criteria(criteria map[string]any, key string) (int64, bool) {
	switch v := criteria[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

func boolCriteria(criteria map[string]any, key string) (bool, bool) {
	v, ok := criteria[key].(bool)
	return v, ok
}

func stringCriteria(criteria map[string]any, key string) (string, bool) {
	v, ok := criteria[key].(string)
	return v, ok && v != ""
}

func limitClause(criteria map[string]any) string {
	if n, ok := int64Criteria(criteria, "limit"); ok && n > 0 {
		return fmt.Sprintf(" LIMIT %d", n)
	}
	return ""
}

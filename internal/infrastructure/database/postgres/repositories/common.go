package repositories

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
)

// anonymousUserID owns every search logged without an authenticated user.
var anonymousUserID = uuid.MustParse("00000000-0000-0000-0000-000000000000")

// queryExecutor abstracts sql.DB and sql.Tx
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// scanner abstracts sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// jsonArray marshals v, substituting "[]" for nil slices so JSONB columns
// never hold null.
func jsonArray(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return []byte("[]"), nil
	}
	return b, nil
}

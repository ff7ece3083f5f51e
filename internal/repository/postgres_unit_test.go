package repository

import (
	"database/sql"
	"errors"
	"testing"
)

type fakeResult struct {
	rows int64
	err  error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, r.err }

func TestAffectedOne(t *testing.T) {
	rowsErr := errors.New("driver does not support RowsAffected")

	tests := []struct {
		name    string
		result  sql.Result
		wantErr error
	}{
		{"1行", fakeResult{rows: 1}, nil},
		{"複数行", fakeResult{rows: 3}, nil},
		{"0行はErrNotFound", fakeResult{rows: 0}, ErrNotFound},
		{"件数取得失敗", fakeResult{err: rowsErr}, rowsErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := affectedOne(tt.result)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("affectedOne() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// Postgres実装がインターフェースを満たし、dbtxが*sql.DBと*sql.Txの両方に適合すること。
func TestInterfaces(t *testing.T) {
	var _ UserRepository = NewPostgresUserRepo(nil)
	var _ IdentityRepository = NewPostgresIdentityRepo(nil)
	var _ SessionRepository = NewPostgresSessionRepo(nil)
	var _ dbtx = (*sql.DB)(nil)
	var _ dbtx = (*sql.Tx)(nil)
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubPool struct {
	execSQL  []string
	execArgs [][]any
	execTag  pgconn.CommandTag
	execErr  error

	querySQL  []string
	queryArgs [][]any
	rowsData  [][]any
	queryErr  error

	rowData []any
	rowErr  error
}

func (s *stubPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.execSQL = append(s.execSQL, sql)
	s.execArgs = append(s.execArgs, args)
	return s.execTag, s.execErr
}

func (s *stubPool) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return &stubBatchResults{}
}

func (s *stubPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	s.querySQL = append(s.querySQL, sql)
	s.queryArgs = append(s.queryArgs, args)
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	dataCopy := make([][]any, len(s.rowsData))
	for i := range s.rowsData {
		row := make([]any, len(s.rowsData[i]))
		copy(row, s.rowsData[i])
		dataCopy[i] = row
	}
	return &stubRows{data: dataCopy}, nil
}

func (s *stubPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	s.querySQL = append(s.querySQL, sql)
	s.queryArgs = append(s.queryArgs, args)
	return &stubRow{data: s.rowData, err: s.rowErr}
}

type stubBatchResults struct{}

func (stubBatchResults) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, nil }
func (stubBatchResults) Query() (pgx.Rows, error)         { return &stubRows{}, nil }
func (stubBatchResults) QueryRow() pgx.Row                { return &stubRow{} }
func (stubBatchResults) Close() error                     { return nil }

type stubRow struct {
	data []any
	err  error
}

func (r *stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(dest, r.data)
}

type stubRows struct {
	data [][]any
	idx  int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *stubRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.data) {
		return fmt.Errorf("invalid scan index")
	}
	return scanInto(dest, r.data[r.idx-1])
}

func (r *stubRows) Values() ([]any, error) { return nil, nil }
func (r *stubRows) RawValues() [][]byte    { return nil }
func (r *stubRows) Conn() *pgx.Conn        { return nil }

func scanInto(dest []any, row []any) error {
	if len(dest) != len(row) {
		return fmt.Errorf("scan arity mismatch: %d dest, %d values", len(dest), len(row))
	}
	for i, d := range dest {
		switch ptr := d.(type) {
		case *int64:
			*ptr = row[i].(int64)
		case *int:
			*ptr = row[i].(int)
		case *string:
			*ptr = row[i].(string)
		case *bool:
			*ptr = row[i].(bool)
		case *float64:
			*ptr = row[i].(float64)
		case **float64:
			if row[i] == nil {
				*ptr = nil
			} else {
				*ptr = row[i].(*float64)
			}
		case *time.Time:
			*ptr = row[i].(time.Time)
		case **time.Time:
			if row[i] == nil {
				*ptr = nil
			} else {
				*ptr = row[i].(*time.Time)
			}
		case *[]byte:
			if row[i] == nil {
				*ptr = nil
			} else {
				*ptr = row[i].([]byte)
			}
		default:
			return fmt.Errorf("unsupported dest type %T", d)
		}
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/stategraph/internal/value"
)

// encodeValue converts a value to canonical JSON TEXT for storage.
// nil is stored as JSON null.
func encodeValue(v value.Value) (string, error) {
	if v == nil {
		v = value.Null{}
	}
	data, err := value.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	return string(data), nil
}

// decodeValue parses canonical JSON TEXT. Integers stay exact.
func decodeValue(data string) (value.Value, error) {
	if data == "" {
		return value.Null{}, nil
	}
	v, err := value.Parse([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}

func decodeObject(data string) (value.Object, error) {
	if data == "" || data == "{}" {
		return value.Object{}, nil
	}
	obj, err := value.ParseObject([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	return obj, nil
}

// encodeSnapshot stores an optional snapshot; nil stays SQL NULL.
func encodeSnapshot(v value.Value) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	s, err := encodeValue(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: s, Valid: true}, nil
}

func decodeSnapshot(ns sql.NullString) (value.Value, error) {
	if !ns.Valid {
		return nil, nil
	}
	return decodeValue(ns.String)
}

func encodeTime(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func decodeTime(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func encodeOptionalTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: encodeTime(*t), Valid: true}
}

func decodeOptionalTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := decodeTime(n.Int64)
	return &t
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by *sql.DB and *sql.Tx. Reads that run inside a
// write transaction must use the tx: the pool holds a single connection.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
)

// RegisterModule records a new extension identity together with its
// capability record. Names are never reused: a retired name is rejected
// the same as an active one.
func (s *Store) RegisterModule(ctx context.Context, m schema.Module, caps schema.Capabilities) (schema.Module, error) {
	const op = "register module"
	m.RegisteredAt = s.Now()
	m.RetiredAt = nil

	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		existing, ok, err := getModule(ctx, tx, m.Name)
		if err != nil {
			return err
		}
		if ok {
			if existing.RetiredAt != nil {
				return fault.InvalidStatef(op, "module %s was retired and its name cannot be reused", m.Name)
			}
			return fault.InvalidStatef(op, "module %s is already registered", m.Name)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO modules (name, description, mode, registered_at) VALUES (?, ?, ?, ?)
		`, m.Name, m.Description, string(m.Mode), encodeTime(m.RegisteredAt)); err != nil {
			return fmt.Errorf("insert module: %w", err)
		}
		return putCapabilities(ctx, tx, caps)
	})
	if err != nil {
		return schema.Module{}, err
	}
	return m, nil
}

// RetireModule marks a module retired and demotes its capability record to
// a non-voting observer. The row is kept so the name stays taken.
func (s *Store) RetireModule(ctx context.Context, name string) (schema.Module, error) {
	const op = "unregister module"
	var out schema.Module
	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		m, ok, err := getModule(ctx, tx, name)
		if err != nil {
			return err
		}
		if !ok {
			return fault.NotFoundf(op, "module %s not found", name)
		}
		if m.RetiredAt != nil {
			return fault.InvalidStatef(op, "module %s is already retired", name)
		}

		now := s.Now()
		if _, err := tx.ExecContext(ctx, `UPDATE modules SET retired_at = ? WHERE name = ?`, encodeTime(now), name); err != nil {
			return fmt.Errorf("retire module: %w", err)
		}
		m.RetiredAt = &now
		out = m

		caps := schema.Capabilities{Agent: m.Agent(), Mode: schema.ModeObserver, CanVote: false, VoteWeight: 0}
		return putCapabilities(ctx, tx, caps)
	})
	if err != nil {
		return schema.Module{}, err
	}
	return out, nil
}

// GetModule looks up a registered module by name, retired or not.
func (s *Store) GetModule(ctx context.Context, name string) (m schema.Module, ok bool, err error) {
	m, ok, err = getModule(ctx, s.db, name)
	if err != nil {
		return schema.Module{}, false, fault.Persist("get module", err)
	}
	return m, ok, nil
}

// ListModules returns registered modules by name. Retired modules are
// included only when includeRetired is set.
func (s *Store) ListModules(ctx context.Context, includeRetired bool) ([]schema.Module, error) {
	query := `SELECT name, description, mode, registered_at, retired_at FROM modules`
	if !includeRetired {
		query += ` WHERE retired_at IS NULL`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fault.Persist("list modules", fmt.Errorf("query modules: %w", err))
	}
	defer rows.Close()

	out := []schema.Module{}
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fault.Persist("list modules", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Persist("list modules", fmt.Errorf("iterate modules: %w", err))
	}
	return out, nil
}

func getModule(ctx context.Context, q querier, name string) (schema.Module, bool, error) {
	m, err := scanModule(q.QueryRowContext(ctx, `
		SELECT name, description, mode, registered_at, retired_at FROM modules WHERE name = ?
	`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Module{}, false, nil
	}
	if err != nil {
		return schema.Module{}, false, err
	}
	return m, true, nil
}

func scanModule(row rowScanner) (schema.Module, error) {
	var (
		m          schema.Module
		mode       string
		registered int64
		retired    sql.NullInt64
	)
	if err := row.Scan(&m.Name, &m.Description, &mode, &registered, &retired); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.Module{}, err
		}
		return schema.Module{}, fmt.Errorf("scan module: %w", err)
	}
	m.Mode = schema.CapabilityMode(mode)
	m.RegisteredAt = decodeTime(registered)
	m.RetiredAt = decodeOptionalTime(retired)
	return m, nil
}

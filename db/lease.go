package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/TheShubhendra/marriagebot/telemetry"
)

// Lease is a checked-out connection, owned by exactly one caller for its
// scoped lifetime. Statements run through the lease's open transaction when
// one is active, otherwise directly on the connection.
type Lease struct {
	conn     *sqlx.Conn
	tx       *sqlx.Tx
	released bool
}

// Execute runs a single statement. Statements carrying a read/return clause
// yield an ordered row set; zero matching rows yield an empty slice, never
// nil. Mutations yield a nil row set. Backend errors are returned unchanged
// so callers can react to the exact failure.
func (l *Lease) Execute(ctx context.Context, statement string, args ...interface{}) ([]map[string]interface{}, error) {
	if l.released {
		return nil, fmt.Errorf("%w: statement on a released lease", ErrProtocolViolation)
	}

	log.Debug().Str("sql", statement).Msg("Running SQL")

	if !isReadStatement(statement) {
		telemetry.StatementsTotal.With("mutation").Inc()
		var err error
		if l.tx != nil {
			_, err = l.tx.ExecContext(ctx, statement, args...)
		} else {
			_, err = l.conn.ExecContext(ctx, statement, args...)
		}
		if err != nil {
			return nil, err
		}
		return nil, nil
	}

	telemetry.StatementsTotal.With("read").Inc()
	var rows *sqlx.Rows
	var err error
	if l.tx != nil {
		rows, err = l.tx.QueryxContext(ctx, statement, args...)
	} else {
		rows, err = l.conn.QueryxContext(ctx, statement, args...)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]map[string]interface{}, 0)
	for rows.Next() {
		record := make(map[string]interface{})
		if err := rows.MapScan(record); err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// isReadStatement classifies a statement by the presence of a read/return
// clause, mirroring how publishers phrase their SQL.
func isReadStatement(statement string) bool {
	s := strings.ToLower(statement)
	return strings.Contains(s, "select") || strings.Contains(s, "returning")
}

// Begin starts a transaction on the held connection
func (l *Lease) Begin(ctx context.Context) error {
	if l.released {
		return fmt.Errorf("%w: begin on a released lease", ErrProtocolViolation)
	}
	if l.tx != nil {
		return ErrTransactionActive
	}

	tx, err := l.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	l.tx = tx
	return nil
}

// Commit commits and clears the active transaction marker
func (l *Lease) Commit() error {
	if l.tx == nil {
		return ErrNoTransaction
	}

	err := l.tx.Commit()
	l.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	telemetry.TxnTotal.With("commit").Inc()
	return nil
}

// Rollback rolls back and clears the active transaction marker
func (l *Lease) Rollback() error {
	if l.tx == nil {
		return ErrNoTransaction
	}

	err := l.tx.Rollback()
	l.tx = nil
	if err != nil {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	telemetry.TxnTotal.With("rollback").Inc()
	return nil
}

// WithTransaction runs fn as one atomic group: begin, fn, commit. On any
// error from fn the transaction is rolled back and the causative error is
// returned unchanged; a rollback failure is joined to it rather than masking
// it, so errors.Is still matches the original.
func (l *Lease) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.Begin(ctx); err != nil {
		return err
	}

	if err := fn(ctx); err != nil {
		if rbErr := l.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}

	return l.Commit()
}

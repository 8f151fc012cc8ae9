// Package store persists marriage records through the connection pool's
// lease discipline. All multi-row writes are composite: they commit or roll
// back as one atomic group.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/TheShubhendra/marriagebot/db"
)

const marriagesTable = "marriages"

var marriageColumns = []string{"user_id", "partner_id", "guild_id", "timestamp"}

// The relation is symmetric: every marriage exists as two mirrored rows.
// The unique key keeps a user in at most one marriage per guild.
const createMarriagesTable = `
CREATE TABLE IF NOT EXISTS marriages (
	user_id BIGINT NOT NULL,
	partner_id BIGINT NOT NULL,
	guild_id BIGINT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	UNIQUE (user_id, guild_id)
)`

// Marriage is one row of the symmetric marriages relation
type Marriage struct {
	UserID    int64
	PartnerID int64
	GuildID   int64
	Timestamp time.Time
}

// MarriageStore reads and writes marriage records
type MarriageStore struct {
	pool    *db.PoolManager
	dialect goqu.DialectWrapper
}

// NewMarriageStore creates a marriage store over the given pool
func NewMarriageStore(pool *db.PoolManager) *MarriageStore {
	return &MarriageStore{
		pool:    pool,
		dialect: goqu.Dialect(pool.Driver()),
	}
}

// EnsureSchema creates the marriages table if it does not exist
func (s *MarriageStore) EnsureSchema(ctx context.Context) error {
	lease, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(lease)

	_, err = lease.Execute(ctx, createMarriagesTable)
	if err != nil {
		return fmt.Errorf("failed to create marriages table: %w", err)
	}
	return nil
}

// Marry records a marriage between two users as a symmetric pair of rows in
// one transaction. Both rows carry the same timestamp. If either insert
// fails the pair is rolled back and the causative error is returned
// unchanged, so callers can distinguish a duplicate marriage from an outage.
func (s *MarriageStore) Marry(ctx context.Context, instigatorID, targetID, guildID int64) error {
	lease, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(lease)

	ts := time.Now().UTC()
	return lease.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.insertRow(ctx, lease, instigatorID, targetID, guildID, ts); err != nil {
			return err
		}
		return s.insertRow(ctx, lease, targetID, instigatorID, guildID, ts)
	})
}

func (s *MarriageStore) insertRow(ctx context.Context, lease *db.Lease, userID, partnerID, guildID int64, ts time.Time) error {
	statement, args, err := s.dialect.Insert(marriagesTable).
		Rows(goqu.Record{
			"user_id":    userID,
			"partner_id": partnerID,
			"guild_id":   guildID,
			"timestamp":  ts,
		}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build marriage insert: %w", err)
	}

	_, err = lease.Execute(ctx, statement, args...)
	return err
}

// Divorce removes both rows of a marriage in one transaction
func (s *MarriageStore) Divorce(ctx context.Context, userID, partnerID, guildID int64) error {
	lease, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(lease)

	return lease.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.deleteRow(ctx, lease, userID, partnerID, guildID); err != nil {
			return err
		}
		return s.deleteRow(ctx, lease, partnerID, userID, guildID)
	})
}

func (s *MarriageStore) deleteRow(ctx context.Context, lease *db.Lease, userID, partnerID, guildID int64) error {
	statement, args, err := s.dialect.Delete(marriagesTable).
		Where(goqu.Ex{
			"user_id":    userID,
			"partner_id": partnerID,
			"guild_id":   guildID,
		}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build marriage delete: %w", err)
	}

	_, err = lease.Execute(ctx, statement, args...)
	return err
}

// Partner returns the marriage row for a user in a guild, or nil when the
// user is not married there.
func (s *MarriageStore) Partner(ctx context.Context, userID, guildID int64) (*Marriage, error) {
	rows, err := s.query(ctx, goqu.Ex{"user_id": userID, "guild_id": guildID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// GuildMarriages returns every marriage row in a guild
func (s *MarriageStore) GuildMarriages(ctx context.Context, guildID int64) ([]Marriage, error) {
	return s.query(ctx, goqu.Ex{"guild_id": guildID})
}

func (s *MarriageStore) query(ctx context.Context, where goqu.Ex) ([]Marriage, error) {
	lease, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(lease)

	statement, args, err := s.dialect.From(marriagesTable).
		Select("user_id", "partner_id", "guild_id", "timestamp").
		Where(where).
		Order(goqu.I("user_id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build marriage query: %w", err)
	}

	rows, err := lease.Execute(ctx, statement, args...)
	if err != nil {
		return nil, err
	}

	marriages := make([]Marriage, 0, len(rows))
	for _, row := range rows {
		m, err := marriageFromRow(row)
		if err != nil {
			return nil, err
		}
		marriages = append(marriages, m)
	}
	return marriages, nil
}

// ImportMarriages bulk-loads pre-formed marriage rows, bypassing per-row
// statement execution. Rows are expected to already be symmetric pairs.
func (s *MarriageStore) ImportMarriages(ctx context.Context, marriages []Marriage) error {
	records := make([][]interface{}, len(marriages))
	for i, m := range marriages {
		records[i] = []interface{}{m.UserID, m.PartnerID, m.GuildID, m.Timestamp}
	}
	return s.pool.BulkCopy(ctx, marriagesTable, marriageColumns, records)
}

func marriageFromRow(row map[string]interface{}) (Marriage, error) {
	userID, err := rowInt64(row, "user_id")
	if err != nil {
		return Marriage{}, err
	}
	partnerID, err := rowInt64(row, "partner_id")
	if err != nil {
		return Marriage{}, err
	}
	guildID, err := rowInt64(row, "guild_id")
	if err != nil {
		return Marriage{}, err
	}
	ts, err := rowTime(row, "timestamp")
	if err != nil {
		return Marriage{}, err
	}

	return Marriage{
		UserID:    userID,
		PartnerID: partnerID,
		GuildID:   guildID,
		Timestamp: ts,
	}, nil
}

func rowInt64(row map[string]interface{}, column string) (int64, error) {
	switch v := row[column].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("column %s has unexpected type %T", column, row[column])
	}
}

func rowTime(row map[string]interface{}, column string) (time.Time, error) {
	switch v := row[column].(type) {
	case time.Time:
		return v, nil
	case string:
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("column %s has unparseable time %q: %w", column, v, err)
		}
		return ts, nil
	case []byte:
		ts, err := time.Parse(time.RFC3339Nano, string(v))
		if err != nil {
			return time.Time{}, fmt.Errorf("column %s has unparseable time %q: %w", column, v, err)
		}
		return ts, nil
	default:
		return time.Time{}, fmt.Errorf("column %s has unexpected type %T", column, row[column])
	}
}

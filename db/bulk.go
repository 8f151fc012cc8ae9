package db

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"

	"github.com/TheShubhendra/marriagebot/telemetry"
)

// bulkCopyBatchSize bounds statement size; drivers reject statements with
// too many bind parameters well before this batch count times column count.
const bulkCopyBatchSize = 500

// BulkCopy streams pre-formed records into a target relation in multi-row
// batches, bypassing per-row statement execution. It runs on its own pooled
// connection inside its own transaction and never participates in a
// caller's open transaction; use Lease.BulkCopy to enroll explicitly.
func (p *PoolManager) BulkCopy(ctx context.Context, table string, columns []string, records [][]interface{}) error {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(lease)

	return lease.WithTransaction(ctx, func(ctx context.Context) error {
		return copyRecords(ctx, lease, p.config.Driver, table, columns, records)
	})
}

// BulkCopy streams records through this lease. When the lease holds an open
// transaction the copy becomes part of that transaction's atomic group.
func (l *Lease) BulkCopy(ctx context.Context, driver, table string, columns []string, records [][]interface{}) error {
	return copyRecords(ctx, l, driver, table, columns, records)
}

func copyRecords(ctx context.Context, lease *Lease, driver, table string, columns []string, records [][]interface{}) error {
	if len(records) == 0 {
		return nil
	}

	cols := make([]interface{}, len(columns))
	for i, c := range columns {
		cols[i] = c
	}

	dialect := goqu.Dialect(driver)
	for start := 0; start < len(records); start += bulkCopyBatchSize {
		end := min(start+bulkCopyBatchSize, len(records))
		batch := records[start:end]

		vals := make([][]interface{}, len(batch))
		for i, row := range batch {
			if len(row) != len(columns) {
				return fmt.Errorf("bulk copy into %s: record has %d values for %d columns", table, len(row), len(columns))
			}
			vals[i] = goqu.Vals(row)
		}

		statement, args, err := dialect.Insert(table).
			Cols(cols...).
			Vals(vals...).
			Prepared(true).
			ToSQL()
		if err != nil {
			return fmt.Errorf("failed to build bulk insert for %s: %w", table, err)
		}

		if _, err := lease.Execute(ctx, statement, args...); err != nil {
			return fmt.Errorf("bulk copy into %s failed: %w", table, err)
		}
		telemetry.BulkCopyRowsTotal.Add(float64(len(batch)))
	}

	return nil
}

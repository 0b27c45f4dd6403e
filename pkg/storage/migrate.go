package storage

import (
	"context"
	"fmt"
)

// DefaultMigrateBatchSize is used by Migrate when batchSize <= 0.
const DefaultMigrateBatchSize = 500

// Migrate streams every document from src into dst, preserving ids and
// values, in fixed-size batches (spec §4.3.4). It does not delete anything
// from src and does not clear dst first.
func Migrate(ctx context.Context, src, dst Engine, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultMigrateBatchSize
	}

	skip := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := src.FindAllRange(ctx, skip, batchSize)
		if err != nil {
			return fmt.Errorf("storage: migrate: read batch at skip=%d: %w", skip, err)
		}

		if len(batch) == 0 {
			return nil
		}

		for _, entry := range batch {
			if err := dst.Upsert(ctx, entry.ID, entry.Doc); err != nil {
				return fmt.Errorf("storage: migrate: upsert id %s: %w", entry.ID.String(), err)
			}
		}

		skip += len(batch)

		if len(batch) < batchSize {
			return nil
		}
	}
}

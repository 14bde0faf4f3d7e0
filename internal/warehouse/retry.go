package warehouse

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kyotei-project/backend/internal/errs"
	"gorm.io/gorm"
)

// serialization failures, deadlocks and dropped connections
var transientCodes = map[string]bool{
	"40001": true,
	"40P01": true,
	"08000": true,
	"08003": true,
	"08006": true,
	"57P01": true,
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientCodes[pgErr.Code]
	}
	return false
}

// withRetry runs fn in a transaction and retries once on a transient failure.
func (g *Gateway) withRetry(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	const maxAttempts = 2

	for attempt := 1; ; attempt++ {
		err := g.DB.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
		if attempt >= maxAttempts {
			return fmt.Errorf("%s: %w: %v", op, errs.ErrWarehouseTransient, err)
		}

		backoff := time.Duration(attempt*100+rand.Intn(100)) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

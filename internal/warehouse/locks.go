package warehouse

import (
	"context"
	"hash/fnv"

	"github.com/kyotei-project/backend/internal/logger"
	"gorm.io/gorm"
)

// jobLockKey maps a job name onto the advisory lock keyspace.
func jobLockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("kyotei-job:" + name))
	return int64(h.Sum64())
}

// WithJobLock runs fn while holding a session advisory lock for the job name.
// The lock lives on one pooled connection for the whole run, so instances in other
// processes coalesce. ran is false when another holder has the lock.
func (g *Gateway) WithJobLock(ctx context.Context, name string, fn func(ctx context.Context) error) (ran bool, err error) {
	key := jobLockKey(name)

	err = g.DB.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var locked bool
		if err := conn.Raw("SELECT pg_try_advisory_lock(?)", key).Scan(&locked).Error; err != nil {
			return err
		}
		if !locked {
			return nil
		}
		defer func() {
			// the job context may already be done
			if err := conn.WithContext(context.Background()).Exec("SELECT pg_advisory_unlock(?)", key).Error; err != nil {
				logger.Error("failed to release job lock %s: %v", name, err)
			}
		}()

		ran = true
		return fn(ctx)
	})
	return ran, err
}

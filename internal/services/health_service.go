package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger checks warehouse reachability and schema.
type Pinger interface {
	Health(ctx context.Context) error
}

// HealthReport is the result of a connectivity check.
type HealthReport struct {
	Warehouse string    `json:"warehouse"`
	Redis     string    `json:"redis"`
	CheckedAt time.Time `json:"checked_at"`
}

// OK reports whether every dependency is healthy.
func (r HealthReport) OK() bool {
	return r.Warehouse == "ok" && r.Redis == "ok"
}

// HealthService backs the test job and the health endpoint.
type HealthService struct {
	warehouse Pinger
	redis     *redis.Client
}

// NewHealthService creates a HealthService.
func NewHealthService(warehouse Pinger, rdb *redis.Client) *HealthService {
	return &HealthService{warehouse: warehouse, redis: rdb}
}

// Check pings the warehouse and Redis.
func (s *HealthService) Check(ctx context.Context) HealthReport {
	report := HealthReport{Warehouse: "ok", Redis: "ok", CheckedAt: time.Now()}
	if err := s.warehouse.Health(ctx); err != nil {
		report.Warehouse = err.Error()
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		report.Redis = err.Error()
	}
	return report
}

// Verify returns an error when any dependency is unhealthy.
func (s *HealthService) Verify(ctx context.Context) error {
	report := s.Check(ctx)
	if !report.OK() {
		return fmt.Errorf("health check failed: warehouse=%s redis=%s", report.Warehouse, report.Redis)
	}
	return nil
}

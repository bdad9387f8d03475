package bus

import (
	"context"

	"go.uber.org/zap"
)

// Bus defines the interface for change notification implementations
type Bus interface {
	// PublishCaseChange publishes a case create/update/delete to the case_changes stream
	PublishCaseChange(ctx context.Context, msg CaseChangeMessage) error

	// PublishRefresh publishes a completed refresh to the refreshes stream
	PublishRefresh(ctx context.Context, msg RefreshMessage) error

	// ReadCaseChanges reads from the case_changes stream
	ReadCaseChanges(ctx context.Context, group, consumer string, handler func(ctx context.Context, msg CaseChangeMessage) error) error

	// GetStats returns basic statistics about the bus
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// HealthCheck performs a health check on the bus connection
	HealthCheck(ctx context.Context) error

	// Close closes the bus connection
	Close() error
}

// NewBus creates a new bus instance based on the Redis URL
// If redisURL is empty or unreachable, returns a NullBus
func NewBus(redisURL string, logger *zap.Logger) Bus {
	if logger == nil {
		logger = zap.NewNop()
	}

	if redisURL == "" {
		return NewNullBus(logger)
	}

	redisBus, err := NewRedisBus(redisURL, logger)
	if err == nil {
		return redisBus
	}

	logger.Warn("redis unavailable, notifications disabled", zap.Error(err))
	return NewNullBus(logger)
}

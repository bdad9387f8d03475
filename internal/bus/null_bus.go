package bus

import (
	"context"

	"go.uber.org/zap"
)

// NullBus is a no-op implementation of the bus interface for when Redis is disabled
type NullBus struct {
	logger *zap.Logger
}

// NewNullBus creates a new null bus instance
func NewNullBus(logger *zap.Logger) *NullBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NullBus{logger: logger}
}

// Close is a no-op for null bus
func (nb *NullBus) Close() error {
	return nil
}

// PublishCaseChange logs the change but doesn't actually publish it
func (nb *NullBus) PublishCaseChange(ctx context.Context, msg CaseChangeMessage) error {
	nb.logger.Debug("would publish case change (redis disabled)",
		zap.String("case", msg.CaseNumber), zap.String("action", msg.Action))
	return nil
}

// PublishRefresh logs the refresh but doesn't actually publish it
func (nb *NullBus) PublishRefresh(ctx context.Context, msg RefreshMessage) error {
	nb.logger.Debug("would publish refresh (redis disabled)", zap.Int("cases", msg.Cases))
	return nil
}

// ReadCaseChanges blocks until ctx is cancelled since there is nothing to read
func (nb *NullBus) ReadCaseChanges(ctx context.Context, group, consumer string, handler func(ctx context.Context, msg CaseChangeMessage) error) error {
	nb.logger.Debug("would read case changes (redis disabled)", zap.String("group", group), zap.String("consumer", consumer))
	<-ctx.Done()
	return ctx.Err()
}

// GetStats returns empty stats for null bus
func (nb *NullBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"type":   "null",
		"status": "disabled",
	}, nil
}

// HealthCheck always returns nil for null bus
func (nb *NullBus) HealthCheck(ctx context.Context) error {
	return nil
}

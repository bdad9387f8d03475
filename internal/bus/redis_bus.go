package bus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Stream names.
const (
	StreamCaseChanges = "case_changes"
	StreamRefreshes   = "refreshes"
)

// maxStreamLen caps each stream with approximate trimming on publish.
const maxStreamLen = 10000

// RedisBus provides Redis Streams-based change notifications
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger
}

// StreamMessage represents a message in a Redis Stream
type StreamMessage struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// CaseChangeMessage announces a case created, updated or deleted through the case service
type CaseChangeMessage struct {
	CaseNumber string `json:"case_number"`
	Action     string `json:"action"`
	Actor      string `json:"actor"`
	Timestamp  int64  `json:"timestamp"`
}

// RefreshMessage announces a completed fetch-and-reconcile run
type RefreshMessage struct {
	Mode       string `json:"mode"`
	Tables     int    `json:"tables"`
	Cases      int    `json:"cases"`
	DurationMS int64  `json:"duration_ms"`
	Timestamp  int64  `json:"timestamp"`
}

// StreamHandler is a function that processes stream messages
type StreamHandler func(ctx context.Context, message StreamMessage) error

// NewRedisBus creates a new Redis bus instance
func NewRedisBus(redisURL string, logger *zap.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &RedisBus{client: client, logger: logger}, nil
}

// Close closes the Redis connection
func (rb *RedisBus) Close() error {
	return rb.client.Close()
}

func (rb *RedisBus) publish(ctx context.Context, stream string, fields map[string]interface{}) error {
	result := rb.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: fields,
	})
	return result.Err()
}

// PublishCaseChange publishes a case change to the case_changes stream
func (rb *RedisBus) PublishCaseChange(ctx context.Context, msg CaseChangeMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	if err := rb.publish(ctx, StreamCaseChanges, caseChangeFields(msg)); err != nil {
		return fmt.Errorf("failed to publish case change: %w", err)
	}
	rb.logger.Debug("published case change", zap.String("case", msg.CaseNumber), zap.String("action", msg.Action))
	return nil
}

// PublishRefresh publishes a refresh summary to the refreshes stream
func (rb *RedisBus) PublishRefresh(ctx context.Context, msg RefreshMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	fields := map[string]interface{}{
		"mode":        msg.Mode,
		"tables":      msg.Tables,
		"cases":       msg.Cases,
		"duration_ms": msg.DurationMS,
		"timestamp":   msg.Timestamp,
	}
	if err := rb.publish(ctx, StreamRefreshes, fields); err != nil {
		return fmt.Errorf("failed to publish refresh: %w", err)
	}
	rb.logger.Debug("published refresh", zap.Int("cases", msg.Cases))
	return nil
}

func caseChangeFields(msg CaseChangeMessage) map[string]interface{} {
	return map[string]interface{}{
		"case_number": msg.CaseNumber,
		"action":      msg.Action,
		"actor":       msg.Actor,
		"timestamp":   msg.Timestamp,
	}
}

func caseChangeFromFields(fields map[string]string) CaseChangeMessage {
	msg := CaseChangeMessage{
		CaseNumber: fields["case_number"],
		Action:     fields["action"],
		Actor:      fields["actor"],
	}
	if ts, err := parseTimestamp(fields["timestamp"]); err == nil {
		msg.Timestamp = ts
	}
	return msg
}

// CreateConsumerGroup creates a consumer group for a stream if it doesn't exist
func (rb *RedisBus) CreateConsumerGroup(ctx context.Context, stream, group string) error {
	err := rb.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s for stream %s: %w", group, stream, err)
	}
	rb.logger.Debug("consumer group ready", zap.String("stream", stream), zap.String("group", group))
	return nil
}

// ReadStream reads messages from a stream using consumer groups
func (rb *RedisBus) ReadStream(ctx context.Context, stream, group, consumer string, handler StreamHandler) error {
	if err := rb.CreateConsumerGroup(ctx, stream, group); err != nil {
		return err
	}

	rb.logger.Info("starting stream reader",
		zap.String("stream", stream), zap.String("group", group), zap.String("consumer", consumer))

	for {
		select {
		case <-ctx.Done():
			rb.logger.Info("stream reader stopping", zap.String("stream", stream))
			return ctx.Err()
		default:
		}

		result := rb.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    1 * time.Second,
		})
		if err := result.Err(); err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rb.logger.Warn("error reading stream", zap.String("stream", stream), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, s := range result.Val() {
			for _, message := range s.Messages {
				streamMsg := StreamMessage{ID: message.ID, Fields: make(map[string]string)}
				for key, value := range message.Values {
					if strValue, ok := value.(string); ok {
						streamMsg.Fields[key] = strValue
					}
				}

				if err := handler(ctx, streamMsg); err != nil {
					rb.logger.Warn("error processing message", zap.String("id", message.ID), zap.Error(err))
					continue
				}

				if err := rb.client.XAck(ctx, s.Stream, group, message.ID).Err(); err != nil {
					rb.logger.Warn("error acknowledging message", zap.String("id", message.ID), zap.Error(err))
				}
			}
		}
	}
}

// ReadCaseChanges reads from the case_changes stream
func (rb *RedisBus) ReadCaseChanges(ctx context.Context, group, consumer string, handler func(ctx context.Context, msg CaseChangeMessage) error) error {
	return rb.ReadStream(ctx, StreamCaseChanges, group, consumer, func(ctx context.Context, message StreamMessage) error {
		return handler(ctx, caseChangeFromFields(message.Fields))
	})
}

// GetStreamInfo returns information about a stream
func (rb *RedisBus) GetStreamInfo(ctx context.Context, stream string) (*redis.XInfoStream, error) {
	result := rb.client.XInfoStream(ctx, stream)
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to get stream info for %s: %w", stream, err)
	}
	return result.Val(), nil
}

// parseTimestamp parses a timestamp string to unix seconds
func parseTimestamp(timestamp string) (int64, error) {
	if timestamp == "" {
		return time.Now().Unix(), nil
	}

	// Numeric epoch in seconds or milliseconds
	if n, err := strconv.ParseInt(timestamp, 10, 64); err == nil {
		if n > 1_000_000_000_000 {
			return n / 1000, nil
		}
		return n, nil
	}

	if ts, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
		return ts.Unix(), nil
	}

	return time.Now().Unix(), fmt.Errorf("unable to parse timestamp: %s", timestamp)
}

// HealthCheck performs a health check on the Redis connection
func (rb *RedisBus) HealthCheck(ctx context.Context) error {
	return rb.client.Ping(ctx).Err()
}

// GetStats returns basic statistics about the Redis streams
func (rb *RedisBus) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{"type": "redis"}
	for _, stream := range []string{StreamCaseChanges, StreamRefreshes} {
		info, err := rb.GetStreamInfo(ctx, stream)
		if err != nil {
			continue
		}
		stats[stream] = map[string]interface{}{
			"length":         info.Length,
			"first_entry_id": info.FirstEntry.ID,
			"last_entry_id":  info.LastEntry.ID,
		}
	}
	return stats, nil
}

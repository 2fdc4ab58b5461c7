package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/RadiaWorks/ScanGate/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type scanReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ScanConsumer reads raw scan records for one consumer group and hands each
// decoded messages.ScanMessage to a handler.
type ScanConsumer struct {
	r scanReader
}

func NewScanConsumer(brokers []string, topic, groupID string) *ScanConsumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &ScanConsumer{
		r: kafka.NewReader(cfg),
	}
}

func newScanConsumerWithReader(r scanReader) *ScanConsumer {
	return &ScanConsumer{r: r}
}

func (c *ScanConsumer) Close() error {
	return c.r.Close()
}

// ConsumeScans loops until the context ends or the broker/handler fails.
// Offsets are committed only after the handler succeeds, so a failed scan is
// redelivered. A record that does not decode as a scan message is committed
// and skipped: one poison record must not wedge the partition.
func (c *ScanConsumer) ConsumeScans(ctx context.Context, handler func(ctx context.Context, m messages.ScanMessage) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch scan message")
		}

		var m messages.ScanMessage
		if err := json.Unmarshal(msg.Value, &m); err != nil {
			slog.Warn("skip undecodable scan message",
				"partition", msg.Partition, "offset", msg.Offset, "error", err.Error())
			if err := c.r.CommitMessages(ctx, msg); err != nil {
				return errors.Wrap(err, "commit scan message")
			}
			continue
		}

		if err := handler(ctx, m); err != nil {
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit scan message")
		}
	}
}

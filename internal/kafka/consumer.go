package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/explorers-club/progress/internal/config"
	"github.com/explorers-club/progress/internal/domain"
)

// submitTimeout bounds one batch submission
const submitTimeout = 30 * time.Second

// CompletionHandler processes activity completions read from the topic
type CompletionHandler interface {
	SubmitBatch(ctx context.Context, submissions []domain.CompletionSubmission) error
}

// Consumer feeds the completions topic into a CompletionHandler.
// Offsets are committed only after the batch holding them was submitted.
type Consumer struct {
	config  *config.KafkaConfig
	handler CompletionHandler
	logger  *slog.Logger
	group   sarama.ConsumerGroup
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler CompletionHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}
	// A new group starts from the beginning so no completion is dropped
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config:  cfg,
		handler: handler,
		logger:  logger.With("component", "kafka", "topic", cfg.Topic),
		group:   group,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start joins the consumer group and returns once the first session is set up
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer", "brokers", c.config.Brokers, "group_id", c.config.GroupID)

	ready := make(chan struct{})
	var once sync.Once

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		handler := &consumerGroupHandler{
			consumer: c,
			onSetup:  func() { once.Do(func() { close(ready) }) },
		}
		// Consume returns at every rebalance; rejoin until stopped
		for c.ctx.Err() == nil {
			err := c.group.Consume(c.ctx, []string{c.config.Topic}, handler)
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			if err != nil {
				c.logger.Error("consume session ended", "error", err)
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.group.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	select {
	case <-ready:
		c.logger.Info("Kafka consumer ready")
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.group.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	onSetup  func()
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	if h.onSetup != nil {
		h.onSetup()
	}
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// pendingBatch accumulates decoded submissions and the newest message read,
// including messages skipped as malformed.
type pendingBatch struct {
	submissions []domain.CompletionSubmission
	last        *sarama.ConsumerMessage
}

func (b *pendingBatch) reset() {
	b.submissions = b.submissions[:0]
	b.last = nil
}

// flush submits the batch and commits up to its last message. A failed
// submission is returned with the offsets uncommitted; ending the claim makes
// sarama close the session and the rejoin redelivers from the last commit.
func (h *consumerGroupHandler) flush(session sarama.ConsumerGroupSession, batch *pendingBatch) error {
	if batch.last == nil {
		return nil
	}
	logger := h.consumer.logger

	if len(batch.submissions) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		err := h.consumer.handler.SubmitBatch(ctx, batch.submissions)
		cancel()
		if err != nil {
			logger.Error("batch not committed", "error", err,
				"batch_size", len(batch.submissions),
				"partition", batch.last.Partition,
				"offset", batch.last.Offset,
			)
			batch.reset()
			return fmt.Errorf("submitting batch: %w", err)
		}
		logger.Debug("processed batch", "batch_size", len(batch.submissions))
	}

	session.MarkMessage(batch.last, "")
	batch.reset()
	return nil
}

// ConsumeClaim decodes completions from one partition and submits them in
// batches of BatchSize, or whatever arrived within BatchTimeout.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := &pendingBatch{submissions: make([]domain.CompletionSubmission, 0, cfg.BatchSize)}
	timer := time.NewTimer(cfg.BatchTimeout)
	defer timer.Stop()

	for {
		select {
		case <-session.Context().Done():
			return h.flush(session, batch)

		case <-timer.C:
			if err := h.flush(session, batch); err != nil {
				return err
			}
			timer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				return h.flush(session, batch)
			}
			batch.last = message

			submission, err := DecodeCompletion(message.Value)
			if err != nil {
				h.consumer.logger.Warn("skipping completion message",
					"error", err,
					"partition", message.Partition,
					"offset", message.Offset,
				)
				continue
			}
			batch.submissions = append(batch.submissions, submission)

			if len(batch.submissions) >= cfg.BatchSize {
				if err := h.flush(session, batch); err != nil {
					return err
				}
				timer.Reset(cfg.BatchTimeout)
			}
		}
	}
}

// CompletionMessage is the message format of the completions topic
type CompletionMessage struct {
	ProfileID  int64     `json:"profile_id"`
	ActivityID int64     `json:"activity_id"`
	Notes      string    `json:"notes,omitempty"`
	EventID    string    `json:"event_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

// DecodeCompletion parses and validates a completions topic message
func DecodeCompletion(value []byte) (domain.CompletionSubmission, error) {
	var msg CompletionMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return domain.CompletionSubmission{}, fmt.Errorf("unmarshaling completion: %w", err)
	}
	submission := domain.CompletionSubmission{
		ProfileID:  msg.ProfileID,
		ActivityID: msg.ActivityID,
		Notes:      msg.Notes,
	}
	if err := submission.Validate(); err != nil {
		return domain.CompletionSubmission{}, err
	}
	return submission, nil
}

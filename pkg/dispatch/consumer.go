package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-steps/pkg/brokers"
	"github.com/ruslano69/tdtp-steps/pkg/process"
)

// ErrMalformedEnvelope - конверт не удалось распаковать
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Handler обрабатывает полученный процесс (обычно executor.Run)
type Handler func(ctx context.Context, p *process.Process) error

// Consumer получает конверты из брокера и передает процессы в Handler
type Consumer struct {
	broker  brokers.MessageBroker
	cfg     Config
	handler Handler
}

// NewConsumer создает consumer
func NewConsumer(broker brokers.MessageBroker, cfg Config, handler Handler) *Consumer {
	return &Consumer{broker: broker, cfg: cfg, handler: handler}
}

// Next получает и обрабатывает один конверт.
// Сообщение подтверждается всегда, в том числе после ошибки обработчика
// и для поврежденного конверта.
func (c *Consumer) Next(ctx context.Context) error {
	msg, err := c.broker.Receive(ctx)
	if err != nil {
		return err
	}

	p, openErr := Open(ctx, msg, c.cfg)
	if openErr != nil {
		log.Error().Err(openErr).Str("key", msg.Key).Msg("dropping malformed envelope")
	} else if err := c.handler(ctx, p); err != nil {
		log.Warn().Err(err).Str("process_id", p.ID.String()).Msg("process failed")
	}

	if err := c.broker.Ack(ctx); err != nil {
		return err
	}
	if openErr != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, openErr)
	}
	return nil
}

// Run обрабатывает конверты до отмены ctx. После ошибки брокера ждет backoff.
func (c *Consumer) Run(ctx context.Context, backoff time.Duration) {
	for {
		err := c.Next(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil || errors.Is(err, ErrMalformedEnvelope) {
			continue
		}
		log.Warn().Err(err).Str("broker", c.broker.GetBrokerType()).Msg("consume failed")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}
}

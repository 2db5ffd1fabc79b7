package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-steps/pkg/brokers"
	"github.com/ruslano69/tdtp-steps/pkg/process"
	"github.com/ruslano69/tdtp-steps/pkg/resilience"
)

// Publisher отправляет процессы исполнителю через брокер
type Publisher struct {
	broker  brokers.MessageBroker
	breaker *resilience.CircuitBreaker
	cfg     Config
}

// NewPublisher создает publisher. breaker может быть nil.
func NewPublisher(broker brokers.MessageBroker, breaker *resilience.CircuitBreaker, cfg Config) *Publisher {
	return &Publisher{broker: broker, breaker: breaker, cfg: cfg}
}

// Publish упаковывает процесс и отправляет его.
// При открытом circuit возвращается ошибка с resilience.ErrCircuitOpen.
func (p *Publisher) Publish(ctx context.Context, proc *process.Process) error {
	msg, err := Seal(ctx, proc, p.cfg)
	if err != nil {
		return err
	}

	send := func(ctx context.Context) error {
		return p.broker.Send(ctx, msg)
	}
	if p.breaker != nil {
		err = p.breaker.Execute(ctx, send)
	} else {
		err = send(ctx)
	}
	if err != nil {
		log.Error().Err(err).
			Str("process_id", proc.ID.String()).
			Str("broker", p.broker.GetBrokerType()).
			Msg("failed to publish process")
		return fmt.Errorf("publish process %s: %w", proc.ID, err)
	}

	log.Info().
		Str("process_id", proc.ID.String()).
		Str("broker", p.broker.GetBrokerType()).
		Str("encoding", msg.Headers[HeaderEncoding]).
		Int("bytes", len(msg.Body)).
		Int("steps", len(proc.Steps)).
		Msg("process published")
	return nil
}

// Ready сообщает, можно ли публиковать (брокер доступен и circuit не открыт)
func (p *Publisher) Ready(ctx context.Context) error {
	if p.breaker != nil && p.breaker.State() == resilience.StateOpen {
		return fmt.Errorf("%s: %w", p.breaker.Name(), resilience.ErrCircuitOpen)
	}
	return p.broker.Ping(ctx)
}

package brokers

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka реализует MessageBroker для Apache Kafka
type Kafka struct {
	config      Config
	writer      *kafka.Writer
	reader      *kafka.Reader
	lastMessage *kafka.Message // последнее полученное сообщение (для manual commit)
}

// NewKafka создает новый Kafka брокер
func NewKafka(cfg Config) (*Kafka, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic name is required for Kafka")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required for Kafka")
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = "tdtp-steps-executor"
	}

	return &Kafka{config: cfg}, nil
}

// Connect устанавливает соединение с Kafka
func (k *Kafka) Connect(ctx context.Context) error {
	k.writer = &kafka.Writer{
		Addr:         kafka.TCP(k.config.Brokers...),
		Topic:        k.config.Topic,
		Balancer:     &kafka.Hash{}, // конверты одного процесса попадают в одну партицию
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
	}

	k.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:        k.config.Brokers,
		GroupID:        k.config.ConsumerGroup,
		Topic:          k.config.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
		StartOffset:    kafka.LastOffset,
		MaxWait:        1 * time.Second,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: 1 * time.Second,
	})

	return k.Ping(ctx)
}

// Close закрывает соединение с Kafka
func (k *Kafka) Close() error {
	var errs []error

	if k.writer != nil {
		if err := k.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close writer: %w", err))
		}
	}
	if k.reader != nil {
		if err := k.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close reader: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}

// Send отправляет сообщение в Kafka topic
func (k *Kafka) Send(ctx context.Context, msg Message) error {
	if k.writer == nil {
		return fmt.Errorf("not connected to Kafka")
	}

	if err := k.writer.WriteMessages(ctx, toKafka(msg)); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	return nil
}

// Receive получает сообщение из Kafka topic.
// Offset НЕ коммитится автоматически, после обработки нужен CommitLast()
func (k *Kafka) Receive(ctx context.Context) (Message, error) {
	if k.reader == nil {
		return Message{}, fmt.Errorf("not connected to Kafka")
	}

	km, err := k.reader.FetchMessage(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("failed to fetch message: %w", err)
	}

	k.lastMessage = &km
	return fromKafka(km), nil
}

// CommitLast подтверждает последнее полученное сообщение (commit offset)
func (k *Kafka) CommitLast(ctx context.Context) error {
	if k.lastMessage == nil {
		return fmt.Errorf("no message to commit")
	}

	if err := k.reader.CommitMessages(ctx, *k.lastMessage); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}

	k.lastMessage = nil
	return nil
}

// Ack реализует MessageBroker через CommitLast
func (k *Kafka) Ack(ctx context.Context) error {
	return k.CommitLast(ctx)
}

// Ping проверяет доступность Kafka
func (k *Kafka) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", k.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial Kafka broker: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ReadPartitions(k.config.Topic); err != nil {
		return fmt.Errorf("failed to read topic partitions: %w", err)
	}
	return nil
}

// GetBrokerType возвращает тип брокера
func (k *Kafka) GetBrokerType() string {
	return "kafka"
}

func toKafka(msg Message) kafka.Message {
	km := kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Body,
		Time:  time.Now(),
	}
	if msg.ContentType != "" {
		km.Headers = append(km.Headers, kafka.Header{Key: "content-type", Value: []byte(msg.ContentType)})
	}
	for key, value := range msg.Headers {
		km.Headers = append(km.Headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	return km
}

func fromKafka(km kafka.Message) Message {
	msg := Message{Key: string(km.Key), Body: km.Value}
	for _, h := range km.Headers {
		if h.Key == "content-type" {
			msg.ContentType = string(h.Value)
			continue
		}
		if msg.Headers == nil {
			msg.Headers = make(map[string]string)
		}
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}

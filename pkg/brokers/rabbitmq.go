package brokers

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQ реализует MessageBroker для RabbitMQ
type RabbitMQ struct {
	config       Config
	conn         *amqp.Connection
	channel      *amqp.Channel
	queue        amqp.Queue
	lastDelivery *amqp.Delivery // последнее полученное сообщение (для manual ack)
}

// NewRabbitMQ создает новый RabbitMQ брокер
func NewRabbitMQ(cfg Config) (*RabbitMQ, error) {
	if cfg.Queue == "" {
		return nil, fmt.Errorf("queue name is required for RabbitMQ")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		if cfg.UseTLS {
			cfg.Port = 5671
		} else {
			cfg.Port = 5672
		}
	}
	if cfg.VHost == "" {
		cfg.VHost = "/"
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = cfg.Queue
	}

	return &RabbitMQ{config: cfg}, nil
}

// URL возвращает строку подключения amqp(s)://user:password@host:port/vhost
func (r *RabbitMQ) URL() string {
	scheme := "amqp"
	if r.config.UseTLS {
		scheme = "amqps"
	}
	return fmt.Sprintf("%s://%s:%s@%s:%d/%s",
		scheme, r.config.User, r.config.Password, r.config.Host, r.config.Port, r.config.VHost)
}

// Connect устанавливает соединение с RabbitMQ
func (r *RabbitMQ) Connect(ctx context.Context) error {
	var err error
	if r.config.UseTLS {
		tlsConfig := &tls.Config{
			ServerName: r.config.Host,
			MinVersion: tls.VersionTLS12,
		}
		r.conn, err = amqp.DialTLS(r.URL(), tlsConfig)
	} else {
		r.conn, err = amqp.Dial(r.URL())
	}
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	r.channel, err = r.conn.Channel()
	if err != nil {
		r.conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// Параметры должны совпадать с существующей очередью
	r.queue, err = r.channel.QueueDeclare(
		r.config.Queue,
		r.config.Durable,
		r.config.AutoDelete,
		r.config.Exclusive,
		false, // no-wait
		nil,
	)
	if err != nil {
		r.channel.Close()
		r.conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	return nil
}

// Close закрывает соединение с RabbitMQ
func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			return fmt.Errorf("failed to close channel: %w", err)
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}
	return nil
}

// Send публикует сообщение в exchange с routing key очереди
func (r *RabbitMQ) Send(ctx context.Context, msg Message) error {
	if r.channel == nil {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	err := r.channel.PublishWithContext(ctx,
		r.config.Exchange,
		r.config.RoutingKey,
		false, // mandatory
		false, // immediate
		toPublishing(msg),
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Receive получает сообщение из очереди.
// Сообщение НЕ удаляется автоматически, после обработки нужен AckLast()
func (r *RabbitMQ) Receive(ctx context.Context) (Message, error) {
	if r.channel == nil {
		return Message{}, fmt.Errorf("not connected to RabbitMQ")
	}

	for {
		delivery, ok, err := r.channel.Get(r.config.Queue, false)
		if err != nil {
			return Message{}, fmt.Errorf("failed to get message: %w", err)
		}
		if ok {
			r.lastDelivery = &delivery
			return fromDelivery(delivery), nil
		}

		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// AckLast подтверждает последнее полученное сообщение
func (r *RabbitMQ) AckLast() error {
	if r.lastDelivery == nil {
		return fmt.Errorf("no message to acknowledge")
	}
	if err := r.lastDelivery.Ack(false); err != nil {
		return fmt.Errorf("failed to acknowledge message: %w", err)
	}
	r.lastDelivery = nil
	return nil
}

// Ack реализует MessageBroker через AckLast
func (r *RabbitMQ) Ack(ctx context.Context) error {
	return r.AckLast()
}

// NackLast отклоняет последнее полученное сообщение
func (r *RabbitMQ) NackLast(requeue bool) error {
	if r.lastDelivery == nil {
		return fmt.Errorf("no message to reject")
	}
	if err := r.lastDelivery.Nack(false, requeue); err != nil {
		return fmt.Errorf("failed to reject message: %w", err)
	}
	r.lastDelivery = nil
	return nil
}

// Ping проверяет доступность RabbitMQ
func (r *RabbitMQ) Ping(ctx context.Context) error {
	if r.conn == nil || r.conn.IsClosed() {
		return fmt.Errorf("not connected to RabbitMQ")
	}
	if r.channel == nil {
		return fmt.Errorf("channel not open")
	}
	return nil
}

// GetBrokerType возвращает тип брокера
func (r *RabbitMQ) GetBrokerType() string {
	return "rabbitmq"
}

func toPublishing(msg Message) amqp.Publishing {
	p := amqp.Publishing{
		ContentType:  msg.ContentType,
		MessageId:    msg.Key,
		Body:         msg.Body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}
	if len(msg.Headers) > 0 {
		p.Headers = amqp.Table{}
		for k, v := range msg.Headers {
			p.Headers[k] = v
		}
	}
	return p
}

func fromDelivery(d amqp.Delivery) Message {
	msg := Message{Key: d.MessageId, Body: d.Body, ContentType: d.ContentType}
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			if msg.Headers == nil {
				msg.Headers = make(map[string]string)
			}
			msg.Headers[k] = s
		}
	}
	return msg
}

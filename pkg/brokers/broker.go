// Package brokers доставляет конверты процессов исполнителю через очереди сообщений.
package brokers

import (
	"context"
	"fmt"
)

// Message - сообщение очереди
type Message struct {
	Key         string            // ключ партиционирования (ID процесса)
	Body        []byte            // тело (сериализованный конверт)
	ContentType string            // MIME тип тела
	Headers     map[string]string // служебные заголовки конверта
}

// MessageBroker представляет универсальный интерфейс для работы с очередями сообщений.
// Поддерживает RabbitMQ, Apache Kafka и in-process очередь для dev режима.
type MessageBroker interface {
	// Connect устанавливает соединение с брокером
	Connect(ctx context.Context) error

	// Close закрывает соединение с брокером
	Close() error

	// Send отправляет сообщение в очередь
	Send(ctx context.Context, msg Message) error

	// Receive получает сообщение из очереди.
	// Блокирующий вызов - ждет пока не придет сообщение или не отменится ctx
	Receive(ctx context.Context) (Message, error)

	// Ack подтверждает последнее полученное сообщение после успешной обработки
	Ack(ctx context.Context) error

	// Ping проверяет доступность брокера
	Ping(ctx context.Context) error

	// GetBrokerType возвращает тип брокера (rabbitmq, kafka, memory)
	GetBrokerType() string
}

// Config содержит параметры подключения к message broker
type Config struct {
	Type string `yaml:"type"` // rabbitmq, kafka, memory

	// RabbitMQ
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Queue      string `yaml:"queue"`
	VHost      string `yaml:"vhost"`    // по умолчанию "/"
	UseTLS     bool   `yaml:"use_tls"`  // amqps://
	Exchange   string `yaml:"exchange"` // пустая строка = default exchange
	RoutingKey string `yaml:"routing_key"`

	// Параметры очереди RabbitMQ (должны совпадать с существующей очередью!)
	Durable    bool `yaml:"durable"`
	AutoDelete bool `yaml:"auto_delete"`
	Exclusive  bool `yaml:"exclusive"`

	// Kafka
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumer_group"` // по умолчанию "tdtp-steps-executor"

	// Memory
	Capacity int `yaml:"capacity"` // размер буфера in-process очереди
}

// New создает новый MessageBroker на основе конфигурации
func New(cfg Config) (MessageBroker, error) {
	switch cfg.Type {
	case "rabbitmq":
		return NewRabbitMQ(cfg)
	case "kafka":
		return NewKafka(cfg)
	case "memory":
		return NewMemory(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported broker type: %s (supported: rabbitmq, kafka, memory)", cfg.Type)
	}
}

package kafka

import (
	"context"
	"time"

	"github.com/iwtcode/hipotService/internal/config"
	"github.com/iwtcode/hipotService/internal/interfaces"
	"github.com/iwtcode/hipotService/internal/middleware/logging"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer публикует итоги прогонов; ключ сообщения - серийный номер изделия,
// поэтому все прогоны одного изделия попадают в одну партицию.
type KafkaProducer struct {
	writer *kafka.Writer
	logger *logging.Logger
}

// NewKafkaProducer создает продюсера результатов. При KAFKA_ENABLE=false возвращает nil.
func NewKafkaProducer(cfg *config.AppConfig, logger *logging.Logger) (interfaces.KafkaService, error) {
	if !cfg.Kafka.Enable {
		logger.Info("Kafka publishing is disabled.")
		return nil, nil
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Kafka.Broker),
		Topic:                  cfg.Kafka.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		// одно сообщение на прогон, ждать наполнения пакета незачем
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}
	log := logger.WithPrefix("KAFKA")
	log.Info("Kafka producer configured", "broker", cfg.Kafka.Broker, "topic", cfg.Kafka.Topic)
	return &KafkaProducer{writer: writer, logger: log}, nil
}

// Produce синхронно отправляет сообщение в Kafka
func (p *KafkaProducer) Produce(ctx context.Context, key, value []byte) error {
	return p.writer.WriteMessages(ctx,
		kafka.Message{
			Key:   key,
			Value: value,
			Time:  time.Now(),
		},
	)
}

// Close дожидается отправки буфера и закрывает соединение с Kafka
func (p *KafkaProducer) Close() error {
	stats := p.writer.Stats()
	p.logger.Info("Closing Kafka producer", "messages", stats.Messages, "errors", stats.Errors)
	return p.writer.Close()
}

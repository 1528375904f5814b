package stream

import (
	"encoding/json"
	"log/slog"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

const (
	// DepositCreditedTopic carries every successful deposit credit, on-chain or off-ramp
	DepositCreditedTopic = "deposit.credited"

	// DepositRecordMissingTopic carries credits whose deposit row could not be written.
	// The reconcile worker retries the insert from these events.
	DepositRecordMissingTopic = "deposit.record_missing"

	// WithdrawalRequestedTopic carries new pending withdrawal requests for operator alerts
	WithdrawalRequestedTopic = "withdrawal.requested"
)

type KafkaStream struct {
	kafkaServers string
	producer     *kafka.Producer
	logger       *slog.Logger
}

// New creates a stream with a single long-lived producer. Delivery reports are
// drained in the background and failures are logged.
func New(kafkaServers string, logger *slog.Logger) (*KafkaStream, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": kafkaServers,
		"acks":              "all",
	})
	if err != nil {
		return nil, err
	}

	st := &KafkaStream{
		kafkaServers: kafkaServers,
		producer:     producer,
		logger:       logger,
	}

	go st.drainEvents()

	return st, nil
}

func (st *KafkaStream) drainEvents() {
	for event := range st.producer.Events() {
		switch e := event.(type) {
		case *kafka.Message:
			if e.TopicPartition.Error != nil {
				st.logger.Error("kafka delivery failed", "topic", *e.TopicPartition.Topic, "error", e.TopicPartition.Error)
			}
		case kafka.Error:
			st.logger.Error("kafka producer error", "error", e)
		}
	}
}

// ProduceMessage publishes a raw message to topic. Key may be empty.
func (st *KafkaStream) ProduceMessage(topic, key string, message []byte) error {
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          message,
	}
	if key != "" {
		msg.Key = []byte(key)
	}

	if err := st.producer.Produce(msg, nil); err != nil {
		st.logger.Error("failed to produce message", "topic", topic, "error", err)
		return err
	}

	return nil
}

// Publish encodes event as JSON and produces it to topic
func (st *KafkaStream) Publish(topic, key string, event any) error {
	message, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return st.ProduceMessage(topic, key, message)
}

type StreamConsumer struct {
	GroupId string
	Topic   string
}

func (st *KafkaStream) CreateConsumer(consumerStruct *StreamConsumer) (*kafka.Consumer, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": st.kafkaServers,
		"group.id":          consumerStruct.GroupId,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(consumerStruct.Topic, nil); err != nil {
		return nil, err
	}

	return consumer, nil
}

// Close flushes pending messages for up to five seconds and closes the producer
func (st *KafkaStream) Close() {
	st.producer.Flush(5000)
	st.producer.Close()
}

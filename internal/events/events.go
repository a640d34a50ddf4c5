// Package events publishes domain events about appointments to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	AppointmentCreated = "appointment.created"
	AppointmentUpdated = "appointment.updated"
	AppointmentDeleted = "appointment.deleted"
)

// AppointmentEvent is the message body; the appointment id is the key so
// events of one appointment stay ordered within a partition.
type AppointmentEvent struct {
	Type          string    `json:"type"`
	AppointmentID int64     `json:"appointment_id"`
	PatientID     int64     `json:"patient_id,omitempty"`
	DoctorID      int64     `json:"doctor_id,omitempty"`
	State         string    `json:"state,omitempty"`
	ProposedAt    time.Time `json:"proposed_at"`
	ActorUserID   int64     `json:"actor_user_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (e AppointmentEvent) Key() string {
	return strconv.FormatInt(e.AppointmentID, 10)
}

type Publisher interface {
	Publish(ctx context.Context, key string, v interface{}) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic not configured")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w, topic: topic}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, key string, v interface{}) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Topic() string {
	return p.topic
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop drops every event. It stands in when Kafka is disabled.
type Nop struct{}

func (Nop) Publish(ctx context.Context, key string, v interface{}) error { return nil }

func (Nop) Close() error { return nil }

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	EventTypeSongAdded  EventType = "song_added"
	EventTypeSongVoted  EventType = "song_voted"
	EventTypeSongPlayed EventType = "song_played"
)

// Event is the advisory activity record written for analytics
// consumers. It is not part of the in-room notification path; losing
// one changes nothing a guest can observe.
type Event struct {
	Type     EventType `json:"type"`
	RoomCode string    `json:"room_code"`
	TrackID  string    `json:"track_id,omitempty"`
	Title    string    `json:"title,omitempty"`
	GuestID  string    `json:"guest_id,omitempty"`

	// Zero is a real count after a toggle-off, so no omitempty here.
	VoteCount int       `json:"vote_count"`
	Timestamp time.Time `json:"timestamp"`
}

type KafkaClient struct {
	writer *kafka.Writer
}

func NewKafkaClient(brokers []string, topic string) *KafkaClient {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &KafkaClient{writer: writer}
}

// PublishEvent writes one activity event, keyed by room code so a
// room's events land on one partition in order.
func (k *KafkaClient) PublishEvent(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	messageJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := event.RoomCode
	if key == "" {
		key = uuid.New().String()
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: messageJSON,
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (k *KafkaClient) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

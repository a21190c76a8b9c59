package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mailmatrix/backend/internal/store"
)

const (
	streamName        = "MAIL_EVENTS"
	classifiedSubject = "mail.classified"
)

// Publisher emits a JetStream event for every newly classified message,
// deduplicated by the message's dedup key so re-publishing after a
// restart is harmless.
type Publisher struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// NewPublisher connects to NATS and prepares a JetStream context.
func NewPublisher(url string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return &Publisher{nc: nc, js: js}, nil
}

// EnsureStream creates the MAIL_EVENTS stream if it does not exist.
func (p *Publisher) EnsureStream() error {
	info, err := p.js.StreamInfo(streamName)
	if err == nil && info != nil {
		return nil
	}

	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:       streamName,
		Subjects:   []string{"mail.>"},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: 10 * time.Minute,
		MaxAge:     30 * 24 * time.Hour,
	})

	if err != nil {
		if err == nats.ErrStreamNameAlreadyInUse {
			return nil
		}
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// PublishClassified publishes one classified-mail event. The NATS MsgId
// mirrors the store's dedup key, so JetStream's duplicate window drops
// replays of the same message.
func (p *Publisher) PublishClassified(msg store.Message) error {
	event := map[string]interface{}{
		"user_email":  msg.UserEmail,
		"folder_name": msg.FolderName,
		"subject":     msg.Subject,
		"from":        msg.From,
		"date":        msg.Date,
		"stored_at":   time.Now().Unix(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msgID := fmt.Sprintf("mail.classified|%s|%s|%s|%s", msg.UserEmail, msg.Subject, msg.From, msg.Date)

	if _, err := p.js.Publish(classifiedSubject, payload, nats.MsgId(msgID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

package meta

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/ssq-labs/commentpilot/internal/pkg/schema"
)

const (
	ObjectInstagram = "instagram"
	FieldComments   = "comments"

	EventTypeComment = "comment"
	EventTypeMessage = "message"
)

// ErrInvalidPayload wraps body parse and schema failures.
var ErrInvalidPayload = errors.New("invalid meta webhook payload")

//go:embed schemas/notification.json
var notificationSchemaJSON []byte

var (
	notificationSchema = schema.MustCompile("meta-notification", notificationSchemaJSON)
	validate           = validator.New()
)

// Notification is the body Meta POSTs to the webhook endpoint.
type Notification struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Changes   []Change    `json:"changes"`
	Messaging []Messaging `json:"messaging"`
}

type Change struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

type commentValue struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	ParentID string `json:"parent_id"`
	Media    struct {
		ID               string `json:"id"`
		MediaProductType string `json:"media_product_type"`
	} `json:"media"`
	From struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
}

type Messaging struct {
	Sender    Party    `json:"sender"`
	Recipient Party    `json:"recipient"`
	Timestamp int64    `json:"timestamp"`
	Message   *Message `json:"message"`
}

type Party struct {
	ID string `json:"id"`
}

type Message struct {
	MID    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo"`
}

// CommentEvent is the normalized comment stored as a webhook log payload.
type CommentEvent struct {
	CommentID        string `json:"comment_id"`
	Text             string `json:"text" validate:"required"`
	ParentID         string `json:"parent_id,omitempty"`
	MediaID          string `json:"media_id"`
	MediaProductType string `json:"media_product_type,omitempty"`
	AuthorID         string `json:"author_id" validate:"required"`
	AuthorUsername   string `json:"author_username,omitempty"`
	PlatformUserID   string `json:"platform_user_id" validate:"required"`
	Timestamp        int64  `json:"timestamp"`
}

// MessageEvent is the normalized direct message stored as a webhook log payload.
type MessageEvent struct {
	MID            string `json:"mid"`
	Text           string `json:"text" validate:"required"`
	SenderID       string `json:"sender_id" validate:"required"`
	RecipientID    string `json:"recipient_id"`
	PlatformUserID string `json:"platform_user_id" validate:"required"`
	Timestamp      int64  `json:"timestamp"`
}

// Event is one normalized item of a notification.
type Event struct {
	Type      string
	WebhookID string
	AccountID string
	PostID    string
	Comment   *CommentEvent
	Message   *MessageEvent
}

// Payload encodes the normalized event body.
func (e Event) Payload() ([]byte, error) {
	if e.Comment != nil {
		return json.Marshal(e.Comment)
	}
	return json.Marshal(e.Message)
}

// Batch is the result of normalizing one notification.
type Batch struct {
	Events   []Event
	Rejected int
	Ignored  int
}

// ParseNotification validates body against the notification schema and
// decodes it.
func ParseNotification(body []byte) (*Notification, error) {
	if err := notificationSchema.ValidateJSON(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &n, nil
}

// Normalize flattens a notification into comment and message events.
// Non-instagram objects and unrelated fields are ignored, malformed items are
// rejected.
func Normalize(n *Notification) Batch {
	var b Batch
	if n.Object != ObjectInstagram {
		b.Ignored = len(n.Entry)
		return b
	}

	for _, entry := range n.Entry {
		for _, change := range entry.Changes {
			if change.Field != FieldComments {
				b.Ignored++
				continue
			}
			ev, err := normalizeComment(entry, change.Value)
			if err != nil {
				b.Rejected++
				continue
			}
			b.Events = append(b.Events, ev)
		}

		for _, m := range entry.Messaging {
			if m.Message == nil || m.Message.IsEcho {
				b.Ignored++
				continue
			}
			ev, err := normalizeMessage(entry, m)
			if err != nil {
				b.Rejected++
				continue
			}
			b.Events = append(b.Events, ev)
		}
	}
	return b
}

func normalizeComment(entry Entry, raw json.RawMessage) (Event, error) {
	var v commentValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return Event{}, err
	}
	c := &CommentEvent{
		CommentID:        v.ID,
		Text:             v.Text,
		ParentID:         v.ParentID,
		MediaID:          v.Media.ID,
		MediaProductType: v.Media.MediaProductType,
		AuthorID:         v.From.ID,
		AuthorUsername:   v.From.Username,
		PlatformUserID:   entry.ID,
		Timestamp:        entry.Time,
	}
	if err := validate.Struct(c); err != nil {
		return Event{}, err
	}

	webhookID := c.CommentID
	if webhookID == "" {
		webhookID = DeriveWebhookID(entry.ID, strconv.FormatInt(c.Timestamp, 10), c.MediaID, c.AuthorID, c.ParentID, c.Text)
	}
	return Event{
		Type:      EventTypeComment,
		WebhookID: webhookID,
		AccountID: entry.ID,
		PostID:    c.MediaID,
		Comment:   c,
	}, nil
}

func normalizeMessage(entry Entry, m Messaging) (Event, error) {
	msg := &MessageEvent{
		MID:            m.Message.MID,
		Text:           m.Message.Text,
		SenderID:       m.Sender.ID,
		RecipientID:    m.Recipient.ID,
		PlatformUserID: entry.ID,
		Timestamp:      m.Timestamp,
	}
	if err := validate.Struct(msg); err != nil {
		return Event{}, err
	}

	webhookID := msg.MID
	if webhookID == "" {
		webhookID = DeriveWebhookID(entry.ID, strconv.FormatInt(msg.Timestamp, 10), msg.SenderID, msg.RecipientID, msg.Text)
	}
	return Event{
		Type:      EventTypeMessage,
		WebhookID: webhookID,
		AccountID: entry.ID,
		Message:   msg,
	}, nil
}

// DeriveWebhookID builds a stable id for items Meta delivered without one
// from the fields that tell two items apart. A redelivery hashes the same.
func DeriveWebhookID(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return "hash:" + hex.EncodeToString(h.Sum(nil))
}

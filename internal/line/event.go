package line

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind classifies an inbound event for routing.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
	KindOther Kind = "other"
)

// Source carries the attributes shared by every event kind.
type Source struct {
	UserID         string
	ReplyToken     string
	WebhookEventID string
	Timestamp      time.Time
}

// Event is one of TextEvent, ImageEvent, FileEvent or OtherEvent.
type Event interface {
	Kind() Kind
	Origin() Source
}

// TextEvent is a text message.
type TextEvent struct {
	Source
	MessageID string
	Text      string
}

// ImageEvent is an image message; the bytes are fetched separately by MessageID.
type ImageEvent struct {
	Source
	MessageID string
}

// FileEvent is a file message; the bytes are fetched separately by MessageID.
type FileEvent struct {
	Source
	MessageID string
	FileName  string
	FileSize  int64
}

// OtherEvent is any event the bot does not act on (follow, sticker, postback, ...).
type OtherEvent struct {
	Source
	Type        string
	MessageType string
}

func (TextEvent) Kind() Kind  { return KindText }
func (ImageEvent) Kind() Kind { return KindImage }
func (FileEvent) Kind() Kind  { return KindFile }
func (OtherEvent) Kind() Kind { return KindOther }

func (e TextEvent) Origin() Source  { return e.Source }
func (e ImageEvent) Origin() Source { return e.Source }
func (e FileEvent) Origin() Source  { return e.Source }
func (e OtherEvent) Origin() Source { return e.Source }

// Envelope is one webhook delivery.
type Envelope struct {
	Destination string
	Events      []Event
}

type wireEnvelope struct {
	Destination string      `json:"destination"`
	Events      []wireEvent `json:"events"`
}

type wireEvent struct {
	Type           string       `json:"type"`
	ReplyToken     string       `json:"replyToken"`
	WebhookEventID string       `json:"webhookEventId"`
	Timestamp      int64        `json:"timestamp"`
	Source         wireSource   `json:"source"`
	Message        *wireMessage `json:"message,omitempty"`
}

type wireSource struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

type wireMessage struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	FileName string `json:"fileName,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
}

// ParseEnvelope decodes a webhook body. Any structural error rejects the
// whole body so that no event of a malformed delivery is processed.
func ParseEnvelope(body []byte) (Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(body, &wire); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	env := Envelope{
		Destination: wire.Destination,
		Events:      make([]Event, 0, len(wire.Events)),
	}
	for _, we := range wire.Events {
		env.Events = append(env.Events, we.toEvent())
	}
	return env, nil
}

func (we wireEvent) toEvent() Event {
	src := Source{
		UserID:         strings.TrimSpace(we.Source.UserID),
		ReplyToken:     strings.TrimSpace(we.ReplyToken),
		WebhookEventID: we.WebhookEventID,
	}
	if we.Timestamp > 0 {
		src.Timestamp = time.UnixMilli(we.Timestamp).UTC()
	}
	if we.Type != "message" || we.Message == nil {
		return OtherEvent{Source: src, Type: we.Type}
	}
	msg := we.Message
	switch msg.Type {
	case "text":
		return TextEvent{Source: src, MessageID: msg.ID, Text: msg.Text}
	case "image":
		return ImageEvent{Source: src, MessageID: msg.ID}
	case "file":
		return FileEvent{Source: src, MessageID: msg.ID, FileName: msg.FileName, FileSize: msg.FileSize}
	default:
		return OtherEvent{Source: src, Type: we.Type, MessageType: msg.Type}
	}
}

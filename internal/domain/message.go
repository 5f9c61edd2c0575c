package domain

import (
	"errors"
	"time"
)

const MaxContentLen = 4096

var (
	ErrContentEmpty   = errors.New("content empty")
	ErrContentTooLong = errors.New("content too long")
	ErrBadContentKind = errors.New("bad content kind")
)

type ContentKind string

const (
	KindText  ContentKind = "text"
	KindImage ContentKind = "image"
)

// Message is the unit of broadcast. Content is either text or an opaque
// reference (image URL) depending on Kind.
type Message struct {
	ID       string      `json:"id"`
	Sender   UserID      `json:"sender"`
	Username string      `json:"username"`
	Room     RoomID      `json:"room"`
	Content  string      `json:"content"`
	Kind     ContentKind `json:"kind"`
	SentAt   time.Time   `json:"sentAt"`
}

func NewMessage(sender *User, room RoomID, content string, kind ContentKind) (*Message, error) {
	if len(content) == 0 {
		return nil, ErrContentEmpty
	}
	if len(content) > MaxContentLen {
		return nil, ErrContentTooLong
	}
	switch kind {
	case KindText, KindImage:
	case "":
		kind = KindText
	default:
		return nil, ErrBadContentKind
	}
	return &Message{
		Sender:   sender.ID,
		Username: sender.Username,
		Room:     room,
		Content:  content,
		Kind:     kind,
		SentAt:   time.Now().UTC(),
	}, nil
}

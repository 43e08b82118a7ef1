package game

import (
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	ChatCapacity     = 200
	DefaultChatLimit = 50
)

var ErrEmptyText = errors.New("empty chat text")

// ChatLog keeps the most recent ChatCapacity messages in insertion order.
// Message ids keep increasing across eviction.
type ChatLog struct {
	mu       sync.Mutex
	messages []ChatMessage
	nextID   int
	maxText  int

	now func() time.Time
}

// NewChatLog creates an empty log. Text longer than maxText runes is
// truncated; maxText <= 0 disables the cap.
func NewChatLog(maxText int) *ChatLog {
	return &ChatLog{
		messages: make([]ChatMessage, 0, ChatCapacity),
		maxText:  maxText,
		now:      time.Now,
	}
}

func (l *ChatLog) Post(from int, text string) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, ErrEmptyText
	}
	if l.maxText > 0 && utf8.RuneCountInString(text) > l.maxText {
		text = strings.TrimSpace(string([]rune(text)[:l.maxText]))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := ChatMessage{
		ID:   l.nextID,
		From: from,
		Text: text,
		TS:   float64(l.now().UnixNano()) / 1e9,
	}
	l.nextID++

	if len(l.messages) == ChatCapacity {
		copy(l.messages, l.messages[1:])
		l.messages = l.messages[:ChatCapacity-1]
	}
	l.messages = append(l.messages, msg)

	return msg, nil
}

// Get returns the newest messages with id > since, at most limit of them,
// in ascending id order. limit is clamped to [1, ChatCapacity].
func (l *ChatLog) Get(since, limit int) []ChatMessage {
	limit = ClampChatLimit(limit)

	l.mu.Lock()
	defer l.mu.Unlock()

	// ids are ascending, so the qualifying messages form a suffix
	start := len(l.messages)
	for start > 0 && l.messages[start-1].ID > since {
		start--
	}
	if len(l.messages)-start > limit {
		start = len(l.messages) - limit
	}

	out := make([]ChatMessage, len(l.messages)-start)
	copy(out, l.messages[start:])

	return out
}

func (l *ChatLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.messages)
}

func ClampChatLimit(limit int) int {
	return max(1, min(ChatCapacity, limit))
}

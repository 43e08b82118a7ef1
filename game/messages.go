package game

import "strings"

type Direction string

const (
	DirUp    Direction = "UP"
	DirDown  Direction = "DOWN"
	DirLeft  Direction = "LEFT"
	DirRight Direction = "RIGHT"
)

// ParseDirection accepts the four wire names, case-insensitively.
func ParseDirection(s string) (Direction, bool) {
	switch Direction(strings.ToUpper(strings.TrimSpace(s))) {
	case DirUp:
		return DirUp, true
	case DirDown:
		return DirDown, true
	case DirLeft:
		return DirLeft, true
	case DirRight:
		return DirRight, true
	}
	return "", false
}

// PlayerState is the last-known state of a registered player.
type PlayerState struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Map       string    `json:"map"`
	Direction Direction `json:"direction"`
	Moving    bool      `json:"moving"`
}

type ChatMessage struct {
	ID   int     `json:"id"`
	From int     `json:"from"`
	Text string  `json:"text"`
	TS   float64 `json:"ts"`
}

type StreamMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type PlayersMessage struct {
	Players map[int]PlayerState `json:"players"`
}

type ChatListMessage struct {
	Messages []ChatMessage `json:"messages"`
}

type RegisterMessage struct {
	Message string `json:"message"`
	ID      int    `json:"id"`
}

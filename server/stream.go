package server

import (
	"net/http"
	"time"

	"sync-relay/game"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const streamWriteWait = 5 * time.Second

// streamHandler upgrades to a read-only spectator feed of player snapshots
// and new chat messages.
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Error("Failed to upgrade connection to websocket")
		return
	}

	go s.stream(conn)
}

func (s *Server) stream(conn *websocket.Conn) {
	clients := s.metrics.StreamClients.Add(1)
	log.WithField("clients", clients).Info("Stream client connected")

	defer func() {
		conn.Close()
		clients := s.metrics.StreamClients.Add(-1)
		log.WithField("clients", clients).Info("Stream client disconnected")
	}()

	// Inbound frames are ignored; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	lastChat := -1
	for {
		var err error
		lastChat, err = s.push(conn, lastChat)
		if err != nil {
			return
		}

		select {
		case <-closed:
			return
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"),
				time.Now().Add(streamWriteWait))
			return
		case <-ticker.C:
		}
	}
}

// push writes the current player snapshot and any chat newer than lastChat,
// returning the newest chat id sent.
func (s *Server) push(conn *websocket.Conn, lastChat int) (int, error) {
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	err := conn.WriteJSON(game.StreamMessage{
		Type: "players",
		Data: s.registry.List(),
	})
	if err != nil {
		return lastChat, err
	}

	msgs := s.chat.Get(lastChat, game.ChatCapacity)
	if len(msgs) == 0 {
		return lastChat, nil
	}

	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	err = conn.WriteJSON(game.StreamMessage{
		Type: "chat",
		Data: msgs,
	})
	if err != nil {
		return lastChat, err
	}

	return msgs[len(msgs)-1].ID, nil
}

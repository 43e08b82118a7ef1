package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"sync-relay/game"
	"sync-relay/nats"

	log "github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
}

type successBody struct {
	Success bool              `json:"success"`
	Msg     *game.ChatMessage `json:"msg,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).Error("Error marshalling response")
		code = http.StatusInternalServerError
		data = []byte(`{"error":"internal"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, code int, reason string, missing ...string) {
	writeJSON(w, code, errorBody{Error: reason, Missing: missing})
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not_found")
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	id := s.registry.Register()
	s.metrics.Registrations.Add(1)
	log.WithField("player", id).Info("Player registered")

	writeJSON(w, http.StatusOK, game.RegisterMessage{Message: "registration successful", ID: id})
}

func (s *Server) listPlayersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, game.PlayersMessage{Players: s.registry.List()})
}

func (s *Server) updatePlayerHandler(w http.ResponseWriter, r *http.Request) {
	fields, ok := decodeObject(w, r)
	if !ok {
		s.metrics.UpdatesRejected.Add(1)
		return
	}

	if missing := missingFields(fields, "id", "x", "y", "map"); len(missing) > 0 {
		s.metrics.UpdatesRejected.Add(1)
		writeError(w, http.StatusBadRequest, "bad_fields", missing...)
		return
	}

	id, state, ok := parsePlayerUpdate(fields)
	if !ok {
		s.metrics.UpdatesRejected.Add(1)
		writeError(w, http.StatusBadRequest, "bad_fields")
		return
	}

	if !s.registry.Update(id, state) {
		s.metrics.UpdatesRejected.Add(1)
		writeError(w, http.StatusNotFound, "player_not_found")
		return
	}

	s.metrics.UpdatesAccepted.Add(1)
	s.events.PublishJSON(nats.PlayerSubject(id), state)
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

func (s *Server) postChatHandler(w http.ResponseWriter, r *http.Request) {
	fields, ok := decodeObject(w, r)
	if !ok {
		s.metrics.ChatRejected.Add(1)
		return
	}

	if missing := missingFields(fields, "id", "text"); len(missing) > 0 {
		s.metrics.ChatRejected.Add(1)
		writeError(w, http.StatusBadRequest, "bad_fields", missing...)
		return
	}

	from, okID := intField(fields["id"])
	text, okText := stringField(fields["text"])
	if !okID || !okText {
		s.metrics.ChatRejected.Add(1)
		writeError(w, http.StatusBadRequest, "bad_fields")
		return
	}

	msg, err := s.chat.Post(from, text)
	if errors.Is(err, game.ErrEmptyText) {
		s.metrics.ChatRejected.Add(1)
		writeError(w, http.StatusBadRequest, "empty_text")
		return
	}

	s.metrics.ChatPosted.Add(1)
	s.events.PublishJSON(nats.ChatSubject, msg)
	writeJSON(w, http.StatusOK, successBody{Success: true, Msg: &msg})
}

// getChatHandler never rejects: unparsable since/limit fall back to defaults.
func (s *Server) getChatHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	since, err := strconv.Atoi(query.Get("since"))
	if err != nil {
		since = -1
	}
	limit, err := strconv.Atoi(query.Get("limit"))
	if err != nil {
		limit = game.DefaultChatLimit
	}

	writeJSON(w, http.StatusOK, game.ChatListMessage{Messages: s.chat.Get(since, limit)})
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	payload := s.metrics.Snapshot()
	payload["players"] = s.registry.Len()
	payload["chat_messages"] = s.chat.Len()
	writeJSON(w, http.StatusOK, payload)
}

// decodeObject reads a JSON object body. On failure it writes the
// invalid_json response itself.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return nil, false
	}
	// the body must hold exactly one JSON value
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return nil, false
	}

	return fields, true
}

func missingFields(fields map[string]json.RawMessage, keys ...string) []string {
	var missing []string
	for _, k := range keys {
		if _, ok := fields[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

func parsePlayerUpdate(fields map[string]json.RawMessage) (int, game.PlayerState, bool) {
	id, ok := intField(fields["id"])
	if !ok {
		return 0, game.PlayerState{}, false
	}
	x, okX := floatField(fields["x"])
	y, okY := floatField(fields["y"])
	mapName, okMap := stringField(fields["map"])
	if !okX || !okY || !okMap {
		return 0, game.PlayerState{}, false
	}

	state := game.PlayerState{X: x, Y: y, Map: mapName, Direction: game.DirDown}

	if raw, present := fields["direction"]; present && !isNull(raw) {
		name, ok := stringField(raw)
		if !ok {
			return 0, game.PlayerState{}, false
		}
		if state.Direction, ok = game.ParseDirection(name); !ok {
			return 0, game.PlayerState{}, false
		}
	}

	if raw, present := fields["moving"]; present && !isNull(raw) {
		if err := json.Unmarshal(raw, &state.Moving); err != nil {
			return 0, game.PlayerState{}, false
		}
	}

	return id, state, true
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// numberField accepts a JSON number or a string holding one.
func numberField(raw json.RawMessage) (json.Number, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	switch v := v.(type) {
	case json.Number:
		return v, true
	case string:
		return json.Number(strings.TrimSpace(v)), true
	}
	return "", false
}

func intField(raw json.RawMessage) (int, bool) {
	n, ok := numberField(raw)
	if !ok {
		return 0, false
	}
	if i, err := strconv.Atoi(n.String()); err == nil {
		return i, true
	}
	// integral floats such as 3.0 are still ids
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func floatField(raw json.RawMessage) (float64, bool) {
	n, ok := numberField(raw)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stringField(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

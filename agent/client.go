package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sync-relay/config"
	"sync-relay/game"
)

// StatusError is a non-200 relay response.
type StatusError struct {
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("relay responded %d", e.Code)
	}
	return fmt.Sprintf("relay responded %d: %s", e.Code, e.Reason)
}

// isRejection reports whether err is the relay refusing a request, as
// opposed to the relay being unreachable or broken.
func isRejection(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

type updateRequest struct {
	ID        int            `json:"id"`
	X         float64        `json:"x"`
	Y         float64        `json:"y"`
	Map       string         `json:"map"`
	Direction game.Direction `json:"direction"`
	Moving    bool           `json:"moving"`
}

type chatRequest struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

type chatResponse struct {
	Success bool             `json:"success"`
	Msg     game.ChatMessage `json:"msg"`
}

// relayClient speaks the relay's HTTP/JSON protocol. Sends and polls use
// separate connection pools so a slow poll never delays an update.
type relayClient struct {
	base string
	send *http.Client
	poll *http.Client
}

func newHTTPClient(conf config.AgentConfig) *http.Client {
	return &http.Client{
		Timeout: conf.ConnectTimeout + conf.RequestTimeout,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: conf.ConnectTimeout}).DialContext,
			ResponseHeaderTimeout: conf.RequestTimeout,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       30 * time.Second,
		},
	}
}

func newRelayClient(conf config.AgentConfig) *relayClient {
	return &relayClient{
		base: strings.TrimRight(conf.ServerURL, "/"),
		send: newHTTPClient(conf),
		poll: newHTTPClient(conf),
	}
}

func (c *relayClient) Register(ctx context.Context) (int, error) {
	var reg game.RegisterMessage
	if err := c.do(ctx, c.send, http.MethodGet, "/register", nil, &reg); err != nil {
		return 0, fmt.Errorf("register: %w", err)
	}
	return reg.ID, nil
}

func (c *relayClient) Players(ctx context.Context) (map[int]game.PlayerState, error) {
	var list game.PlayersMessage
	if err := c.do(ctx, c.poll, http.MethodGet, "/players", nil, &list); err != nil {
		return nil, fmt.Errorf("fetch players: %w", err)
	}
	if list.Players == nil {
		list.Players = map[int]game.PlayerState{}
	}
	return list.Players, nil
}

func (c *relayClient) UpdatePlayer(ctx context.Context, s OutboundState) error {
	body := updateRequest{
		ID:        s.ID,
		X:         s.State.X,
		Y:         s.State.Y,
		Map:       s.State.Map,
		Direction: s.State.Direction,
		Moving:    s.State.Moving,
	}
	if err := c.do(ctx, c.send, http.MethodPost, "/players", body, nil); err != nil {
		return fmt.Errorf("update player %d: %w", s.ID, err)
	}
	return nil
}

func (c *relayClient) PostChat(ctx context.Context, id int, text string) (game.ChatMessage, error) {
	var resp chatResponse
	if err := c.do(ctx, c.send, http.MethodPost, "/chat", chatRequest{ID: id, Text: text}, &resp); err != nil {
		return game.ChatMessage{}, fmt.Errorf("post chat: %w", err)
	}
	return resp.Msg, nil
}

func (c *relayClient) Chat(ctx context.Context, since, limit int) ([]game.ChatMessage, error) {
	q := url.Values{}
	q.Set("since", strconv.Itoa(since))
	q.Set("limit", strconv.Itoa(limit))

	var list game.ChatListMessage
	if err := c.do(ctx, c.poll, http.MethodGet, "/chat?"+q.Encode(), nil, &list); err != nil {
		return nil, fmt.Errorf("fetch chat: %w", err)
	}
	return list.Messages, nil
}

func (c *relayClient) do(ctx context.Context, client *http.Client, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var reason struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&reason)
		return &StatusError{Code: resp.StatusCode, Reason: reason.Error}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sync-relay/config"
	"sync-relay/game"
	"sync-relay/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkerTracesSquare(t *testing.T) {
	w := walker{side: 10, speed: 10}

	cases := []struct {
		dt   float64
		x, y float64
		dir  game.Direction
	}{
		{0.5, 5, 0, game.DirRight},
		{1, 10, 5, game.DirDown},
		{1, 5, 10, game.DirLeft},
		{1, 0, 5, game.DirUp},
		{1, 5, 0, game.DirRight},
	}

	for i, want := range cases {
		x, y, dir := w.step(want.dt)
		assert.InDelta(t, want.x, x, 1e-9, "step %d", i)
		assert.InDelta(t, want.y, y, 1e-9, "step %d", i)
		assert.Equal(t, want.dir, dir, "step %d", i)
	}
}

func testOptions() options {
	return options{mapName: "town", side: 10, speed: 10, fps: 50}
}

func TestRunReturnsWhenRegistrationFails(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	conf := config.DefaultAgentConfig()
	conf.ServerURL = url

	done := make(chan error, 1)
	go func() { done <- run(context.Background(), conf, testOptions()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errNotRegistered)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}
}

func TestRunWalksUntilCancelled(t *testing.T) {
	relay := server.NewServer(config.Config{ChatMaxText: 500, StreamInterval: time.Second}, nil)
	ts := httptest.NewServer(relay.Handler())
	t.Cleanup(func() {
		relay.Close()
		ts.Close()
	})

	conf := config.DefaultAgentConfig()
	conf.ServerURL = ts.URL
	conf.SendInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, conf, testOptions()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/players")
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		var list game.PlayersMessage
		if json.NewDecoder(resp.Body).Decode(&list) != nil {
			return false
		}
		p, ok := list.Players[0]
		return ok && p.Map == "town" && p.Moving
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

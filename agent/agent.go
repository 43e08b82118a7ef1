package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"sync-relay/circuitbreaker"
	"sync-relay/config"
	"sync-relay/game"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

const unregistered = -1

// Agent keeps a game client in sync with the relay. After Start it runs a
// poll worker refreshing the remote player snapshot and a send worker
// draining the latest-wins outbox at a bounded rate.
//
// An agent whose registration failed stays unregistered: Update and SendChat
// return false until Register succeeds.
type Agent struct {
	conf   config.AgentConfig
	client *relayClient
	log    *log.Entry

	id     atomic.Int64
	outbox *mailbox

	playersMu sync.RWMutex
	players   map[int]game.PlayerState

	remotesMu sync.Mutex
	remotes   map[int]*StateBuffer

	pollBreaker *gobreaker.CircuitBreaker[map[int]game.PlayerState]
	sendBreaker *gobreaker.CircuitBreaker[any]
	chatBreaker *gobreaker.CircuitBreaker[[]game.ChatMessage]
	postBreaker *gobreaker.CircuitBreaker[game.ChatMessage]

	runMu   sync.Mutex
	cancel  context.CancelFunc
	workers *sync.WaitGroup
}

func New(conf config.AgentConfig) *Agent {
	a := &Agent{
		conf:    conf,
		client:  newRelayClient(conf),
		outbox:  newMailbox(conf.KeepaliveInterval),
		players: make(map[int]game.PlayerState),
		remotes: make(map[int]*StateBuffer),
		log: log.WithFields(log.Fields{
			"component": "agent",
			"session":   uuid.New().String(),
		}),
		pollBreaker: circuitbreaker.New[map[int]game.PlayerState]("poll", conf.BreakerTimeout, isRejection),
		sendBreaker: circuitbreaker.New[any]("send", conf.BreakerTimeout, isRejection),
		chatBreaker: circuitbreaker.New[[]game.ChatMessage]("chat", conf.BreakerTimeout, isRejection),
		postBreaker: circuitbreaker.New[game.ChatMessage]("chat-post", conf.BreakerTimeout, isRejection),
	}
	a.id.Store(unregistered)

	a.log.WithField("server", a.client.base).Info("Agent initialized")
	return a
}

// Enter registers with the relay and starts the workers. A failed
// registration is logged and leaves the agent unregistered.
func (a *Agent) Enter() {
	_, _ = a.Register()
	a.Start()
}

func (a *Agent) Exit() {
	a.Stop()
}

func (a *Agent) Register() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.conf.RegisterTimeout)
	defer cancel()

	id, err := a.client.Register(ctx)
	if err != nil {
		a.log.WithError(err).Warn("Registration failed")
		return unregistered, err
	}

	a.id.Store(int64(id))
	a.log.WithField("player", id).Info("Registered with relay")
	return id, nil
}

// ID returns the player id issued by the relay, if registered.
func (a *Agent) ID() (int, bool) {
	id := a.id.Load()
	return int(id), id != unregistered
}

// Start launches both workers. It does nothing if they are already running.
func (a *Agent) Start() {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	workers := &sync.WaitGroup{}
	workers.Add(2)
	go func() {
		defer workers.Done()
		a.pollLoop(ctx)
	}()
	go func() {
		defer workers.Done()
		a.sendLoop(ctx)
	}()

	a.cancel = cancel
	a.workers = workers
	a.log.Info("Agent workers started")
}

// Stop signals both workers and waits up to StopTimeout for them. It reports
// whether they exited in time.
func (a *Agent) Stop() bool {
	a.runMu.Lock()
	if a.cancel == nil {
		a.runMu.Unlock()
		return true
	}
	a.cancel()
	workers := a.workers
	a.cancel, a.workers = nil, nil
	a.runMu.Unlock()

	stopped := make(chan struct{})
	go func() {
		workers.Wait()
		close(stopped)
	}()

	timer := time.NewTimer(a.conf.StopTimeout)
	defer timer.Stop()

	select {
	case <-stopped:
		a.log.Info("Agent workers stopped")
		return true
	case <-timer.C:
		a.log.WithField("timeout", a.conf.StopTimeout).Warn("Agent workers did not stop in time")
		return false
	}
}

// Update requests propagation of the local player state. Only the newest
// requested state is guaranteed to be sent.
func (a *Agent) Update(x, y float64, mapName string, direction game.Direction, moving bool) bool {
	id, ok := a.ID()
	if !ok {
		return false
	}

	a.outbox.Put(OutboundState{
		ID: id,
		State: game.PlayerState{
			X:         x,
			Y:         y,
			Map:       mapName,
			Direction: direction,
			Moving:    moving,
		},
	})
	return true
}

// ListPlayers returns the latest polled snapshot of remote players,
// excluding this agent's own player.
func (a *Agent) ListPlayers() map[int]game.PlayerState {
	a.playersMu.RLock()
	defer a.playersMu.RUnlock()

	players := make(map[int]game.PlayerState, len(a.players))
	for id, state := range a.players {
		players[id] = state
	}
	return players
}

// RenderSnapshot advances every remote player's buffer by one frame.
func (a *Agent) RenderSnapshot(dt time.Duration) map[int]Rendered {
	a.remotesMu.Lock()
	defer a.remotesMu.Unlock()

	out := make(map[int]Rendered, len(a.remotes))
	for id, buf := range a.remotes {
		out[id] = buf.Advance(dt)
	}
	return out
}

func (a *Agent) SendChat(text string) bool {
	id, ok := a.ID()
	if !ok {
		return false
	}

	ctx, cancel := a.requestContext(context.Background())
	defer cancel()

	_, err := a.postBreaker.Execute(func() (game.ChatMessage, error) {
		return a.client.PostChat(ctx, id, text)
	})
	if err != nil {
		a.logTransport(err, "Failed to send chat")
		return false
	}
	return true
}

// RecentChat returns messages newer than sinceID, or nothing if the relay
// could not be reached.
func (a *Agent) RecentChat(sinceID, limit int) []game.ChatMessage {
	ctx, cancel := a.requestContext(context.Background())
	defer cancel()

	msgs, err := a.chatBreaker.Execute(func() ([]game.ChatMessage, error) {
		return a.client.Chat(ctx, sinceID, limit)
	})
	if err != nil {
		a.logTransport(err, "Failed to fetch chat")
		return nil
	}
	return msgs
}

func (a *Agent) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, a.conf.ConnectTimeout+a.conf.RequestTimeout)
}

func (a *Agent) logTransport(err error, msg string) {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		a.log.WithError(err).Debug(msg)
		return
	}
	a.log.WithError(err).Warn(msg)
}

func (a *Agent) pollLoop(ctx context.Context) {
	policy := pollPolicy{
		active:    a.conf.PollInterval,
		idle:      a.conf.IdlePollInterval,
		threshold: a.conf.IdleThreshold,
	}

	timer := time.NewTimer(policy.Next())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		wasIdle := policy.Idle()
		policy.Observe(a.poll(ctx))
		if idle := policy.Idle(); idle != wasIdle {
			a.log.WithFields(log.Fields{"idle": idle, "interval": policy.Next()}).Debug("Poll interval changed")
		}

		timer.Reset(policy.Next())
	}
}

// poll refreshes the remote snapshot and reports whether any remote player
// is moving. Failures leave the previous snapshot in place.
func (a *Agent) poll(ctx context.Context) bool {
	reqCtx, cancel := a.requestContext(ctx)
	defer cancel()

	players, err := a.pollBreaker.Execute(func() (map[int]game.PlayerState, error) {
		return a.client.Players(reqCtx)
	})
	if err != nil {
		if ctx.Err() == nil {
			a.logTransport(err, "Failed to fetch players")
		}
		return false
	}

	received := time.Now()
	self, registered := a.ID()

	remote := make(map[int]game.PlayerState, len(players))
	moving := false
	for id, state := range players {
		if registered && id == self {
			continue
		}
		remote[id] = state
		moving = moving || state.Moving
	}

	a.playersMu.Lock()
	a.players = remote
	a.playersMu.Unlock()

	a.feedBuffers(received, remote)
	return moving
}

func (a *Agent) feedBuffers(received time.Time, remote map[int]game.PlayerState) {
	a.remotesMu.Lock()
	defer a.remotesMu.Unlock()

	for id, state := range remote {
		buf, ok := a.remotes[id]
		if !ok {
			buf = NewStateBuffer(a.conf.RenderDelay, a.conf.ExtrapolationCap)
			a.remotes[id] = buf
		}
		buf.Push(sampleFromState(received, state))
	}
	for id := range a.remotes {
		if _, ok := remote[id]; !ok {
			delete(a.remotes, id)
		}
	}
}

func (a *Agent) sendLoop(ctx context.Context) {
	var lastSend time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.outbox.Ready():
		}

		if wait := a.conf.SendInterval - time.Since(lastSend); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		state, ok := a.outbox.Take()
		if !ok {
			continue
		}
		a.send(ctx, state)
		lastSend = time.Now()
	}
}

func (a *Agent) send(ctx context.Context, state OutboundState) {
	reqCtx, cancel := a.requestContext(ctx)
	defer cancel()

	_, err := a.sendBreaker.Execute(func() (any, error) {
		return nil, a.client.UpdatePlayer(reqCtx, state)
	})
	if err != nil && ctx.Err() == nil {
		a.logTransport(err, "Failed to send player state")
	}
}

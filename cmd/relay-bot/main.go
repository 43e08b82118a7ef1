package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sync-relay/agent"
	"sync-relay/config"
	"sync-relay/game"

	log "github.com/sirupsen/logrus"
)

var errNotRegistered = errors.New("could not register with relay")

type options struct {
	mapName   string
	side      float64
	speed     float64
	chatEvery time.Duration
	fps       int
}

// relay-bot walks a square on one map, chats now and then and logs what it
// sees of the other players.
func main() {
	var o options
	flag.StringVar(&o.mapName, "map", "town", "map the bot walks on")
	flag.Float64Var(&o.side, "side", 96, "side length of the square path")
	flag.Float64Var(&o.speed, "speed", 48, "walking speed in units per second")
	flag.DurationVar(&o.chatEvery, "chat-every", 10*time.Second, "interval between chat lines, 0 disables chat")
	flag.IntVar(&o.fps, "fps", 30, "local simulation frames per second")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.InitAgent(), o); err != nil {
		log.WithError(err).Error("Bot stopped")
		stop()
		os.Exit(1)
	}
}

// run drives one agent until ctx is done. The agent's workers are always
// stopped before run returns.
func run(ctx context.Context, conf config.AgentConfig, o options) error {
	a := agent.New(conf)
	a.Enter()
	defer a.Exit()

	id, ok := a.ID()
	if !ok {
		return errNotRegistered
	}

	frame := time.Second / time.Duration(max(1, o.fps))
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	var report, chat <-chan time.Time
	reportTicker := time.NewTicker(2 * time.Second)
	defer reportTicker.Stop()
	report = reportTicker.C
	if o.chatEvery > 0 {
		chatTicker := time.NewTicker(o.chatEvery)
		defer chatTicker.Stop()
		chat = chatTicker.C
	}

	w := walker{side: o.side, speed: o.speed}
	lastChat := -1
	lines := 0
	for {
		select {
		case <-ctx.Done():
			log.Info("Bot shutting down")
			return nil
		case <-ticker.C:
			x, y, dir := w.step(frame.Seconds())
			a.Update(x, y, o.mapName, dir, true)
			a.RenderSnapshot(frame)
		case <-report:
			for pid, r := range a.RenderSnapshot(0) {
				log.WithFields(log.Fields{
					"player": pid,
					"x":      r.X,
					"y":      r.Y,
					"map":    r.Map,
					"moving": r.Moving,
				}).Info("Remote player")
			}
			for _, m := range a.RecentChat(lastChat, game.DefaultChatLimit) {
				log.WithFields(log.Fields{"from": m.From, "id": m.ID}).Info("Chat: ", m.Text)
				lastChat = m.ID
			}
		case <-chat:
			lines++
			a.SendChat(fmt.Sprintf("bot %d checking in (%d)", id, lines))
		}
	}
}

// walker moves clockwise around a square starting at the origin.
type walker struct {
	side, speed float64
	traveled    float64
}

func (w *walker) step(dt float64) (float64, float64, game.Direction) {
	w.traveled += w.speed * dt
	lap := 4 * w.side
	d := w.traveled - lap*float64(int(w.traveled/lap))

	switch {
	case d < w.side:
		return d, 0, game.DirRight
	case d < 2*w.side:
		return w.side, d - w.side, game.DirDown
	case d < 3*w.side:
		return 3*w.side - d, w.side, game.DirLeft
	default:
		return 0, 4*w.side - d, game.DirUp
	}
}

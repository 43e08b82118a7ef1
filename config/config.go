package config

import (
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	HTTPPort        string        `env:"RELAY_HTTP_PORT" envDefault:"8989"`
	GRPCPort        string        `env:"RELAY_GRPC_PORT"`
	NatsURL         string        `env:"RELAY_NATS_URL"`
	ChatMaxText     int           `env:"RELAY_CHAT_MAX_TEXT" envDefault:"500"`
	StreamInterval  time.Duration `env:"RELAY_STREAM_INTERVAL" envDefault:"250ms"`
	ShutdownTimeout time.Duration `env:"RELAY_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	Log             LogConfig
}

// AgentConfig configures a sync agent. Only ServerURL comes from the
// environment; the timings are set in code, starting from DefaultAgentConfig.
type AgentConfig struct {
	ServerURL string `env:"RELAY_SERVER_URL" envDefault:"http://localhost:8989"`

	PollInterval      time.Duration
	IdlePollInterval  time.Duration
	IdleThreshold     int
	SendInterval      time.Duration
	KeepaliveInterval time.Duration
	ConnectTimeout    time.Duration
	RequestTimeout    time.Duration
	RegisterTimeout   time.Duration
	StopTimeout       time.Duration
	RenderDelay       time.Duration
	ExtrapolationCap  time.Duration
	BreakerTimeout    time.Duration
}

func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		ServerURL:         "http://localhost:8989",
		PollInterval:      400 * time.Millisecond,
		IdlePollInterval:  time.Second,
		IdleThreshold:     3,
		SendInterval:      100 * time.Millisecond,
		KeepaliveInterval: time.Second,
		ConnectTimeout:    200 * time.Millisecond,
		RequestTimeout:    500 * time.Millisecond,
		RegisterTimeout:   time.Second,
		StopTimeout:       2 * time.Second,
		RenderDelay:       100 * time.Millisecond,
		ExtrapolationCap:  300 * time.Millisecond,
		BreakerTimeout:    5 * time.Second,
	}
}

type LogConfig struct {
	JSON  bool   `env:"RELAY_LOG_JSON" envDefault:"false"`
	Level string `env:"RELAY_LOG_LEVEL" envDefault:"info"`
	File  string `env:"RELAY_LOG_FILE"`
}

// Init loads an optional .env file and parses the relay configuration.
func Init() Config {
	loadDotEnv()

	var conf Config
	if err := env.Parse(&conf); err != nil {
		log.WithError(err).Fatal("Failed to parse config")
	}

	SetupLogging(conf.Log)
	log.WithFields(log.Fields{
		"http_port": conf.HTTPPort,
		"grpc_port": conf.GRPCPort,
		"nats":      conf.NatsURL != "",
	}).Info("Relay config loaded")

	return conf
}

// InitAgent loads an optional .env file and returns the default agent
// configuration pointed at RELAY_SERVER_URL.
func InitAgent() AgentConfig {
	loadDotEnv()

	conf, err := ParseAgent()
	if err != nil {
		log.WithError(err).Fatal("Failed to parse agent config")
	}

	log.WithField("server", conf.ServerURL).Info("Agent config loaded")
	return conf
}

// ParseAgent applies RELAY_SERVER_URL to DefaultAgentConfig.
func ParseAgent() (AgentConfig, error) {
	conf := DefaultAgentConfig()
	err := env.Parse(&conf)
	return conf, err
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Failed to load .env file")
	}
}

func SetupLogging(conf LogConfig) {
	if conf.JSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(conf.Level)
	if err != nil {
		log.WithField("level", conf.Level).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if conf.File != "" {
		log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   conf.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
		}))
	}
}

package authcore

import (
	"errors"
	"log/slog"

	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder can be used for one Build call.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	logger *slog.Logger

	users  UserProvider
	mailer ResetTokenMailer
	sink   EventSink

	sessions session.Repository
	ledger   refresh.Ledger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client every Redis-backed component shares. Without
// it Build dials Config.Redis and Close releases the connection.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger for best-effort warnings. It is also the
// default event sink when WithEventSink is not used.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.users = up
	return b
}

func (b *Builder) WithMailer(m ResetTokenMailer) *Builder {
	b.mailer = m
	return b
}

func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.sink = sink
	return b
}

// WithSessionRepository replaces the Redis session store, for example with
// a pgstore.SessionRepository.
func (b *Builder) WithSessionRepository(repo session.Repository) *Builder {
	b.sessions = repo
	return b
}

// WithRefreshLedger replaces the Redis refresh ledger.
func (b *Builder) WithRefreshLedger(ledger refresh.Ledger) *Builder {
	b.ledger = ledger
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.users == nil {
		return nil, errors.New("user provider required")
	}
	if b.mailer == nil {
		return nil, errors.New("reset token mailer required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default().With("component", "authcore")
	}

	client := b.redis
	ownsRedis := false
	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		ownsRedis = true
	}

	engine, err := newEngine(cfg, components{
		redis:    client,
		logger:   logger,
		users:    b.users,
		mailer:   b.mailer,
		sink:     b.sink,
		sessions: b.sessions,
		ledger:   b.ledger,
	})
	if err != nil {
		if ownsRedis {
			_ = client.Close()
		}
		return nil, err
	}
	if ownsRedis {
		engine.closeRedis = client.Close
	}

	b.built = true
	return engine, nil
}

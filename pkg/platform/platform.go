package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/txn2/pipeline-relay/pkg/agentkey"
	agentkeypostgres "github.com/txn2/pipeline-relay/pkg/agentkey/postgres"
	"github.com/txn2/pipeline-relay/pkg/audit"
	auditpostgres "github.com/txn2/pipeline-relay/pkg/audit/postgres"
	"github.com/txn2/pipeline-relay/pkg/auth"
	"github.com/txn2/pipeline-relay/pkg/broadcast"
	"github.com/txn2/pipeline-relay/pkg/database/migrate"
	"github.com/txn2/pipeline-relay/pkg/health"
	"github.com/txn2/pipeline-relay/pkg/ingest"
	"github.com/txn2/pipeline-relay/pkg/metrics"
	"github.com/txn2/pipeline-relay/pkg/pipeline"
	pipelinepostgres "github.com/txn2/pipeline-relay/pkg/pipeline/postgres"
	"github.com/txn2/pipeline-relay/pkg/render"
	"github.com/txn2/pipeline-relay/pkg/token"
	tokenpostgres "github.com/txn2/pipeline-relay/pkg/token/postgres"
	"github.com/txn2/pipeline-relay/pkg/websession"
	websessionpostgres "github.com/txn2/pipeline-relay/pkg/websession/postgres"
)

const dbPingTimeout = 10 * time.Second

// Platform owns every relay component and their lifecycle.
type Platform struct {
	config    *Config
	lifecycle *Lifecycle
	db        *sql.DB
	ownsDB    bool

	metrics *metrics.Metrics
	health  *health.Checker

	pipelines  pipeline.Store
	hub        *broadcast.Hub
	ingest     *ingest.Service
	agentStore agentkey.Store
	agentCache *agentkey.Cache
	agents     *agentkey.Registry

	shares *token.ShareStore
	guests *token.GuestService
	codes  *token.CodeService

	webStore websession.Store
	sessions *websession.Manager
	gate     *auth.Gate
	limiter  *auth.LoginLimiter

	audit *audit.Logger
}

// New creates a platform from options. Nothing runs until Start.
func New(opts ...Option) (*Platform, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Config == nil {
		return nil, errors.New("config is required")
	}
	applyDefaults(options.Config)
	if err := options.Config.Validate(); err != nil {
		return nil, err
	}

	p := &Platform{
		config:    options.Config,
		lifecycle: NewLifecycle(),
		metrics:   options.Metrics,
		health:    health.NewChecker(),
	}
	if p.metrics == nil {
		p.metrics = metrics.New()
	}

	if err := p.initComponents(options); err != nil {
		if p.ownsDB {
			_ = p.db.Close()
		}
		return nil, fmt.Errorf("initializing components: %w", err)
	}
	return p, nil
}

func (p *Platform) initComponents(opts *Options) error {
	if err := p.initDatabase(opts); err != nil {
		return err
	}
	p.initStores()
	p.initServices()
	return p.initAuth()
}

// initDatabase opens and migrates PostgreSQL when configured.
func (p *Platform) initDatabase(opts *Options) error {
	switch {
	case opts.DB != nil:
		p.db = opts.DB
	case p.config.Database.DSN != "":
		db, err := OpenDB(p.config.Database)
		if err != nil {
			return err
		}
		p.db = db
		p.ownsDB = true
	default:
		return nil
	}

	if *p.config.Database.AutoMigrate {
		if err := migrate.Run(p.db); err != nil {
			return err
		}
	}
	p.health.AddProbe("database", p.db.PingContext)
	return nil
}

// OpenDB opens a PostgreSQL pool with cfg's limits and checks it answers.
func OpenDB(cfg DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}

// initStores selects postgres or in-memory storage for every port.
func (p *Platform) initStores() {
	cookieTTL := p.config.Auth.Cookie.TTL
	auditCfg := audit.Config{Retention: p.config.Audit.Retention}
	if p.db == nil {
		p.audit = audit.NewLogger(audit.NewMemoryStore(p.config.Audit.MemoryCapacity), auditCfg)
		p.pipelines = pipeline.NewMemoryStore()
		p.agentStore = agentkey.NewMemoryStore()
		mem := token.NewMemoryStore()
		p.guests = token.NewGuestService(mem, p.guestConfig())
		p.codes = token.NewCodeService(mem, p.config.Tokens.RegistrationCodeTTL)
		web := websession.NewMemoryStore(cookieTTL)
		p.webStore = web
		p.lifecycle.Add("web sessions", func(context.Context) error {
			web.StartCleanupRoutine(p.config.Auth.Cookie.CleanupInterval)
			return nil
		}, func(context.Context) error { return web.Close() })
		return
	}

	p.audit = audit.NewLogger(auditpostgres.New(p.db), auditCfg)
	p.pipelines = pipelinepostgres.New(p.db)
	p.agentStore = agentkeypostgres.New(p.db)
	tokens := tokenpostgres.New(p.db)
	p.guests = token.NewGuestService(tokens, p.guestConfig())
	p.codes = token.NewCodeService(tokens, p.config.Tokens.RegistrationCodeTTL)
	web := websessionpostgres.New(p.db, websessionpostgres.Config{TTL: cookieTTL})
	p.webStore = web
	p.lifecycle.Add("web sessions", func(context.Context) error {
		web.StartCleanupRoutine(p.config.Auth.Cookie.CleanupInterval)
		return nil
	}, func(context.Context) error { return web.Close() })
}

func (p *Platform) guestConfig() token.GuestConfig {
	return token.GuestConfig{
		DefaultTTL:    p.config.Tokens.GuestTTL,
		MaxTTL:        p.config.Tokens.GuestMaxTTL,
		SweepInterval: p.config.Tokens.SweepInterval,
	}
}

// initServices builds the cache, hub, ingestion and token services.
func (p *Platform) initServices() {
	p.agentCache = agentkey.NewCache(p.agentStore, agentkey.CacheConfig{
		RefreshInterval: p.config.Auth.AgentCache.RefreshInterval,
		OnLoad:          p.metrics.AgentTokensLoaded,
	})
	p.agents = agentkey.NewRegistry(p.agentStore, p.agentCache)
	p.lifecycle.Add("agent token cache", p.agentCache.Start,
		func(context.Context) error { return p.agentCache.Close() })

	p.hub = broadcast.NewHub(broadcast.Config{
		Buffer:   p.config.Broadcast.Buffer,
		Observer: p.metrics,
	})

	p.ingest = ingest.New(ingest.Config{
		Store:     p.pipelines,
		Renderer:  render.NewMarkdown(),
		Publisher: p.hub,
		Agents:    p.agents,
		Recorder:  p.metrics,
		Dedup: ingest.DedupConfig{
			Window:   p.config.Ingest.DedupWindow,
			Wait:     p.config.Ingest.DedupWait,
			Capacity: p.config.Ingest.DedupCapacity,
		},
	})

	p.shares = token.NewShareStore(token.ShareConfig{
		TTL:      p.config.Tokens.ShareTTL,
		Capacity: p.config.Tokens.ShareCapacity,
	})
	p.lifecycle.Add("share tokens", func(context.Context) error {
		p.shares.StartSweeper(time.Minute)
		return nil
	}, func(context.Context) error { return p.shares.Close() })

	p.lifecycle.Add("guest links", func(context.Context) error {
		p.guests.Start()
		return nil
	}, func(context.Context) error { return p.guests.Close() })

	codeSweeper := newTicker(p.config.Tokens.SweepInterval, p.codes.Sweep)
	p.lifecycle.Add("registration codes", codeSweeper.start, codeSweeper.stop)

	auditCleanup := newTicker(p.config.Audit.CleanupInterval, p.audit.Cleanup)
	p.lifecycle.Add("audit retention", auditCleanup.start, auditCleanup.stop)

	// Stops before the stores registered above so open streams end first.
	p.lifecycle.Add("broadcast hub", nil, func(context.Context) error {
		p.hub.Close()
		return nil
	})
}

// initAuth builds the web session manager and the gate.
func (p *Platform) initAuth() error {
	ac := p.config.Auth
	codec, err := websession.NewCookieCodec(websession.CookieConfig{
		Name:   ac.Cookie.Name,
		Secret: []byte(ac.Cookie.Secret),
		Secure: ac.Cookie.Secure,
		MaxAge: ac.Cookie.TTL,
	})
	if err != nil {
		return fmt.Errorf("creating cookie codec: %w", err)
	}
	p.sessions = websession.NewManager(p.webStore, codec, ac.Cookie.TTL)

	p.gate, err = auth.NewGate(auth.Config{
		AdminSecret:  ac.AdminSecret,
		AdminHeader:  ac.Headers.Admin,
		BearerHeader: ac.Headers.Bearer,
		ShareHeader:  ac.Headers.Share,
		Upstream: auth.UpstreamConfig{
			Enabled:        ac.Upstream.Enabled,
			Header:         ac.Upstream.Header,
			Sentinel:       ac.Upstream.Sentinel,
			UserHeader:     ac.Upstream.UserHeader,
			TrustedProxies: ac.Upstream.TrustedProxies,
		},
	}, auth.Deps{
		Agents:   p.agentCache,
		Shares:   p.shares,
		Sessions: p.sessions,
		Recorder: p.metrics,
	})
	if err != nil {
		return fmt.Errorf("creating auth gate: %w", err)
	}

	p.limiter = auth.NewLoginLimiter(auth.LimiterConfig{
		Attempts: ac.Login.MaxAttempts,
		Window:   ac.Login.Window,
	})
	limiterPrune := newTicker(ac.Login.Window, func(context.Context) { p.limiter.Prune() })
	p.lifecycle.Add("login limiter", limiterPrune.start, limiterPrune.stop)
	return nil
}

// Start starts every component and marks the relay ready.
func (p *Platform) Start(ctx context.Context) error {
	for _, w := range p.config.Warnings() {
		slog.Warn(w)
	}
	if err := p.lifecycle.Start(ctx); err != nil {
		return err
	}
	p.health.SetReady()
	slog.Info("pipeline relay started",
		"storage", p.storageKind(), "agent_tokens", p.agentCache.Size())
	return nil
}

// Stop marks the relay as draining and stops every component.
func (p *Platform) Stop(ctx context.Context) error {
	p.health.SetDraining()
	return p.lifecycle.Stop(ctx)
}

// Close stops the platform and closes the database it opened.
func (p *Platform) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.Server.ShutdownTimeout)
	defer cancel()
	err := p.Stop(ctx)
	if p.ownsDB {
		if cerr := p.db.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("closing database: %w", cerr))
		}
	}
	return err
}

func (p *Platform) storageKind() string {
	if p.db == nil {
		return "memory"
	}
	return "postgres"
}

// Config returns the platform configuration.
func (p *Platform) Config() *Config { return p.config }

// DB returns the database connection, or nil for in-memory storage.
func (p *Platform) DB() *sql.DB { return p.db }

// Metrics returns the metrics registry.
func (p *Platform) Metrics() *metrics.Metrics { return p.metrics }

// Health returns the readiness checker.
func (p *Platform) Health() *health.Checker { return p.health }

// Hub returns the broadcast hub.
func (p *Platform) Hub() *broadcast.Hub { return p.hub }

// Ingest returns the ingestion service.
func (p *Platform) Ingest() *ingest.Service { return p.ingest }

// Agents returns the bearer token registry.
func (p *Platform) Agents() *agentkey.Registry { return p.agents }

// AgentCache returns the bearer token cache.
func (p *Platform) AgentCache() *agentkey.Cache { return p.agentCache }

// Shares returns the share token store.
func (p *Platform) Shares() *token.ShareStore { return p.shares }

// Guests returns the guest link service.
func (p *Platform) Guests() *token.GuestService { return p.guests }

// Codes returns the registration code service.
func (p *Platform) Codes() *token.CodeService { return p.codes }

// Sessions returns the web session manager.
func (p *Platform) Sessions() *websession.Manager { return p.sessions }

// Gate returns the authentication gate.
func (p *Platform) Gate() *auth.Gate { return p.gate }

// LoginLimiter returns the login rate limiter.
func (p *Platform) LoginLimiter() *auth.LoginLimiter { return p.limiter }

// Audit returns the audit logger.
func (p *Platform) Audit() *audit.Logger { return p.audit }

// ticker runs fn every interval between start and stop.
type ticker struct {
	interval time.Duration
	fn       func(context.Context)
	cancel   context.CancelFunc
	done     chan struct{}
}

func newTicker(interval time.Duration, fn func(context.Context)) *ticker {
	return &ticker{interval: interval, fn: fn}
}

func (t *ticker) start(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		tk := time.NewTicker(t.interval)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				t.fn(ctx)
			}
		}
	}()
	return nil
}

func (t *ticker) stop(context.Context) error {
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
	return nil
}

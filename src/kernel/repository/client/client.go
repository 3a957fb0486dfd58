// Package client is the registry of connected clients, their credentials, limits and live counters.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/clock"
	"github.com/llmspell/spellkernel/src/kernel/internal/core"
	"github.com/llmspell/spellkernel/src/kernel/internal/errors"
	"github.com/llmspell/spellkernel/src/kernel/internal/fs"
	"github.com/llmspell/spellkernel/src/kernel/mapper"
	"github.com/llmspell/spellkernel/src/kernel/model"
	tally "github.com/uber-go/tally/v4"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:generate mockgen -source=client.go -destination=clientmock/client.go -package=clientmock

const (
	_authConfigKey    = "auth"
	_limitsConfigKey  = "limits"
	_anonymousClient  = "anonymous"
	_defaultHBTimeout = time.Minute
)

// Module provides the client Repository.
var Module = fx.Provide(New)

// Repository tracks registered clients. It is the only place client counters change.
type Repository interface {
	// RegisterClient creates or re-credentials a client and returns it with a fresh token. With auth
	// enabled an id that is already registered is only re-credentialed when token is its current
	// token. Nil limits, or zero fields within them, take the kernel defaults.
	RegisterClient(ctx context.Context, id, token string, limits *entity.ResourceLimits) (*entity.ClientSession, error)
	// Authenticate returns the client owning token.
	Authenticate(ctx context.Context, token string) (*entity.ClientSession, error)
	// Resolve identifies the sender of a message. With auth enabled the token decides; otherwise the
	// client is looked up by id and registered on first contact.
	Resolve(ctx context.Context, id, token string) (*entity.ClientSession, error)
	Get(ctx context.Context, id string) (*entity.ClientSession, error)
	// EnforceLimits checks cost against the client's limits without reserving anything.
	EnforceLimits(ctx context.Context, id string, cost entity.Cost) error
	// Acquire checks cost and reserves it. The returned Lease gives it back.
	Acquire(ctx context.Context, id string, cost entity.Cost) (Lease, error)
	Touch(ctx context.Context, id string)
	Disconnect(ctx context.Context, id string) error
	// Expire removes idle clients whose last contact is older than the heartbeat timeout and returns their ids.
	Expire(ctx context.Context, now time.Time) []string
	Count(ctx context.Context) (int, error)
	AuthEnabled() bool
	RegistrationAllowed() bool
}

// Lease is a reservation of client resources.
type Lease interface {
	// Release returns the reserved resources. Only the first call has an effect.
	Release()
}

// AuthConfig is the auth section of the configuration.
type AuthConfig struct {
	Enabled           bool   `yaml:"enabled"`
	AllowRegistration bool   `yaml:"allowRegistration"`
	TokensFile        string `yaml:"tokensFile"`
}

// LimitsConfig holds the kernel default per-client limits.
type LimitsConfig struct {
	MaxConcurrentExecutions int    `yaml:"maxConcurrentExecutions"`
	ExecutionTimeoutMs      int    `yaml:"executionTimeoutMs"`
	MaxMemoryBytes          uint64 `yaml:"maxMemoryBytes"`
}

// Limits converts the configuration into ResourceLimits.
func (c LimitsConfig) Limits() entity.ResourceLimits {
	return entity.ResourceLimits{
		MaxConcurrentExecutions: c.MaxConcurrentExecutions,
		ExecutionTimeout:        time.Duration(c.ExecutionTimeoutMs) * time.Millisecond,
		MaxMemoryBytes:          c.MaxMemoryBytes,
	}
}

// Params are the inputs to New.
type Params struct {
	fx.In

	Config    config.Provider
	Logger    *zap.SugaredLogger
	Stats     tally.Scope
	Clock     clock.Clock
	FS        fs.KernelFS
	Lifecycle fx.Lifecycle
}

type repository struct {
	mu      sync.Mutex
	clients map[string]*model.Client
	tokens  map[string]string

	auth     AuthConfig
	defaults entity.ResourceLimits
	timeout  time.Duration

	clock  clock.Clock
	stats  tally.Scope
	logger *zap.SugaredLogger

	provisioned *provisioner
}

// New returns the client Repository.
func New(p Params) (Repository, error) {
	auth := AuthConfig{}
	if err := p.Config.Get(_authConfigKey).Populate(&auth); err != nil {
		return nil, fmt.Errorf("getting auth configuration: %w", err)
	}
	limits := LimitsConfig{}
	if err := p.Config.Get(_limitsConfigKey).Populate(&limits); err != nil {
		return nil, fmt.Errorf("getting limits configuration: %w", err)
	}
	kcfg := core.KernelConfig{}
	if err := p.Config.Get(core.KernelConfigKey).Populate(&kcfg); err != nil {
		return nil, fmt.Errorf("getting kernel configuration: %w", err)
	}
	timeout := time.Duration(kcfg.HeartbeatTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = _defaultHBTimeout
	}

	r := &repository{
		clients:  make(map[string]*model.Client),
		tokens:   make(map[string]string),
		auth:     auth,
		defaults: limits.Limits(),
		timeout:  timeout,
		clock:    p.Clock,
		stats:    p.Stats,
		logger:   p.Logger.With("component", "client-registry"),
	}

	if auth.TokensFile != "" {
		r.provisioned = newProvisioner(auth.TokensFile, p.FS, r.logger, r.revoke)
		if err := r.provisioned.load(); err != nil {
			return nil, err
		}
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(context.Context) error { return r.provisioned.start() },
			OnStop:  func(context.Context) error { return r.provisioned.stop() },
		})
	}
	return r, nil
}

func (r *repository) AuthEnabled() bool { return r.auth.Enabled }

func (r *repository) RegistrationAllowed() bool { return r.auth.AllowRegistration }

func (r *repository) RegisterClient(ctx context.Context, id, token string, limits *entity.ResourceLimits) (*entity.ClientSession, error) {
	if id == "" {
		id = uuid.Must(uuid.NewV4()).String()
	}
	merged := r.withDefaults(limits)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	c, ok := r.clients[id]
	if ok && r.auth.Enabled && (token == "" || token != c.Token) {
		r.stats.Counter("auth_failures").Inc(1)
		return nil, &errors.AuthError{Reason: fmt.Sprintf("client %q is already registered", id)}
	}
	token = uuid.Must(uuid.NewV4()).String()
	if ok {
		delete(r.tokens, c.Token)
	} else {
		c = &model.Client{ID: id, RegisteredAt: now}
		r.clients[id] = c
	}
	c.Token = token
	c.Provisioned = false
	c.MaxConcurrentExecutions = merged.MaxConcurrentExecutions
	c.ExecutionTimeout = merged.ExecutionTimeout
	c.MaxMemoryBytes = merged.MaxMemoryBytes
	c.LastSeen = now
	r.tokens[token] = id
	r.updateGauges()

	r.logger.Infow("registered client", "client", id)
	return mapper.ModelToClient(c), nil
}

func (r *repository) Authenticate(ctx context.Context, token string) (*entity.ClientSession, error) {
	if token == "" {
		r.stats.Counter("auth_failures").Inc(1)
		return nil, &errors.AuthError{Reason: "missing auth token"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.tokens[token]; ok {
		c := r.clients[id]
		c.LastSeen = r.clock.Now()
		return mapper.ModelToClient(c), nil
	}
	if r.provisioned != nil {
		if entry, ok := r.provisioned.lookup(token); ok {
			return r.createProvisioned(entry), nil
		}
	}
	r.stats.Counter("auth_failures").Inc(1)
	return nil, &errors.AuthError{Reason: "invalid auth token"}
}

// createProvisioned must be called with mu held.
func (r *repository) createProvisioned(entry TokenEntry) *entity.ClientSession {
	now := r.clock.Now()
	limits := r.withDefaults(&entity.ResourceLimits{
		MaxConcurrentExecutions: entry.MaxConcurrentExecutions,
		ExecutionTimeout:        time.Duration(entry.ExecutionTimeoutMs) * time.Millisecond,
		MaxMemoryBytes:          entry.MaxMemoryBytes,
	})
	c, ok := r.clients[entry.ID]
	if ok {
		delete(r.tokens, c.Token)
	} else {
		c = &model.Client{ID: entry.ID, RegisteredAt: now}
		r.clients[entry.ID] = c
	}
	c.Token = entry.Token
	c.Provisioned = true
	c.MaxConcurrentExecutions = limits.MaxConcurrentExecutions
	c.ExecutionTimeout = limits.ExecutionTimeout
	c.MaxMemoryBytes = limits.MaxMemoryBytes
	c.LastSeen = now
	r.tokens[entry.Token] = entry.ID
	r.updateGauges()
	r.logger.Infow("provisioned client connected", "client", entry.ID)
	return mapper.ModelToClient(c)
}

func (r *repository) Resolve(ctx context.Context, id, token string) (*entity.ClientSession, error) {
	if r.auth.Enabled {
		return r.Authenticate(ctx, token)
	}
	if id == "" {
		id = _anonymousClient
	}

	r.mu.Lock()
	c, ok := r.clients[id]
	if ok {
		c.LastSeen = r.clock.Now()
		defer r.mu.Unlock()
		return mapper.ModelToClient(c), nil
	}
	r.mu.Unlock()
	return r.RegisterClient(ctx, id, "", nil)
}

func (r *repository) Get(ctx context.Context, id string) (*entity.ClientSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return nil, &errors.ClientNotFoundError{ClientID: id}
	}
	return mapper.ModelToClient(c), nil
}

func (r *repository) EnforceLimits(ctx context.Context, id string, cost entity.Cost) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return &errors.ClientNotFoundError{ClientID: id}
	}
	return checkLimits(c, cost)
}

func (r *repository) Acquire(ctx context.Context, id string, cost entity.Cost) (Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return nil, &errors.ClientNotFoundError{ClientID: id}
	}
	if err := checkLimits(c, cost); err != nil {
		r.stats.Counter("limit_rejections").Inc(1)
		return nil, err
	}
	c.ActiveExecutions += cost.Executions
	r.updateGauges()
	return &lease{repo: r, id: id, cost: cost}, nil
}

func checkLimits(c *model.Client, cost entity.Cost) error {
	if c.MaxConcurrentExecutions > 0 && c.ActiveExecutions+cost.Executions > c.MaxConcurrentExecutions {
		return &errors.ConcurrencyLimitExceededError{ClientID: c.ID, Limit: c.MaxConcurrentExecutions}
	}
	return nil
}

func (r *repository) release(id string, cost entity.Cost) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The client may have disconnected while the lease was held.
	c, ok := r.clients[id]
	if !ok {
		return
	}
	c.ActiveExecutions -= cost.Executions
	if c.ActiveExecutions < 0 {
		c.ActiveExecutions = 0
	}
	r.updateGauges()
}

func (r *repository) Touch(ctx context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[id]; ok {
		c.LastSeen = r.clock.Now()
	}
}

func (r *repository) Disconnect(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[id]
	if !ok {
		return &errors.ClientNotFoundError{ClientID: id}
	}
	r.remove(c)
	r.logger.Infow("client disconnected", "client", id)
	return nil
}

func (r *repository) Expire(ctx context.Context, now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []string
	for id, c := range r.clients {
		if c.ActiveExecutions > 0 || now.Sub(c.LastSeen) < r.timeout {
			continue
		}
		expired = append(expired, id)
		r.remove(c)
	}
	if len(expired) > 0 {
		r.stats.Counter("clients_expired").Inc(int64(len(expired)))
		r.logger.Infow("expired idle clients", "clients", expired)
	}
	return expired
}

func (r *repository) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients), nil
}

// revoke drops provisioned clients whose token is no longer in the tokens file.
func (r *repository) revoke(valid map[string]TokenEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.clients {
		if !c.Provisioned {
			continue
		}
		if entry, ok := valid[c.Token]; ok && entry.ID == c.ID {
			continue
		}
		r.logger.Infow("revoking client removed from tokens file", "client", c.ID)
		r.remove(c)
	}
}

// remove must be called with mu held.
func (r *repository) remove(c *model.Client) {
	delete(r.tokens, c.Token)
	delete(r.clients, c.ID)
	r.updateGauges()
}

// updateGauges must be called with mu held.
func (r *repository) updateGauges() {
	active := 0
	for _, c := range r.clients {
		active += c.ActiveExecutions
	}
	r.stats.Gauge("active_clients").Update(float64(len(r.clients)))
	r.stats.Gauge("active_executions").Update(float64(active))
}

func (r *repository) withDefaults(limits *entity.ResourceLimits) entity.ResourceLimits {
	out := r.defaults
	if limits == nil {
		return out
	}
	if limits.MaxConcurrentExecutions > 0 {
		out.MaxConcurrentExecutions = limits.MaxConcurrentExecutions
	}
	if limits.ExecutionTimeout > 0 {
		out.ExecutionTimeout = limits.ExecutionTimeout
	}
	if limits.MaxMemoryBytes > 0 {
		out.MaxMemoryBytes = limits.MaxMemoryBytes
	}
	return out
}

type lease struct {
	once sync.Once
	repo *repository
	id   string
	cost entity.Cost
}

func (l *lease) Release() {
	l.once.Do(func() { l.repo.release(l.id, l.cost) })
}

// Package transportfx selects the kernel's Transport from configuration.
package transportfx

import (
	"fmt"

	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/internal/transport"
	"github.com/llmspell/spellkernel/src/kernel/internal/transport/inproc"
	"github.com/llmspell/spellkernel/src/kernel/internal/transport/tcp"
	"github.com/llmspell/spellkernel/src/kernel/internal/transport/zmq"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const _configKey = "transport"

// Supported transport kinds.
const (
	KindTCP    = "tcp"
	KindZMQ    = "zmq"
	KindInproc = "inproc"
)

// Module provides the configured Transport and the endpoint it should bind.
var Module = fx.Provide(New)

// Config is the transport section of the kernel configuration.
type Config struct {
	Kind          string `yaml:"kind"`
	IP            string `yaml:"ip"`
	BasePort      int    `yaml:"basePort"`
	MaxFrameBytes int    `yaml:"maxFrameBytes"`
}

// Params are the inputs to New.
type Params struct {
	fx.In

	Config config.Provider
	Logger *zap.SugaredLogger
	Hub    *inproc.Hub `optional:"true"`
}

// Result carries the transport and the endpoint template it binds.
type Result struct {
	fx.Out

	Transport transport.Transport
	Endpoint  entity.ConnectionEndpoint
}

// New builds the Transport named by transport.kind.
func New(p Params) (Result, error) {
	cfg := Config{Kind: KindTCP, IP: "127.0.0.1"}
	if err := p.Config.Get(_configKey).Populate(&cfg); err != nil {
		return Result{}, fmt.Errorf("getting transport configuration: %w", err)
	}

	logger := p.Logger.With("transport", cfg.Kind)
	var t transport.Transport
	switch cfg.Kind {
	case KindTCP:
		t = tcp.New(tcp.WithMaxFrameBytes(cfg.MaxFrameBytes), tcp.WithLogger(logger))
	case KindZMQ:
		t = zmq.New(zmq.WithLogger(logger))
	case KindInproc:
		hub := p.Hub
		if hub == nil {
			hub = inproc.NewHub()
		}
		t = hub.Kernel()
	default:
		return Result{}, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}

	return Result{Transport: t, Endpoint: Endpoint(cfg)}, nil
}

// Endpoint lays out channel ports from BasePort: shell, iopub, stdin, control, hb. A zero base
// leaves every port for the system to choose.
func Endpoint(cfg Config) entity.ConnectionEndpoint {
	e := entity.ConnectionEndpoint{IP: cfg.IP, SignatureScheme: entity.SignatureScheme}
	if cfg.BasePort == 0 {
		return e
	}
	for i, ch := range entity.AllChannels {
		e = e.WithPort(ch, cfg.BasePort+i)
	}
	return e
}

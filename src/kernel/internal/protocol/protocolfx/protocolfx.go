// Package protocolfx selects the wire protocol from configuration.
package protocolfx

import (
	"fmt"

	"github.com/llmspell/spellkernel/src/kernel/internal/core"
	"github.com/llmspell/spellkernel/src/kernel/internal/protocol"
	"github.com/llmspell/spellkernel/src/kernel/internal/protocol/jsonrpc"
	"github.com/llmspell/spellkernel/src/kernel/internal/protocol/jupyter"
	"go.uber.org/config"
	"go.uber.org/fx"
)

// Module provides the configured Protocol and its Correlator.
var Module = fx.Provide(New)

// Params are the inputs to New.
type Params struct {
	fx.In

	Config config.Provider
}

// Result carries the protocol and the correlator shared by its encoder and decoder.
type Result struct {
	fx.Out

	Protocol   protocol.Protocol
	Correlator *protocol.Correlator
}

// New builds the Protocol named by kernel.protocol.
func New(p Params) (Result, error) {
	cfg := core.KernelConfig{Protocol: jupyter.Name}
	if err := p.Config.Get(core.KernelConfigKey).Populate(&cfg); err != nil {
		return Result{}, fmt.Errorf("getting protocol configuration: %w", err)
	}
	c := protocol.NewCorrelator(cfg.CorrelationWindow)
	switch cfg.Protocol {
	case jupyter.Name:
		return Result{Protocol: jupyter.New([]byte(cfg.Key), c), Correlator: c}, nil
	case jsonrpc.Name:
		return Result{Protocol: jsonrpc.New(c), Correlator: c}, nil
	}
	return Result{}, fmt.Errorf("unknown protocol %q", cfg.Protocol)
}

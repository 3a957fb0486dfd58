package handler

import (
	controller "github.com/llmspell/spellkernel/src/kernel/controller"
	"github.com/llmspell/spellkernel/src/kernel/handler/kernel"
	"go.uber.org/fx"
)

// Module provides the kernel, and the controllers it routes to, into an Fx application.
var Module = fx.Options(
	controller.Module,
	fx.Provide(kernel.New),
	fx.Invoke(func(k kernel.Kernel) {}),
)

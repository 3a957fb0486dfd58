package controller

import (
	"github.com/llmspell/spellkernel/src/kernel/controller/debugger"
	"github.com/llmspell/spellkernel/src/kernel/controller/dispatcher"
	"go.uber.org/fx"
)

// Module provides the debug bridge and the execution dispatcher.
var Module = fx.Options(
	fx.Provide(debugger.New),
	fx.Provide(dispatcher.New),
)

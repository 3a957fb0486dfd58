// Package mapper converts between entity, model and context representations.
package mapper

import (
	"context"

	"github.com/llmspell/spellkernel/src/kernel/entity"
	"github.com/llmspell/spellkernel/src/kernel/model"
)

// ClientToModel maps a ClientSession entity to its model equivalent.
func ClientToModel(c *entity.ClientSession) *model.Client {
	return &model.Client{
		ID:                      c.ID,
		Token:                   c.Token,
		MaxConcurrentExecutions: c.Limits.MaxConcurrentExecutions,
		ExecutionTimeout:        c.Limits.ExecutionTimeout,
		MaxMemoryBytes:          c.Limits.MaxMemoryBytes,
		ActiveExecutions:        c.ActiveExecutions,
		RegisteredAt:            c.RegisteredAt,
		LastSeen:                c.LastSeen,
	}
}

// ModelToClient maps a model Client to its entity equivalent.
func ModelToClient(m *model.Client) *entity.ClientSession {
	return &entity.ClientSession{
		ID:    m.ID,
		Token: m.Token,
		Limits: entity.ResourceLimits{
			MaxConcurrentExecutions: m.MaxConcurrentExecutions,
			ExecutionTimeout:        m.ExecutionTimeout,
			MaxMemoryBytes:          m.MaxMemoryBytes,
		},
		ActiveExecutions: m.ActiveExecutions,
		RegisteredAt:     m.RegisteredAt,
		LastSeen:         m.LastSeen,
	}
}

// ClientIDToContext returns a context carrying the authenticated client id.
func ClientIDToContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, entity.ClientContextKey, id)
}

// ContextToClientID extracts the client id from a context.
func ContextToClientID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(entity.ClientContextKey).(string)
	return id, ok && id != ""
}

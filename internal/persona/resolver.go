package persona

import (
	"context"

	"go.uber.org/zap"

	"galgame-server/internal/models"
)

// Resolver picks the system instruction for a conversation.
type Resolver struct {
	registry Registry
	logger   *zap.Logger
}

func NewResolver(registry Registry, logger *zap.Logger) *Resolver {
	return &Resolver{registry: registry, logger: logger.Named("PersonaResolver")}
}

// Instruction returns the persona prompt for personaID, or fallback.
//
// nil personaID uses the default persona; models.NoPersonaID uses fallback
// directly; any other id is looked up. Lookup failures are logged and end in
// fallback.
func (r *Resolver) Instruction(ctx context.Context, personaID *string, fallback string) string {
	var (
		p   *models.Persona
		err error
	)
	switch {
	case personaID == nil:
		p, err = r.registry.Default(ctx)
	case *personaID == models.NoPersonaID:
		return fallback
	default:
		p, err = r.registry.Get(ctx, *personaID)
	}
	if err != nil {
		r.logger.Error("Failed to resolve persona", zap.Stringp("personaID", personaID), zap.Error(err))
		return fallback
	}
	if p == nil || p.Prompt == "" {
		return fallback
	}
	return p.Prompt
}

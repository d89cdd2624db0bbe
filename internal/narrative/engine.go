package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"galgame-server/internal/models"
	"galgame-server/internal/persona"
	"galgame-server/internal/prompts"
	"galgame-server/internal/provider"
	"galgame-server/internal/session"
)

// Emitter delivers one outbound text item to the transport as soon as it is
// produced. An emit error is logged and does not stop the turn.
type Emitter func(text string) error

var optionTemplates = map[models.Label]prompts.Name{
	models.LabelA: prompts.OptionA,
	models.LabelB: prompts.OptionB,
	models.LabelC: prompts.OptionC,
}

// Engine runs the narrative phases of a session against the text-generation
// provider. Callers serialize operations per session (session.Store.Lock).
type Engine struct {
	provider      provider.Provider
	prompts       *prompts.Store
	conversations persona.ConversationStore
	personas      *persona.Resolver
	logger        *zap.Logger
}

func NewEngine(p provider.Provider, tpl *prompts.Store, conversations persona.ConversationStore, personas *persona.Resolver, logger *zap.Logger) *Engine {
	return &Engine{
		provider:      p,
		prompts:       tpl,
		conversations: conversations,
		personas:      personas,
		logger:        logger.Named("NarrativeEngine"),
	}
}

// GenerateOpeningScene produces the opening scene and, on success, the first option set.
func (e *Engine) GenerateOpeningScene(ctx context.Context, sess *session.Session, emit Emitter) {
	log := e.log(ctx, sess).With(zap.String("phase", phaseScene))

	conv, err := e.currentConversation(ctx, sess.ID())
	if err != nil {
		log.Error("Failed to get conversation", zap.Error(err))
		countTurn(phaseScene, outcomeConversationUnavailable)
		e.send(log, emit, NoticeConversationUnavailable)
		return
	}

	instruction := e.personas.Instruction(ctx, conv.PersonaID, GenericSceneInstruction)
	scenePrompt := e.prompts.Get(prompts.Scene)

	text, err := e.provider.TextChat(ctx, scenePrompt, instruction, sess.History())
	if err != nil {
		log.Error("Failed to generate opening scene", zap.Error(err))
		countTurn(phaseScene, outcomeProviderError)
		e.send(log, emit, fmt.Sprintf(noticeSceneFailedFmt, provider.Detail(err)))
		return
	}
	countTurn(phaseScene, outcomeSuccess)

	e.send(log, emit, text)
	sess.Append(
		models.Message{Role: models.RoleSystem, Content: scenePrompt},
		models.Message{Role: models.RoleAssistant, Content: text},
	)
	log.Info("Opening scene generated", zap.Int("length", len(text)))

	e.GenerateOptions(ctx, sess, emit)
}

// GenerateOptions replaces the option set with three fresh options. A failed
// option falls back to its built-in text, so exactly three are always emitted.
func (e *Engine) GenerateOptions(ctx context.Context, sess *session.Session, emit Emitter) {
	log := e.log(ctx, sess).With(zap.String("phase", phaseOptions))

	sess.ResetOptions()
	// all three calls read the same pre-option history
	history := sess.History()

	texts := make([]string, 0, len(models.Labels))
	for _, label := range models.Labels {
		text, err := e.provider.TextChat(ctx, e.prompts.Get(optionTemplates[label]), OptionInstruction, history)
		if err != nil {
			log.Warn("Option generation failed, using fallback", zap.String("label", string(label)), zap.Error(err))
			optionFallbacksTotal.WithLabelValues(string(label)).Inc()
			countTurn(phaseOptions, outcomeFallback)
			text = FallbackOptions[label]
		} else {
			countTurn(phaseOptions, outcomeSuccess)
		}
		sess.SetOption(label, text)
		e.send(log, emit, text)
		texts = append(texts, text)
	}

	sess.Append(models.Message{
		Role:    models.RoleAssistant,
		Content: optionsSummaryPrefix + strings.Join(texts, "\n"),
	})
	e.transition(log, sess, session.PhaseAwaitingChoice)
}

// ResolveChoice records the player's pick and continues the story. A label
// without a stored option yields a notice and leaves the session untouched.
func (e *Engine) ResolveChoice(ctx context.Context, sess *session.Session, label models.Label, emit Emitter) {
	log := e.log(ctx, sess).With(zap.String("phase", phaseChoice), zap.String("label", string(label)))

	chosen, ok := sess.Option(label)
	if !ok {
		log.Warn("Choice not among the offered options", zap.Stringer("sessionPhase", sess.Phase()))
		countTurn(phaseChoice, outcomeInvalidChoice)
		e.send(log, emit, NoticeInvalidChoice)
		return
	}
	countTurn(phaseChoice, outcomeSuccess)

	sess.Append(models.Message{Role: models.RoleUser, Content: userChoicePrefix + chosen})
	e.transition(log, sess, session.PhaseGenerating)

	e.ContinueStory(ctx, sess, label, chosen, emit)
}

// ContinueStory narrates the outcome of chosenText and, on success, offers the
// next option set. On failure the previous option set stays on offer.
func (e *Engine) ContinueStory(ctx context.Context, sess *session.Session, label models.Label, chosenText string, emit Emitter) {
	log := e.log(ctx, sess).With(zap.String("phase", phaseContinue), zap.String("label", string(label)))

	conv, err := e.currentConversation(ctx, sess.ID())
	if err != nil {
		log.Error("Failed to get conversation", zap.Error(err))
		countTurn(phaseContinue, outcomeConversationUnavailable)
		e.send(log, emit, NoticeConversationUnavailable)
		e.reoffer(log, sess)
		return
	}

	instruction := e.personas.Instruction(ctx, conv.PersonaID, GenericContinueInstruction)
	prompt := e.prompts.Get(prompts.Response) + playerChoiceLine + chosenText

	text, err := e.provider.TextChat(ctx, prompt, instruction, sess.History())
	if err != nil {
		log.Error("Failed to generate story progression", zap.Error(err))
		countTurn(phaseContinue, outcomeProviderError)
		e.send(log, emit, fmt.Sprintf(noticeContinueFailedFmt, provider.Detail(err)))
		e.reoffer(log, sess)
		return
	}
	countTurn(phaseContinue, outcomeSuccess)

	e.send(log, emit, text)
	sess.Append(models.Message{Role: models.RoleAssistant, Content: text})
	log.Info("Story progressed", zap.Int("length", len(text)))

	e.GenerateOptions(ctx, sess, emit)
}

func (e *Engine) currentConversation(ctx context.Context, sessionID string) (*models.Conversation, error) {
	conv, err := e.conversations.Current(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConversationUnavailable, err)
	}
	if conv == nil {
		return nil, models.ErrConversationUnavailable
	}
	return conv, nil
}

// reoffer puts a session whose continuation failed back to awaiting a choice
// when its previous options are still stored.
func (e *Engine) reoffer(log *zap.Logger, sess *session.Session) {
	if len(sess.Options()) == 0 || sess.Phase() != session.PhaseGenerating {
		return
	}
	e.transition(log, sess, session.PhaseAwaitingChoice)
}

func (e *Engine) transition(log *zap.Logger, sess *session.Session, to session.Phase) {
	if err := sess.Transition(to); err != nil {
		if errors.Is(err, session.ErrIllegalTransition) {
			log.Warn("Session phase not changed", zap.Error(err))
			return
		}
		log.Error("Session transition failed", zap.Error(err))
	}
}

func (e *Engine) send(log *zap.Logger, emit Emitter, text string) {
	if emit == nil {
		return
	}
	if err := emit(text); err != nil {
		log.Warn("Failed to deliver outbound item", zap.Error(err))
	}
}

func (e *Engine) log(ctx context.Context, sess *session.Session) *zap.Logger {
	log := e.logger.With(zap.String("sessionID", sess.ID()))
	if turnID, ok := TurnIDFromContext(ctx); ok {
		log = log.With(zap.String("turnID", turnID))
	}
	return log
}

package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"galgame-server/internal/models"
	"galgame-server/internal/narrative"
	"galgame-server/internal/session"
)

// Notices emitted by the lifecycle commands.
const (
	NoticeStarted        = "gal已启动"
	NoticeStopped        = "gal已关闭"
	NoticeNothingRunning = "当前没有进行中的 gal 游戏"
	noticeAlreadyRunning = "已经有一个进行中的 gal 游戏，请先使用 '%s' 结束当前游戏"
)

// Message is one inbound chat message.
type Message struct {
	SessionID string
	Text      string
}

// Result tells the host transport what to do with the message after dispatch.
type Result struct {
	// Handled: the game consumed the message.
	Handled bool `json:"handled"`
	// SkipLLM: the host must not run its default text generation.
	SkipLLM bool `json:"skip_llm"`
	// StopPropagation: no further handler may see the message.
	StopPropagation bool `json:"stop_propagation"`
}

var (
	passThrough = Result{}
	command     = Result{Handled: true, SkipLLM: true, StopPropagation: true}
	choice      = Result{Handled: true, SkipLLM: true}
	suppressed  = Result{Handled: true, StopPropagation: true}
)

// Narrator is the part of the narrative engine the router drives.
type Narrator interface {
	GenerateOpeningScene(ctx context.Context, sess *session.Session, emit narrative.Emitter)
	ResolveChoice(ctx context.Context, sess *session.Session, label models.Label, emit narrative.Emitter)
}

// Commands holds the literal lifecycle command tokens.
type Commands struct {
	Start string
	Stop  string
}

// Router classifies inbound messages and drives the game for each session.
type Router struct {
	store    *session.Store
	narrator Narrator
	commands Commands
	logger   *zap.Logger
}

func New(store *session.Store, narrator Narrator, commands Commands, logger *zap.Logger) *Router {
	return &Router{
		store:    store,
		narrator: narrator,
		commands: commands,
		logger:   logger.Named("InputRouter"),
	}
}

// Dispatch routes one message. Outbound items go to emit as they are produced.
// Messages for the same session identifier are processed one at a time.
func (r *Router) Dispatch(ctx context.Context, msg Message, emit narrative.Emitter) Result {
	if msg.SessionID == "" {
		r.logger.Warn("Message without session id ignored")
		return passThrough
	}

	turnID := uuid.NewString()
	ctx = narrative.WithTurnID(ctx, turnID)
	log := r.logger.With(zap.String("sessionID", msg.SessionID), zap.String("turnID", turnID))

	unlock := r.store.Lock(msg.SessionID)
	defer unlock()

	text := strings.TrimSpace(msg.Text)
	switch text {
	case r.commands.Start:
		r.start(ctx, log, msg.SessionID, emit)
		return command
	case r.commands.Stop:
		r.stop(log, msg.SessionID, emit)
		return command
	}

	sess, ok := r.store.Get(msg.SessionID)
	if !ok || !sess.Active() {
		return passThrough
	}

	normalized := strings.ToUpper(text)
	if label, isChoice := models.ParseLabel(normalized); isChoice {
		log.Info("Choice received", zap.String("label", string(label)))
		r.narrator.ResolveChoice(ctx, sess, label, emit)
		return choice
	}
	if normalized == strings.ToUpper(r.commands.Start) || normalized == strings.ToUpper(r.commands.Stop) {
		return passThrough
	}
	log.Debug("Non-choice input suppressed during game")
	return suppressed
}

func (r *Router) start(ctx context.Context, log *zap.Logger, sessionID string, emit narrative.Emitter) {
	if sess, ok := r.store.Get(sessionID); ok && sess.Active() {
		log.Info("Start rejected, game already running")
		send(log, emit, AlreadyRunningNotice(r.commands.Stop))
		return
	}

	sess := r.store.CreateOrReset(sessionID)
	log.Info("Game started")
	send(log, emit, NoticeStarted)
	r.narrator.GenerateOpeningScene(ctx, sess, emit)
}

func (r *Router) stop(log *zap.Logger, sessionID string, emit narrative.Emitter) {
	sess, ok := r.store.Get(sessionID)
	if !ok || !sess.Active() {
		send(log, emit, NoticeNothingRunning)
		return
	}
	sess.Stop()
	log.Info("Game stopped")
	send(log, emit, NoticeStopped)
}

// AlreadyRunningNotice is the rejection for a start while a game is running.
func AlreadyRunningNotice(stopCommand string) string {
	return fmt.Sprintf(noticeAlreadyRunning, stopCommand)
}

func send(log *zap.Logger, emit narrative.Emitter, text string) {
	if emit == nil {
		return
	}
	if err := emit(text); err != nil {
		log.Warn("Failed to deliver outbound item", zap.Error(err))
	}
}

package narrative_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"galgame-server/internal/mocks"
	"galgame-server/internal/models"
	"galgame-server/internal/narrative"
	"galgame-server/internal/persona"
	"galgame-server/internal/prompts"
	"galgame-server/internal/provider"
	"galgame-server/internal/session"
)

const personaPrompt = "你是樱，一个温柔的高中生。"

type EngineSuite struct {
	suite.Suite
	ctx           context.Context
	provider      *mocks.MockProvider
	prompts       *prompts.Store
	conversations *persona.MemoryConversationStore
	engine        *narrative.Engine
	store         *session.Store
	emitted       []string
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = narrative.WithTurnID(context.Background(), "turn-1")
	s.provider = mocks.NewMockProvider(s.T())

	var err error
	s.prompts, err = prompts.NewStore(nil, zap.NewNop())
	s.Require().NoError(err)

	registry, err := persona.NewFileRegistry("sakura", []models.Persona{
		{ID: "sakura", Name: "Sakura", Prompt: personaPrompt},
	})
	s.Require().NoError(err)

	s.conversations = persona.NewMemoryConversationStore()
	s.engine = narrative.NewEngine(s.provider, s.prompts, s.conversations,
		persona.NewResolver(registry, zap.NewNop()), zap.NewNop())
	s.store = session.NewStore(zap.NewNop())
	s.emitted = nil
}

func (s *EngineSuite) emit(text string) error {
	s.emitted = append(s.emitted, text)
	return nil
}

func providerErr(detail string) error {
	return &provider.Error{Client: "openai", Detail: detail, Err: errors.New(detail)}
}

func (s *EngineSuite) expectOptions(a, b, c string) {
	s.provider.On("TextChat", mock.Anything, s.prompts.Get(prompts.OptionA), narrative.OptionInstruction, mock.Anything).Return(a, nil).Once()
	s.provider.On("TextChat", mock.Anything, s.prompts.Get(prompts.OptionB), narrative.OptionInstruction, mock.Anything).Return(b, nil).Once()
	s.provider.On("TextChat", mock.Anything, s.prompts.Get(prompts.OptionC), narrative.OptionInstruction, mock.Anything).Return(c, nil).Once()
}

func emptyHistory(h []models.Message) bool { return len(h) == 0 }

// startedSession returns a session that went through a successful opening.
func (s *EngineSuite) startedSession() *session.Session {
	sess := s.store.CreateOrReset("chat-1")
	s.provider.On("TextChat", mock.Anything, s.prompts.Get(prompts.Scene), personaPrompt, mock.MatchedBy(emptyHistory)).
		Return("樱站在樱花树下。", nil).Once()
	s.expectOptions("A - 你好", "B - 今天真可爱", "C - 点头致意")
	s.engine.GenerateOpeningScene(s.ctx, sess, s.emit)
	s.emitted = nil
	return sess
}

func (s *EngineSuite) TestOpeningSceneSuccess() {
	sess := s.store.CreateOrReset("chat-1")
	s.provider.On("TextChat", mock.Anything, s.prompts.Get(prompts.Scene), personaPrompt, mock.MatchedBy(emptyHistory)).
		Return("樱站在樱花树下。", nil).Once()
	s.expectOptions("A - 你好", "B - 今天真可爱", "C - 点头致意")

	s.engine.GenerateOpeningScene(s.ctx, sess, s.emit)

	s.Equal([]string{"樱站在樱花树下。", "A - 你好", "B - 今天真可爱", "C - 点头致意"}, s.emitted)
	s.Equal([]models.Message{
		{Role: models.RoleSystem, Content: s.prompts.Get(prompts.Scene)},
		{Role: models.RoleAssistant, Content: "樱站在樱花树下。"},
		{Role: models.RoleAssistant, Content: "提供的选项：\nA - 你好\nB - 今天真可爱\nC - 点头致意"},
	}, sess.History())
	s.Equal(map[models.Label]string{
		models.LabelA: "A - 你好",
		models.LabelB: "B - 今天真可爱",
		models.LabelC: "C - 点头致意",
	}, sess.Options())
	s.Equal(session.PhaseAwaitingChoice, sess.Phase())
}

func (s *EngineSuite) TestOpeningSceneProviderFailure() {
	sess := s.store.CreateOrReset("chat-1")
	s.provider.On("TextChat", mock.Anything, s.prompts.Get(prompts.Scene), personaPrompt, mock.Anything).
		Return("", providerErr("rate limited")).Once()

	s.engine.GenerateOpeningScene(s.ctx, sess, s.emit)

	s.Equal([]string{"生成场景时出错: rate limited"}, s.emitted)
	s.Empty(sess.History())
	s.Empty(sess.Options())
	s.True(sess.Active())
	s.Equal(session.PhaseGenerating, sess.Phase())
}

func (s *EngineSuite) TestOpeningSceneConversationUnavailable() {
	conversations := mocks.NewMockConversationStore(s.T())
	conversations.On("Current", mock.Anything, "chat-1").Return(nil, errors.New("host down")).Once()
	registry, _ := persona.NewFileRegistry("", nil)
	engine := narrative.NewEngine(s.provider, s.prompts, conversations, persona.NewResolver(registry, zap.NewNop()), zap.NewNop())

	sess := s.store.CreateOrReset("chat-1")
	engine.GenerateOpeningScene(s.ctx, sess, s.emit)

	s.Equal([]string{narrative.NoticeConversationUnavailable}, s.emitted)
	s.Empty(sess.History())
	s.provider.AssertNotCalled(s.T(), "TextChat", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *EngineSuite) TestOpeningSceneNilConversation() {
	conversations := mocks.NewMockConversationStore(s.T())
	conversations.On("Current", mock.Anything, "chat-1").Return(nil, nil).Once()
	registry, _ := persona.NewFileRegistry("", nil)
	engine := narrative.NewEngine(s.provider, s.prompts, conversations, persona.NewResolver(registry, zap.NewNop()), zap.NewNop())

	engine.GenerateOpeningScene(s.ctx, s.store.CreateOrReset("chat-1"), s.emit)

	s.Equal([]string{narrative.NoticeConversationUnavailable}, s.emitted)
}

func (s *EngineSuite) TestOpeningSceneUsesBoundOrNoPersona() {
	none := models.NoPersonaID
	_, err := s.conversations.Bind(s.ctx, "chat-1", &none)
	s.Require().NoError(err)

	sess := s.store.CreateOrReset("chat-1")
	s.provider.On("TextChat", mock.Anything, s.prompts.Get(prompts.Scene), narrative.GenericSceneInstruction, mock.Anything).
		Return("", providerErr("x")).Once()

	s.engine.GenerateOpeningScene(s.ctx, sess, s.emit)
	s.Len(s.emitted, 1)
}

func (s *EngineSuite) TestOptionsAllFailUseFallbacks() {
	sess := s.store.CreateOrReset("chat-1")
	s.provider.On("TextChat", mock.Anything, mock.Anything, narrative.OptionInstruction, mock.Anything).
		Return("", providerErr("down")).Times(3)

	s.engine.GenerateOptions(s.ctx, sess, s.emit)

	s.Equal([]string{"A - 温柔微笑", "B - 挑逗一笑", "C - 保持距离"}, s.emitted)
	s.Len(sess.Options(), 3)
	s.Equal([]models.Message{
		{Role: models.RoleAssistant, Content: "提供的选项：\nA - 温柔微笑\nB - 挑逗一笑\nC - 保持距离"},
	}, sess.History())
	s.Equal(session.PhaseAwaitingChoice, sess.Phase())
}

func (s *EngineSuite) TestOptionsPartialFailure() {
	sess := s.store.CreateOrReset("chat-1")
	s.provider.On("TextChat", mock.Anything, s.prompts.Get(prompts.OptionA), narrative.OptionInstruction, mock.Anything).Return("A - 牵手", nil).Once()
	s.provider.On("TextChat", mock.Anything, s.prompts.Get(prompts.OptionB), narrative.OptionInstruction, mock.Anything).Return("", providerErr("down")).Once()
	s.provider.On("TextChat", mock.Anything, s.prompts.Get(prompts.OptionC), narrative.OptionInstruction, mock.Anything).Return("C - 离开", nil).Once()

	s.engine.GenerateOptions(s.ctx, sess, s.emit)

	s.Equal([]string{"A - 牵手", "B - 挑逗一笑", "C - 离开"}, s.emitted)
}

func (s *EngineSuite) TestOptionsShareOneHistorySnapshot() {
	sess := s.store.CreateOrReset("chat-1")
	sess.Append(models.Message{Role: models.RoleAssistant, Content: "scene"})

	var lengths []int
	s.provider.On("TextChat", mock.Anything, mock.Anything, narrative.OptionInstruction, mock.Anything).
		Run(func(args mock.Arguments) {
			lengths = append(lengths, len(args.Get(3).([]models.Message)))
		}).Return("X - ok", nil).Times(3)

	s.engine.GenerateOptions(s.ctx, sess, s.emit)

	s.Equal([]int{1, 1, 1}, lengths)
	s.Len(sess.History(), 2)
}

func (s *EngineSuite) TestChoiceAndContinueSuccess() {
	sess := s.startedSession()
	before := len(sess.History())

	expectedPrompt := s.prompts.Get(prompts.Response) + "\n玩家选择: B - 今天真可爱"
	s.provider.On("TextChat", mock.Anything, expectedPrompt, personaPrompt, mock.MatchedBy(func(h []models.Message) bool {
		return len(h) == before+1 && h[len(h)-1] == models.Message{Role: models.RoleUser, Content: "用户选择了：B - 今天真可爱"}
	})).Return("樱的脸红了。", nil).Once()
	s.expectOptions("A - 道歉", "B - 继续逗她", "C - 转移话题")

	s.engine.ResolveChoice(s.ctx, sess, models.LabelB, s.emit)

	s.Equal([]string{"樱的脸红了。", "A - 道歉", "B - 继续逗她", "C - 转移话题"}, s.emitted)
	history := sess.History()
	s.Require().Len(history, before+3)
	s.Equal(models.Message{Role: models.RoleUser, Content: "用户选择了：B - 今天真可爱"}, history[before])
	s.Equal(models.Message{Role: models.RoleAssistant, Content: "樱的脸红了。"}, history[before+1])
	s.Equal(models.RoleAssistant, history[before+2].Role)
	s.Equal("A - 道歉", sess.Options()[models.LabelA])
	s.Equal(session.PhaseAwaitingChoice, sess.Phase())
}

func (s *EngineSuite) TestContinueFailureKeepsOptions() {
	sess := s.startedSession()
	optionsBefore := sess.Options()
	before := len(sess.History())

	s.provider.On("TextChat", mock.Anything, mock.Anything, personaPrompt, mock.Anything).
		Return("", providerErr("timeout")).Once()

	s.engine.ResolveChoice(s.ctx, sess, models.LabelA, s.emit)

	s.Equal([]string{"生成故事进展时出错: timeout"}, s.emitted)
	s.Equal(optionsBefore, sess.Options())
	s.Len(sess.History(), before+1, "only the user choice is recorded")
	s.Equal(session.PhaseAwaitingChoice, sess.Phase())
}

func (s *EngineSuite) TestContinueConversationUnavailable() {
	sess := s.store.CreateOrReset("chat-1")
	sess.SetOption(models.LabelA, "A - hi")

	conversations := mocks.NewMockConversationStore(s.T())
	conversations.On("Current", mock.Anything, "chat-1").Return(nil, errors.New("gone")).Once()
	registry, _ := persona.NewFileRegistry("", nil)
	engine := narrative.NewEngine(s.provider, s.prompts, conversations, persona.NewResolver(registry, zap.NewNop()), zap.NewNop())

	engine.ContinueStory(s.ctx, sess, models.LabelA, "A - hi", s.emit)

	s.Equal([]string{narrative.NoticeConversationUnavailable}, s.emitted)
	s.Empty(sess.History())
}

func (s *EngineSuite) TestInvalidChoiceNoMutation() {
	sess := s.store.CreateOrReset("chat-1")

	s.engine.ResolveChoice(s.ctx, sess, models.LabelC, s.emit)

	s.Equal([]string{narrative.NoticeInvalidChoice}, s.emitted)
	s.Empty(sess.History())
	s.Empty(sess.Options())
	s.Equal(session.PhaseGenerating, sess.Phase())
}

func (s *EngineSuite) TestEmitErrorDoesNotStopTurn() {
	sess := s.store.CreateOrReset("chat-1")
	s.provider.On("TextChat", mock.Anything, s.prompts.Get(prompts.Scene), personaPrompt, mock.Anything).Return("scene", nil).Once()
	s.expectOptions("A", "B", "C")

	calls := 0
	s.engine.GenerateOpeningScene(s.ctx, sess, func(string) error {
		calls++
		return errors.New("socket closed")
	})

	s.Equal(4, calls)
	s.Len(sess.Options(), 3)
}

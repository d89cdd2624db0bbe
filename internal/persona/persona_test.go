package persona_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"galgame-server/internal/mocks"
	"galgame-server/internal/models"
	"galgame-server/internal/persona"
)

const personasYAML = `
default: sakura
personas:
  - id: sakura
    name: Sakura
    prompt: 你是樱，一个温柔的高中生。
  - id: rin
    name: Rin
    prompt: 你是凛，一个傲娇的学姐。
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRegistry(t *testing.T) {
	ctx := context.Background()

	reg, err := persona.LoadRegistry(writeFile(t, personasYAML), zap.NewNop())
	require.NoError(t, err)

	def, err := reg.Default(ctx)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "sakura", def.ID)

	rin, err := reg.Get(ctx, "rin")
	require.NoError(t, err)
	assert.Equal(t, "你是凛，一个傲娇的学姐。", rin.Prompt)

	_, err = reg.Get(ctx, "nobody")
	assert.ErrorIs(t, err, models.ErrPersonaNotFound)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "sakura", list[0].ID)
}

func TestLoadRegistry_EmptyPath(t *testing.T) {
	reg, err := persona.LoadRegistry("", zap.NewNop())
	require.NoError(t, err)

	def, err := reg.Default(context.Background())
	require.NoError(t, err)
	assert.Nil(t, def)
}

func TestLoadRegistry_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":        "personas: [",
		"unknown default": "default: ghost\npersonas:\n  - id: a\n    prompt: x\n",
		"duplicate id":    "personas:\n  - id: a\n  - id: a\n",
		"missing id":      "personas:\n  - name: x\n",
		"reserved id":     "personas:\n  - id: \"[%None]\"\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := persona.LoadRegistry(writeFile(t, content), zap.NewNop())
			assert.Error(t, err)
		})
	}

	_, err := persona.LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"), zap.NewNop())
	assert.Error(t, err)
}

func strPtr(s string) *string { return &s }

func TestResolver_Instruction(t *testing.T) {
	ctx := context.Background()
	const fallback = "generic"

	reg, err := persona.NewFileRegistry("sakura", []models.Persona{
		{ID: "sakura", Prompt: "sakura prompt"},
		{ID: "rin", Prompt: "rin prompt"},
		{ID: "blank"},
	})
	require.NoError(t, err)
	r := persona.NewResolver(reg, zap.NewNop())

	assert.Equal(t, "sakura prompt", r.Instruction(ctx, nil, fallback))
	assert.Equal(t, "rin prompt", r.Instruction(ctx, strPtr("rin"), fallback))
	assert.Equal(t, fallback, r.Instruction(ctx, strPtr("ghost"), fallback))
	assert.Equal(t, fallback, r.Instruction(ctx, strPtr(models.NoPersonaID), fallback))
	assert.Equal(t, fallback, r.Instruction(ctx, strPtr("blank"), fallback))

	noDefault, err := persona.NewFileRegistry("", nil)
	require.NoError(t, err)
	assert.Equal(t, fallback, persona.NewResolver(noDefault, zap.NewNop()).Instruction(ctx, nil, fallback))
}

func TestResolver_RegistryFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	reg := mocks.NewMockRegistry(t)
	reg.On("Default", ctx).Return(nil, errors.New("registry offline")).Once()
	reg.On("Get", ctx, "rin").Return(nil, errors.New("registry offline")).Once()

	r := persona.NewResolver(reg, zap.NewNop())
	assert.Equal(t, "generic", r.Instruction(ctx, nil, "generic"))
	assert.Equal(t, "generic", r.Instruction(ctx, strPtr("rin"), "generic"))
}

func TestResolver_NoPersonaSkipsRegistry(t *testing.T) {
	reg := mocks.NewMockRegistry(t)
	r := persona.NewResolver(reg, zap.NewNop())
	assert.Equal(t, "generic", r.Instruction(context.Background(), strPtr(models.NoPersonaID), "generic"))
	reg.AssertNotCalled(t, "Default", context.Background())
}

func TestMemoryConversationStore(t *testing.T) {
	ctx := context.Background()
	s := persona.NewMemoryConversationStore()

	first, err := s.Current(ctx, "chat-1")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Nil(t, first.PersonaID)

	again, err := s.Current(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	other, err := s.Current(ctx, "chat-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	id := "rin"
	bound, err := s.Bind(ctx, "chat-1", &id)
	require.NoError(t, err)
	assert.Equal(t, first.ID, bound.ID)
	require.NotNil(t, bound.PersonaID)
	id = "mutated"
	cur, _ := s.Current(ctx, "chat-1")
	assert.Equal(t, "rin", *cur.PersonaID)

	unbound, err := s.Bind(ctx, "chat-1", nil)
	require.NoError(t, err)
	assert.Nil(t, unbound.PersonaID)
}

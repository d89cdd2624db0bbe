package prompts

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Name identifies one of the five narrative templates.
type Name string

const (
	Scene    Name = "SYSTEM_SCENE_PROMPT"
	OptionA  Name = "OPTION_A_PROMPT"
	OptionB  Name = "OPTION_B_PROMPT"
	OptionC  Name = "OPTION_C_PROMPT"
	Response Name = "SYSTEM_RESPONSE_PROMPT"
)

// Names lists every template in a stable order.
var Names = []Name{Scene, OptionA, OptionB, OptionC, Response}

var defaults = map[Name]string{
	Scene:    "你现在扮演Galgame中的一个角色，请根据当前人格设定，以第一人称视角创造一个沉浸式开场：1)描述周围环境和氛围，2)表达你(角色)此刻的心情和想法，3)向玩家(称为'你')自然地开启对话。注意保持角色特点一致，并在对话中埋下后续剧情的伏笔。",
	OptionA:  "基于当前故事情境，为玩家创建一个温柔/体贴/善解人意风格的互动选项，标记为A。这个选项应该是玩家对角色说的话或采取的行动，而非角色的想法。必须严格按照'A - [选项内容]'格式输出，内容控制在20字以内。",
	OptionB:  "基于当前故事情境，为玩家创建一个挑逗/暧昧/幽默风格的互动选项，标记为B。这个选项应该是玩家对角色说的话或采取的行动，而非角色的想法。必须严格按照'B - [选项内容]'格式输出，内容控制在20字以内。",
	OptionC:  "基于当前故事情境，为玩家创建一个理性/保守/谨慎风格的互动选项，标记为C。这个选项应该是玩家对角色说的话或采取的行动，而非角色的想法。必须严格按照'C - [选项内容]'格式输出，内容控制在20字以内。",
	Response: "玩家已选择了一个互动选项。请你以角色视角，根据玩家的选择自然地延续对话和情节。回应中应该：1)表现出角色对玩家选择的情感反应，2)推进故事情节发展，3)展示角色的个性特点，4)留下悬念以便故事继续。保持叙述生动且符合角色设定。",
}

// Default returns the compiled-in text for name.
func Default(name Name) (string, bool) {
	text, ok := defaults[name]
	return text, ok
}

// Store holds the per-process template texts: configured overrides on top of
// the compiled-in defaults. Texts never change after construction.
type Store struct {
	mu        sync.RWMutex
	templates map[Name]string
}

// NewStore builds a Store. Empty override values are ignored.
func NewStore(overrides map[Name]string, logger *zap.Logger) (*Store, error) {
	log := logger.Named("PromptStore")
	templates := make(map[Name]string, len(defaults))
	for name, text := range defaults {
		templates[name] = text
	}
	for name, text := range overrides {
		if _, known := defaults[name]; !known {
			return nil, fmt.Errorf("unknown prompt template '%s'", name)
		}
		if text == "" {
			continue
		}
		templates[name] = text
		log.Info("Prompt template overridden", zap.String("name", string(name)), zap.Int("length", len(text)))
	}
	return &Store{templates: templates}, nil
}

// Get returns the text for name. It panics on an unknown name, which can only
// come from a programming error since Name values are package constants.
func (s *Store) Get(name Name) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.templates[name]
	if !ok {
		panic(fmt.Sprintf("prompts: unknown template %q", name))
	}
	return text
}

// All returns a copy of every template.
func (s *Store) All() map[Name]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Name]string, len(s.templates))
	for k, v := range s.templates {
		out[k] = v
	}
	return out
}

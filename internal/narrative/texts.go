package narrative

import "galgame-server/internal/models"

// Generic system instructions used when no persona applies.
const (
	GenericSceneInstruction    = "你是一个视觉小说游戏引擎，能生成优质的Galgame剧情和选项"
	GenericContinueInstruction = "你是一个视觉小说游戏引擎，能根据用户选择生成优质的Galgame剧情"
	// OptionInstruction never carries a persona.
	OptionInstruction = "你是一个视觉小说游戏引擎，负责生成玩家可以选择的选项"
)

// User-visible notices.
const (
	NoticeConversationUnavailable = "无法获取对话，请重新开始游戏"
	NoticeInvalidChoice           = "无法识别您的选择，请重新选择A、B或C"
	noticeSceneFailedFmt          = "生成场景时出错: %s"
	noticeContinueFailedFmt       = "生成故事进展时出错: %s"
)

// History and prompt formats.
const (
	optionsSummaryPrefix = "提供的选项：\n"
	userChoicePrefix     = "用户选择了："
	playerChoiceLine     = "\n玩家选择: "
)

// FallbackOptions are shown when generating an option fails.
var FallbackOptions = map[models.Label]string{
	models.LabelA: "A - 温柔微笑",
	models.LabelB: "B - 挑逗一笑",
	models.LabelC: "C - 保持距离",
}

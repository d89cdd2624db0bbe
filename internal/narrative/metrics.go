package narrative

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	phaseScene    = "scene"
	phaseOptions  = "options"
	phaseChoice   = "choice"
	phaseContinue = "continue"

	outcomeSuccess                 = "success"
	outcomeProviderError           = "provider_error"
	outcomeConversationUnavailable = "conversation_unavailable"
	outcomeInvalidChoice           = "invalid_choice"
	outcomeFallback                = "fallback"
)

var (
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galgame_turns_total",
			Help: "Narrative phases run, by phase and outcome.",
		},
		[]string{"phase", "outcome"},
	)
	optionFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galgame_option_fallbacks_total",
			Help: "Options replaced by their built-in fallback after a provider failure.",
		},
		[]string{"label"},
	)
)

func countTurn(phase, outcome string) {
	turnsTotal.With(prometheus.Labels{"phase": phase, "outcome": outcome}).Inc()
}

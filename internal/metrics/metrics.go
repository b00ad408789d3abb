package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	queryOutcomeMetricName      = "supportbot_query_outcomes_total"
	stepOutcomeMetricName       = "supportbot_step_outcomes_total"
	knowledgeFallbackMetricName = "supportbot_knowledge_fallbacks_total"
	sessionsStartedMetricName   = "supportbot_sessions_started_total"
)

// Query outcomes.
const (
	QueryNoMatch  = "no_match"
	QuerySingle   = "single"
	QueryMultiple = "multiple"
	QueryNoSteps  = "no_steps"
	QueryError    = "error"
)

// Step outcomes.
const (
	StepWorked    = "worked"
	StepNext      = "next_step"
	StepExhausted = "exhausted"
	StepStale     = "stale"
	StepError     = "error"
)

var (
	QueryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: queryOutcomeMetricName,
		Help: "Number of user queries by how the matcher resolved them.",
	}, []string{"outcome"})
	StepOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: stepOutcomeMetricName,
		Help: "Number of step outcome signals by the resulting transition.",
	}, []string{"result"})
	KnowledgeFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: knowledgeFallbackMetricName,
		Help: "Number of knowledge base reads served from the static dataset because the store failed.",
	}, []string{"operation"})
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: sessionsStartedMetricName,
		Help: "Number of chat sessions started.",
	})
)

package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Phase identifies a step of a generation run.
type Phase int

const (
	PhaseSpecification Phase = iota
	PhaseQuestions
	PhasePersist
	PhaseLessonPlan
)

func (p Phase) String() string {
	names := [...]string{
		"specification",
		"questions",
		"persist",
		"lesson-plan",
	}
	if int(p) >= 0 && int(p) < len(names) {
		return names[p]
	}
	return "unknown"
}

const (
	kindAssessment = "assessment"
	kindLessonPlan = "lesson_plan"

	outcomeCompleted = "completed"
	// outcomePartial is an assessment whose specification completed but
	// whose questions failed.
	outcomePartial = "partial"
	outcomeFailed  = "failed"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lessonforge",
		Subsystem: "generation",
		Name:      "runs_total",
		Help:      "Finished generation runs by kind and outcome.",
	}, []string{"kind", "outcome"})

	activeRuns = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "lessonforge",
		Subsystem: "generation",
		Name:      "active_runs",
		Help:      "Generation runs currently in flight.",
	}, []string{"kind"})

	phaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lessonforge",
		Subsystem: "generation",
		Name:      "phase_duration_seconds",
		Help:      "Wall time of each run phase.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"phase"})

	phaseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lessonforge",
		Subsystem: "generation",
		Name:      "phase_failures_total",
		Help:      "Failed run phases.",
	}, []string{"phase"})
)

func observePhase(p Phase, start time.Time) {
	phaseDuration.WithLabelValues(p.String()).Observe(time.Since(start).Seconds())
}

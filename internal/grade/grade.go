package grade

import (
	"math"
	"sort"
	"strings"

	"github.com/davidahmann/neuroflow/pkg/types"
)

// chunkingThreshold is the complexity above which a decision should carry a
// chunking recommendation.
const chunkingThreshold = 7

type Metrics struct {
	// PredictionAccuracy is the mean of 1-|predicted-actual|/10 over recorded
	// outcomes of paths that also have a prediction. The predicted satisfaction
	// of a path is its success probability scaled to 0..10.
	PredictionAccuracy  *float64 `json:"prediction_accuracy,omitempty"`
	AverageSatisfaction *float64 `json:"average_satisfaction,omitempty"`
	ComparedOutcomes    int      `json:"compared_outcomes"`
}

type Result struct {
	Grade   string   `json:"grade"`
	Reasons []string `json:"reasons"`
	Metrics Metrics  `json:"metrics"`
}

func Evaluate(detail types.DecisionDetail) Result {
	missing := map[string]bool{}

	if len(detail.Paths) == 0 {
		missing["paths"] = true
	}
	if len(detail.PredictedOutcomes) == 0 {
		missing["predictions"] = true
	}
	if len(detail.ActualOutcomes) == 0 {
		missing["actual_outcomes"] = true
	}
	if strings.TrimSpace(detail.Decision.CoreQuestion) == "" {
		missing["core_question"] = true
	}

	unchunked := detail.Decision.ComplexityScore > chunkingThreshold &&
		strings.TrimSpace(detail.Decision.ChunkingRecommendation) == ""

	// Heuristic grading.
	grade := "A"
	switch {
	case missing["paths"]:
		grade = "F"
	case missing["predictions"]:
		grade = "D"
	case missing["actual_outcomes"]:
		grade = "C"
	case missing["core_question"] || unchunked:
		grade = "B"
	}

	reasons := []string{}
	for k, v := range missing {
		if v {
			reasons = append(reasons, "missing_"+k)
		}
	}
	if unchunked {
		reasons = append(reasons, "high_complexity_unchunked")
	}
	sort.Strings(reasons)

	return Result{Grade: grade, Reasons: reasons, Metrics: metrics(detail)}
}

func metrics(detail types.DecisionDetail) Metrics {
	var out Metrics
	if len(detail.ActualOutcomes) == 0 {
		return out
	}

	predicted := map[string]bool{}
	for _, p := range detail.PredictedOutcomes {
		predicted[p.PathID] = true
	}
	probability := map[string]int{}
	for _, p := range detail.Paths {
		probability[p.ID] = p.ProbabilitySuccess
	}

	var satisfaction, accuracy float64
	for _, actual := range detail.ActualOutcomes {
		satisfaction += actual.SatisfactionScore
		prob, ok := probability[actual.PathID]
		if !ok || !predicted[actual.PathID] {
			continue
		}
		expected := float64(prob) / 10
		accuracy += math.Max(0, 1-math.Abs(expected-actual.SatisfactionScore)/10)
		out.ComparedOutcomes++
	}

	avg := satisfaction / float64(len(detail.ActualOutcomes))
	out.AverageSatisfaction = &avg
	if out.ComparedOutcomes > 0 {
		acc := accuracy / float64(out.ComparedOutcomes)
		out.PredictionAccuracy = &acc
	}
	return out
}

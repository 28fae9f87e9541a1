// Package workflow lays out the decision graph shown in the workflow view.
package workflow

import (
	"fmt"
	"math"

	"github.com/davidahmann/neuroflow/pkg/types"
)

const (
	centerX      = 400
	decisionY    = 100
	pathY        = 300
	outcomeY     = 500
	pathSpacing  = 400
	riskOffsetX  = -150
	riskStartY   = 380
	riskSpacingY = 60
)

// Build returns the nodes and edges for a decision, its paths and their
// predicted outcomes. The result depends only on its inputs: node order follows
// path order and the ids are derived from record ids.
func Build(decision types.Decision, paths []types.DecisionPath, predicted []types.PredictedOutcome) ([]types.WorkflowNode, []types.WorkflowEdge) {
	nodes := []types.WorkflowNode{{
		ID:          DecisionNodeID,
		Type:        types.NodeDecision,
		Title:       decision.Title,
		Description: decision.CoreQuestion,
		Impact:      decision.ComplexityScore,
		Position:    types.Position{X: centerX, Y: decisionY},
	}}
	edges := []types.WorkflowEdge{}

	byPath := map[string]types.PredictedOutcome{}
	for _, outcome := range predicted {
		if _, ok := byPath[outcome.PathID]; !ok {
			byPath[outcome.PathID] = outcome
		}
	}

	for i, path := range paths {
		x := pathX(i, len(paths))
		pathNode := "path-" + path.ID
		nodes = append(nodes, types.WorkflowNode{
			ID:          pathNode,
			Type:        types.NodePath,
			Title:       path.Title,
			Description: path.Description,
			Probability: path.ProbabilitySuccess,
			Position:    types.Position{X: x, Y: pathY},
		})
		edges = append(edges, types.WorkflowEdge{
			ID:     "e-" + DecisionNodeID + "-" + pathNode,
			Source: DecisionNodeID,
			Target: pathNode,
			Label:  fmt.Sprintf("%d%%", path.ProbabilitySuccess),
		})

		if outcome, ok := byPath[path.ID]; ok {
			outcomeNode := "outcome-" + path.ID
			nodes = append(nodes, types.WorkflowNode{
				ID:          outcomeNode,
				Type:        types.NodeOutcome,
				Title:       "Predicted outcome: " + path.Title,
				Description: fmt.Sprintf("Confidence %d%%", int(math.Round(outcome.ConfidenceScore*100))),
				Probability: path.ProbabilitySuccess,
				Impact:      int(math.Round(outcome.ConfidenceScore * 10)),
				Position:    types.Position{X: x, Y: outcomeY},
			})
			edges = append(edges, types.WorkflowEdge{
				ID:     "e-" + pathNode + "-" + outcomeNode,
				Source: pathNode,
				Target: outcomeNode,
			})
		}

		for j, risk := range path.RiskFactors {
			riskNode := fmt.Sprintf("risk-%s-%d", path.ID, j)
			nodes = append(nodes, types.WorkflowNode{
				ID:       riskNode,
				Type:     types.NodeRisk,
				Title:    risk,
				Position: types.Position{X: x + riskOffsetX, Y: riskStartY + j*riskSpacingY},
			})
			edges = append(edges, types.WorkflowEdge{
				ID:     "e-" + pathNode + "-" + riskNode,
				Source: pathNode,
				Target: riskNode,
				Label:  "risk",
			})
		}
	}
	return nodes, edges
}

const DecisionNodeID = "decision"

// pathX spreads n path nodes evenly around the centre line.
func pathX(i, n int) int {
	return centerX + i*pathSpacing - (n-1)*pathSpacing/2
}

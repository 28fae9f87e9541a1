package decision

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/davidahmann/neuroflow/internal/realtime"
	"github.com/davidahmann/neuroflow/pkg/types"
)

// WorkflowInput is a client-edited graph.
type WorkflowInput struct {
	Nodes      []types.WorkflowNode `json:"nodes"`
	Edges      []types.WorkflowEdge `json:"edges"`
	LayoutData json.RawMessage      `json:"layout_data"`
}

func (in WorkflowInput) Validate() error {
	ids := map[string]bool{}
	for _, n := range in.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: node id is required", ErrInvalid)
		}
		if ids[n.ID] {
			return fmt.Errorf("%w: duplicate node id %q", ErrInvalid, n.ID)
		}
		switch n.Type {
		case types.NodeDecision, types.NodePath, types.NodeOutcome, types.NodeRisk:
		default:
			return fmt.Errorf("%w: unknown node type %q", ErrInvalid, n.Type)
		}
		ids[n.ID] = true
	}
	for _, e := range in.Edges {
		if !ids[e.Source] || !ids[e.Target] {
			return fmt.Errorf("%w: edge %q references an unknown node", ErrInvalid, e.ID)
		}
	}
	if len(in.LayoutData) > 0 && !json.Valid(in.LayoutData) {
		return fmt.Errorf("%w: layout_data is not valid JSON", ErrInvalid)
	}
	return nil
}

// GetWorkflow returns the stored graph, or one built from the current paths
// and predictions when none has been stored yet. A built graph has no id.
func (s *Service) GetWorkflow(userID, decisionID string) (types.Workflow, error) {
	d, err := s.owned(userID, decisionID)
	if err != nil {
		return types.Workflow{}, err
	}
	if wf, ok := s.store.GetWorkflow(decisionID); ok {
		return wf, nil
	}
	nodes, edges, err := s.buildGraph(d)
	if err != nil {
		return types.Workflow{}, fmt.Errorf("build workflow: %w", err)
	}
	return types.Workflow{DecisionID: decisionID, Nodes: nodes, Edges: edges, LayoutData: json.RawMessage(`{}`)}, nil
}

func (s *Service) SaveWorkflow(userID, decisionID string, in WorkflowInput) (types.Workflow, error) {
	if err := in.Validate(); err != nil {
		return types.Workflow{}, err
	}
	if _, err := s.owned(userID, decisionID); err != nil {
		return types.Workflow{}, err
	}

	now := s.timestamp()
	wf := types.Workflow{
		ID:         s.newID(),
		DecisionID: decisionID,
		Nodes:      in.Nodes,
		Edges:      in.Edges,
		LayoutData: types.RawOrEmpty(in.LayoutData),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if wf.Nodes == nil {
		wf.Nodes = []types.WorkflowNode{}
	}
	if wf.Edges == nil {
		wf.Edges = []types.WorkflowEdge{}
	}
	if existing, ok := s.store.GetWorkflow(decisionID); ok {
		wf.ID = existing.ID
		wf.CreatedAt = existing.CreatedAt
	}
	if err := s.store.PutWorkflow(wf); err != nil {
		return types.Workflow{}, fmt.Errorf("store workflow: %w", err)
	}

	s.logger.Info("workflow saved", zap.String("decision_id", decisionID), zap.Int("nodes", len(wf.Nodes)))
	s.publish(realtime.WorkflowTopic(decisionID), realtime.EventWorkflowUpdated, wf)
	return wf, nil
}

package types

import "encoding/json"

type NodeType string

const (
	NodeDecision NodeType = "decision"
	NodePath     NodeType = "path"
	NodeOutcome  NodeType = "outcome"
	NodeRisk     NodeType = "risk"
)

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type WorkflowNode struct {
	ID          string   `json:"id"`
	Type        NodeType `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Probability int      `json:"probability,omitempty"`
	Impact      int      `json:"impact,omitempty"`
	Position    Position `json:"position"`
}

type WorkflowEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

type Workflow struct {
	ID         string          `json:"id"`
	DecisionID string          `json:"decision_id"`
	Nodes      []WorkflowNode  `json:"nodes"`
	Edges      []WorkflowEdge  `json:"edges"`
	LayoutData json.RawMessage `json:"layout_data,omitempty"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

// Package export bundles a decision and everything recorded against it into a
// zip archive the user can keep outside the service.
package export

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/davidahmann/neuroflow/internal/digest"
	"github.com/davidahmann/neuroflow/internal/grade"
	"github.com/davidahmann/neuroflow/pkg/types"
)

const (
	FileDecision  = "decision.json"
	FilePaths     = "paths.json"
	FilePredicted = "predicted_outcomes.json"
	FileActual    = "actual_outcomes.json"
	FileWorkflow  = "workflow.json"
	FileSummary   = "summary.md"
	FileManifest  = "manifest.json"
	FileSums      = "sha256sums.txt"
)

type Input struct {
	Detail    types.DecisionDetail
	Grade     grade.Result
	CreatedAt string
}

type Manifest struct {
	DecisionID     string            `json:"decision_id"`
	DecisionDigest string            `json:"decision_digest"`
	Grade          string            `json:"grade"`
	CreatedAt      string            `json:"created_at,omitempty"`
	Files          map[string]string `json:"files"`
}

// BuildFiles renders every archive member. The manifest and checksum list
// cover all other files.
func BuildFiles(in Input) (map[string][]byte, error) {
	d := in.Detail.Decision
	if d.ID == "" {
		return nil, errors.New("missing decision")
	}

	files := map[string][]byte{}
	add := func(name string, v any) error {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		files[name] = append(data, '\n')
		return nil
	}

	workflow := types.Workflow{DecisionID: d.ID, Nodes: []types.WorkflowNode{}, Edges: []types.WorkflowEdge{}}
	if in.Detail.Workflow != nil {
		workflow = *in.Detail.Workflow
	}
	for name, v := range map[string]any{
		FileDecision:  d,
		FilePaths:     orEmpty(in.Detail.Paths),
		FilePredicted: orEmpty(in.Detail.PredictedOutcomes),
		FileActual:    orEmpty(in.Detail.ActualOutcomes),
		FileWorkflow:  workflow,
	} {
		if err := add(name, v); err != nil {
			return nil, err
		}
	}
	files[FileSummary] = []byte(BuildSummary(in))

	decisionDigest, err := digest.Of(d)
	if err != nil {
		return nil, fmt.Errorf("digest decision: %w", err)
	}
	manifest := Manifest{
		DecisionID:     d.ID,
		DecisionDigest: decisionDigest,
		Grade:          in.Grade.Grade,
		CreatedAt:      in.CreatedAt,
		Files:          map[string]string{},
	}
	for name, data := range files {
		manifest.Files[name] = sum(data)
	}
	if err := add(FileManifest, manifest); err != nil {
		return nil, err
	}

	names := sortedNames(files)
	var sums strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sums, "%s  %s\n", sum(files[name]), name)
	}
	files[FileSums] = []byte(sums.String())
	return files, nil
}

// BuildSummary renders a markdown overview of the decision, its paths and the
// grade.
func BuildSummary(in Input) string {
	d := in.Detail.Decision
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", d.Title)
	if d.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", d.Description)
	}
	fmt.Fprintf(&b, "- Status: %s\n", d.Status)
	fmt.Fprintf(&b, "- Complexity: %d/10\n", d.ComplexityScore)
	if d.CoreQuestion != "" {
		fmt.Fprintf(&b, "- Core question: %s\n", d.CoreQuestion)
	}
	if len(d.Stakeholders) > 0 {
		fmt.Fprintf(&b, "- Stakeholders: %s\n", strings.Join(d.Stakeholders, ", "))
	}
	if len(d.CognitiveBiasesDetected) > 0 {
		fmt.Fprintf(&b, "- Cognitive biases: %s\n", strings.Join(d.CognitiveBiasesDetected, ", "))
	}
	if d.ChunkingRecommendation != "" {
		fmt.Fprintf(&b, "\n> %s\n", d.ChunkingRecommendation)
	}

	b.WriteString("\n## Paths\n\n")
	if len(in.Detail.Paths) == 0 {
		b.WriteString("No paths recorded.\n")
	}
	predicted := map[string]bool{}
	for _, o := range in.Detail.PredictedOutcomes {
		predicted[o.PathID] = true
	}
	satisfaction := map[string][]float64{}
	for _, o := range in.Detail.ActualOutcomes {
		satisfaction[o.PathID] = append(satisfaction[o.PathID], o.SatisfactionScore)
	}
	for _, p := range in.Detail.Paths {
		fmt.Fprintf(&b, "### %s\n\n", p.Title)
		fmt.Fprintf(&b, "- Success probability: %d%%\n", p.ProbabilitySuccess)
		fmt.Fprintf(&b, "- Emotional impact: %s, resources: %s, %s\n", p.EmotionalImpact, p.ResourceRequirement, p.Reversibility)
		if len(p.RiskFactors) > 0 {
			fmt.Fprintf(&b, "- Risks: %s\n", strings.Join(p.RiskFactors, ", "))
		}
		if predicted[p.ID] {
			b.WriteString("- Predicted outcome recorded\n")
		}
		for _, s := range satisfaction[p.ID] {
			fmt.Fprintf(&b, "- Actual satisfaction: %.1f/10\n", s)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Grade\n\n")
	fmt.Fprintf(&b, "Grade: **%s**\n", in.Grade.Grade)
	if len(in.Grade.Reasons) > 0 {
		fmt.Fprintf(&b, "\nReasons: %s\n", strings.Join(in.Grade.Reasons, ", "))
	}
	if acc := in.Grade.Metrics.PredictionAccuracy; acc != nil {
		fmt.Fprintf(&b, "\nPrediction accuracy: %.0f%%\n", *acc*100)
	}
	return b.String()
}

// WriteZip writes files in name order so the archive is reproducible.
func WriteZip(w io.Writer, files map[string][]byte) error {
	zw := zip.NewWriter(w)
	for _, name := range sortedNames(files) {
		f, err := zw.Create(name)
		if err != nil {
			_ = zw.Close()
			return err
		}
		if _, err := f.Write(files[name]); err != nil {
			_ = zw.Close()
			return err
		}
	}
	return zw.Close()
}

func BuildZip(in Input) ([]byte, error) {
	files, err := BuildFiles(in)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(nil)
	if err := WriteZip(buf, files); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func sortedNames(files map[string][]byte) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

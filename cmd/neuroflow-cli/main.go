package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/davidahmann/neuroflow/internal/decision"
	"github.com/davidahmann/neuroflow/pkg/types"
)

const defaultAddr = "http://localhost:8080"

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

// usageError marks errors caused by how the CLI was invoked.
type usageError struct{ error }

type options struct {
	addr    string
	token   string
	jsonOut bool
	client  *http.Client
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args[1:])
	err := root.Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintln(stderr, err.Error())
	var ue usageError
	if errors.As(err, &ue) {
		return 2
	}
	return 1
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{client: http.DefaultClient}

	root := &cobra.Command{
		Use:           "neuroflow",
		Short:         "NeuroFlow CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageError{fmt.Errorf("unknown command %q", args[0])}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprint(stderr, cmd.UsageString())
			return usageError{errors.New("a command is required")}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.PersistentFlags().StringVar(&opts.addr, "addr", envOrDefault("NEUROFLOW_ADDR", defaultAddr), "NeuroFlow API address")
	root.PersistentFlags().StringVar(&opts.token, "token", envOrDefault("NEUROFLOW_TOKEN", os.Getenv("NEUROFLOW_DEV_TOKEN")), "bearer token")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print raw JSON response")

	root.AddCommand(
		newListCmd(opts),
		newShowCmd(opts),
		newCreateCmd(opts),
		newStatsCmd(opts),
		newExportCmd(opts),
	)
	return root
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageError{fmt.Errorf("%s takes no arguments", cmd.Name())}
	}
	return nil
}

func exactArgs(n int, what string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError{fmt.Errorf("%s requires <%s>", cmd.Name(), what)}
		}
		return nil
	}
}

func newListCmd(opts *options) *cobra.Command {
	var search, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your decisions",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if search != "" {
				q.Set("search", search)
			}
			if status != "" {
				q.Set("status", status)
			}
			path := "/v1/decisions"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			body, err := opts.call(http.MethodGet, path, nil, http.StatusOK, "list")
			if err != nil {
				return err
			}
			if opts.jsonOut {
				_, err := cmd.OutOrStdout().Write(body)
				return err
			}

			var payload struct {
				Decisions []types.Decision `json:"decisions"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				return fmt.Errorf("invalid response: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tCOMPLEXITY\tTITLE")
			for _, d := range payload.Decisions {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.ID, d.Status, d.ComplexityScore, d.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "case-insensitive match on title and description")
	cmd.Flags().StringVar(&status, "status", "", "draft, in_progress, completed or all")
	return cmd
}

func newShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <decision_id>",
		Short: "Show a decision with its paths and outcomes",
		Args:  exactArgs(1, "decision_id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := opts.call(http.MethodGet, "/v1/decisions/"+url.PathEscape(args[0]), nil, http.StatusOK, "show")
			if err != nil {
				return err
			}
			if opts.jsonOut {
				_, err := cmd.OutOrStdout().Write(body)
				return err
			}

			var detail types.DecisionDetail
			if err := json.Unmarshal(body, &detail); err != nil {
				return fmt.Errorf("invalid response: %w", err)
			}
			out := cmd.OutOrStdout()
			d := detail.Decision
			fmt.Fprintf(out, "%s (%s)\n", d.Title, d.ID)
			fmt.Fprintf(out, "status=%s complexity=%d\n", d.Status, d.ComplexityScore)
			if d.CoreQuestion != "" {
				fmt.Fprintf(out, "core question: %s\n", d.CoreQuestion)
			}
			if len(d.CognitiveBiasesDetected) > 0 {
				fmt.Fprintf(out, "biases: %s\n", strings.Join(d.CognitiveBiasesDetected, ", "))
			}
			for _, p := range detail.Paths {
				fmt.Fprintf(out, "path %s: %s (%d%%)\n", p.ID, p.Title, p.ProbabilitySuccess)
			}
			fmt.Fprintf(out, "predicted=%d actual=%d\n", len(detail.PredictedOutcomes), len(detail.ActualOutcomes))
			return nil
		},
	}
}

func newCreateCmd(opts *options) *cobra.Command {
	var req decision.CreateRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create and analyze a decision",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(req.Title) == "" {
				return usageError{errors.New("create requires --title")}
			}
			payload, err := json.Marshal(req)
			if err != nil {
				return err
			}
			body, err := opts.call(http.MethodPost, "/v1/decisions", payload, http.StatusCreated, "create")
			if err != nil {
				return err
			}
			if opts.jsonOut {
				_, err := cmd.OutOrStdout().Write(body)
				return err
			}

			var d types.Decision
			if err := json.Unmarshal(body, &d); err != nil {
				return fmt.Errorf("invalid response: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s complexity=%d source=%s\n", d.ID, d.ComplexityScore, d.AnalysisSource)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Title, "title", "", "decision title")
	cmd.Flags().StringVar(&req.Description, "description", "", "decision description")
	cmd.Flags().StringVar(&req.CoreQuestion, "core-question", "", "the question being decided")
	cmd.Flags().StringVar(&req.Stakeholders, "stakeholders", "", "comma-separated stakeholders")
	cmd.Flags().StringVar(&req.TemporalConstraints, "temporal", "", "time constraints")
	cmd.Flags().StringVar(&req.FinancialConstraints, "financial", "", "financial constraints")
	cmd.Flags().StringVar(&req.SocialConstraints, "social", "", "social constraints")
	cmd.Flags().StringVar(&req.PersonalConstraints, "personal", "", "personal constraints")
	return cmd
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard statistics",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := opts.call(http.MethodGet, "/v1/stats", nil, http.StatusOK, "stats")
			if err != nil {
				return err
			}
			if opts.jsonOut {
				_, err := cmd.OutOrStdout().Write(body)
				return err
			}
			var stats types.DashboardStats
			if err := json.Unmarshal(body, &stats); err != nil {
				return fmt.Errorf("invalid response: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total=%d draft=%d in_progress=%d completed=%d average_complexity=%.1f\n",
				stats.Total, stats.Draft, stats.InProgress, stats.Completed, stats.AverageComplexity)
			return nil
		},
	}
}

func newExportCmd(opts *options) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export <decision_id>",
		Short: "Download a decision archive",
		Args:  exactArgs(1, "decision_id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := opts.call(http.MethodGet, "/v1/decisions/"+url.PathEscape(args[0])+"/export", nil, http.StatusOK, "export")
			if err != nil {
				return err
			}
			path := outPath
			if path == "" {
				path = "neuroflow-" + args[0] + ".zip"
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o750); err != nil {
					return fmt.Errorf("output dir: %w", err)
				}
			}
			if err := os.WriteFile(path, body, 0o600); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output zip path (default neuroflow-<id>.zip)")
	return cmd
}

// call sends one request and fails unless the response has status want.
func (o *options) call(method, path string, payload []byte, want int, name string) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, strings.TrimRight(o.addr, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if o.token != "" {
		req.Header.Set("Authorization", "Bearer "+o.token)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != want {
		return nil, fmt.Errorf("%s failed: %s", name, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

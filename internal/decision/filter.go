package decision

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/davidahmann/neuroflow/pkg/types"
)

// StatusAll disables status filtering.
const StatusAll = "all"

// Filter narrows a decision listing. Search is a case-insensitive substring
// match on title and description; the term is used as given, spaces included.
type Filter struct {
	Search string
	Status string
}

func (f Filter) Validate() error {
	if f.Status == "" || f.Status == StatusAll {
		return nil
	}
	if !types.DecisionStatus(f.Status).Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, f.Status)
	}
	return nil
}

// Apply returns the decisions matching f, preserving their order.
func (f Filter) Apply(decisions []types.Decision) []types.Decision {
	fold := cases.Fold()
	needle := fold.String(f.Search)

	out := make([]types.Decision, 0, len(decisions))
	for _, d := range decisions {
		if f.Status != "" && f.Status != StatusAll && string(d.Status) != f.Status {
			continue
		}
		if needle != "" &&
			!strings.Contains(fold.String(d.Title), needle) &&
			!strings.Contains(fold.String(d.Description), needle) {
			continue
		}
		out = append(out, d)
	}
	return out
}

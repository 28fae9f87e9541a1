package decision

import (
	"errors"
	"testing"

	"github.com/davidahmann/neuroflow/pkg/types"
)

func TestFilterApply(t *testing.T) {
	decisions := []types.Decision{
		{ID: "1", Title: "Career Change", Description: "Leave marketing", Status: types.StatusDraft},
		{ID: "2", Title: "Buy a house", Description: "Near the CAREER fair grounds", Status: types.StatusCompleted},
		{ID: "3", Title: "Move abroad", Description: "Straße in Berlin", Status: types.StatusInProgress},
		{ID: "4", Title: "Holiday", CoreQuestion: "career break?", Status: types.StatusDraft},
	}

	cases := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "empty", filter: Filter{}, want: []string{"1", "2", "3", "4"}},
		{name: "all", filter: Filter{Status: StatusAll}, want: []string{"1", "2", "3", "4"}},
		{name: "case insensitive title and description", filter: Filter{Search: "career"}, want: []string{"1", "2"}},
		{name: "status only", filter: Filter{Status: "draft"}, want: []string{"1", "4"}},
		{name: "search and status", filter: Filter{Search: "CAREER", Status: "completed"}, want: []string{"2"}},
		{name: "unicode folding", filter: Filter{Search: "STRASSE"}, want: []string{"3"}},
		{name: "leading space is part of the term", filter: Filter{Search: " career"}, want: []string{"2"}},
		{name: "whitespace search", filter: Filter{Search: "   "}, want: []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.filter.Apply(decisions)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d decisions, want %v", len(got), tc.want)
			}
			for i, d := range got {
				if d.ID != tc.want[i] {
					t.Fatalf("position %d: got %s want %s", i, d.ID, tc.want[i])
				}
			}
		})
	}
}

func TestFilterValidate(t *testing.T) {
	for _, status := range []string{"", "all", "draft", "in_progress", "completed"} {
		if err := (Filter{Status: status}).Validate(); err != nil {
			t.Fatalf("status %q: %v", status, err)
		}
	}
	if err := (Filter{Status: "Draft"}).Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sbenjam1n/lpms/internal/legal"
	"github.com/spf13/cobra"
)

var roleTreeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Show who represents whom in a case as a tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		caseID, _ := cmd.Flags().GetInt64("case")
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		entries, err := s.service().CaseHierarchy(ctx, caseID)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(entries)
		}
		fmt.Print(formatTree(entries))
		return nil
	},
}

// formatTree renders the hierarchy with roots first and representatives
// indented under the role they represent.
func formatTree(entries []legal.HierarchyEntry) string {
	byID := make(map[int64]legal.HierarchyEntry, len(entries))
	children := make(map[int64][]int64)
	var roots []int64
	for _, e := range entries {
		byID[e.ID] = e
	}
	for _, e := range entries {
		if e.Depth == 0 {
			roots = append(roots, e.ID)
			continue
		}
		parent := e.Chain[len(e.Chain)-2]
		children[parent] = append(children[parent], e.ID)
	}
	order := make(map[int64]int, len(entries))
	for i, e := range entries {
		order[e.ID] = i
	}
	for _, ids := range children {
		sort.Slice(ids, func(i, j int) bool { return order[ids[i]] < order[ids[j]] })
	}

	var b strings.Builder
	printed := make(map[int64]bool, len(entries))
	var walk func(id int64, prefix string, last bool)
	walk = func(id int64, prefix string, last bool) {
		e := byID[id]
		connector := "├── "
		next := prefix + "│   "
		if last {
			connector = "└── "
			next = prefix + "    "
		}
		label := fmt.Sprintf("%s (%s, role %d)", e.ContactName, e.Capacity, e.ID)
		if e.GroupKind != legal.GroupNone {
			label += fmt.Sprintf(" [%s]", e.GroupKind)
		}
		b.WriteString(prefix + connector + label + "\n")
		if printed[id] {
			return
		}
		printed[id] = true
		kids := children[id]
		for i, kid := range kids {
			walk(kid, next, i == len(kids)-1)
		}
	}
	for i, id := range roots {
		walk(id, "", i == len(roots)-1)
	}

	var looped []string
	for _, e := range entries {
		if !printed[e.ID] {
			looped = append(looped, fmt.Sprintf("%d", e.ID))
		}
	}
	if len(looped) > 0 {
		fmt.Fprintf(&b, "\nRoles in or under a representation cycle: %s (run: lpms audit validate --case %d)\n",
			strings.Join(looped, ", "), entries[0].CaseID)
	}
	return b.String()
}

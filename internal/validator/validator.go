// Package validator checks the representation graph of a case: the write-time
// cycle check and the case-wide integrity audit with its orphan repair.
package validator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sbenjam1n/lpms/internal/legal"
	"github.com/sbenjam1n/lpms/internal/store"
)

// Validator runs graph checks against a store.
type Validator struct {
	store  store.Store
	logger *log.Logger
}

// New creates a new Validator.
func New(s store.Store, logger *log.Logger) *Validator {
	return &Validator{store: s, logger: logger}
}

// NextFunc returns the role the given role represents. ok is false when the
// chain ends there: no pointer, or a target outside the walk's case.
type NextFunc func(roleID int64) (target int64, ok bool, err error)

// WalkChain follows represents pointers from start and returns the ids it
// visited. It fails with RuleSelfReference when start is the excluded role and
// with RuleCycle the moment a visited id or the excluded id reappears. The
// visited set alone bounds the walk.
func WalkChain(start int64, excluding *int64, next NextFunc) ([]int64, error) {
	if excluding != nil && start == *excluding {
		return nil, legal.Invalid(legal.RuleSelfReference, "role %d cannot represent itself", start)
	}

	visited := make(map[int64]bool)
	path := make([]int64, 0, 8)
	cur := start
	for {
		if visited[cur] {
			return path, legal.Invalid(legal.RuleCycle,
				"representation chain %s returns to role %d", formatChain(path), cur)
		}
		visited[cur] = true
		path = append(path, cur)

		target, ok, err := next(cur)
		if err != nil {
			return path, err
		}
		if !ok {
			return path, nil
		}
		if excluding != nil && target == *excluding {
			return path, legal.Invalid(legal.RuleCycle,
				"role %d would represent itself through %s", *excluding, formatChain(append(path, target)))
		}
		cur = target
	}
}

// ValidateNoCircularReference checks that pointing a role at candidateTargetID
// keeps the case acyclic. excludingRoleID is the role being updated, nil for
// a role that does not exist yet.
func (v *Validator) ValidateNoCircularReference(ctx context.Context, candidateTargetID, caseID int64, excludingRoleID *int64) error {
	_, err := WalkChain(candidateTargetID, excludingRoleID, func(id int64) (int64, bool, error) {
		r, err := v.store.GetRole(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return 0, false, nil
		}
		if err != nil {
			return 0, false, fmt.Errorf("walk representation chain: %w", err)
		}
		if r.CaseID != caseID {
			return 0, false, nil
		}
		target, ok := r.Represents()
		return target, ok, nil
	})
	return err
}

// ValidateHierarchy audits a whole case. Findings never block writes; use
// AuditReport.Err to turn them into an IntegrityRepairNeeded.
func (v *Validator) ValidateHierarchy(ctx context.Context, caseID int64) (legal.AuditReport, error) {
	exists, err := v.store.CaseExists(ctx, caseID)
	if err != nil {
		return legal.AuditReport{}, err
	}
	if !exists {
		return legal.AuditReport{}, legal.NotFound("case", caseID)
	}

	roles, err := v.store.ListRoles(ctx, caseID)
	if err != nil {
		return legal.AuditReport{}, err
	}
	groups, err := v.store.ListGroups(ctx, caseID)
	if err != nil {
		return legal.AuditReport{}, err
	}

	report := legal.AuditReport{
		CaseID:     caseID,
		RolesSeen:  len(roles),
		Violations: make([]legal.Violation, 0),
		CheckedAt:  time.Now().UTC(),
	}

	byID := make(map[int64]legal.Role, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}

	report.Violations = append(report.Violations, findCycles(roles, byID)...)

	dangling, err := v.findDangling(ctx, caseID, roles, byID)
	if err != nil {
		return legal.AuditReport{}, err
	}
	report.Violations = append(report.Violations, dangling...)
	report.Violations = append(report.Violations, checkGroups(roles, groups, byID)...)

	if !report.Passed() {
		v.logger.Debug("hierarchy audit found violations", "case", caseID, "count", len(report.Violations))
	}
	return report, nil
}

// findCycles reports every cycle once, rotated to start at its lowest id.
// Each role has at most one outgoing pointer, so a three-colour walk
// suffices.
func findCycles(roles []legal.Role, byID map[int64]legal.Role) []legal.Violation {
	const (
		white = iota
		grey
		black
	)
	color := make(map[int64]int, len(roles))
	var found []legal.Violation

	for _, r := range roles {
		if color[r.ID] != white {
			continue
		}
		path := []int64{}
		pos := map[int64]int{}
		cur := r.ID
		for {
			if color[cur] == grey {
				found = append(found, cycleViolation(rotateToMin(path[pos[cur]:])))
				break
			}
			if color[cur] == black {
				break
			}
			color[cur] = grey
			pos[cur] = len(path)
			path = append(path, cur)

			target, ok := byID[cur].Represents()
			if !ok {
				break
			}
			if _, inCase := byID[target]; !inCase {
				break
			}
			cur = target
		}
		for _, id := range path {
			color[id] = black
		}
	}
	return found
}

func cycleViolation(cycle []int64) legal.Violation {
	loop := append(append([]int64{}, cycle...), cycle[0])
	return legal.Violation{
		Check:   legal.CheckCycle,
		RoleIDs: cycle,
		Message: fmt.Sprintf("roles %s form a representation cycle", formatChain(loop)),
		Fix:     fmt.Sprintf("Break the cycle by clearing one pointer, e.g.: lpms role update %d --clear-represents", cycle[0]),
	}
}

func rotateToMin(ids []int64) []int64 {
	lo := 0
	for i, id := range ids {
		if id < ids[lo] {
			lo = i
		}
	}
	out := make([]int64, 0, len(ids))
	out = append(out, ids[lo:]...)
	return append(out, ids[:lo]...)
}

// findDangling reports pointers whose target is missing (orphan) or lives in
// another case.
func (v *Validator) findDangling(ctx context.Context, caseID int64, roles []legal.Role, byID map[int64]legal.Role) ([]legal.Violation, error) {
	var found []legal.Violation
	fix := fmt.Sprintf("Run: lpms audit clean --case %d", caseID)
	for _, r := range roles {
		target, ok := r.Represents()
		if !ok {
			continue
		}
		if _, inCase := byID[target]; inCase {
			continue
		}
		other, err := v.store.GetRole(ctx, target)
		switch {
		case errors.Is(err, store.ErrNotFound):
			found = append(found, legal.Violation{
				Check:   legal.CheckOrphan,
				RoleIDs: []int64{r.ID},
				Message: fmt.Sprintf("role %d represents role %d, which no longer exists", r.ID, target),
				Fix:     fix,
			})
		case err != nil:
			return nil, err
		default:
			found = append(found, legal.Violation{
				Check:   legal.CheckCrossCase,
				RoleIDs: []int64{r.ID, target},
				Message: fmt.Sprintf("role %d represents role %d of case %d", r.ID, target, other.CaseID),
				Fix:     fix,
			})
		}
	}
	return found, nil
}

func checkGroups(roles []legal.Role, groups []legal.RepresentationGroup, byID map[int64]legal.Role) []legal.Violation {
	byGroup := make(map[string]legal.RepresentationGroup, len(groups))
	for _, g := range groups {
		byGroup[g.ID] = g
	}
	members := make(map[string][]legal.Role)
	var order []string
	for _, r := range roles {
		if r.GroupID == "" {
			continue
		}
		if _, seen := members[r.GroupID]; !seen {
			order = append(order, r.GroupID)
		}
		members[r.GroupID] = append(members[r.GroupID], r)
	}
	sort.Strings(order)

	var found []legal.Violation
	for _, gid := range order {
		group, known := byGroup[gid]
		if !known {
			found = append(found, legal.Violation{
				Check:   legal.CheckMissingGroup,
				RoleIDs: roleIDs(members[gid]),
				Message: fmt.Sprintf("roles %s carry group %s, which has no group record", formatIDs(roleIDs(members[gid])), gid),
				Fix:     "Import the group with: lpms legacy import --case <case>, or delete the stray roles",
			})
		}

		var primaries, secondaries []legal.Role
		for _, r := range members[gid] {
			switch r.GroupKind {
			case legal.GroupPrimary:
				primaries = append(primaries, r)
			case legal.GroupSecondary:
				secondaries = append(secondaries, r)
			}
		}

		switch {
		case len(primaries) == 0 && len(secondaries) > 0:
			for _, r := range secondaries {
				found = append(found, legal.Violation{
					Check:   legal.CheckSecondaryNoPrimary,
					RoleIDs: []int64{r.ID},
					Message: fmt.Sprintf("role %d is a secondary of group %s, which has no primary", r.ID, gid),
					Fix:     fmt.Sprintf("Recreate the group with: lpms multi create, or detach the role: lpms role update %d --ungroup", r.ID),
				})
			}
		case len(primaries) > 1:
			found = append(found, legal.Violation{
				Check:   legal.CheckMultiplePrimaries,
				RoleIDs: roleIDs(primaries),
				Message: fmt.Sprintf("group %s has %d primaries: %s", gid, len(primaries), formatIDs(roleIDs(primaries))),
				Fix:     "Keep one primary and delete the others with: lpms role delete <id>",
			})
		}

		for _, r := range primaries {
			if target, ok := r.Represents(); ok {
				found = append(found, legal.Violation{
					Check:   legal.CheckPrimaryRepresents,
					RoleIDs: []int64{r.ID},
					Message: fmt.Sprintf("primary role %d of group %s represents role %d directly", r.ID, gid, target),
					Fix:     fmt.Sprintf("Run: lpms role update %d --clear-represents", r.ID),
				})
			}
		}
		for _, r := range secondaries {
			target, ok := r.Represents()
			if !ok {
				found = append(found, legal.Violation{
					Check:   legal.CheckSecondaryNoTarget,
					RoleIDs: []int64{r.ID},
					Message: fmt.Sprintf("secondary role %d of group %s represents nobody", r.ID, gid),
					Fix:     "Rebuild the group with: lpms multi update <primary> <role ids>",
				})
				continue
			}
			if t, inCase := byID[target]; inCase && !t.Capacity.IsParty() {
				found = append(found, legal.Violation{
					Check:   legal.CheckGroupTargetNotParty,
					RoleIDs: []int64{r.ID, target},
					Message: fmt.Sprintf("secondary role %d of group %s represents role %d, which is %s and not a party", r.ID, gid, target, t.Capacity),
					Fix:     fmt.Sprintf("Restore the capacity of role %d or rebuild the group with: lpms multi update <primary> <role ids>", target),
				})
			}
		}
		if known {
			for _, r := range members[gid] {
				if r.ContactID != group.ContactID {
					found = append(found, legal.Violation{
						Check:   legal.CheckGroupContactMismatch,
						RoleIDs: []int64{r.ID},
						Message: fmt.Sprintf("role %d belongs to contact %d but group %s belongs to contact %d", r.ID, r.ContactID, gid, group.ContactID),
						Fix:     fmt.Sprintf("Detach the role: lpms role update %d --ungroup", r.ID),
					})
				}
			}
		}
	}
	return found
}

// CleanOrphanedRepresentations clears every represents pointer in the case
// whose target is not a role of the same case. It returns the repaired role
// ids and is safe to repeat.
func (v *Validator) CleanOrphanedRepresentations(ctx context.Context, caseID int64) ([]int64, error) {
	var cleaned []int64
	err := v.store.InTx(ctx, func(tx store.Store) error {
		if err := tx.LockCase(ctx, caseID); err != nil {
			return err
		}
		ids, err := tx.ClearOrphanedRepresents(ctx, caseID)
		if err != nil {
			return err
		}
		cleaned = ids
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(cleaned) > 0 {
		v.logger.Info("cleaned orphaned representations", "case", caseID, "roles", formatIDs(cleaned))
	}
	return cleaned, nil
}

func roleIDs(roles []legal.Role) []int64 {
	ids := make([]int64, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID)
	}
	return ids
}

func formatChain(ids []int64) string {
	return joinIDs(ids, " -> ")
}

func formatIDs(ids []int64) string {
	return joinIDs(ids, ", ")
}

func joinIDs(ids []int64, sep string) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, sep)
}

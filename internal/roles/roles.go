package roles

import (
	"context"
	"strings"

	"github.com/sbenjam1n/lpms/internal/legal"
	"github.com/sbenjam1n/lpms/internal/queue"
	"github.com/sbenjam1n/lpms/internal/store"
)

// AddRoleInput describes a new role.
type AddRoleInput struct {
	CaseID            int64          `validate:"gt=0"`
	ContactID         int64          `validate:"gt=0"`
	Capacity          legal.Capacity `validate:"required,max=100"`
	SecondaryCapacity string         `validate:"max=100"`
	RepresentsRoleID  *int64         `validate:"omitempty,gt=0"`
	BankDetails       string         `validate:"max=500"`
	Notes             string
}

// RoleUpdate lists the fields to change; nil fields are left untouched.
type RoleUpdate struct {
	Capacity          *legal.Capacity
	SecondaryCapacity *string
	RepresentsRoleID  *int64
	// ClearRepresents removes the represents pointer.
	ClearRepresents bool
	BankDetails     *string
	Notes           *string
	// Ungroup detaches a secondary from its group.
	Ungroup bool
}

// AddRole validates and inserts a role. Attorney capacities may repeat for
// the same contact and case as long as each copy represents a different
// role; any other capacity may appear only once.
func (s *Service) AddRole(ctx context.Context, in AddRoleInput) (int64, error) {
	in.Capacity = legal.ParseCapacity(string(in.Capacity))
	in.SecondaryCapacity = strings.TrimSpace(in.SecondaryCapacity)
	if err := s.checkInput(in); err != nil {
		return 0, err
	}
	if !in.Capacity.Known() {
		s.logger.Warn("unrecognized capacity", "capacity", in.Capacity, "case", in.CaseID, "contact", in.ContactID)
	}

	var id int64
	err := s.store.InTx(ctx, func(tx store.Store) error {
		if err := tx.LockCase(ctx, in.CaseID); err != nil {
			return err
		}
		if err := requireCase(ctx, tx, in.CaseID); err != nil {
			return err
		}
		if _, err := requireContact(ctx, tx, in.ContactID); err != nil {
			return err
		}
		if err := s.checkDuplicate(ctx, tx, in.CaseID, in.ContactID, in.Capacity, in.RepresentsRoleID, 0); err != nil {
			return err
		}
		if in.RepresentsRoleID != nil {
			if err := s.checkTarget(ctx, tx, in.CaseID, *in.RepresentsRoleID, nil); err != nil {
				return err
			}
		}

		var err error
		id, err = tx.InsertRole(ctx, legal.Role{
			CaseID:            in.CaseID,
			ContactID:         in.ContactID,
			Capacity:          in.Capacity,
			SecondaryCapacity: in.SecondaryCapacity,
			RepresentsRoleID:  in.RepresentsRoleID,
			BankDetails:       in.BankDetails,
			Notes:             in.Notes,
		})
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("role added", "role", id, "case", in.CaseID, "contact", in.ContactID, "capacity", in.Capacity)
	s.publish(ctx, queue.RoleEvent{CaseID: in.CaseID, RoleID: id, Action: queue.ActionRoleAdded})
	return id, nil
}

// checkDuplicate enforces the one-role-per-capacity rule. self is the role
// being updated, 0 on insert.
func (s *Service) checkDuplicate(ctx context.Context, tx store.Store, caseID, contactID int64, capacity legal.Capacity, represents *int64, self int64) error {
	existing, err := tx.FindContactRoles(ctx, caseID, contactID, capacity)
	if err != nil {
		return err
	}
	for _, r := range existing {
		if r.ID == self {
			continue
		}
		if !capacity.IsAttorney() {
			return legal.Invalid(legal.RuleDuplicateRole,
				"contact %d already holds role %d as %s in case %d", contactID, r.ID, capacity, caseID)
		}
		if represents != nil && r.RepresentsRoleID != nil && *r.RepresentsRoleID == *represents {
			return legal.Invalid(legal.RuleDuplicateRole,
				"contact %d already represents role %d as %s through role %d", contactID, *represents, capacity, r.ID)
		}
	}
	return nil
}

// checkTarget validates a represents pointer: the target exists, lives in the
// same case and does not close a cycle.
func (s *Service) checkTarget(ctx context.Context, tx store.Store, caseID, targetID int64, excluding *int64) error {
	if excluding != nil && targetID == *excluding {
		return legal.Invalid(legal.RuleSelfReference, "role %d cannot represent itself", targetID)
	}
	target, err := requireRole(ctx, tx, targetID)
	if err != nil {
		return err
	}
	if target.CaseID != caseID {
		return legal.Invalid(legal.RuleCrossCase,
			"role %d belongs to case %d, not case %d", targetID, target.CaseID, caseID)
	}
	return s.graph(tx).ValidateNoCircularReference(ctx, targetID, caseID, excluding)
}

// UpdateRole applies u to a role and returns the stored result.
func (s *Service) UpdateRole(ctx context.Context, roleID int64, u RoleUpdate) (legal.Role, error) {
	if u.ClearRepresents && u.RepresentsRoleID != nil {
		return legal.Role{}, legal.Invalid(legal.RuleInvalidInput, "cannot set and clear the represents pointer at once")
	}
	if u.Capacity != nil {
		c := legal.ParseCapacity(string(*u.Capacity))
		if c == "" {
			return legal.Role{}, legal.Invalid(legal.RuleInvalidInput, "capacity must not be empty")
		}
		u.Capacity = &c
	}

	var updated legal.Role
	err := s.store.InTx(ctx, func(tx store.Store) error {
		current, err := lockRole(ctx, tx, roleID)
		if err != nil {
			return err
		}
		next := current

		if u.Ungroup {
			if current.IsPrimary() {
				return legal.Invalid(legal.RuleGroupMember,
					"role %d is the primary of group %s; delete it or replace the group instead", roleID, current.GroupID)
			}
			next.GroupID = ""
			next.GroupKind = legal.GroupNone
		}

		if u.Capacity != nil && *u.Capacity != current.Capacity {
			if next.IsPrimary() || next.IsSecondary() {
				if !u.Capacity.IsAttorney() {
					return legal.Invalid(legal.RuleNotAttorney,
						"role %d belongs to group %s and must keep an attorney capacity", roleID, next.GroupID)
				}
			}
			if current.Capacity.IsParty() && !u.Capacity.IsParty() {
				if err := checkNotGroupTarget(ctx, tx, current); err != nil {
					return err
				}
			}
			if !u.Capacity.Known() {
				s.logger.Warn("unrecognized capacity", "capacity", *u.Capacity, "case", current.CaseID, "role", roleID)
			}
			next.Capacity = *u.Capacity
		}

		switch {
		case u.ClearRepresents:
			if next.IsSecondary() {
				return legal.Invalid(legal.RuleGroupMember,
					"role %d is a secondary of group %s; ungroup it before clearing its pointer", roleID, next.GroupID)
			}
			next.RepresentsRoleID = nil
		case u.RepresentsRoleID != nil:
			if next.IsPrimary() || next.IsSecondary() {
				return legal.Invalid(legal.RuleGroupMember,
					"role %d belongs to group %s; use the group update instead", roleID, next.GroupID)
			}
			target := *u.RepresentsRoleID
			if err := s.checkTarget(ctx, tx, current.CaseID, target, &roleID); err != nil {
				return err
			}
			next.RepresentsRoleID = &target
		}

		if next.Capacity != current.Capacity || !sameTarget(next.RepresentsRoleID, current.RepresentsRoleID) {
			if err := s.checkDuplicate(ctx, tx, current.CaseID, current.ContactID, next.Capacity, next.RepresentsRoleID, roleID); err != nil {
				return err
			}
		}

		if v := trimmed(u.SecondaryCapacity); v != nil {
			next.SecondaryCapacity = *v
		}
		if u.BankDetails != nil {
			next.BankDetails = *u.BankDetails
		}
		if u.Notes != nil {
			next.Notes = *u.Notes
		}

		if err := tx.UpdateRole(ctx, next); err != nil {
			return err
		}
		updated, err = tx.GetRole(ctx, roleID)
		return err
	})
	if err != nil {
		return legal.Role{}, err
	}

	s.logger.Info("role updated", "role", roleID, "case", updated.CaseID)
	s.publish(ctx, queue.RoleEvent{CaseID: updated.CaseID, RoleID: roleID, Action: queue.ActionRoleUpdated, GroupID: updated.GroupID})
	return updated, nil
}

// checkNotGroupTarget refuses to demote a party that a group secondary
// represents.
func checkNotGroupTarget(ctx context.Context, tx store.Store, role legal.Role) error {
	roles, err := tx.ListRoles(ctx, role.CaseID)
	if err != nil {
		return err
	}
	for _, r := range roles {
		if !r.IsSecondary() {
			continue
		}
		if target, ok := r.Represents(); ok && target == role.ID {
			return legal.Invalid(legal.RuleRepresentedByGroup,
				"role %d is represented by role %d of group %s and must stay a party", role.ID, r.ID, r.GroupID)
		}
	}
	return nil
}

// lockRole takes the case lock of a role and then reads the role, so the
// returned row reflects every writer that held the lock before.
func lockRole(ctx context.Context, tx store.Store, roleID int64) (legal.Role, error) {
	r, err := requireRole(ctx, tx, roleID)
	if err != nil {
		return legal.Role{}, err
	}
	if err := tx.LockCase(ctx, r.CaseID); err != nil {
		return legal.Role{}, err
	}
	return requireRole(ctx, tx, roleID)
}

func sameTarget(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// DeleteRole removes a role. Roles pointing at it lose their pointer; if it
// heads a group, the secondaries survive as plain representations and the
// group record goes away.
func (s *Service) DeleteRole(ctx context.Context, roleID int64) error {
	var deleted legal.Role
	err := s.store.InTx(ctx, func(tx store.Store) error {
		role, err := lockRole(ctx, tx, roleID)
		if err != nil {
			return err
		}
		if err := s.dismantle(ctx, tx, role); err != nil {
			return err
		}
		ok, err := tx.DeleteRole(ctx, roleID)
		if err != nil {
			return err
		}
		if !ok {
			return legal.NotFound("role", roleID)
		}
		deleted = role
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("role deleted", "role", roleID, "case", deleted.CaseID, "group", deleted.GroupID)
	s.publish(ctx, queue.RoleEvent{CaseID: deleted.CaseID, RoleID: roleID, Action: queue.ActionRoleDeleted, GroupID: deleted.GroupID})
	return nil
}

// dismantle detaches everything that depends on role before it is deleted.
func (s *Service) dismantle(ctx context.Context, tx store.Store, role legal.Role) error {
	cleared, err := tx.ClearRepresentsTo(ctx, role.ID)
	if err != nil {
		return err
	}
	if cleared > 0 {
		s.logger.Debug("cleared inbound pointers", "role", role.ID, "count", cleared)
	}
	if !role.IsPrimary() {
		return nil
	}
	released, err := tx.ClearGroupMembers(ctx, role.GroupID)
	if err != nil {
		return err
	}
	s.logger.Debug("group dissolved", "group", role.GroupID, "members", released)
	return tx.DeleteGroup(ctx, role.GroupID)
}

// GetRole returns one role.
func (s *Service) GetRole(ctx context.Context, roleID int64) (legal.Role, error) {
	return requireRole(ctx, s.store, roleID)
}

// ListCaseRoles returns the roles of a case with their contact fields, in
// capacity-priority order and then by name.
func (s *Service) ListCaseRoles(ctx context.Context, caseID int64) ([]legal.CaseRole, error) {
	if err := requireCase(ctx, s.store, caseID); err != nil {
		return nil, err
	}
	return s.store.ListCaseRoles(ctx, caseID)
}

// CaseHierarchy annotates each role of a case with its representation depth
// and its chain of represented roles, root first. A role whose chain loops
// stops at the first repeated id.
func (s *Service) CaseHierarchy(ctx context.Context, caseID int64) ([]legal.HierarchyEntry, error) {
	roles, err := s.ListCaseRoles(ctx, caseID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]legal.CaseRole, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}

	entries := make([]legal.HierarchyEntry, 0, len(roles))
	for _, r := range roles {
		chain := []int64{r.ID}
		seen := map[int64]bool{r.ID: true}
		cur := r
		for {
			target, ok := cur.Represents()
			if !ok {
				break
			}
			next, inCase := byID[target]
			if !inCase || seen[target] {
				break
			}
			seen[target] = true
			chain = append(chain, target)
			cur = next
		}
		for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
			chain[i], chain[j] = chain[j], chain[i]
		}
		entries = append(entries, legal.HierarchyEntry{CaseRole: r, Depth: len(chain) - 1, Chain: chain})
	}
	return entries, nil
}

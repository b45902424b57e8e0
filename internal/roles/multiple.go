package roles

import (
	"context"
	"errors"
	"strings"

	"github.com/sbenjam1n/lpms/internal/legal"
	"github.com/sbenjam1n/lpms/internal/queue"
	"github.com/sbenjam1n/lpms/internal/store"
)

// RoleTemplate carries the fields shared by the primary and the secondaries
// of a group. Capacity defaults to Abogado.
type RoleTemplate struct {
	Capacity          legal.Capacity `validate:"max=100"`
	SecondaryCapacity string         `validate:"max=100"`
	BankDetails       string         `validate:"max=500"`
	Notes             string
}

// CreateMultipleRepresentations makes contactID the attorney of every role in
// representedIDs at once: one primary role plus one secondary per represented
// party, all tied to a fresh group. Nothing is written unless every party
// passes validation.
func (s *Service) CreateMultipleRepresentations(ctx context.Context, contactID, caseID int64, tmpl RoleTemplate, representedIDs []int64) (legal.MultipleRepresentation, error) {
	var out legal.MultipleRepresentation
	err := s.store.InTx(ctx, func(tx store.Store) error {
		var err error
		out, err = s.createGroup(ctx, tx, contactID, caseID, tmpl, representedIDs)
		return err
	})
	if err != nil {
		return legal.MultipleRepresentation{}, err
	}

	s.logger.Info("multiple representation created", "group", out.GroupID, "case", caseID, "contact", contactID, "parties", out.Total)
	s.publish(ctx, queue.RoleEvent{CaseID: caseID, RoleID: out.PrimaryRoleID, Action: queue.ActionGroupCreated, GroupID: out.GroupID})
	return out, nil
}

func (s *Service) normalizeTemplate(tmpl RoleTemplate) (RoleTemplate, error) {
	tmpl.Capacity = legal.ParseCapacity(string(tmpl.Capacity))
	if tmpl.Capacity == "" {
		tmpl.Capacity = legal.Abogado
	}
	tmpl.SecondaryCapacity = strings.TrimSpace(tmpl.SecondaryCapacity)
	if err := s.checkInput(tmpl); err != nil {
		return tmpl, err
	}
	if !tmpl.Capacity.IsAttorney() {
		return tmpl, legal.Invalid(legal.RuleNotAttorney,
			"a multiple representation needs an attorney capacity, got %s", tmpl.Capacity)
	}
	return tmpl, nil
}

func checkRepresentedIDs(ids []int64) error {
	if len(ids) < 2 {
		return legal.Invalid(legal.RuleGroupTooSmall,
			"a multiple representation needs at least 2 parties, got %d; use a single represents pointer instead", len(ids))
	}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return legal.Invalid(legal.RuleDuplicateRepresentee, "role %d is listed more than once", id)
		}
		seen[id] = true
	}
	return nil
}

// createGroup validates everything first, then writes the group, the
// primary and the secondaries through tx. On the replace path the old
// members are already gone, so they never count as duplicates.
func (s *Service) createGroup(ctx context.Context, tx store.Store, contactID, caseID int64, tmpl RoleTemplate, ids []int64) (legal.MultipleRepresentation, error) {
	if err := checkRepresentedIDs(ids); err != nil {
		return legal.MultipleRepresentation{}, err
	}
	tmpl, err := s.normalizeTemplate(tmpl)
	if err != nil {
		return legal.MultipleRepresentation{}, err
	}

	if err := tx.LockCase(ctx, caseID); err != nil {
		return legal.MultipleRepresentation{}, err
	}
	if err := requireCase(ctx, tx, caseID); err != nil {
		return legal.MultipleRepresentation{}, err
	}
	if _, err := requireContact(ctx, tx, contactID); err != nil {
		return legal.MultipleRepresentation{}, err
	}

	names := newContactNames(tx)
	parties := make([]legal.RepresentedParty, 0, len(ids))
	for _, id := range ids {
		r, err := requireRole(ctx, tx, id)
		if err != nil {
			return legal.MultipleRepresentation{}, err
		}
		if r.CaseID != caseID {
			return legal.MultipleRepresentation{}, legal.Invalid(legal.RuleCrossCase,
				"role %d belongs to case %d, not case %d", id, r.CaseID, caseID)
		}
		if !r.Capacity.IsParty() {
			return legal.MultipleRepresentation{}, legal.Invalid(legal.RuleInvalidRepresentee,
				"role %d is %s; only Actor, Demandado and Tercero can be represented", id, r.Capacity)
		}
		if r.ContactID == contactID {
			return legal.MultipleRepresentation{}, legal.Invalid(legal.RuleRepresentsOwnContact,
				"role %d belongs to contact %d, who cannot represent itself", id, contactID)
		}
		if err := s.graph(tx).ValidateNoCircularReference(ctx, id, caseID, nil); err != nil {
			return legal.MultipleRepresentation{}, err
		}
		target := id
		if err := s.checkDuplicate(ctx, tx, caseID, contactID, tmpl.Capacity, &target, 0); err != nil {
			return legal.MultipleRepresentation{}, err
		}
		name, err := names.get(ctx, r.ContactID)
		if err != nil {
			return legal.MultipleRepresentation{}, err
		}
		parties = append(parties, legal.RepresentedParty{RoleID: id, Name: name, Capacity: r.Capacity})
	}

	gid, err := s.NewGroupID(contactID, caseID)
	if err != nil {
		return legal.MultipleRepresentation{}, err
	}
	if err := tx.InsertGroup(ctx, legal.RepresentationGroup{
		ID:        gid,
		CaseID:    caseID,
		ContactID: contactID,
		Parties:   parties,
	}); err != nil {
		return legal.MultipleRepresentation{}, err
	}

	base := legal.Role{
		CaseID:            caseID,
		ContactID:         contactID,
		Capacity:          tmpl.Capacity,
		SecondaryCapacity: tmpl.SecondaryCapacity,
		BankDetails:       tmpl.BankDetails,
		GroupID:           gid,
	}

	primary := base
	primary.Notes = tmpl.Notes
	primary.GroupKind = legal.GroupPrimary
	primaryID, err := tx.InsertRole(ctx, primary)
	if err != nil {
		return legal.MultipleRepresentation{}, err
	}
	if err := tx.SetGroupPrimary(ctx, gid, primaryID); err != nil {
		return legal.MultipleRepresentation{}, err
	}

	for i := range parties {
		shadow := base
		target := parties[i].RoleID
		shadow.RepresentsRoleID = &target
		shadow.GroupKind = legal.GroupSecondary
		shadowID, err := tx.InsertRole(ctx, shadow)
		if err != nil {
			return legal.MultipleRepresentation{}, err
		}
		parties[i].ShadowRoleID = shadowID
	}

	return legal.MultipleRepresentation{
		PrimaryRoleID: primaryID,
		GroupID:       gid,
		Total:         len(parties),
		Parties:       parties,
	}, nil
}

// GetMultipleRepresentations describes what roleID represents. roleID may be
// the primary or any secondary of a group; for an ungrouped role the result
// is its single represents target, or nothing.
func (s *Service) GetMultipleRepresentations(ctx context.Context, roleID int64) (legal.RepresentationInfo, error) {
	role, err := requireRole(ctx, s.store, roleID)
	if err != nil {
		return legal.RepresentationInfo{}, err
	}
	names := newContactNames(s.store)
	lawyer, err := names.get(ctx, role.ContactID)
	if err != nil {
		return legal.RepresentationInfo{}, err
	}
	info := legal.RepresentationInfo{RoleID: roleID, Kind: legal.RepresentationNone, LawyerName: lawyer}

	if role.GroupID != "" {
		parties, _, err := s.groupParties(ctx, s.store, names, role.GroupID, role.CaseID)
		if err != nil {
			return legal.RepresentationInfo{}, err
		}
		info.Kind = legal.RepresentationMultiple
		info.IsMultiple = true
		info.GroupID = role.GroupID
		info.Parties = parties
		info.Total = len(parties)
		return info, nil
	}

	target, ok := role.Represents()
	if !ok {
		return info, nil
	}
	party, found, err := s.partyOf(ctx, s.store, names, target, role.CaseID)
	if err != nil {
		return legal.RepresentationInfo{}, err
	}
	if !found {
		return info, nil
	}
	info.Kind = legal.RepresentationSimple
	info.Parties = []legal.RepresentedParty{party}
	info.Total = 1
	return info, nil
}

// partyOf describes the role a pointer targets, if it is a role of the case.
func (s *Service) partyOf(ctx context.Context, st store.Store, names *contactNames, roleID, caseID int64) (legal.RepresentedParty, bool, error) {
	r, err := requireRole(ctx, st, roleID)
	if legal.IsNotFound(err) {
		return legal.RepresentedParty{}, false, nil
	}
	if err != nil {
		return legal.RepresentedParty{}, false, err
	}
	if r.CaseID != caseID {
		return legal.RepresentedParty{}, false, nil
	}
	name, err := names.get(ctx, r.ContactID)
	if err != nil {
		return legal.RepresentedParty{}, false, err
	}
	return legal.RepresentedParty{RoleID: r.ID, Name: name, Capacity: r.Capacity}, true, nil
}

// groupParties derives the parties of a group from its secondaries. When no
// secondary row survives it falls back to the snapshot stored with the
// group and reports fromAudit.
func (s *Service) groupParties(ctx context.Context, st store.Store, names *contactNames, groupID string, caseID int64) ([]legal.RepresentedParty, bool, error) {
	members, err := st.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, false, err
	}

	parties := make([]legal.RepresentedParty, 0, len(members))
	secondaries := 0
	for _, m := range members {
		if !m.IsSecondary() {
			continue
		}
		secondaries++
		target, ok := m.Represents()
		if !ok {
			continue
		}
		party, found, err := s.partyOf(ctx, st, names, target, caseID)
		if err != nil {
			return nil, false, err
		}
		if !found {
			continue
		}
		party.ShadowRoleID = m.ID
		parties = append(parties, party)
	}
	if secondaries > 0 {
		return parties, false, nil
	}

	group, err := st.GetGroup(ctx, groupID)
	if errors.Is(err, store.ErrNotFound) {
		return parties, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(group.Parties) == 0 {
		return parties, false, nil
	}
	return group.Parties, true, nil
}

// UpdateMultipleRepresentations replaces the group headed by primaryRoleID
// with a new group over newIDs. The old group is removed and the new one
// created in the same transaction, so a failed recreation keeps the old one.
func (s *Service) UpdateMultipleRepresentations(ctx context.Context, primaryRoleID int64, newIDs []int64) (legal.MultipleRepresentation, error) {
	var out legal.MultipleRepresentation
	var old legal.Role
	err := s.store.InTx(ctx, func(tx store.Store) error {
		var err error
		old, err = lockRole(ctx, tx, primaryRoleID)
		if err != nil {
			return err
		}
		if !old.IsPrimary() {
			return legal.Invalid(legal.RuleNotPrimary, "role %d is not the primary of a group", primaryRoleID)
		}

		members, err := tx.ListGroupMembers(ctx, old.GroupID)
		if err != nil {
			return err
		}
		for _, m := range members {
			if _, err := tx.ClearRepresentsTo(ctx, m.ID); err != nil {
				return err
			}
			if _, err := tx.DeleteRole(ctx, m.ID); err != nil {
				return err
			}
		}
		if err := tx.DeleteGroup(ctx, old.GroupID); err != nil {
			return err
		}

		out, err = s.createGroup(ctx, tx, old.ContactID, old.CaseID, RoleTemplate{
			Capacity:          old.Capacity,
			SecondaryCapacity: old.SecondaryCapacity,
			BankDetails:       old.BankDetails,
			Notes:             old.Notes,
		}, newIDs)
		return err
	})
	if err != nil {
		return legal.MultipleRepresentation{}, err
	}

	s.logger.Info("multiple representation replaced", "old_group", old.GroupID, "group", out.GroupID, "case", old.CaseID, "parties", out.Total)
	s.publish(ctx, queue.RoleEvent{CaseID: old.CaseID, RoleID: out.PrimaryRoleID, Action: queue.ActionGroupReplaced, GroupID: out.GroupID})
	return out, nil
}

// DetectMultipleRepresentationsInCase lists every group of a case that still
// has a primary, with the parties derived from its secondaries.
func (s *Service) DetectMultipleRepresentationsInCase(ctx context.Context, caseID int64) ([]legal.CaseGroup, error) {
	if err := requireCase(ctx, s.store, caseID); err != nil {
		return nil, err
	}
	groups, err := s.store.ListGroups(ctx, caseID)
	if err != nil {
		return nil, err
	}
	roles, err := s.store.ListRoles(ctx, caseID)
	if err != nil {
		return nil, err
	}
	primaries := make(map[string]legal.Role)
	for _, r := range roles {
		if r.IsPrimary() {
			if _, dup := primaries[r.GroupID]; !dup {
				primaries[r.GroupID] = r
			}
		}
	}

	names := newContactNames(s.store)
	out := make([]legal.CaseGroup, 0, len(groups))
	for _, g := range groups {
		primary, ok := primaries[g.ID]
		if !ok {
			s.logger.Debug("group without primary skipped", "group", g.ID, "case", caseID)
			continue
		}
		lawyer, err := names.get(ctx, g.ContactID)
		if err != nil {
			return nil, err
		}
		parties, fromAudit, err := s.groupParties(ctx, s.store, names, g.ID, caseID)
		if err != nil {
			return nil, err
		}
		out = append(out, legal.CaseGroup{
			GroupID:       g.ID,
			ContactID:     g.ContactID,
			LawyerName:    lawyer,
			PrimaryRoleID: primary.ID,
			Parties:       parties,
			FromAudit:     fromAudit,
		})
	}
	return out, nil
}

package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/sbenjam1n/lpms/internal/legacy"
	"github.com/sbenjam1n/lpms/internal/legal"
	"github.com/sbenjam1n/lpms/internal/queue"
	"github.com/sbenjam1n/lpms/internal/store"
)

// ImportResult reports what ImportLegacyGroups did.
type ImportResult struct {
	Imported []legacy.Group `json:"imported"`
	Skipped  []string       `json:"skipped,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// ScanLegacyGroups reads the legacy notes markers of a case without writing.
func (s *Service) ScanLegacyGroups(ctx context.Context, caseID int64) ([]legacy.Group, []string, error) {
	if err := requireCase(ctx, s.store, caseID); err != nil {
		return nil, nil, err
	}
	roles, err := s.store.ListRoles(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	groups, warnings := legacy.ScanRoles(roles)
	return groups, warnings, nil
}

// ImportLegacyGroups turns the notes markers of a case into group records:
// each group gets its row, its members get the group columns, and the
// markers are stripped from their notes. Groups already on record are
// skipped, so the import can be repeated.
func (s *Service) ImportLegacyGroups(ctx context.Context, caseID int64) (ImportResult, error) {
	var result ImportResult
	err := s.store.InTx(ctx, func(tx store.Store) error {
		result = ImportResult{}
		if err := tx.LockCase(ctx, caseID); err != nil {
			return err
		}
		if err := requireCase(ctx, tx, caseID); err != nil {
			return err
		}
		roles, err := tx.ListRoles(ctx, caseID)
		if err != nil {
			return err
		}
		byID := make(map[int64]legal.Role, len(roles))
		for _, r := range roles {
			byID[r.ID] = r
		}

		groups, warnings := legacy.ScanRoles(roles)
		result.Warnings = warnings
		for _, g := range groups {
			reason, err := s.importGroup(ctx, tx, g, byID)
			if err != nil {
				return err
			}
			if reason != "" {
				result.Skipped = append(result.Skipped, reason)
				continue
			}
			result.Imported = append(result.Imported, g)
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}

	for _, g := range result.Imported {
		s.logger.Info("legacy group imported", "group", g.ID, "case", caseID, "secondaries", len(g.SecondaryRoleIDs))
		s.publish(ctx, queue.RoleEvent{CaseID: caseID, RoleID: g.PrimaryRoleID, Action: queue.ActionLegacyImported, GroupID: g.ID})
	}
	for _, w := range result.Warnings {
		s.logger.Warn("legacy marker", "case", caseID, "detail", w)
	}
	return result, nil
}

// importGroup writes one group. A non-empty reason means it was skipped.
func (s *Service) importGroup(ctx context.Context, tx store.Store, g legacy.Group, byID map[int64]legal.Role) (string, error) {
	_, err := tx.GetGroup(ctx, g.ID)
	if err == nil {
		return fmt.Sprintf("group %s already imported", g.ID), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	memberIDs := append([]int64{g.PrimaryRoleID}, g.SecondaryRoleIDs...)
	for _, id := range memberIDs {
		if r := byID[id]; r.GroupID != "" && r.GroupID != g.ID {
			return fmt.Sprintf("group %s: role %d already belongs to group %s", g.ID, id, r.GroupID), nil
		}
	}

	if err := tx.InsertGroup(ctx, legal.RepresentationGroup{
		ID:        g.ID,
		CaseID:    g.CaseID,
		ContactID: g.ContactID,
		Parties:   g.Parties,
	}); err != nil {
		return "", err
	}

	for i, id := range memberIDs {
		r := byID[id]
		r.GroupID = g.ID
		r.GroupKind = legal.GroupSecondary
		if i == 0 {
			r.GroupKind = legal.GroupPrimary
		}
		r.Notes = legacy.StripMarkers(r.Notes)
		if err := tx.UpdateRole(ctx, r); err != nil {
			return "", err
		}
	}
	if err := tx.SetGroupPrimary(ctx, g.ID, g.PrimaryRoleID); err != nil {
		return "", err
	}
	return "", nil
}

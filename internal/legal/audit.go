package legal

import (
	"fmt"
	"strings"
	"time"
)

// Audit check names.
const (
	CheckCycle                = "cycle"
	CheckOrphan               = "orphan"
	CheckCrossCase            = "cross_case"
	CheckSecondaryNoPrimary   = "secondary_without_primary"
	CheckSecondaryNoTarget    = "secondary_without_represents"
	CheckPrimaryRepresents    = "primary_with_represents"
	CheckMultiplePrimaries    = "multiple_primaries"
	CheckGroupContactMismatch = "group_contact_mismatch"
	CheckMissingGroup         = "missing_group"
	CheckGroupTargetNotParty  = "group_target_not_party"
)

// Violation describes a single audit finding.
type Violation struct {
	Check   string  `json:"check"`
	RoleIDs []int64 `json:"role_ids"`
	Message string  `json:"message"`
	Fix     string  `json:"fix,omitempty"` // MANDATORY for every finding
}

// AuditReport is the outcome of a case-wide integrity audit.
type AuditReport struct {
	CaseID     int64       `json:"case_id"`
	RolesSeen  int         `json:"roles_seen"`
	Violations []Violation `json:"violations"`
	CheckedAt  time.Time   `json:"checked_at"`
}

// Passed reports whether the audit found nothing.
func (r AuditReport) Passed() bool {
	return len(r.Violations) == 0
}

// Err returns an IntegrityRepairNeeded when the audit found violations.
func (r AuditReport) Err() error {
	if r.Passed() {
		return nil
	}
	return &IntegrityRepairNeeded{CaseID: r.CaseID, Violations: r.Violations}
}

// Lines renders the findings as human-readable descriptions.
func (r AuditReport) Lines() []string {
	lines := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		line := fmt.Sprintf("[%s] %s", v.Check, v.Message)
		if v.Fix != "" {
			line += "\n    Fix: " + v.Fix
		}
		lines = append(lines, line)
	}
	return lines
}

// Summary renders a representation the way documents phrase it, e.g.
// "Dra. Gómez en representación de Juan Pérez (Actor) y María López (Demandado)".
func (i RepresentationInfo) Summary() string {
	if i.Kind == RepresentationNone || len(i.Parties) == 0 {
		return fmt.Sprintf("%s sin representación registrada", i.LawyerName)
	}
	names := make([]string, 0, len(i.Parties))
	for _, p := range i.Parties {
		names = append(names, fmt.Sprintf("%s (%s)", p.Name, p.Capacity))
	}
	return fmt.Sprintf("%s en representación de %s", i.LawyerName, joinSpanish(names))
}

func joinSpanish(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " y " + items[len(items)-1]
}

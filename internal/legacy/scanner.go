// Package legacy reads the multi-representation markers older versions of the
// system embedded in role notes, so they can be moved into real group records.
package legacy

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sbenjam1n/lpms/internal/legal"
)

const (
	markerOpen   = "[REPRESENTACION_MULTIPLE:"
	markerClose  = "]"
	auditHeading = "Representa a:"
)

// Marker is one group marker found in a notes field.
type Marker struct {
	Kind    legal.GroupKind
	GroupID string
	Line    int
}

// Group is a multi-representation group reconstructed from notes.
type Group struct {
	ID               string
	CaseID           int64
	ContactID        int64
	PrimaryRoleID    int64
	SecondaryRoleIDs []int64
	// Parties comes from the audit lines of the primary's notes.
	Parties []legal.RepresentedParty
}

// FormatMarker renders the notes marker for a group member.
func FormatMarker(kind legal.GroupKind, groupID string) string {
	return fmt.Sprintf("%s%s:%s%s", markerOpen, strings.ToUpper(string(kind)), groupID, markerClose)
}

// FormatAuditLine renders one represented party the way primaries listed them.
func FormatAuditLine(p legal.RepresentedParty) string {
	return fmt.Sprintf("- %s (%s, ID: %d)", p.Name, p.Capacity, p.RoleID)
}

// ParseNotes returns the markers and audit lines of one notes field.
func ParseNotes(notes string) ([]Marker, []legal.RepresentedParty) {
	var markers []Marker
	var parties []legal.RepresentedParty

	scanner := bufio.NewScanner(strings.NewReader(notes))
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if kind, gid, ok := extractMarker(line); ok {
			markers = append(markers, Marker{Kind: kind, GroupID: gid, Line: lineNum})
			continue
		}
		if p, ok := parseAuditLine(line); ok {
			parties = append(parties, p)
		}
	}
	return markers, parties
}

// extractMarker extracts the kind and group id from a line like
// "[REPRESENTACION_MULTIPLE:PRIMARY:RM_4_9_20240101120000]".
func extractMarker(line string) (legal.GroupKind, string, bool) {
	idx := strings.Index(line, markerOpen)
	if idx == -1 {
		return "", "", false
	}
	rest := line[idx+len(markerOpen):]
	end := strings.Index(rest, markerClose)
	if end == -1 {
		return "", "", false
	}
	kind, gid, found := strings.Cut(rest[:end], ":")
	if !found {
		return "", "", false
	}
	gid = strings.TrimSpace(gid)
	if gid == "" {
		return "", "", false
	}
	switch strings.ToUpper(strings.TrimSpace(kind)) {
	case "PRIMARY":
		return legal.GroupPrimary, gid, true
	case "SECONDARY":
		return legal.GroupSecondary, gid, true
	}
	return "", "", false
}

// parseAuditLine parses "- Juan Pérez (Actor, ID: 12)".
func parseAuditLine(line string) (legal.RepresentedParty, bool) {
	if !strings.HasPrefix(line, "- ") || !strings.HasSuffix(line, ")") {
		return legal.RepresentedParty{}, false
	}
	body := strings.TrimSuffix(strings.TrimPrefix(line, "- "), ")")
	open := strings.LastIndex(body, " (")
	if open == -1 {
		return legal.RepresentedParty{}, false
	}
	name := strings.TrimSpace(body[:open])
	capacity, idPart, found := strings.Cut(body[open+2:], ", ID:")
	if !found || name == "" {
		return legal.RepresentedParty{}, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
	if err != nil {
		return legal.RepresentedParty{}, false
	}
	return legal.RepresentedParty{
		RoleID:   id,
		Name:     name,
		Capacity: legal.ParseCapacity(capacity),
	}, true
}

// StripMarkers removes group markers, the audit heading and audit lines from
// notes, keeping everything the user wrote.
func StripMarkers(notes string) string {
	markers, _ := ParseNotes(notes)
	if len(markers) == 0 {
		return notes
	}

	var kept []string
	for _, line := range strings.Split(notes, "\n") {
		trimmed := strings.TrimSpace(line)
		if _, _, ok := extractMarker(trimmed); ok {
			line = removeMarker(line)
			if strings.TrimSpace(line) == "" {
				continue
			}
		}
		if trimmed == auditHeading {
			continue
		}
		if _, ok := parseAuditLine(trimmed); ok {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func removeMarker(line string) string {
	idx := strings.Index(line, markerOpen)
	end := strings.Index(line[idx:], markerClose)
	return strings.TrimRight(line[:idx]+line[idx+end+len(markerClose):], " \t")
}

// ScanRoles reconstructs the groups encoded in the notes of roles. Groups
// without a primary, extra primaries and members of another contact are
// reported as warnings and left out.
func ScanRoles(roles []legal.Role) ([]Group, []string) {
	var warnings []string
	groups := make(map[string]*Group)
	var secondaries []struct {
		role legal.Role
		gid  string
	}

	sorted := append([]legal.Role(nil), roles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, r := range sorted {
		markers, parties := ParseNotes(r.Notes)
		for _, m := range markers {
			switch m.Kind {
			case legal.GroupPrimary:
				if g, exists := groups[m.GroupID]; exists {
					warnings = append(warnings, fmt.Sprintf(
						"role %d:%d: second primary marker for group %s (primary is role %d)",
						r.ID, m.Line, m.GroupID, g.PrimaryRoleID,
					))
					continue
				}
				groups[m.GroupID] = &Group{
					ID:            m.GroupID,
					CaseID:        r.CaseID,
					ContactID:     r.ContactID,
					PrimaryRoleID: r.ID,
					Parties:       parties,
				}
			case legal.GroupSecondary:
				secondaries = append(secondaries, struct {
					role legal.Role
					gid  string
				}{r, m.GroupID})
			}
		}
	}

	for _, s := range secondaries {
		g, ok := groups[s.gid]
		if !ok {
			warnings = append(warnings, fmt.Sprintf(
				"role %d: secondary marker for group %s without primary", s.role.ID, s.gid,
			))
			continue
		}
		if s.role.ContactID != g.ContactID {
			warnings = append(warnings, fmt.Sprintf(
				"role %d: secondary of group %s belongs to contact %d, primary to contact %d",
				s.role.ID, s.gid, s.role.ContactID, g.ContactID,
			))
			continue
		}
		g.SecondaryRoleIDs = append(g.SecondaryRoleIDs, s.role.ID)
	}

	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PrimaryRoleID < out[j].PrimaryRoleID })
	return out, warnings
}

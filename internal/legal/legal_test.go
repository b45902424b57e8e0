package legal

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestParseCapacity(t *testing.T) {
	tests := []struct {
		in        string
		want      Capacity
		wantKnown bool
	}{
		{"Actor", Actor, true},
		{"actor", Actor, true},
		{"  DEMANDADO ", Demandado, true},
		{"abogado", Abogado, true},
		{"Apoderado", Apoderado, true},
		{"Mediador", Mediador, true},
		{"Curador", Capacity("Curador"), false},
		{"", Capacity(""), false},
	}

	for _, tt := range tests {
		got := ParseCapacity(tt.in)
		if got != tt.want || got.Known() != tt.wantKnown {
			t.Errorf("ParseCapacity(%q) = (%q, known=%v), want (%q, known=%v)",
				tt.in, got, got.Known(), tt.want, tt.wantKnown)
		}
	}
}

func TestCapacityClassification(t *testing.T) {
	tests := []struct {
		c        Capacity
		attorney bool
		party    bool
		rank     int
	}{
		{Actor, false, true, 1},
		{Demandado, false, true, 2},
		{Tercero, false, true, 3},
		{Abogado, true, false, 4},
		{Apoderado, true, false, 5},
		{Perito, false, false, 6},
		{Testigo, false, false, OtherRank},
		{Capacity("Curador"), false, false, OtherRank},
	}

	for _, tt := range tests {
		if got := tt.c.IsAttorney(); got != tt.attorney {
			t.Errorf("%s.IsAttorney() = %v, want %v", tt.c, got, tt.attorney)
		}
		if got := tt.c.IsParty(); got != tt.party {
			t.Errorf("%s.IsParty() = %v, want %v", tt.c, got, tt.party)
		}
		if got := tt.c.Rank(); got != tt.rank {
			t.Errorf("%s.Rank() = %d, want %d", tt.c, got, tt.rank)
		}
	}
}

func TestErrorHelpers(t *testing.T) {
	nf := fmt.Errorf("add role: %w", NotFound("case", int64(9)))
	if !IsNotFound(nf) {
		t.Errorf("IsNotFound(%v) = false, want true", nf)
	}
	if IsValidation(nf) {
		t.Errorf("IsValidation(%v) = true, want false", nf)
	}
	if nf.Error() != "add role: case 9 not found" {
		t.Errorf("unexpected message: %q", nf.Error())
	}

	ve := fmt.Errorf("update role: %w", Invalid(RuleCycle, "role %d already represents %d", 3, 4))
	if !IsValidation(ve) {
		t.Errorf("IsValidation(%v) = false, want true", ve)
	}
	if got := RuleOf(ve); got != RuleCycle {
		t.Errorf("RuleOf = %q, want %q", got, RuleCycle)
	}
	if got := RuleOf(errors.New("boom")); got != "" {
		t.Errorf("RuleOf(plain) = %q, want empty", got)
	}
}

func TestRoleGroupAccessors(t *testing.T) {
	target := int64(12)
	r := Role{ID: 1, RepresentsRoleID: &target, GroupID: "RM_1", GroupKind: GroupSecondary}
	if id, ok := r.Represents(); !ok || id != 12 {
		t.Errorf("Represents() = (%d, %v), want (12, true)", id, ok)
	}
	if r.IsPrimary() || !r.IsSecondary() {
		t.Errorf("group accessors wrong for %+v", r)
	}

	plain := Role{ID: 2, GroupKind: GroupPrimary}
	if plain.IsPrimary() {
		t.Error("role without group id must not report primary")
	}
	if _, ok := plain.Represents(); ok {
		t.Error("role without pointer must not report a target")
	}
}

func TestAuditReportErr(t *testing.T) {
	clean := AuditReport{CaseID: 5}
	if !clean.Passed() || clean.Err() != nil {
		t.Fatalf("empty report should pass, got err %v", clean.Err())
	}

	dirty := AuditReport{CaseID: 5, Violations: []Violation{
		{Check: CheckOrphan, RoleIDs: []int64{3}, Message: "role 3 represents missing role 99", Fix: "run lpms audit clean --case 5"},
		{Check: CheckCycle, RoleIDs: []int64{1, 2}, Message: "roles 1 -> 2 -> 1 form a cycle", Fix: "clear one represents pointer"},
	}}
	err := dirty.Err()
	var repair *IntegrityRepairNeeded
	if !errors.As(err, &repair) {
		t.Fatalf("Err() = %v, want IntegrityRepairNeeded", err)
	}
	if len(repair.Violations) != 2 {
		t.Errorf("violations: want 2, got %d", len(repair.Violations))
	}
	if !strings.Contains(err.Error(), "orphan, cycle") {
		t.Errorf("error should list checks, got %q", err.Error())
	}
	lines := dirty.Lines()
	if len(lines) != 2 || !strings.Contains(lines[0], "Fix: run lpms audit clean") {
		t.Errorf("unexpected lines: %q", lines)
	}
}

func TestRepresentationSummary(t *testing.T) {
	tests := []struct {
		info RepresentationInfo
		want string
	}{
		{
			RepresentationInfo{Kind: RepresentationNone, LawyerName: "Dra. Gómez"},
			"Dra. Gómez sin representación registrada",
		},
		{
			RepresentationInfo{Kind: RepresentationSimple, LawyerName: "Dra. Gómez", Parties: []RepresentedParty{
				{RoleID: 1, Name: "Juan Pérez", Capacity: Actor},
			}},
			"Dra. Gómez en representación de Juan Pérez (Actor)",
		},
		{
			RepresentationInfo{Kind: RepresentationMultiple, LawyerName: "Dra. Gómez", Parties: []RepresentedParty{
				{RoleID: 1, Name: "Juan Pérez", Capacity: Actor},
				{RoleID: 2, Name: "ACME SA", Capacity: Demandado},
				{RoleID: 3, Name: "Aseguradora SA", Capacity: Tercero},
			}},
			"Dra. Gómez en representación de Juan Pérez (Actor), ACME SA (Demandado) y Aseguradora SA (Tercero)",
		},
	}

	for _, tt := range tests {
		if got := tt.info.Summary(); got != tt.want {
			t.Errorf("Summary() = %q, want %q", got, tt.want)
		}
	}
}

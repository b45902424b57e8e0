package roles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sbenjam1n/lpms/internal/legal"
	"github.com/sbenjam1n/lpms/internal/logger"
	"github.com/sbenjam1n/lpms/internal/queue"
	"github.com/sbenjam1n/lpms/internal/store"
)

func ptr(id int64) *int64 { return &id }

type recordingSink struct {
	events []queue.RoleEvent
	err    error
}

func (r *recordingSink) PushEvent(ctx context.Context, ev queue.RoleEvent) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.events = append(r.events, ev)
	return fmt.Sprintf("%d-0", len(r.events)), nil
}

func (r *recordingSink) actions() []string {
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Action)
	}
	return out
}

type fixture struct {
	svc   *Service
	mem   *store.MemoryStore
	sink  *recordingSink
	logs  *bytes.Buffer
	ctx   context.Context
	suffN int
}

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mem:  store.NewMemoryStore(),
		sink: &recordingSink{},
		logs: &bytes.Buffer{},
		ctx:  context.Background(),
	}
	f.svc = New(f.mem, logger.New(logger.Options{Writer: f.logs}),
		WithEvents(f.sink),
		WithClock(func() time.Time { return fixedNow }),
	)
	f.svc.suffixFn = func() (string, error) {
		f.suffN++
		return fmt.Sprintf("s%05d", f.suffN), nil
	}
	return f
}

func (f *fixture) contact(t *testing.T, name string) int64 {
	t.Helper()
	id, err := f.svc.RegisterContact(f.ctx, legal.ContactInput{Name: name})
	if err != nil {
		t.Fatalf("RegisterContact(%q): %v", name, err)
	}
	return id
}

func (f *fixture) openCase(t *testing.T, caption string) int64 {
	t.Helper()
	id, err := f.svc.OpenCase(f.ctx, legal.CaseInput{Caption: caption})
	if err != nil {
		t.Fatalf("OpenCase(%q): %v", caption, err)
	}
	return id
}

func (f *fixture) role(t *testing.T, in AddRoleInput) int64 {
	t.Helper()
	id, err := f.svc.AddRole(f.ctx, in)
	if err != nil {
		t.Fatalf("AddRole(%+v): %v", in, err)
	}
	return id
}

func TestRegisterContactValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name    string
		in      legal.ContactInput
		wantErr bool
	}{
		{"minimal", legal.ContactInput{Name: "Juan Pérez"}, false},
		{"full", legal.ContactInput{Name: "ACME SA", IsOrganization: true, CUIT: "30-71234567-8", Email: "legales@acme.com.ar"}, false},
		{"cuit digits only", legal.ContactInput{Name: "María López", CUIT: "27123456784", DNI: "12345678"}, false},
		{"missing name", legal.ContactInput{Name: "   "}, true},
		{"bad email", legal.ContactInput{Name: "Juan", Email: "juan@"}, true},
		{"short cuit", legal.ContactInput{Name: "Juan", CUIT: "20-123-4"}, true},
		{"short dni", legal.ContactInput{Name: "Juan", DNI: "123"}, true},
	}

	for _, tt := range tests {
		_, err := f.svc.RegisterContact(f.ctx, tt.in)
		if tt.wantErr {
			if legal.RuleOf(err) != legal.RuleInvalidInput {
				t.Errorf("%s: err = %v, want invalid_input", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
	}
}

func TestOpenCaseRequiresCaption(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.OpenCase(f.ctx, legal.CaseInput{}); legal.RuleOf(err) != legal.RuleInvalidInput {
		t.Errorf("OpenCase without caption: err = %v, want invalid_input", err)
	}
}

func TestAddRole(t *testing.T) {
	f := newFixture(t)
	k := f.openCase(t, "Pérez c/ ACME SA s/ daños y perjuicios")
	other := f.openCase(t, "López s/ sucesión")
	p1 := f.contact(t, "Juan Pérez")
	p2 := f.contact(t, "ACME SA")
	lawyer := f.contact(t, "Dra. Gómez")

	r1 := f.role(t, AddRoleInput{CaseID: k, ContactID: p1, Capacity: legal.Actor})
	r2 := f.role(t, AddRoleInput{CaseID: k, ContactID: p2, Capacity: "demandado"})
	foreign := f.role(t, AddRoleInput{CaseID: other, ContactID: p2, Capacity: legal.Actor})

	got, err := f.svc.GetRole(f.ctx, r2)
	if err != nil || got.Capacity != legal.Demandado {
		t.Fatalf("capacity not normalized: %+v, %v", got, err)
	}

	tests := []struct {
		name         string
		in           AddRoleInput
		wantNotFound bool
		wantRule     legal.Rule
	}{
		{"unknown case", AddRoleInput{CaseID: 99, ContactID: p1, Capacity: legal.Actor}, true, ""},
		{"unknown contact", AddRoleInput{CaseID: k, ContactID: 99, Capacity: legal.Actor}, true, ""},
		{"missing capacity", AddRoleInput{CaseID: k, ContactID: p1}, false, legal.RuleInvalidInput},
		{"duplicate actor", AddRoleInput{CaseID: k, ContactID: p1, Capacity: legal.Actor}, false, legal.RuleDuplicateRole},
		{"missing target", AddRoleInput{CaseID: k, ContactID: lawyer, Capacity: legal.Abogado, RepresentsRoleID: ptr(404)}, true, ""},
		{"target in other case", AddRoleInput{CaseID: k, ContactID: lawyer, Capacity: legal.Abogado, RepresentsRoleID: &foreign}, false, legal.RuleCrossCase},
	}
	for _, tt := range tests {
		_, err := f.svc.AddRole(f.ctx, tt.in)
		if tt.wantNotFound && !legal.IsNotFound(err) {
			t.Errorf("%s: err = %v, want NotFoundError", tt.name, err)
		}
		if tt.wantRule != "" && legal.RuleOf(err) != tt.wantRule {
			t.Errorf("%s: err = %v, want rule %s", tt.name, err, tt.wantRule)
		}
	}

	first := f.role(t, AddRoleInput{CaseID: k, ContactID: lawyer, Capacity: legal.Abogado, RepresentsRoleID: &r1})
	second, err := f.svc.AddRole(f.ctx, AddRoleInput{CaseID: k, ContactID: lawyer, Capacity: legal.Abogado, RepresentsRoleID: &r2})
	if err != nil {
		t.Fatalf("second Abogado with a distinct target: %v", err)
	}
	if second == first {
		t.Fatal("second Abogado reused the first role id")
	}
	if _, err := f.svc.AddRole(f.ctx, AddRoleInput{CaseID: k, ContactID: lawyer, Capacity: legal.Abogado, RepresentsRoleID: &r1}); legal.RuleOf(err) != legal.RuleDuplicateRole {
		t.Errorf("Abogado representing the same target twice: err = %v, want duplicate_role", err)
	}

	want := []string{queue.ActionRoleAdded, queue.ActionRoleAdded, queue.ActionRoleAdded, queue.ActionRoleAdded, queue.ActionRoleAdded}
	if diff := cmp.Diff(want, f.sink.actions()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestAddRoleAcceptsUnknownCapacityWithWarning(t *testing.T) {
	f := newFixture(t)
	k := f.openCase(t, "Expte. 1234/2024")
	c := f.contact(t, "Carlos Ruiz")

	id, err := f.svc.AddRole(f.ctx, AddRoleInput{CaseID: k, ContactID: c, Capacity: "Curador"})
	if err != nil {
		t.Fatalf("AddRole with unknown capacity: %v", err)
	}
	r, _ := f.svc.GetRole(f.ctx, id)
	if r.Capacity != "Curador" {
		t.Errorf("capacity = %q, want Curador", r.Capacity)
	}
	if !strings.Contains(f.logs.String(), "unrecognized capacity") {
		t.Errorf("expected a warning in the log, got %q", f.logs.String())
	}
}

func TestAddRoleRejectsChainWithExistingCycle(t *testing.T) {
	f := newFixture(t)
	k := f.openCase(t, "Expte. 55/2023")
	c := f.contact(t, "Dr. Ibáñez")
	f.mem.PutRole(legal.Role{ID: 100, CaseID: k, ContactID: c, Capacity: legal.Abogado, RepresentsRoleID: ptr(101)})
	f.mem.PutRole(legal.Role{ID: 101, CaseID: k, ContactID: c, Capacity: legal.Apoderado, RepresentsRoleID: ptr(100)})

	other := f.contact(t, "Dra. Sosa")
	_, err := f.svc.AddRole(f.ctx, AddRoleInput{CaseID: k, ContactID: other, Capacity: legal.Abogado, RepresentsRoleID: ptr(100)})
	if legal.RuleOf(err) != legal.RuleCycle {
		t.Errorf("err = %v, want cycle", err)
	}
}

func TestUpdateRole(t *testing.T) {
	f := newFixture(t)
	k := f.openCase(t, "Pérez c/ ACME SA")
	p1 := f.contact(t, "Juan Pérez")
	l1 := f.contact(t, "Dra. Gómez")
	l2 := f.contact(t, "Dr. Fernández")

	r1 := f.role(t, AddRoleInput{CaseID: k, ContactID: p1, Capacity: legal.Actor})
	a := f.role(t, AddRoleInput{CaseID: k, ContactID: l1, Capacity: legal.Abogado, RepresentsRoleID: &r1, Notes: "matrícula T1 F2"})
	b := f.role(t, AddRoleInput{CaseID: k, ContactID: l2, Capacity: legal.Apoderado, RepresentsRoleID: &a})

	tests := []struct {
		name     string
		roleID   int64
		update   RoleUpdate
		wantRule legal.Rule
	}{
		{"self reference", a, RoleUpdate{RepresentsRoleID: &a}, legal.RuleSelfReference},
		{"transitive cycle", a, RoleUpdate{RepresentsRoleID: &b}, legal.RuleCycle},
		{"party onto its own chain", r1, RoleUpdate{RepresentsRoleID: &b}, legal.RuleCycle},
		{"set and clear", a, RoleUpdate{RepresentsRoleID: &r1, ClearRepresents: true}, legal.RuleInvalidInput},
	}
	for _, tt := range tests {
		if _, err := f.svc.UpdateRole(f.ctx, tt.roleID, tt.update); legal.RuleOf(err) != tt.wantRule {
			t.Errorf("%s: err = %v, want %s", tt.name, err, tt.wantRule)
		}
	}

	if _, err := f.svc.UpdateRole(f.ctx, 404, RoleUpdate{}); !legal.IsNotFound(err) {
		t.Errorf("unknown role: err = %v, want NotFoundError", err)
	}

	bank := "CBU 0110599520000001234567"
	updated, err := f.svc.UpdateRole(f.ctx, b, RoleUpdate{RepresentsRoleID: &r1, BankDetails: &bank})
	if err != nil {
		t.Fatalf("retarget b onto r1: %v", err)
	}
	if id, ok := updated.Represents(); !ok || id != r1 || updated.BankDetails != bank {
		t.Errorf("update not applied: %+v", updated)
	}

	cleared, err := f.svc.UpdateRole(f.ctx, a, RoleUpdate{ClearRepresents: true})
	if err != nil {
		t.Fatalf("clear represents: %v", err)
	}
	if _, ok := cleared.Represents(); ok {
		t.Errorf("pointer still set after clear: %+v", cleared)
	}
	if cleared.Notes != "matrícula T1 F2" || cleared.Capacity != legal.Abogado {
		t.Errorf("untouched fields changed: %+v", cleared)
	}
}

func TestUpdateRoleCapacityDuplicate(t *testing.T) {
	f := newFixture(t)
	k := f.openCase(t, "Expte. 77/2024")
	p := f.contact(t, "Ana Torres")
	f.role(t, AddRoleInput{CaseID: k, ContactID: p, Capacity: legal.Actor})
	w := f.role(t, AddRoleInput{CaseID: k, ContactID: p, Capacity: legal.Testigo})

	actor := legal.Actor
	if _, err := f.svc.UpdateRole(f.ctx, w, RoleUpdate{Capacity: &actor}); legal.RuleOf(err) != legal.RuleDuplicateRole {
		t.Errorf("err = %v, want duplicate_role", err)
	}
}

func TestDeleteRoleClearsInboundPointers(t *testing.T) {
	f := newFixture(t)
	k := f.openCase(t, "Pérez c/ ACME SA")
	p1 := f.contact(t, "Juan Pérez")
	l1 := f.contact(t, "Dra. Gómez")
	r1 := f.role(t, AddRoleInput{CaseID: k, ContactID: p1, Capacity: legal.Actor})
	a := f.role(t, AddRoleInput{CaseID: k, ContactID: l1, Capacity: legal.Abogado, RepresentsRoleID: &r1})

	if err := f.svc.DeleteRole(f.ctx, r1); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	got, err := f.svc.GetRole(f.ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.Represents(); ok {
		t.Errorf("pointer to deleted role survived: %+v", got)
	}
	if err := f.svc.DeleteRole(f.ctx, r1); !legal.IsNotFound(err) {
		t.Errorf("second delete: err = %v, want NotFoundError", err)
	}
}

func TestListCaseRolesOrder(t *testing.T) {
	f := newFixture(t)
	k := f.openCase(t, "Pérez c/ ACME SA")
	perito := f.contact(t, "Aldo Perito")
	zeta := f.contact(t, "Zulema Actora")
	alfa := f.contact(t, "Alberto Actor")
	dem := f.contact(t, "ACME SA")
	abog := f.contact(t, "Dra. Gómez")
	otro := f.contact(t, "Bruno Testigo")

	f.role(t, AddRoleInput{CaseID: k, ContactID: perito, Capacity: legal.Perito})
	f.role(t, AddRoleInput{CaseID: k, ContactID: otro, Capacity: legal.Testigo})
	za := f.role(t, AddRoleInput{CaseID: k, ContactID: zeta, Capacity: legal.Actor})
	f.role(t, AddRoleInput{CaseID: k, ContactID: abog, Capacity: legal.Abogado, RepresentsRoleID: &za})
	f.role(t, AddRoleInput{CaseID: k, ContactID: dem, Capacity: legal.Demandado})
	f.role(t, AddRoleInput{CaseID: k, ContactID: alfa, Capacity: legal.Actor})

	roles, err := f.svc.ListCaseRoles(f.ctx, k)
	if err != nil {
		t.Fatalf("ListCaseRoles: %v", err)
	}
	var names []string
	for _, r := range roles {
		names = append(names, r.ContactName)
		if r.Capacity == legal.Abogado && r.RepresentsName != "Zulema Actora" {
			t.Errorf("RepresentsName = %q, want Zulema Actora", r.RepresentsName)
		}
	}
	want := []string{"Alberto Actor", "Zulema Actora", "ACME SA", "Dra. Gómez", "Aldo Perito", "Bruno Testigo"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	if _, err := f.svc.ListCaseRoles(f.ctx, 404); !legal.IsNotFound(err) {
		t.Errorf("unknown case: err = %v, want NotFoundError", err)
	}
}

func TestCaseHierarchy(t *testing.T) {
	f := newFixture(t)
	k := f.openCase(t, "Pérez c/ ACME SA")
	p1 := f.contact(t, "Juan Pérez")
	l1 := f.contact(t, "Dra. Gómez")
	l2 := f.contact(t, "Dr. Fernández")
	r1 := f.role(t, AddRoleInput{CaseID: k, ContactID: p1, Capacity: legal.Actor})
	a := f.role(t, AddRoleInput{CaseID: k, ContactID: l1, Capacity: legal.Abogado, RepresentsRoleID: &r1})
	b := f.role(t, AddRoleInput{CaseID: k, ContactID: l2, Capacity: legal.Apoderado, RepresentsRoleID: &a})

	// A corrupted pair must not hang the walk.
	f.mem.PutRole(legal.Role{ID: 50, CaseID: k, ContactID: l2, Capacity: legal.Perito, RepresentsRoleID: ptr(51)})
	f.mem.PutRole(legal.Role{ID: 51, CaseID: k, ContactID: l2, Capacity: legal.Testigo, RepresentsRoleID: ptr(50)})

	entries, err := f.svc.CaseHierarchy(f.ctx, k)
	if err != nil {
		t.Fatalf("CaseHierarchy: %v", err)
	}
	got := map[int64][]int64{}
	depth := map[int64]int{}
	for _, e := range entries {
		got[e.ID] = e.Chain
		depth[e.ID] = e.Depth
	}
	want := map[int64][]int64{
		r1: {r1},
		a:  {r1, a},
		b:  {r1, a, b},
		50: {51, 50},
		51: {50, 51},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chains mismatch (-want +got):\n%s", diff)
	}
	if depth[r1] != 0 || depth[a] != 1 || depth[b] != 2 {
		t.Errorf("depths = %v", depth)
	}
}

func TestContactLifecycle(t *testing.T) {
	f := newFixture(t)
	k := f.openCase(t, "Pérez c/ ACME SA")
	p := f.contact(t, "Juan Pérez")
	r := f.role(t, AddRoleInput{CaseID: k, ContactID: p, Capacity: legal.Actor})

	c, err := f.svc.GetContact(f.ctx, p)
	if err != nil || c.Name != "Juan Pérez" {
		t.Fatalf("GetContact = %+v, %v", c, err)
	}
	if err := f.svc.DeleteContact(f.ctx, p); err != nil {
		t.Fatalf("DeleteContact: %v", err)
	}
	if _, err := f.svc.GetRole(f.ctx, r); !legal.IsNotFound(err) {
		t.Errorf("role of deleted contact survived: %v", err)
	}
	if err := f.svc.DeleteContact(f.ctx, p); !legal.IsNotFound(err) {
		t.Errorf("second delete: err = %v, want NotFoundError", err)
	}
	contacts, _ := f.svc.ListContacts(f.ctx)
	cases, _ := f.svc.ListCases(f.ctx)
	if len(contacts) != 0 || len(cases) != 1 {
		t.Errorf("contacts=%d cases=%d, want 0 and 1", len(contacts), len(cases))
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("redis: connection refused")
	k := f.openCase(t, "Expte. 9/2024")
	p := f.contact(t, "Juan Pérez")

	if _, err := f.svc.AddRole(f.ctx, AddRoleInput{CaseID: k, ContactID: p, Capacity: legal.Actor}); err != nil {
		t.Fatalf("AddRole with a failing sink: %v", err)
	}
	if !strings.Contains(f.logs.String(), "publish role event") {
		t.Errorf("publish failure was not logged: %q", f.logs.String())
	}
}

// lockHookStore runs onLock right before the first case lock of a
// transaction, in place of a writer that commits while the caller waits for
// the lock.
type lockHookStore struct {
	store.Store
	onLock func()
}

func (l *lockHookStore) InTx(ctx context.Context, fn func(store.Store) error) error {
	return l.Store.InTx(ctx, func(tx store.Store) error {
		return fn(&lockHookStore{Store: tx, onLock: l.onLock})
	})
}

func (l *lockHookStore) LockCase(ctx context.Context, caseID int64) error {
	if hook := l.onLock; hook != nil {
		l.onLock = nil
		hook()
	}
	return l.Store.LockCase(ctx, caseID)
}

func TestUpdateRoleKeepsWritesCommittedBeforeLock(t *testing.T) {
	s := newScenario(t)
	counsel := s.role(t, AddRoleInput{CaseID: s.caseID, ContactID: s.lawyer, Capacity: legal.Abogado, RepresentsRoleID: &s.r1, Notes: "matrícula T1 F2"})

	hooked := &lockHookStore{Store: s.mem, onLock: func() {
		r, err := s.mem.GetRole(s.ctx, counsel)
		if err != nil {
			t.Fatal(err)
		}
		r.Notes = "poder general agregado"
		if err := s.mem.UpdateRole(s.ctx, r); err != nil {
			t.Fatal(err)
		}
	}}
	svc := New(hooked, logger.Discard())

	bank := "CBU 0110"
	updated, err := svc.UpdateRole(s.ctx, counsel, RoleUpdate{BankDetails: &bank})
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if updated.Notes != "poder general agregado" || updated.BankDetails != bank {
		t.Errorf("updated = %+v, want the concurrent notes and the new bank details", updated)
	}
}

func TestUpdateMultipleRepresentationsSeesDissolvedGroup(t *testing.T) {
	s := newScenario(t)
	out := s.create(t, s.r1, s.r2)

	hooked := &lockHookStore{Store: s.mem, onLock: func() {
		if _, err := s.mem.ClearGroupMembers(s.ctx, out.GroupID); err != nil {
			t.Fatal(err)
		}
		if err := s.mem.DeleteGroup(s.ctx, out.GroupID); err != nil {
			t.Fatal(err)
		}
	}}
	svc := New(hooked, logger.Discard())

	_, err := svc.UpdateMultipleRepresentations(s.ctx, out.PrimaryRoleID, []int64{s.r1, s.r2})
	if legal.RuleOf(err) != legal.RuleNotPrimary {
		t.Errorf("err = %v, want %s", err, legal.RuleNotPrimary)
	}
	if got := s.groupCount(t); got != 0 {
		t.Errorf("groups = %d, want 0", got)
	}
}

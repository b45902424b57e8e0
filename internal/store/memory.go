package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sbenjam1n/lpms/internal/legal"
)

// MemoryStore is an in-process Store used by tests and dry runs. It applies
// the same cascades as the SQL schema but does not enforce the represents
// foreign key, so corrupted graphs can be staged.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data memoryData
}

type memoryData struct {
	contacts map[int64]legal.Contact
	cases    map[int64]legal.Case
	roles    map[int64]legal.Role
	groups   map[string]legal.RepresentationGroup
	nextID   map[string]int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: memoryData{
		contacts: map[int64]legal.Contact{},
		cases:    map[int64]legal.Case{},
		roles:    map[int64]legal.Role{},
		groups:   map[string]legal.RepresentationGroup{},
		nextID:   map[string]int64{},
	}}
}

func (d memoryData) clone() memoryData {
	c := memoryData{
		contacts: make(map[int64]legal.Contact, len(d.contacts)),
		cases:    make(map[int64]legal.Case, len(d.cases)),
		roles:    make(map[int64]legal.Role, len(d.roles)),
		groups:   make(map[string]legal.RepresentationGroup, len(d.groups)),
		nextID:   make(map[string]int64, len(d.nextID)),
	}
	for k, v := range d.contacts {
		c.contacts[k] = v
	}
	for k, v := range d.cases {
		c.cases[k] = v
	}
	for k, v := range d.roles {
		c.roles[k] = copyRole(v)
	}
	for k, v := range d.groups {
		c.groups[k] = copyGroup(v)
	}
	for k, v := range d.nextID {
		c.nextID[k] = v
	}
	return c
}

func copyRole(r legal.Role) legal.Role {
	if r.RepresentsRoleID != nil {
		id := *r.RepresentsRoleID
		r.RepresentsRoleID = &id
	}
	return r
}

func copyGroup(g legal.RepresentationGroup) legal.RepresentationGroup {
	if g.PrimaryRoleID != nil {
		id := *g.PrimaryRoleID
		g.PrimaryRoleID = &id
	}
	if g.Parties != nil {
		g.Parties = append([]legal.RepresentedParty(nil), g.Parties...)
	}
	return g
}

func (s *MemoryStore) next(kind string) int64 {
	s.data.nextID[kind]++
	return s.data.nextID[kind]
}

// InTx serializes transactions and restores the previous state when fn fails
// or ctx is done by the time fn returns.
func (s *MemoryStore) InTx(ctx context.Context, fn func(Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.runTx(ctx, fn)
}

func (s *MemoryStore) runTx(ctx context.Context, fn func(Store) error) error {
	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	err := fn(&memoryTx{s})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// memoryTx is the Store handed to InTx callbacks. Nested InTx calls behave
// like savepoints.
type memoryTx struct {
	*MemoryStore
}

func (t *memoryTx) InTx(ctx context.Context, fn func(Store) error) error {
	return t.runTx(ctx, fn)
}

// LockCase is a no-op: InTx already serializes writers.
func (s *MemoryStore) LockCase(ctx context.Context, caseID int64) error {
	return nil
}

func (s *MemoryStore) CreateContact(ctx context.Context, c legal.Contact) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.next("contact")
	c.CreatedAt = time.Now().UTC()
	s.data.contacts[c.ID] = c
	return c.ID, nil
}

func (s *MemoryStore) GetContact(ctx context.Context, id int64) (legal.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.contacts[id]
	if !ok {
		return legal.Contact{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) ListContacts(ctx context.Context) ([]legal.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]legal.Contact, 0, len(s.data.contacts))
	for _, c := range s.data.contacts {
		items = append(items, c)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *MemoryStore) DeleteContact(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.contacts[id]; !ok {
		return false, nil
	}
	delete(s.data.contacts, id)
	for gid, g := range s.data.groups {
		if g.ContactID == id {
			s.dropGroupLocked(gid)
		}
	}
	for rid, r := range s.data.roles {
		if r.ContactID == id {
			s.dropRoleLocked(rid)
		}
	}
	return true, nil
}

func (s *MemoryStore) CreateCase(ctx context.Context, c legal.Case) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.next("case")
	c.CreatedAt = time.Now().UTC()
	s.data.cases[c.ID] = c
	return c.ID, nil
}

func (s *MemoryStore) CaseExists(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data.cases[id]
	return ok, nil
}

func (s *MemoryStore) ListCases(ctx context.Context) ([]legal.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]legal.Case, 0, len(s.data.cases))
	for _, c := range s.data.cases {
		items = append(items, c)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *MemoryStore) InsertRole(ctx context.Context, r legal.Role) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r = copyRole(r)
	r.ID = s.next("role")
	r.CreatedAt = time.Now().UTC()
	if r.GroupID == "" {
		r.GroupKind = legal.GroupNone
	}
	s.data.roles[r.ID] = r
	return r.ID, nil
}

// PutRole stores r under its own id, bypassing every check. Tests use it
// to stage graphs the services would refuse to build.
func (s *MemoryStore) PutRole(r legal.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID > s.data.nextID["role"] {
		s.data.nextID["role"] = r.ID
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.data.roles[r.ID] = copyRole(r)
}

func (s *MemoryStore) GetRole(ctx context.Context, id int64) (legal.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.roles[id]
	if !ok {
		return legal.Role{}, ErrNotFound
	}
	return copyRole(r), nil
}

func (s *MemoryStore) UpdateRole(ctx context.Context, r legal.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.data.roles[r.ID]
	if !ok {
		return ErrNotFound
	}
	r = copyRole(r)
	r.CaseID = old.CaseID
	r.ContactID = old.ContactID
	r.CreatedAt = old.CreatedAt
	if r.GroupID == "" {
		r.GroupKind = legal.GroupNone
	}
	s.data.roles[r.ID] = r
	return nil
}

func (s *MemoryStore) DeleteRole(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.roles[id]; !ok {
		return false, nil
	}
	s.dropRoleLocked(id)
	return true, nil
}

// dropRoleLocked mirrors the ON DELETE SET NULL of the represents and
// primary_role_id foreign keys.
func (s *MemoryStore) dropRoleLocked(id int64) {
	delete(s.data.roles, id)
	for rid, r := range s.data.roles {
		if r.RepresentsRoleID != nil && *r.RepresentsRoleID == id {
			r.RepresentsRoleID = nil
			s.data.roles[rid] = r
		}
	}
	for gid, g := range s.data.groups {
		if g.PrimaryRoleID != nil && *g.PrimaryRoleID == id {
			g.PrimaryRoleID = nil
			s.data.groups[gid] = g
		}
	}
}

// dropGroupLocked mirrors the ON DELETE SET NULL of roles.group_id.
func (s *MemoryStore) dropGroupLocked(groupID string) {
	delete(s.data.groups, groupID)
	for rid, r := range s.data.roles {
		if r.GroupID == groupID {
			r.GroupID = ""
			r.GroupKind = legal.GroupNone
			s.data.roles[rid] = r
		}
	}
}

func (s *MemoryStore) rolesWhere(keep func(legal.Role) bool) []legal.Role {
	items := make([]legal.Role, 0)
	for _, r := range s.data.roles {
		if keep(r) {
			items = append(items, copyRole(r))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (s *MemoryStore) ListRoles(ctx context.Context, caseID int64) ([]legal.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rolesWhere(func(r legal.Role) bool { return r.CaseID == caseID }), nil
}

func (s *MemoryStore) ListCaseRoles(ctx context.Context, caseID int64) ([]legal.CaseRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles := s.rolesWhere(func(r legal.Role) bool { return r.CaseID == caseID })
	items := make([]legal.CaseRole, 0, len(roles))
	for _, r := range roles {
		c := s.data.contacts[r.ContactID]
		cr := legal.CaseRole{
			Role:           r,
			ContactName:    c.Name,
			IsOrganization: c.IsOrganization,
			DNI:            c.DNI,
			CUIT:           c.CUIT,
			Phone:          c.Phone,
			Email:          c.Email,
		}
		if id, ok := r.Represents(); ok {
			if t, ok := s.data.roles[id]; ok && t.CaseID == caseID {
				cr.RepresentsName = s.data.contacts[t.ContactID].Name
			}
		}
		items = append(items, cr)
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Capacity.Rank() != b.Capacity.Rank() {
			return a.Capacity.Rank() < b.Capacity.Rank()
		}
		if a.ContactName != b.ContactName {
			return a.ContactName < b.ContactName
		}
		return a.ID < b.ID
	})
	return items, nil
}

func (s *MemoryStore) FindContactRoles(ctx context.Context, caseID, contactID int64, capacity legal.Capacity) ([]legal.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rolesWhere(func(r legal.Role) bool {
		return r.CaseID == caseID && r.ContactID == contactID && r.Capacity == capacity
	}), nil
}

func (s *MemoryStore) ClearRepresentsTo(ctx context.Context, roleID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for rid, r := range s.data.roles {
		if rid != roleID && r.RepresentsRoleID != nil && *r.RepresentsRoleID == roleID {
			r.RepresentsRoleID = nil
			s.data.roles[rid] = r
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ClearOrphanedRepresents(ctx context.Context, caseID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0)
	for rid, r := range s.data.roles {
		if r.CaseID != caseID || r.RepresentsRoleID == nil {
			continue
		}
		if t, ok := s.data.roles[*r.RepresentsRoleID]; ok && t.CaseID == caseID {
			continue
		}
		r.RepresentsRoleID = nil
		s.data.roles[rid] = r
		ids = append(ids, rid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) InsertGroup(ctx context.Context, g legal.RepresentationGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.groups[g.ID]; exists {
		return &DuplicateKeyError{Table: "representation_groups", Key: g.ID}
	}
	g = copyGroup(g)
	g.CreatedAt = time.Now().UTC()
	s.data.groups[g.ID] = g
	return nil
}

func (s *MemoryStore) SetGroupPrimary(ctx context.Context, groupID string, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.data.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	id := roleID
	g.PrimaryRoleID = &id
	s.data.groups[groupID] = g
	return nil
}

func (s *MemoryStore) GetGroup(ctx context.Context, groupID string) (legal.RepresentationGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.data.groups[groupID]
	if !ok {
		return legal.RepresentationGroup{}, ErrNotFound
	}
	return copyGroup(g), nil
}

func (s *MemoryStore) ListGroups(ctx context.Context, caseID int64) ([]legal.RepresentationGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]legal.RepresentationGroup, 0)
	for _, g := range s.data.groups {
		if g.CaseID == caseID {
			items = append(items, copyGroup(g))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return strings.Compare(items[i].ID, items[j].ID) < 0
	})
	return items, nil
}

func (s *MemoryStore) ListGroupMembers(ctx context.Context, groupID string) ([]legal.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rolesWhere(func(r legal.Role) bool { return r.GroupID == groupID }), nil
}

func (s *MemoryStore) ClearGroupMembers(ctx context.Context, groupID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for rid, r := range s.data.roles {
		if r.GroupID == groupID {
			r.GroupID = ""
			r.GroupKind = legal.GroupNone
			s.data.roles[rid] = r
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropGroupLocked(groupID)
	return nil
}

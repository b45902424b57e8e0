// Package store persists contacts, cases, roles and representation groups.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sbenjam1n/lpms/internal/legal"
)

// ErrNotFound is returned by single-row lookups when the row does not exist.
var ErrNotFound = errors.New("not found")

// DuplicateKeyError is returned when an insert collides with an existing key.
type DuplicateKeyError struct {
	Table string
	Key   string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %q in %s", e.Key, e.Table)
}

// Store is the persistence surface the role services need. Implementations
// must make InTx all-or-nothing: when fn returns an error nothing written
// through the Store passed to fn survives.
type Store interface {
	InTx(ctx context.Context, fn func(Store) error) error
	// LockCase serializes writers of one case for the rest of the transaction.
	LockCase(ctx context.Context, caseID int64) error

	CreateContact(ctx context.Context, c legal.Contact) (int64, error)
	GetContact(ctx context.Context, id int64) (legal.Contact, error)
	ListContacts(ctx context.Context) ([]legal.Contact, error)
	DeleteContact(ctx context.Context, id int64) (bool, error)

	CreateCase(ctx context.Context, c legal.Case) (int64, error)
	CaseExists(ctx context.Context, id int64) (bool, error)
	ListCases(ctx context.Context) ([]legal.Case, error)

	InsertRole(ctx context.Context, r legal.Role) (int64, error)
	GetRole(ctx context.Context, id int64) (legal.Role, error)
	UpdateRole(ctx context.Context, r legal.Role) error
	DeleteRole(ctx context.Context, id int64) (bool, error)
	ListRoles(ctx context.Context, caseID int64) ([]legal.Role, error)
	ListCaseRoles(ctx context.Context, caseID int64) ([]legal.CaseRole, error)
	FindContactRoles(ctx context.Context, caseID, contactID int64, capacity legal.Capacity) ([]legal.Role, error)
	ClearRepresentsTo(ctx context.Context, roleID int64) (int64, error)
	ClearOrphanedRepresents(ctx context.Context, caseID int64) ([]int64, error)

	InsertGroup(ctx context.Context, g legal.RepresentationGroup) error
	SetGroupPrimary(ctx context.Context, groupID string, roleID int64) error
	GetGroup(ctx context.Context, groupID string) (legal.RepresentationGroup, error)
	ListGroups(ctx context.Context, caseID int64) ([]legal.RepresentationGroup, error)
	ListGroupMembers(ctx context.Context, groupID string) ([]legal.Role, error)
	ClearGroupMembers(ctx context.Context, groupID string) (int64, error)
	DeleteGroup(ctx context.Context, groupID string) error
}

// CaseLockKey derives the advisory lock key of a case.
func CaseLockKey(caseID int64) int64 {
	return hashTo64Bit("lpms:case:" + strconv.FormatInt(caseID, 10))
}

func hashTo64Bit(s string) int64 {
	var h uint64 = 14695981039346656037
	for _, c := range []byte(s) {
		h ^= uint64(c)
		h *= 1099511628211
	}
	return int64(h)
}

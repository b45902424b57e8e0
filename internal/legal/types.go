package legal

import "time"

// Contact is a person or organization known to the firm, independent of any case.
type Contact struct {
	ID             int64     `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	IsOrganization bool      `json:"is_organization" db:"is_organization"`
	DNI            string    `json:"dni,omitempty" db:"dni"`
	CUIT           string    `json:"cuit,omitempty" db:"cuit"`
	Address        string    `json:"address,omitempty" db:"address"`
	LegalAddress   string    `json:"legal_address,omitempty" db:"legal_address"`
	Phone          string    `json:"phone,omitempty" db:"phone"`
	Email          string    `json:"email,omitempty" db:"email"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// ContactInput carries the user-supplied fields of a new contact.
type ContactInput struct {
	Name           string `json:"name" validate:"required,max=200"`
	IsOrganization bool   `json:"is_organization"`
	DNI            string `json:"dni" validate:"omitempty,numeric,min=7,max=8"`
	CUIT           string `json:"cuit" validate:"omitempty,cuit"`
	Address        string `json:"address" validate:"max=300"`
	LegalAddress   string `json:"legal_address" validate:"max=300"`
	Phone          string `json:"phone" validate:"max=50"`
	Email          string `json:"email" validate:"omitempty,email"`
}

// Case is a legal matter on file with the firm.
type Case struct {
	ID        int64     `json:"id" db:"id"`
	Caption   string    `json:"caption" db:"caption"`
	Number    string    `json:"number,omitempty" db:"number"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CaseInput carries the user-supplied fields of a new case.
type CaseInput struct {
	Caption string `json:"caption" validate:"required,max=500"`
	Number  string `json:"number" validate:"max=100"`
}

// GroupKind marks a role's membership in a multi-representation group.
type GroupKind string

const (
	GroupNone      GroupKind = ""
	GroupPrimary   GroupKind = "primary"
	GroupSecondary GroupKind = "secondary"
)

// Role is one contact's participation in one case.
type Role struct {
	ID                int64     `json:"id" db:"id"`
	CaseID            int64     `json:"case_id" db:"case_id"`
	ContactID         int64     `json:"contact_id" db:"contact_id"`
	Capacity          Capacity  `json:"capacity" db:"capacity"`
	SecondaryCapacity string    `json:"secondary_capacity,omitempty" db:"secondary_capacity"`
	RepresentsRoleID  *int64    `json:"represents_role_id,omitempty" db:"represents_role_id"`
	BankDetails       string    `json:"bank_details,omitempty" db:"bank_details"`
	Notes             string    `json:"notes,omitempty" db:"notes"`
	GroupID           string    `json:"group_id,omitempty" db:"group_id"`
	GroupKind         GroupKind `json:"group_kind,omitempty" db:"group_kind"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// Represents reports the represented role id and whether the pointer is set.
func (r Role) Represents() (int64, bool) {
	if r.RepresentsRoleID == nil {
		return 0, false
	}
	return *r.RepresentsRoleID, true
}

// IsPrimary reports whether the role heads a multi-representation group.
func (r Role) IsPrimary() bool {
	return r.GroupID != "" && r.GroupKind == GroupPrimary
}

// IsSecondary reports whether the role is a shadow member of a group.
func (r Role) IsSecondary() bool {
	return r.GroupID != "" && r.GroupKind == GroupSecondary
}

// CaseRole is a role joined with the fields of its contact and,
// when set, the name of the contact it represents.
type CaseRole struct {
	Role
	ContactName    string `json:"contact_name"`
	IsOrganization bool   `json:"is_organization"`
	DNI            string `json:"dni,omitempty"`
	CUIT           string `json:"cuit,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Email          string `json:"email,omitempty"`
	RepresentsName string `json:"represents_name,omitempty"`
}

// HierarchyEntry annotates a case role with its place in the representation chain.
// Chain runs root-first and ends with the role itself.
type HierarchyEntry struct {
	CaseRole
	Depth int     `json:"depth"`
	Chain []int64 `json:"chain"`
}

// RepresentedParty is one party covered by a representation.
type RepresentedParty struct {
	RoleID       int64    `json:"role_id"`
	Name         string   `json:"name"`
	Capacity     Capacity `json:"capacity"`
	ShadowRoleID int64    `json:"shadow_role_id,omitempty"`
}

// RepresentationGroup is one attorney's multi-representation in one case.
// Parties is the snapshot recorded at creation time.
type RepresentationGroup struct {
	ID            string             `json:"id" db:"id"`
	CaseID        int64              `json:"case_id" db:"case_id"`
	ContactID     int64              `json:"contact_id" db:"contact_id"`
	PrimaryRoleID *int64             `json:"primary_role_id,omitempty" db:"primary_role_id"`
	Parties       []RepresentedParty `json:"parties" db:"parties"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
}

// MultipleRepresentation is the outcome of creating a group.
type MultipleRepresentation struct {
	PrimaryRoleID int64              `json:"primary_role_id"`
	GroupID       string             `json:"group_id"`
	Total         int                `json:"total"`
	Parties       []RepresentedParty `json:"parties"`
}

// ShadowRoleIDs lists the secondary role ids in party order.
func (m MultipleRepresentation) ShadowRoleIDs() []int64 {
	ids := make([]int64, 0, len(m.Parties))
	for _, p := range m.Parties {
		ids = append(ids, p.ShadowRoleID)
	}
	return ids
}

// RepresentationKind classifies what a role represents.
type RepresentationKind string

const (
	RepresentationNone     RepresentationKind = "none"
	RepresentationSimple   RepresentationKind = "simple"
	RepresentationMultiple RepresentationKind = "multiple"
)

// RepresentationInfo describes the representation reachable from one role.
type RepresentationInfo struct {
	RoleID     int64              `json:"role_id"`
	Kind       RepresentationKind `json:"kind"`
	IsMultiple bool               `json:"is_multiple"`
	GroupID    string             `json:"group_id,omitempty"`
	LawyerName string             `json:"lawyer_name"`
	Total      int                `json:"total"`
	Parties    []RepresentedParty `json:"parties,omitempty"`
}

// CaseGroup is a multi-representation group found in a case.
type CaseGroup struct {
	GroupID       string             `json:"group_id"`
	ContactID     int64              `json:"contact_id"`
	LawyerName    string             `json:"lawyer_name"`
	PrimaryRoleID int64              `json:"primary_role_id"`
	Parties       []RepresentedParty `json:"parties"`
	FromAudit     bool               `json:"from_audit"`
}

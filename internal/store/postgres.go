package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sbenjam1n/lpms/internal/legal"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db dbtx
}

// NewPostgresStore wraps a connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool}
}

// InTx runs fn inside a transaction; nested calls become savepoints.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&PostgresStore{db: tx})
	})
}

// LockCase takes a transaction-scoped advisory lock on the case. Outside a
// transaction the lock is released as soon as the statement finishes.
func (s *PostgresStore) LockCase(ctx context.Context, caseID int64) error {
	if _, err := s.db.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", CaseLockKey(caseID)); err != nil {
		return fmt.Errorf("lock case %d: %w", caseID, err)
	}
	return nil
}

const contactColumns = `id, name, is_organization, COALESCE(dni, ''), COALESCE(cuit, ''),
	COALESCE(address, ''), COALESCE(legal_address, ''), COALESCE(phone, ''), COALESCE(email, ''), created_at`

func scanContact(row pgx.Row) (legal.Contact, error) {
	var c legal.Contact
	err := row.Scan(&c.ID, &c.Name, &c.IsOrganization, &c.DNI, &c.CUIT,
		&c.Address, &c.LegalAddress, &c.Phone, &c.Email, &c.CreatedAt)
	return c, err
}

func (s *PostgresStore) CreateContact(ctx context.Context, c legal.Contact) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO contacts (name, is_organization, dni, cuit, address, legal_address, phone, email)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''))
		RETURNING id
	`, c.Name, c.IsOrganization, c.DNI, c.CUIT, c.Address, c.LegalAddress, c.Phone, c.Email).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert contact: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetContact(ctx context.Context, id int64) (legal.Contact, error) {
	c, err := scanContact(s.db.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return legal.Contact{}, ErrNotFound
	}
	if err != nil {
		return legal.Contact{}, fmt.Errorf("get contact %d: %w", id, err)
	}
	return c, nil
}

func (s *PostgresStore) ListContacts(ctx context.Context) ([]legal.Contact, error) {
	rows, err := s.db.Query(ctx, `SELECT `+contactColumns+` FROM contacts ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	items := make([]legal.Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return items, nil
}

// DeleteContact removes a contact; roles and groups go with it through FK cascades.
func (s *PostgresStore) DeleteContact(ctx context.Context, id int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete contact %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) CreateCase(ctx context.Context, c legal.Case) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO cases (caption, number) VALUES ($1, NULLIF($2, '')) RETURNING id
	`, c.Caption, c.Number).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert case: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) CaseExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cases WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check case %d: %w", id, err)
	}
	return exists, nil
}

func (s *PostgresStore) ListCases(ctx context.Context) ([]legal.Case, error) {
	rows, err := s.db.Query(ctx, `SELECT id, caption, COALESCE(number, ''), created_at FROM cases ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	items := make([]legal.Case, 0)
	for rows.Next() {
		var c legal.Case
		if err := rows.Scan(&c.ID, &c.Caption, &c.Number, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return items, nil
}

const roleColumns = `r.id, r.case_id, r.contact_id, r.capacity, COALESCE(r.secondary_capacity, ''),
	r.represents_role_id, COALESCE(r.bank_details, ''), COALESCE(r.notes, ''),
	COALESCE(r.group_id, ''), CASE WHEN r.group_id IS NULL THEN '' ELSE COALESCE(r.group_kind, '') END,
	r.created_at`

func scanRole(row pgx.Row, extra ...any) (legal.Role, error) {
	var r legal.Role
	var capacity, kind string
	dest := []any{&r.ID, &r.CaseID, &r.ContactID, &capacity, &r.SecondaryCapacity,
		&r.RepresentsRoleID, &r.BankDetails, &r.Notes, &r.GroupID, &kind, &r.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return legal.Role{}, err
	}
	r.Capacity = legal.Capacity(capacity)
	r.GroupKind = legal.GroupKind(kind)
	return r, nil
}

func collectRoles(rows pgx.Rows) ([]legal.Role, error) {
	defer rows.Close()
	items := make([]legal.Role, 0)
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertRole(ctx context.Context, r legal.Role) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO roles (case_id, contact_id, capacity, secondary_capacity, represents_role_id,
		                   bank_details, notes, group_id, group_kind)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''))
		RETURNING id
	`, r.CaseID, r.ContactID, string(r.Capacity), r.SecondaryCapacity, r.RepresentsRoleID,
		r.BankDetails, r.Notes, r.GroupID, string(r.GroupKind)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert role: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetRole(ctx context.Context, id int64) (legal.Role, error) {
	r, err := scanRole(s.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return legal.Role{}, ErrNotFound
	}
	if err != nil {
		return legal.Role{}, fmt.Errorf("get role %d: %w", id, err)
	}
	return r, nil
}

func (s *PostgresStore) UpdateRole(ctx context.Context, r legal.Role) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE roles
		SET capacity = $2, secondary_capacity = NULLIF($3, ''), represents_role_id = $4,
		    bank_details = NULLIF($5, ''), notes = NULLIF($6, ''),
		    group_id = NULLIF($7, ''), group_kind = NULLIF($8, '')
		WHERE id = $1
	`, r.ID, string(r.Capacity), r.SecondaryCapacity, r.RepresentsRoleID,
		r.BankDetails, r.Notes, r.GroupID, string(r.GroupKind))
	if err != nil {
		return fmt.Errorf("update role %d: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteRole(ctx context.Context, id int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete role %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListRoles(ctx context.Context, caseID int64) ([]legal.Role, error) {
	rows, err := s.db.Query(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.case_id = $1 ORDER BY r.id`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list roles of case %d: %w", caseID, err)
	}
	return collectRoles(rows)
}

// ListCaseRoles returns the roles of a case joined with their contacts, in
// capacity-priority order and then by contact name.
func (s *PostgresStore) ListCaseRoles(ctx context.Context, caseID int64) ([]legal.CaseRole, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+roleColumns+`,
		       c.name, c.is_organization, COALESCE(c.dni, ''), COALESCE(c.cuit, ''),
		       COALESCE(c.phone, ''), COALESCE(c.email, ''), COALESCE(tc.name, '')
		FROM roles r
		JOIN contacts c ON c.id = r.contact_id
		LEFT JOIN roles t ON t.id = r.represents_role_id AND t.case_id = r.case_id
		LEFT JOIN contacts tc ON tc.id = t.contact_id
		WHERE r.case_id = $1
		ORDER BY CASE r.capacity
		           WHEN 'Actor' THEN 1
		           WHEN 'Demandado' THEN 2
		           WHEN 'Tercero' THEN 3
		           WHEN 'Abogado' THEN 4
		           WHEN 'Apoderado' THEN 5
		           WHEN 'Perito' THEN 6
		           ELSE 7
		         END,
		         c.name, r.id
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list case roles %d: %w", caseID, err)
	}
	defer rows.Close()

	items := make([]legal.CaseRole, 0)
	for rows.Next() {
		var cr legal.CaseRole
		role, err := scanRole(rows, &cr.ContactName, &cr.IsOrganization, &cr.DNI, &cr.CUIT,
			&cr.Phone, &cr.Email, &cr.RepresentsName)
		if err != nil {
			return nil, fmt.Errorf("scan case role: %w", err)
		}
		cr.Role = role
		items = append(items, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate case roles: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) FindContactRoles(ctx context.Context, caseID, contactID int64, capacity legal.Capacity) ([]legal.Role, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+roleColumns+`
		FROM roles r
		WHERE r.case_id = $1 AND r.contact_id = $2 AND r.capacity = $3
		ORDER BY r.id
	`, caseID, contactID, string(capacity))
	if err != nil {
		return nil, fmt.Errorf("find roles of contact %d in case %d: %w", contactID, caseID, err)
	}
	return collectRoles(rows)
}

// ClearRepresentsTo detaches every role that points at roleID.
func (s *PostgresStore) ClearRepresentsTo(ctx context.Context, roleID int64) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE roles SET represents_role_id = NULL WHERE represents_role_id = $1 AND id <> $1
	`, roleID)
	if err != nil {
		return 0, fmt.Errorf("clear references to role %d: %w", roleID, err)
	}
	return tag.RowsAffected(), nil
}

// ClearOrphanedRepresents nulls represents pointers whose target is not a role of the same case.
func (s *PostgresStore) ClearOrphanedRepresents(ctx context.Context, caseID int64) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE roles r
		SET represents_role_id = NULL
		WHERE r.case_id = $1
		  AND r.represents_role_id IS NOT NULL
		  AND NOT EXISTS (
		      SELECT 1 FROM roles t WHERE t.id = r.represents_role_id AND t.case_id = r.case_id
		  )
		RETURNING r.id
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("clean orphans of case %d: %w", caseID, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect cleaned roles: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) InsertGroup(ctx context.Context, g legal.RepresentationGroup) error {
	parties, err := json.Marshal(g.Parties)
	if err != nil {
		return fmt.Errorf("marshal group parties: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO representation_groups (id, case_id, contact_id, primary_role_id, parties)
		VALUES ($1, $2, $3, $4, $5)
	`, g.ID, g.CaseID, g.ContactID, g.PrimaryRoleID, parties)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &DuplicateKeyError{Table: "representation_groups", Key: g.ID}
	}
	if err != nil {
		return fmt.Errorf("insert group %s: %w", g.ID, err)
	}
	return nil
}

func (s *PostgresStore) SetGroupPrimary(ctx context.Context, groupID string, roleID int64) error {
	tag, err := s.db.Exec(ctx, `UPDATE representation_groups SET primary_role_id = $2 WHERE id = $1`, groupID, roleID)
	if err != nil {
		return fmt.Errorf("set primary of group %s: %w", groupID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const groupColumns = `id, case_id, contact_id, primary_role_id, parties, created_at`

func scanGroup(row pgx.Row) (legal.RepresentationGroup, error) {
	var g legal.RepresentationGroup
	var parties []byte
	if err := row.Scan(&g.ID, &g.CaseID, &g.ContactID, &g.PrimaryRoleID, &parties, &g.CreatedAt); err != nil {
		return legal.RepresentationGroup{}, err
	}
	if len(parties) > 0 {
		if err := json.Unmarshal(parties, &g.Parties); err != nil {
			return legal.RepresentationGroup{}, fmt.Errorf("unmarshal parties of group %s: %w", g.ID, err)
		}
	}
	return g, nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, groupID string) (legal.RepresentationGroup, error) {
	g, err := scanGroup(s.db.QueryRow(ctx, `SELECT `+groupColumns+` FROM representation_groups WHERE id = $1`, groupID))
	if errors.Is(err, pgx.ErrNoRows) {
		return legal.RepresentationGroup{}, ErrNotFound
	}
	if err != nil {
		return legal.RepresentationGroup{}, fmt.Errorf("get group %s: %w", groupID, err)
	}
	return g, nil
}

func (s *PostgresStore) ListGroups(ctx context.Context, caseID int64) ([]legal.RepresentationGroup, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+groupColumns+` FROM representation_groups WHERE case_id = $1 ORDER BY created_at, id
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("list groups of case %d: %w", caseID, err)
	}
	defer rows.Close()

	items := make([]legal.RepresentationGroup, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		items = append(items, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListGroupMembers(ctx context.Context, groupID string) ([]legal.Role, error) {
	rows, err := s.db.Query(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.group_id = $1 ORDER BY r.id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members of group %s: %w", groupID, err)
	}
	return collectRoles(rows)
}

// ClearGroupMembers strips the group markers from every member of the group.
func (s *PostgresStore) ClearGroupMembers(ctx context.Context, groupID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE roles SET group_id = NULL, group_kind = NULL WHERE group_id = $1`, groupID)
	if err != nil {
		return 0, fmt.Errorf("clear members of group %s: %w", groupID, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteGroup(ctx context.Context, groupID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM representation_groups WHERE id = $1`, groupID); err != nil {
		return fmt.Errorf("delete group %s: %w", groupID, err)
	}
	return nil
}

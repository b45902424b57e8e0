package roles

import (
	"context"
	"strings"

	"github.com/sbenjam1n/lpms/internal/legal"
)

// RegisterContact validates and stores a new contact.
func (s *Service) RegisterContact(ctx context.Context, in legal.ContactInput) (int64, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.DNI = strings.TrimSpace(in.DNI)
	in.CUIT = strings.TrimSpace(in.CUIT)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.checkInput(in); err != nil {
		return 0, err
	}

	id, err := s.store.CreateContact(ctx, legal.Contact{
		Name:           in.Name,
		IsOrganization: in.IsOrganization,
		DNI:            in.DNI,
		CUIT:           in.CUIT,
		Address:        strings.TrimSpace(in.Address),
		LegalAddress:   strings.TrimSpace(in.LegalAddress),
		Phone:          strings.TrimSpace(in.Phone),
		Email:          in.Email,
	})
	if err != nil {
		return 0, err
	}
	s.logger.Debug("contact registered", "contact", id, "name", in.Name)
	return id, nil
}

// GetContact returns one contact.
func (s *Service) GetContact(ctx context.Context, id int64) (legal.Contact, error) {
	return requireContact(ctx, s.store, id)
}

// ListContacts returns every contact ordered by name.
func (s *Service) ListContacts(ctx context.Context) ([]legal.Contact, error) {
	return s.store.ListContacts(ctx)
}

// DeleteContact removes a contact together with every role it holds.
func (s *Service) DeleteContact(ctx context.Context, id int64) error {
	deleted, err := s.store.DeleteContact(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return legal.NotFound("contact", id)
	}
	s.logger.Info("contact deleted", "contact", id)
	return nil
}

// OpenCase validates and stores a new case.
func (s *Service) OpenCase(ctx context.Context, in legal.CaseInput) (int64, error) {
	in.Caption = strings.TrimSpace(in.Caption)
	in.Number = strings.TrimSpace(in.Number)
	if err := s.checkInput(in); err != nil {
		return 0, err
	}
	id, err := s.store.CreateCase(ctx, legal.Case{Caption: in.Caption, Number: in.Number})
	if err != nil {
		return 0, err
	}
	s.logger.Debug("case opened", "case", id, "caption", in.Caption)
	return id, nil
}

// ListCases returns every case ordered by id.
func (s *Service) ListCases(ctx context.Context) ([]legal.Case, error) {
	return s.store.ListCases(ctx)
}

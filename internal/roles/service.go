// Package roles owns every write to the representation graph: single roles,
// multi-representation groups and the contacts and cases they hang from.
package roles

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sbenjam1n/lpms/internal/legal"
	"github.com/sbenjam1n/lpms/internal/queue"
	"github.com/sbenjam1n/lpms/internal/store"
	integrity "github.com/sbenjam1n/lpms/internal/validator"
)

// EventSink receives one event per committed mutation. *queue.Queue
// satisfies it.
type EventSink interface {
	PushEvent(ctx context.Context, ev queue.RoleEvent) (string, error)
}

// Service implements the role repository and the multi-representation
// manager on top of a store.
type Service struct {
	store    store.Store
	logger   *log.Logger
	input    *validator.Validate
	events   EventSink
	now      func() time.Time
	suffixFn func() (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithEvents publishes committed mutations to sink.
func WithEvents(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

// WithClock overrides the clock used for group ids.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

const groupSuffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// New creates a Service.
func New(s store.Store, logger *log.Logger, opts ...Option) *Service {
	svc := &Service{
		store:  s,
		logger: logger,
		input:  newInputValidator(),
		now:    time.Now,
		suffixFn: func() (string, error) {
			return gonanoid.Generate(groupSuffixAlphabet, 6)
		},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

var cuitPattern = regexp.MustCompile(`^(\d{2}-\d{8}-\d|\d{11})$`)

func newInputValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("cuit", func(fl validator.FieldLevel) bool {
		return cuitPattern.MatchString(fl.Field().String())
	})
	return v
}

// checkInput runs the struct tags of in and reports the first failure as a
// ValidationError.
func (s *Service) checkInput(in any) error {
	err := s.input.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		if fe.Param() != "" {
			return legal.Invalid(legal.RuleInvalidInput, "%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return legal.Invalid(legal.RuleInvalidInput, "%s failed %s", fe.Field(), fe.Tag())
	}
	return fmt.Errorf("validate input: %w", err)
}

// publish is best effort: the write has already committed.
func (s *Service) publish(ctx context.Context, ev queue.RoleEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PushEvent(ctx, ev); err != nil {
		s.logger.Warn("publish role event", "action", ev.Action, "case", ev.CaseID, "role", ev.RoleID, "err", err)
	}
}

func (s *Service) graph(st store.Store) *integrity.Validator {
	return integrity.New(st, s.logger)
}

// NewGroupID derives a group id from contact and case, the current time and a
// random suffix, so repeated calls for the same pair never collide.
func (s *Service) NewGroupID(contactID, caseID int64) (string, error) {
	suffix, err := s.suffixFn()
	if err != nil {
		return "", fmt.Errorf("generate group suffix: %w", err)
	}
	return fmt.Sprintf("RM_%d_%d_%s_%s", contactID, caseID, s.now().UTC().Format("20060102150405"), suffix), nil
}

func requireCase(ctx context.Context, st store.Store, caseID int64) error {
	exists, err := st.CaseExists(ctx, caseID)
	if err != nil {
		return err
	}
	if !exists {
		return legal.NotFound("case", caseID)
	}
	return nil
}

func requireContact(ctx context.Context, st store.Store, contactID int64) (legal.Contact, error) {
	c, err := st.GetContact(ctx, contactID)
	if errors.Is(err, store.ErrNotFound) {
		return legal.Contact{}, legal.NotFound("contact", contactID)
	}
	return c, err
}

func requireRole(ctx context.Context, st store.Store, roleID int64) (legal.Role, error) {
	r, err := st.GetRole(ctx, roleID)
	if errors.Is(err, store.ErrNotFound) {
		return legal.Role{}, legal.NotFound("role", roleID)
	}
	return r, err
}

// contactNames memoizes contact names for one operation.
type contactNames struct {
	st    store.Store
	cache map[int64]string
}

func newContactNames(st store.Store) *contactNames {
	return &contactNames{st: st, cache: map[int64]string{}}
}

func (n *contactNames) get(ctx context.Context, contactID int64) (string, error) {
	if name, ok := n.cache[contactID]; ok {
		return name, nil
	}
	c, err := n.st.GetContact(ctx, contactID)
	if errors.Is(err, store.ErrNotFound) {
		n.cache[contactID] = ""
		return "", nil
	}
	if err != nil {
		return "", err
	}
	n.cache[contactID] = c.Name
	return c.Name, nil
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

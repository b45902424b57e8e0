// Package auditor runs the case-wide integrity audit after writes: a worker
// consumes role events from Redis and a sweep audits many cases at once.
package auditor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sbenjam1n/lpms/internal/legal"
	"github.com/sbenjam1n/lpms/internal/queue"
	"github.com/sbenjam1n/lpms/internal/store"
	"github.com/sbenjam1n/lpms/internal/validator"
	"golang.org/x/sync/errgroup"
)

// Options tunes an Auditor.
type Options struct {
	// Consumer names this worker inside the auditor consumer group.
	Consumer string
	// AutoRepair clears orphaned and cross-case pointers when found.
	AutoRepair bool
	// Concurrency bounds the number of cases a sweep audits at once.
	Concurrency int
	// Block is how long one read waits for an event.
	Block time.Duration
	// RetryDelay is the pause after a failed read before the next one.
	RetryDelay time.Duration
}

// Auditor audits cases and optionally repairs what can be repaired
// mechanically.
type Auditor struct {
	store  store.Store
	queue  *queue.Queue
	graph  *validator.Validator
	logger *log.Logger
	opts   Options
}

// Finding is the outcome of auditing one case.
type Finding struct {
	CaseID   int64             `json:"case_id"`
	Report   legal.AuditReport `json:"report"`
	Repaired []int64           `json:"repaired,omitempty"`
}

// New creates an Auditor. q may be nil when only Sweep is used.
func New(st store.Store, q *queue.Queue, logger *log.Logger, opts Options) *Auditor {
	if opts.Consumer == "" {
		opts.Consumer = "auditor"
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Block == 0 {
		opts.Block = 5 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Auditor{
		store:  st,
		queue:  q,
		graph:  validator.New(st, logger),
		logger: logger,
		opts:   opts,
	}
}

// ConsumeEvents blocks on Redis, auditing the case of every event as it
// arrives, until ctx is done.
func (a *Auditor) ConsumeEvents(ctx context.Context) error {
	if a.queue == nil {
		return errors.New("auditor has no queue")
	}
	if err := a.queue.EnsureStreams(ctx); err != nil {
		return err
	}
	a.logger.Info("auditor consuming events", "consumer", a.opts.Consumer, "auto_repair", a.opts.AutoRepair)

	for {
		_, err := a.ProcessNext(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil || errors.Is(err, queue.ErrNoMessages) {
			continue
		}
		a.logger.Error("process event", "err", err, "retry_in", a.opts.RetryDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.opts.RetryDelay):
		}
	}
}

// ProcessNext reads one event, audits its case and acknowledges it. It
// returns queue.ErrNoMessages when nothing arrived within the block time.
func (a *Auditor) ProcessNext(ctx context.Context) (*Finding, error) {
	ev, msgID, err := a.queue.ReadEvent(ctx, a.opts.Consumer, a.opts.Block)
	if err != nil {
		if msgID != "" {
			// Ack undecodable entries so they are not redelivered.
			a.ack(ctx, msgID)
		}
		return nil, err
	}
	defer a.ack(ctx, msgID)

	a.logger.Debug("event received", "id", msgID, "action", ev.Action, "case", ev.CaseID, "role", ev.RoleID)
	finding, err := a.AuditCase(ctx, ev.CaseID)
	if legal.IsNotFound(err) {
		a.logger.Debug("case gone before audit", "case", ev.CaseID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit case %d after %s: %w", ev.CaseID, ev.Action, err)
	}
	return &finding, nil
}

func (a *Auditor) ack(ctx context.Context, msgID string) {
	if err := a.queue.Ack(ctx, msgID); err != nil {
		a.logger.Warn("ack event", "id", msgID, "err", err)
	}
}

// AuditCase audits one case, repairing dangling pointers when AutoRepair is
// set. The returned report reflects the state after any repair.
func (a *Auditor) AuditCase(ctx context.Context, caseID int64) (Finding, error) {
	report, err := a.graph.ValidateHierarchy(ctx, caseID)
	if err != nil {
		return Finding{}, err
	}
	finding := Finding{CaseID: caseID, Report: report}

	if a.opts.AutoRepair && hasDangling(report) {
		repaired, err := a.graph.CleanOrphanedRepresentations(ctx, caseID)
		if err != nil {
			return Finding{}, fmt.Errorf("repair case %d: %w", caseID, err)
		}
		finding.Repaired = repaired
		if len(repaired) > 0 {
			if finding.Report, err = a.graph.ValidateHierarchy(ctx, caseID); err != nil {
				return Finding{}, err
			}
		}
	}

	for _, v := range finding.Report.Violations {
		a.logger.Warn("integrity violation", "case", caseID, "check", v.Check, "roles", v.RoleIDs, "fix", v.Fix)
	}
	return finding, nil
}

func hasDangling(r legal.AuditReport) bool {
	for _, v := range r.Violations {
		if v.Check == legal.CheckOrphan || v.Check == legal.CheckCrossCase {
			return true
		}
	}
	return false
}

// Sweep audits caseIDs concurrently, or every case when caseIDs is empty.
// Findings come back in input order; cases that do not exist are logged and
// left out.
func (a *Auditor) Sweep(ctx context.Context, caseIDs []int64) ([]Finding, error) {
	if len(caseIDs) == 0 {
		cases, err := a.store.ListCases(ctx)
		if err != nil {
			return nil, fmt.Errorf("list cases: %w", err)
		}
		for _, c := range cases {
			caseIDs = append(caseIDs, c.ID)
		}
	}

	results := make([]*Finding, len(caseIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	for i, id := range caseIDs {
		g.Go(func() error {
			f, err := a.AuditCase(gctx, id)
			if legal.IsNotFound(err) {
				a.logger.Warn("case gone before sweep", "case", id)
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = &f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(results))
	failed := 0
	for _, f := range results {
		if f == nil {
			continue
		}
		findings = append(findings, *f)
		if !f.Report.Passed() {
			failed++
		}
	}
	a.logger.Info("sweep finished", "cases", len(findings), "with_violations", failed)
	return findings, nil
}

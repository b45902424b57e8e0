package store

import (
	"context"
	"errors"
	"testing"

	"github.com/sbenjam1n/lpms/internal/legal"
)

func caseCount(t *testing.T, s *MemoryStore) int {
	t.Helper()
	cases, err := s.ListCases(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return len(cases)
}

func TestMemoryInTxRollsBackOnError(t *testing.T) {
	s := NewMemoryStore()
	boom := errors.New("boom")
	err := s.InTx(context.Background(), func(tx Store) error {
		if _, err := tx.CreateCase(context.Background(), legal.Case{Caption: "Pérez c/ ACME SA"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if n := caseCount(t, s); n != 0 {
		t.Errorf("cases persisted = %d, want 0", n)
	}
}

func TestMemoryInTxRollsBackWhenContextEnds(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	err := s.InTx(ctx, func(tx Store) error {
		if _, err := tx.CreateCase(ctx, legal.Case{Caption: "Pérez c/ ACME SA"}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n := caseCount(t, s); n != 0 {
		t.Errorf("cases persisted = %d, want 0", n)
	}
}

func TestMemoryNestedInTxActsAsSavepoint(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	err := s.InTx(ctx, func(tx Store) error {
		if _, err := tx.CreateCase(ctx, legal.Case{Caption: "kept"}); err != nil {
			return err
		}
		inner := tx.InTx(ctx, func(tx Store) error {
			if _, err := tx.CreateCase(ctx, legal.Case{Caption: "dropped"}); err != nil {
				return err
			}
			return errors.New("inner failure")
		})
		if inner == nil {
			t.Error("inner InTx should fail")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("outer InTx: %v", err)
	}
	cases, _ := s.ListCases(ctx)
	if len(cases) != 1 || cases[0].Caption != "kept" {
		t.Errorf("cases = %+v, want only the outer one", cases)
	}
}

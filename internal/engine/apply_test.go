package engine

import (
	"testing"

	"urbanaid/internal/domain"
	"urbanaid/internal/events"
)

func TestApplyLastWriteWinsPerReport(t *testing.T) {
	e := New(nil, nil, events.Writer{})

	newer := domain.Report{ID: "3", Status: domain.StatusAssigned}
	older := domain.Report{ID: "3", Status: domain.StatusCreated}
	other := domain.Report{ID: "4", Status: domain.StatusCreated}

	if got := e.apply(newer, 10); got.Status != domain.StatusAssigned {
		t.Fatalf("apply newer = %+v", got)
	}
	// a late-arriving response from an earlier dispatch must not clobber
	// the newer snapshot
	if got := e.apply(older, 5); got.Status != domain.StatusAssigned {
		t.Fatalf("stale write won: %+v", got)
	}
	// sequences are per report id, not global
	if got := e.apply(other, 6); got.Status != domain.StatusCreated {
		t.Fatalf("apply other report = %+v", got)
	}
	if snap, ok := e.Snapshot("3"); !ok || snap.Status != domain.StatusAssigned {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestEnsureTransition(t *testing.T) {
	legal := [][2]domain.Status{
		{domain.StatusCreated, domain.StatusAssigned},
		{domain.StatusAssigned, domain.StatusInProgress},
		{domain.StatusInProgress, domain.StatusCompleted},
	}
	for _, pair := range legal {
		if err := ensureTransition(pair[0], pair[1]); err != nil {
			t.Errorf("%s -> %s rejected: %v", pair[0], pair[1], err)
		}
	}
	illegal := [][2]domain.Status{
		{domain.StatusCreated, domain.StatusInProgress},
		{domain.StatusCreated, domain.StatusCompleted},
		{domain.StatusAssigned, domain.StatusCreated},
		{domain.StatusAssigned, domain.StatusCompleted},
		{domain.StatusInProgress, domain.StatusAssigned},
		{domain.StatusCompleted, domain.StatusInProgress},
		{domain.StatusCompleted, domain.StatusCompleted},
	}
	for _, pair := range illegal {
		if err := ensureTransition(pair[0], pair[1]); err == nil {
			t.Errorf("%s -> %s accepted", pair[0], pair[1])
		}
	}
}

package journal_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nodeipc/internal/journal"
	"nodeipc/internal/testsupport"
)

func TestOpenDisabledJournal(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithJournalDisabled())
	if _, err := journal.Open(cfg); !errors.Is(err, journal.ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestRecordAndListNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []*journal.Entry{
		{StartedAt: base, Command: "call", Method: "eth_blockNumber", Endpoint: "/tmp/geth.ipc", Duration: 12 * time.Millisecond},
		{StartedAt: base.Add(time.Second), Command: "call", Method: "eth_chainId", Outcome: journal.OutcomeRPCError, Detail: "method not found"},
		{StartedAt: base.Add(2 * time.Second), Command: "batch", Method: "eth_blockNumber,eth_chainId", BatchSize: 2, Outcome: journal.OutcomeFailed, ErrorKind: "timeout"},
	}
	for _, entry := range entries {
		if err := store.Record(ctx, entry); err != nil {
			t.Fatalf("Record: %v", err)
		}
		if entry.ID == 0 {
			t.Fatal("expected Record to assign an id")
		}
	}

	got, err := store.List(ctx, journal.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Command != "batch" || got[0].BatchSize != 2 || got[0].ErrorKind != "timeout" {
		t.Fatalf("unexpected newest entry: %+v", got[0])
	}
	if got[1].Outcome != journal.OutcomeRPCError || got[1].Detail != "method not found" {
		t.Fatalf("unexpected second entry: %+v", got[1])
	}
	if !got[1].StartedAt.Equal(base.Add(time.Second)) {
		t.Fatalf("start time not preserved: %s", got[1].StartedAt)
	}

	filtered, err := store.List(ctx, journal.ListOptions{Method: "eth_blockNumber"})
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Duration != 12*time.Millisecond {
		t.Fatalf("unexpected filtered entries: %+v", filtered)
	}
	if filtered[0].Outcome != journal.OutcomeOK {
		t.Fatalf("expected default outcome ok, got %q", filtered[0].Outcome)
	}
}

func TestSummarizeAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	record := func(method string, outcome journal.Outcome, d time.Duration) {
		t.Helper()
		if err := store.Record(ctx, &journal.Entry{Command: "call", Method: method, Outcome: outcome, Duration: d}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	record("eth_blockNumber", journal.OutcomeOK, 10*time.Millisecond)
	record("eth_blockNumber", journal.OutcomeFailed, 30*time.Millisecond)
	record("net_version", journal.OutcomeOK, 5*time.Millisecond)

	summaries, err := store.Summarize(ctx)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 methods, got %d", len(summaries))
	}
	first := summaries[0]
	if first.Method != "eth_blockNumber" || first.Calls != 2 || first.Failures != 1 {
		t.Fatalf("unexpected summary: %+v", first)
	}
	if first.AvgDuration != 20*time.Millisecond {
		t.Fatalf("unexpected average: %s", first.AvgDuration)
	}

	removed, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	remaining, err := store.List(ctx, journal.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected empty journal, got %d entries", len(remaining))
	}
}

func TestConcurrentOpenAppliesMigrationsOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store, err := journal.Open(cfg)
			if err != nil {
				errs <- err
				return
			}
			errs <- store.Close()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent open failed: %v", err)
		}
	}

	store := testsupport.MustOpenJournal(t, cfg)
	if err := store.Record(context.Background(), &journal.Entry{Command: "ping", Method: "web3_clientVersion"}); err != nil {
		t.Fatalf("Record after concurrent open: %v", err)
	}
}

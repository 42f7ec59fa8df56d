package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kalambet/specwright/internal/contract"
	"github.com/kalambet/specwright/internal/storage"
)

func newTestQueue(t *testing.T) *SQLite {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewSQLite(s)
}

func TestEnqueueExtraction_Idempotent(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if err := q.EnqueueExtraction(ctx, "job_1"); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	if err := q.EnqueueExtraction(ctx, "job_1"); err != nil {
		t.Fatalf("retried enqueue failed: %v", err)
	}

	first, err := q.Claim(TypeExtraction)
	if err != nil || first == nil {
		t.Fatalf("claim failed: %v, %v", first, err)
	}

	var payload ExtractionPayload
	if err := json.Unmarshal([]byte(first.PayloadJSON), &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.JobID != "job_1" {
		t.Errorf("payload = %+v", payload)
	}

	// A second claim must come up empty: the retry was deduplicated.
	second, err := q.Claim(TypeExtraction)
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	if second != nil {
		t.Errorf("retried enqueue produced a second work item: %+v", second)
	}
}

func TestEnqueueRun_ReturnsCanonicalRunID(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	first, err := q.EnqueueRun(ctx, "job_1", "t_1")
	if err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	if first == "" {
		t.Fatal("empty run id")
	}

	second, err := q.EnqueueRun(ctx, "job_1", "t_1")
	if err != nil {
		t.Fatalf("retried enqueue failed: %v", err)
	}
	if second != first {
		t.Errorf("retried enqueue returned %s, want canonical %s", second, first)
	}

	// A different test id is separate work.
	other, err := q.EnqueueRun(ctx, "job_1", "t_2")
	if err != nil {
		t.Fatalf("enqueue for second test failed: %v", err)
	}
	if other == first {
		t.Error("distinct test ids must not share a run id")
	}
}

func TestEnqueueRun_NewRunAfterCompletion(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	first, _ := q.EnqueueRun(ctx, "job_1", "t_1")
	claimed, err := q.Claim(TypeRun)
	if err != nil || claimed == nil {
		t.Fatalf("claim failed: %v, %v", claimed, err)
	}
	if err := q.Complete(claimed.ID); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	second, err := q.EnqueueRun(ctx, "job_1", "t_1")
	if err != nil {
		t.Fatalf("re-enqueue failed: %v", err)
	}
	if second == first {
		t.Error("completed run id reused for new run")
	}
}

func TestFail_WrapsQueueError(t *testing.T) {
	q := newTestQueue(t)

	err := q.Fail("q_missing", errors.New("boom"))
	if err == nil {
		t.Fatal("expected error for unknown work item")
	}
	var qerr *contract.QueueError
	if !errors.As(err, &qerr) {
		t.Errorf("err = %T, want *contract.QueueError", err)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want wrapped ErrNotFound", err)
	}
}

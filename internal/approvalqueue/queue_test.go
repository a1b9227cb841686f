package approvalqueue

import (
	"errors"
	"testing"
	"time"

	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

func TestSubmitAndGet(t *testing.T) {
	q := New()
	req := model.ApprovalRequest{ID: "a1", SessionID: "s1", ToolCall: model.ToolCall{Name: "execute_shell"}}
	if err := q.Submit(req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got, ok := q.Get("a1")
	if !ok {
		t.Fatal("expected request to be found")
	}
	if got.Status != model.ApprovalStatusPending {
		t.Fatalf("expected pending status, got %s", got.Status)
	}
}

func TestSubmitDuplicateFails(t *testing.T) {
	q := New()
	req := model.ApprovalRequest{ID: "a1"}
	if err := q.Submit(req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := q.Submit(req); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestResolveApproveAndDeny(t *testing.T) {
	q := New()
	q.Submit(model.ApprovalRequest{ID: "a1"})
	q.Submit(model.ApprovalRequest{ID: "a2"})

	approved, err := q.Resolve("a1", Resolution{Decision: model.ApprovalAllow})
	if err != nil {
		t.Fatalf("Resolve a1: %v", err)
	}
	if approved.Status != model.ApprovalStatusApproved {
		t.Fatalf("expected approved status, got %s", approved.Status)
	}

	denied, err := q.Resolve("a2", Resolution{Decision: model.ApprovalDeny})
	if err != nil {
		t.Fatalf("Resolve a2: %v", err)
	}
	if denied.Status != model.ApprovalStatusDenied {
		t.Fatalf("expected denied status, got %s", denied.Status)
	}

	if _, ok := q.Get("a1"); ok {
		t.Fatal("expected a1 removed from pending after resolution")
	}
}

func TestResolveMissingFails(t *testing.T) {
	q := New()
	if _, err := q.Resolve("missing", Resolution{Decision: model.ApprovalAllow}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAndListForSession(t *testing.T) {
	q := New()
	q.Submit(model.ApprovalRequest{ID: "a1", SessionID: "s1"})
	q.Submit(model.ApprovalRequest{ID: "a2", SessionID: "s2"})
	q.Submit(model.ApprovalRequest{ID: "a3", SessionID: "s1"})

	if len(q.List()) != 3 {
		t.Fatalf("expected 3 pending requests, got %d", len(q.List()))
	}
	s1 := q.ListForSession("s1")
	if len(s1) != 2 {
		t.Fatalf("expected 2 requests for s1, got %d", len(s1))
	}
}

func TestSweepExpiredRemovesPastDeadline(t *testing.T) {
	q := New()
	now := time.Now()
	q.Submit(model.ApprovalRequest{ID: "expired", Deadline: now.Add(-time.Second)})
	q.Submit(model.ApprovalRequest{ID: "future", Deadline: now.Add(time.Hour)})
	q.Submit(model.ApprovalRequest{ID: "no-deadline"})

	expired := q.SweepExpired(now)
	if len(expired) != 1 || expired[0].ID != "expired" {
		t.Fatalf("expected exactly the expired request, got %+v", expired)
	}
	if expired[0].Status != model.ApprovalStatusExpired {
		t.Fatalf("expected expired status, got %s", expired[0].Status)
	}

	if _, ok := q.Get("expired"); ok {
		t.Fatal("expected expired request removed from pending")
	}
	if _, ok := q.Get("future"); !ok {
		t.Fatal("expected future-deadline request to remain pending")
	}
	if _, ok := q.Get("no-deadline"); !ok {
		t.Fatal("expected zero-deadline request to never expire")
	}
}

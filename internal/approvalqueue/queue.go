// Package approvalqueue implements spec §4.9: the pending-approval table
// the FSM engine consults while a session sits in human_input, resolved
// by gateway tool:approve / tool:reject / tool:reply messages.
package approvalqueue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

// ErrNotFound is returned (wrapped with the id) by Resolve for an unknown
// or already resolved request id.
var ErrNotFound = errors.New("approvalqueue: request not found")

// ErrAlreadyExists is returned (wrapped with the id) by Submit when the id
// is already pending.
var ErrAlreadyExists = errors.New("approvalqueue: request already exists")

// Resolution is how the gateway resolves an ApprovalRequest (§6.4
// tool:approve / tool:reject / tool:reply).
type Resolution struct {
	Decision     model.ApprovalDecision
	ReplyContent string
}

// Queue holds pending ApprovalRequests keyed by id.
type Queue struct {
	mu      sync.Mutex
	pending map[string]*model.ApprovalRequest
}

// New builds an empty Queue.
func New() *Queue {
	return &Queue{pending: make(map[string]*model.ApprovalRequest)}
}

// Submit registers a new pending request. req.Status is forced to
// ApprovalStatusPending.
func (q *Queue) Submit(req model.ApprovalRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.pending[req.ID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, req.ID)
	}
	req.Status = model.ApprovalStatusPending
	q.pending[req.ID] = &req
	return nil
}

// Get returns a pending request by id.
func (q *Queue) Get(id string) (model.ApprovalRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	req, ok := q.pending[id]
	if !ok {
		return model.ApprovalRequest{}, false
	}
	return *req, true
}

// Resolve applies a gateway decision to a pending request and removes it
// from the pending set. tool:approve/tool:reject map to ApprovalAllow/
// ApprovalDeny; tool:reply carries a ReplyContent with no allow/deny
// decision, used for human_input turns that aren't a tool approval.
func (q *Queue) Resolve(id string, res Resolution) (model.ApprovalRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	req, ok := q.pending[id]
	if !ok {
		return model.ApprovalRequest{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(q.pending, id)

	switch res.Decision {
	case model.ApprovalDeny:
		req.Status = model.ApprovalStatusDenied
	default:
		req.Status = model.ApprovalStatusApproved
	}
	return *req, nil
}

// List returns every currently pending request, in no particular order.
func (q *Queue) List() []model.ApprovalRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.ApprovalRequest, 0, len(q.pending))
	for _, req := range q.pending {
		out = append(out, *req)
	}
	return out
}

// ListForSession returns every pending request for a given session.
func (q *Queue) ListForSession(sessionID string) []model.ApprovalRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []model.ApprovalRequest
	for _, req := range q.pending {
		if req.SessionID == sessionID {
			out = append(out, *req)
		}
	}
	return out
}

// SweepExpired removes and returns every pending request whose deadline
// has passed as of now. Requests with a zero Deadline never expire. The
// FSM engine calls this on its tick and, for each expired entry, resolves
// the corresponding tool-call with {success:false, content:"denied
// (timeout)"} (§4.9).
func (q *Queue) SweepExpired(now time.Time) []model.ApprovalRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	var expired []model.ApprovalRequest
	for id, req := range q.pending {
		if req.Deadline.IsZero() || now.Before(req.Deadline) {
			continue
		}
		req.Status = model.ApprovalStatusExpired
		expired = append(expired, *req)
		delete(q.pending, id)
	}
	return expired
}

// ExpiredResult is the fixed ToolResult a timed-out approval resolves to
// (§4.9).
var ExpiredResult = model.ToolResult{Success: false, Content: "denied (timeout)"}

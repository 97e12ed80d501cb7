package bridge

import (
	"fmt"
	"log/slog"
	"sync"
)

// Result is what settles a PendingRequest's future: exactly one of Payload
// (the reply's raw fields) or Err.
type Result struct {
	Payload map[string]any
	Err     error
}

// PendingRequest is a single outstanding dispatch, owned exclusively by the
// Registry. Script and Command are retained only for diagnostics; the
// registry never inspects them.
type PendingRequest struct {
	ID      int64
	Script  string
	Command *CommandMetadata
	TraceID string

	resultCh chan Result
	done     bool
}

// CommandMetadata is optional context attached to a dispatch, serialized
// into the outbound wire message under a "command" field.
type CommandMetadata struct {
	Type   string         `json:"type,omitempty"`
	Tool   string         `json:"tool,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Registry allocates request IDs and owns the table of outstanding
// requests. It is the only component that mutates pending-request state;
// all access is serialized under mu. IDs are monotonic and never reused
// within the registry's lifetime.
type Registry struct {
	mu      sync.Mutex
	pending map[int64]*PendingRequest
	nextID  int64
	logger  *slog.Logger
}

// NewRegistry builds an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		pending: make(map[int64]*PendingRequest),
		logger:  logger.With("component", "registry"),
	}
}

// Create allocates the next request ID, inserts a PendingRequest, and
// returns the ID along with a buffered channel that will receive exactly
// one Result from a later Complete/Fail/CancelAll.
func (r *Registry) Create(script string, command *CommandMetadata, traceID string) (int64, <-chan Result) {
	ch := make(chan Result, 1)

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.pending[id] = &PendingRequest{
		ID:       id,
		Script:   script,
		Command:  command,
		TraceID:  traceID,
		resultCh: ch,
	}
	r.mu.Unlock()

	return id, ch
}

// Complete atomically removes the entry for id and, if present and not
// already terminal, resolves its future with payload. Returns whether a
// matching pending request was found.
func (r *Registry) Complete(id int64, payload map[string]any) bool {
	return r.settle(id, Result{Payload: payload})
}

// Fail is the error-path counterpart to Complete.
func (r *Registry) Fail(id int64, err error) bool {
	return r.settle(id, Result{Err: err})
}

func (r *Registry) settle(id int64, result Result) bool {
	r.mu.Lock()
	req, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("settle for unknown request id", "id", id)
		return false
	}
	if req.done {
		return false
	}
	req.done = true
	req.resultCh <- result
	return true
}

// CancelAll drains the table and fails every pending future with a
// connection-loss error carrying reason. Called on peer disconnect and on
// bridge shutdown.
func (r *Registry) CancelAll(reason string) {
	r.mu.Lock()
	requests := make([]*PendingRequest, 0, len(r.pending))
	for _, req := range r.pending {
		requests = append(requests, req)
	}
	r.pending = make(map[int64]*PendingRequest)
	r.mu.Unlock()

	err := fmt.Errorf("connection lost: %s", reason)
	for _, req := range requests {
		if req.done {
			continue
		}
		req.done = true
		req.resultCh <- Result{Err: err}
		r.logger.Debug("cancelled pending request", "id", req.ID, "reason", reason)
	}
}

// Pending returns the number of outstanding requests. Used by tests and
// readiness diagnostics, never on a hot path.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

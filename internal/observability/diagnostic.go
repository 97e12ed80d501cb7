// Package observability provides diagnostic event types and emission.
package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// DiagnosticEventType identifies the type of diagnostic event.
type DiagnosticEventType string

const (
	DiagEventDispatchSent        DiagnosticEventType = "dispatch.sent"
	DiagEventDispatchAcked       DiagnosticEventType = "dispatch.acked"
	DiagEventDispatchTimeout     DiagnosticEventType = "dispatch.timeout"
	DiagEventDispatchError       DiagnosticEventType = "dispatch.error"
	DiagEventPeerConnected       DiagnosticEventType = "peer.connected"
	DiagEventPeerDisconnected    DiagnosticEventType = "peer.disconnected"
	DiagEventTaskStageComplete   DiagnosticEventType = "task.stage.complete"
	DiagEventLibraryResolved     DiagnosticEventType = "library.resolved"
	DiagEventDiagnosticHeartbeat DiagnosticEventType = "diagnostic.heartbeat"
)

// DiagnosticEvent is the base event structure.
type DiagnosticEvent struct {
	Type DiagnosticEventType `json:"type"`
	Seq  int64               `json:"seq"`
	Ts   int64               `json:"ts"`
}

// DispatchSentEvent tracks a script dispatched to the peer.
type DispatchSentEvent struct {
	DiagnosticEvent
	TraceID     string `json:"trace_id"`
	CommandType string `json:"command_type"`
	ScriptBytes int    `json:"script_bytes,omitempty"`
}

// DispatchAckedEvent tracks a dispatch that received its reply.
type DispatchAckedEvent struct {
	DiagnosticEvent
	TraceID     string `json:"trace_id"`
	CommandType string `json:"command_type"`
	DurationMs  int64  `json:"duration_ms"`
}

// DispatchTimeoutEvent tracks a dispatch that exceeded its deadline.
type DispatchTimeoutEvent struct {
	DiagnosticEvent
	TraceID        string `json:"trace_id"`
	CommandType    string `json:"command_type"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// DispatchErrorEvent tracks a dispatch that failed outright (not a timeout).
type DispatchErrorEvent struct {
	DiagnosticEvent
	TraceID     string `json:"trace_id"`
	CommandType string `json:"command_type"`
	Error       string `json:"error"`
}

// PeerConnectedEvent tracks the CEP extension establishing a WebSocket connection.
type PeerConnectedEvent struct {
	DiagnosticEvent
	RemoteAddr string `json:"remote_addr,omitempty"`
}

// PeerDisconnectedEvent tracks the CEP extension dropping its connection.
type PeerDisconnectedEvent struct {
	DiagnosticEvent
	Reason string `json:"reason,omitempty"`
}

// TaskStageCompleteEvent tracks one stage of the Task Envelope Runtime finishing.
type TaskStageCompleteEvent struct {
	DiagnosticEvent
	TraceID    string `json:"trace_id"`
	Stage      string `json:"stage"`
	Outcome    string `json:"outcome"`
	DurationMs int64  `json:"duration_ms"`
	Attempt    int    `json:"attempt"`
}

// LibraryResolvedEvent tracks a resolved library/helper lookup used while
// building a dispatched script (e.g. a named color swatch or artboard alias).
type LibraryResolvedEvent struct {
	DiagnosticEvent
	TraceID string `json:"trace_id"`
	Name    string `json:"name"`
	Found   bool   `json:"found"`
}

// DiagnosticHeartbeatEvent reports periodic bridge health counters.
type DiagnosticHeartbeatEvent struct {
	DiagnosticEvent
	PeerConnected     bool  `json:"peer_connected"`
	PendingRequests   int   `json:"pending_requests"`
	DispatchesOK      int64 `json:"dispatches_ok"`
	DispatchesError   int64 `json:"dispatches_error"`
	DispatchesTimeout int64 `json:"dispatches_timeout"`
}

// DiagnosticEventPayload is a union type for all diagnostic events.
type DiagnosticEventPayload interface {
	EventType() DiagnosticEventType
	Sequence() int64
	Timestamp() int64
}

func (e *DiagnosticEvent) EventType() DiagnosticEventType { return e.Type }
func (e *DiagnosticEvent) Sequence() int64                { return e.Seq }
func (e *DiagnosticEvent) Timestamp() int64               { return e.Ts }

// DiagnosticListener receives diagnostic events.
type DiagnosticListener func(event DiagnosticEventPayload)

// DiagnosticEmitter manages diagnostic event emission.
type DiagnosticEmitter struct {
	mu        sync.RWMutex
	seq       int64
	enabled   bool
	listeners []DiagnosticListener
}

var globalEmitter = &DiagnosticEmitter{}

// SetDiagnosticsEnabled enables or disables diagnostic events.
func SetDiagnosticsEnabled(enabled bool) {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	globalEmitter.enabled = enabled
}

// IsDiagnosticsEnabled returns whether diagnostics are enabled.
func IsDiagnosticsEnabled() bool {
	globalEmitter.mu.RLock()
	defer globalEmitter.mu.RUnlock()
	return globalEmitter.enabled
}

// OnDiagnosticEvent registers a listener for diagnostic events.
func OnDiagnosticEvent(listener DiagnosticListener) func() {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	globalEmitter.listeners = append(globalEmitter.listeners, listener)

	return func() {
		globalEmitter.mu.Lock()
		defer globalEmitter.mu.Unlock()
		for i, l := range globalEmitter.listeners {
			if &l == &listener {
				globalEmitter.listeners = append(globalEmitter.listeners[:i], globalEmitter.listeners[i+1:]...)
				break
			}
		}
	}
}

func nextSeq() int64 {
	return atomic.AddInt64(&globalEmitter.seq, 1)
}

func emit(event DiagnosticEventPayload) {
	globalEmitter.mu.RLock()
	if !globalEmitter.enabled {
		globalEmitter.mu.RUnlock()
		return
	}
	listeners := make([]DiagnosticListener, len(globalEmitter.listeners))
	copy(listeners, globalEmitter.listeners)
	globalEmitter.mu.RUnlock()

	for _, listener := range listeners {
		func() {
			defer func() {
				recover() // listener panics must not take down the dispatch loop
			}()
			listener(event)
		}()
	}
}

// EmitDispatchSent emits a dispatch.sent event.
func EmitDispatchSent(e *DispatchSentEvent) {
	e.Type = DiagEventDispatchSent
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitDispatchAcked emits a dispatch.acked event.
func EmitDispatchAcked(e *DispatchAckedEvent) {
	e.Type = DiagEventDispatchAcked
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitDispatchTimeout emits a dispatch.timeout event.
func EmitDispatchTimeout(e *DispatchTimeoutEvent) {
	e.Type = DiagEventDispatchTimeout
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitDispatchError emits a dispatch.error event.
func EmitDispatchError(e *DispatchErrorEvent) {
	e.Type = DiagEventDispatchError
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitPeerConnected emits a peer.connected event.
func EmitPeerConnected(e *PeerConnectedEvent) {
	e.Type = DiagEventPeerConnected
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitPeerDisconnected emits a peer.disconnected event.
func EmitPeerDisconnected(e *PeerDisconnectedEvent) {
	e.Type = DiagEventPeerDisconnected
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitTaskStageComplete emits a task.stage.complete event.
func EmitTaskStageComplete(e *TaskStageCompleteEvent) {
	e.Type = DiagEventTaskStageComplete
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitLibraryResolved emits a library.resolved event.
func EmitLibraryResolved(e *LibraryResolvedEvent) {
	e.Type = DiagEventLibraryResolved
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// EmitDiagnosticHeartbeat emits a diagnostic.heartbeat event.
func EmitDiagnosticHeartbeat(e *DiagnosticHeartbeatEvent) {
	e.Type = DiagEventDiagnosticHeartbeat
	e.Seq = nextSeq()
	e.Ts = time.Now().UnixMilli()
	emit(e)
}

// ResetDiagnosticsForTest resets diagnostic state for testing.
func ResetDiagnosticsForTest() {
	globalEmitter.mu.Lock()
	defer globalEmitter.mu.Unlock()
	atomic.StoreInt64(&globalEmitter.seq, 0)
	globalEmitter.listeners = nil
}

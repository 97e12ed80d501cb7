// Package bridge implements the dispatch bridge: the WebSocket listener,
// the single ExtensionPeer's lifecycle, and the outbound Send API that the
// executor builds on. It owns the I/O loop but not request semantics,
// which live in the Registry.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	illustratorerrors "github.com/illustrator-bridge/core/internal/errors"
)

// Metrics is the observability hook the bridge calls into. Kept as a small
// interface here (rather than importing the observability package
// directly) so the dispatch core has no dependency on how metrics are
// exported; internal/observability supplies the Prometheus-backed
// implementation, NoopMetrics satisfies it for tests.
type Metrics interface {
	DispatchStarted()
	DispatchSettled(outcome string, elapsed time.Duration)
	PeerConnected()
	PeerDisconnected()
	PendingRequests(n int)
}

// NoopMetrics discards every call. Used when no Metrics is supplied.
type NoopMetrics struct{}

func (NoopMetrics) DispatchStarted()                             {}
func (NoopMetrics) DispatchSettled(outcome string, d time.Duration) {}
func (NoopMetrics) PeerConnected()                                {}
func (NoopMetrics) PeerDisconnected()                             {}
func (NoopMetrics) PendingRequests(n int)                         {}

// Config configures the listener. Host is always loopback-bound by the
// caller (internal/config validates this); Bridge itself just dials
// net.Listen with whatever address it's given.
type Config struct {
	Host           string
	Port           int
	DefaultTimeout time.Duration
}

// Bridge runs the WebSocket listener, accepts at most one peer at a time,
// and exposes Send as the only way to dispatch work to it.
type Bridge struct {
	cfg      Config
	logger   *slog.Logger
	registry *Registry
	metrics  Metrics

	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener

	mu    sync.Mutex
	peer  *peerConn
	state PeerState
}

// New builds a Bridge. registry must be non-nil; metrics may be nil (a
// NoopMetrics is substituted).
func New(cfg Config, registry *Registry, logger *slog.Logger, metrics Metrics) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	b := &Bridge{
		cfg:      cfg,
		logger:   logger.With("component", "bridge"),
		registry: registry,
		metrics:  metrics,
		state:    StateDisconnected,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	b.httpServer = &http.Server{Handler: http.HandlerFunc(b.serveHTTP)}
	return b
}

// Start binds the listener and begins serving. Binding happens
// synchronously so that an occupied port fails fast with a specific error,
// per §4.2; serving then proceeds on a background goroutine.
func (b *Bridge) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", b.cfg.Host, b.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge: address in use or unavailable (%s): %w", addr, err)
	}
	b.listener = ln

	go func() {
		if err := b.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			b.logger.Error("listener stopped unexpectedly", "error", err)
		}
	}()

	b.logger.Info("dispatch bridge started", "addr", addr)
	return nil
}

// Stop closes the peer (code 1000, "Server shutting down"), shuts the HTTP
// server down within the supplied context's deadline, and cancels any still
// pending requests.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	peer := b.peer
	b.peer = nil
	b.state = StateDisconnected
	b.mu.Unlock()

	if peer != nil {
		peer.closeWith(websocket.CloseNormalClosure, "Server shutting down")
		b.metrics.PeerDisconnected()
	}

	err := b.httpServer.Shutdown(ctx)

	b.registry.CancelAll("bridge stopped")
	b.metrics.PendingRequests(0)
	return err
}

// Connected reports whether a peer is currently attached and usable.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peer != nil && b.state == StateConnected
}

func (b *Bridge) currentPeer() *peerConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peer
}

// serveHTTP upgrades the connection and installs it as the current peer,
// displacing any predecessor. The new peer reference is swapped in before
// the old one is closed, so no reply can be delivered to the wrong stream
// (§9 "last-connection-wins").
func (b *Bridge) serveHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	newPeer := newPeerConn(context.Background(), conn)

	b.mu.Lock()
	old := b.peer
	b.peer = newPeer
	b.state = StateConnected
	b.mu.Unlock()

	if old != nil {
		b.logger.Info("displacing existing peer", "old_peer", old.id, "new_peer", newPeer.id)
		old.closeWith(websocket.CloseNormalClosure, "Replaced")
	}

	b.metrics.PeerConnected()
	b.logger.Info("extension peer connected", "peer_id", newPeer.id)

	go newPeer.writeLoop()
	newPeer.readLoop(b, b.logger)
}

// dropPeer clears the peer pointer if it still matches p (it may already
// have been displaced by a newer connection) and cancels pending requests.
func (b *Bridge) dropPeer(p *peerConn, reason string) {
	b.mu.Lock()
	isCurrent := b.peer == p
	if isCurrent {
		b.peer = nil
		b.state = StateDisconnected
	}
	b.mu.Unlock()

	if !isCurrent {
		return
	}

	b.logger.Info("extension peer disconnected", "peer_id", p.id, "reason", reason)
	b.metrics.PeerDisconnected()
	b.registry.CancelAll(reason)
}

// Send is the only way to submit work to the peer. It returns a
// DISCONNECTED response immediately (without burning a request ID) if no
// peer is attached.
func (b *Bridge) Send(ctx context.Context, script string, timeout time.Duration, command *CommandMetadata, traceID string) ExecutionResponse {
	start := time.Now()
	b.metrics.DispatchStarted()

	peer := b.currentPeer()
	if peer == nil {
		b.metrics.DispatchSettled("disconnected", time.Since(start))
		return ExecutionResponse{
			Error:   illustratorerrors.FormatDisconnected("no extension peer connected"),
			TraceID: traceID,
		}
	}

	id, resultCh := b.registry.Create(script, command, traceID)
	b.metrics.PendingRequests(b.registry.Pending())

	frame := dispatchFrame{ID: id, Script: script, Command: command, TraceID: traceID}
	data, err := decodeOutboundFrame(frame)
	if err != nil {
		b.registry.Fail(id, err)
		b.metrics.DispatchSettled("execution_error", time.Since(start))
		return ExecutionResponse{
			Error:   illustratorerrors.ExecutionError.Format(err.Error()),
			TraceID: traceID,
		}
	}

	if err := peer.enqueue(data); err != nil {
		b.registry.Fail(id, err)
		b.metrics.DispatchSettled("execution_error", time.Since(start))
		return ExecutionResponse{
			Error:   illustratorerrors.ExecutionError.Format(err.Error()),
			TraceID: traceID,
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		b.metrics.PendingRequests(b.registry.Pending())
		resp := resultToResponse(res, traceID)
		outcome := "ok"
		if resp.IsError() {
			outcome = "error"
		}
		b.metrics.DispatchSettled(outcome, time.Since(start))
		return resp

	case <-timer.C:
		// Fail the registry entry before returning so a late reply is a
		// guaranteed no-op (§9 open question a: "fail then respond").
		b.registry.Fail(id, fmt.Errorf("timed out"))
		b.metrics.PendingRequests(b.registry.Pending())
		b.metrics.DispatchSettled("timeout", time.Since(start))
		return ExecutionResponse{
			Error:   illustratorerrors.Timeout.Format(fmt.Sprintf("Script execution timed out after %gs", timeout.Seconds())),
			TraceID: traceID,
		}

	case <-ctx.Done():
		b.registry.Fail(id, ctx.Err())
		b.metrics.PendingRequests(b.registry.Pending())
		b.metrics.DispatchSettled("cancelled", time.Since(start))
		return ExecutionResponse{
			Error:   illustratorerrors.ProxyError.Format(ctx.Err().Error()),
			TraceID: traceID,
		}
	}
}

// resultToResponse converts a settled Registry Result into an
// ExecutionResponse, applying the "error wins" rule when a reply somehow
// carries both result and error (§9 open question c).
func resultToResponse(res Result, traceID string) ExecutionResponse {
	if res.Err != nil {
		return ExecutionResponse{
			Error:   illustratorerrors.FormatDisconnected(res.Err.Error()),
			TraceID: traceID,
		}
	}

	payload := res.Payload
	resp := ExecutionResponse{TraceID: traceID, Extra: map[string]any{}}

	for k, v := range payload {
		switch k {
		case "id", "result", "error", "trace_id":
			continue
		default:
			resp.Extra[k] = v
		}
	}

	if errVal, hasErr := payload["error"]; hasErr {
		if s, ok := errVal.(string); ok && s != "" {
			resp.Error = s
			return resp
		}
	}
	resp.Result = payload["result"]
	if tid, ok := payload["trace_id"].(string); ok && tid != "" && traceID == "" {
		resp.TraceID = tid
	}
	return resp
}

package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// PeerState enumerates the lifecycle of the single ExtensionPeer.
type PeerState int32

const (
	StateDisconnected PeerState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s PeerState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "disconnected"
	}
}

const (
	heartbeatInterval = 30 * time.Second
	pongWait          = 10 * time.Second
	writeWait         = 10 * time.Second
	maxFramePayload   = 1 << 20
)

// peerConn is the currently connected WebSocket client. At most one exists
// at a time; Bridge.acceptPeer displaces any predecessor.
type peerConn struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

func newPeerConn(parent context.Context, conn *websocket.Conn) *peerConn {
	ctx, cancel := context.WithCancel(parent)
	return &peerConn{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, 64),
		ctx:    ctx,
		cancel: cancel,
	}
}

// enqueue hands data to the write loop. It never writes to the connection
// directly — confining writes to the single writeLoop goroutine is how this
// peer satisfies the single-writer rule (§4.2).
func (p *peerConn) enqueue(data []byte) error {
	select {
	case p.send <- data:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("peer connection closed")
	}
}

// closeWith sends a close control frame with code/reason and tears the
// connection down. Safe to call more than once.
func (p *peerConn) closeWith(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = p.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	p.cancel()
	_ = p.conn.Close()
}

// writeLoop is the only goroutine that ever calls conn.WriteMessage or
// conn.WriteControl for this peer, and it also owns the heartbeat ping.
func (p *peerConn) writeLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case data, ok := <-p.send:
			if !ok {
				return
			}
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readLoop pumps inbound frames until the connection closes or errors, then
// reports the disconnect to b so the bridge can drop the peer pointer and
// cancel pending requests. It runs on the HTTP upgrade handler's goroutine,
// which — because there is at most one peer — is this bridge's entire I/O
// domain for inbound traffic.
func (p *peerConn) readLoop(b *Bridge, logger *slog.Logger) {
	p.conn.SetReadLimit(maxFramePayload)
	_ = p.conn.SetReadDeadline(time.Now().Add(heartbeatInterval + pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(heartbeatInterval + pongWait))
	})

	for {
		messageType, data, err := p.conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		p.handleInbound(b, logger, data)
	}

	b.dropPeer(p, "peer disconnected")
}

func (p *peerConn) handleInbound(b *Bridge, logger *slog.Logger, data []byte) {
	payload, err := validateReplyFrame(data)
	if err != nil {
		logger.Warn("invalid reply frame, dropping", "error", err)
		return
	}

	rawID, ok := payload["id"]
	if !ok {
		logger.Warn("reply frame missing id, dropping")
		return
	}
	idFloat, ok := rawID.(float64)
	if !ok {
		logger.Warn("reply frame id not numeric, dropping")
		return
	}

	if !b.registry.Complete(int64(idFloat), payload) {
		logger.Debug("reply for unknown or already-settled request", "id", int64(idFloat))
	}
}

// decodeOutboundFrame is a small helper kept alongside peerConn so
// encoding concerns for the two message directions stay in one file.
func decodeOutboundFrame(frame dispatchFrame) ([]byte, error) {
	return json.Marshal(frame)
}

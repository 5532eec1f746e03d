package requestor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/flowpbx/callengine/internal/alerts"
	"github.com/flowpbx/callengine/internal/callerr"
)

// subprotocol is the WS subprotocol every jambonz-style bidirectional
// feature server speaks.
const subprotocol = "ws.jambonz.org"

// WSConfig carries the tunables for the WS transport,
// sourced from internal/config.
type WSConfig struct {
	PingInterval       time.Duration
	HandshakeTimeout   time.Duration
	ResponseTimeout    time.Duration
	MaxPayloadBytes    int64
	MaxReconnects      int
	QueueHighWaterMark int
	UserAgent          string
	Alerts             *alerts.Emitter
}

// pendingAck is the channel a waiting Request blocks on until its msgid's
// ack frame arrives.
type pendingAck struct {
	result any
	err    error
}

// queuedMsg is a send awaiting a live connection during a reconnect.
type queuedMsg struct {
	msgID   string
	payload []byte
}

// WS is the bidirectional WS Requestor: a single long-lived
// connection, ack-tracked sends, automatic reconnect with backoff, and
// malicious-frame detection.
type WS struct {
	Base
	cfg WSConfig

	url *url.URL

	writeMu sync.Mutex
	conn    net.Conn

	mu               sync.Mutex
	pending          map[string]chan pendingAck
	queue            []queuedMsg
	closed           bool
	closedGracefully bool
	maliciousClient  bool

	// initMsgID/initPayload cache the first session:new this requestor
	// sent, replayed as session:reconnect on every successful reconnect.
	initMsgID      string
	initPayload    any
	reconnectAlias map[string]string

	reconnects int
	callSID    string

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewWS constructs a WS requestor. Call dial before use.
func NewWS(base Base, cfg WSConfig) *WS {
	return &WS{
		Base:           base,
		cfg:            cfg,
		pending:        make(map[string]chan pendingAck),
		reconnectAlias: make(map[string]string),
		stop:           make(chan struct{}),
	}
}

// SetCallSID records the call SID stamped onto every outbound frame.
func (w *WS) SetCallSID(sid string) { w.callSID = sid }

// dial performs the WS handshake against target and starts the read and
// ping loops.
func (w *WS) dial(ctx context.Context, target *url.URL) error {
	dialer := ws.Dialer{
		Protocols: []string{subprotocol},
		Timeout:   w.cfg.HandshakeTimeout,
	}
	conn, _, _, err := dialer.Dial(ctx, target.String())
	if err != nil {
		return &callerr.HandshakeError{Err: err}
	}
	w.url = target
	w.conn = conn

	w.wg.Add(2)
	go w.readLoop()
	go w.pingLoop()
	return nil
}

// Request implements Requestor. headers is ignored; WS carries no per-frame
// header concept.
func (w *WS) Request(ctx context.Context, msgType string, hook Hook, params map[string]any, _ http.Header) (any, error) {
	msgID := uuid.NewString()

	body := map[string]any{
		"type":     msgType,
		"msgid":    msgID,
		"call_sid": w.callSID,
		"data":     SnakeCaseParams(params),
	}
	if msgType == "session:new" {
		w.mu.Lock()
		w.initMsgID = msgID
		w.initPayload = body["data"]
		w.mu.Unlock()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	if !WantsAck(msgType) {
		return nil, w.send(msgID, payload)
	}

	ch := make(chan pendingAck, 1)
	w.mu.Lock()
	w.pending[msgID] = ch
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.pending, msgID)
		w.mu.Unlock()
	}()

	if err := w.send(msgID, payload); err != nil {
		return nil, err
	}

	timeout := w.cfg.ResponseTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ack := <-ch:
		return ack.result, ack.err
	case <-time.After(timeout):
		return nil, &callerr.ResponseTimeoutError{MsgID: msgID}
	}
}

// send writes payload to the socket, queuing it if no connection is
// currently live (mid-reconnect). A full queue (QueueHighWaterMark) fails
// fast rather than growing unbounded.
func (w *WS) send(msgID string, payload []byte) error {
	w.mu.Lock()
	if w.closed || w.closedGracefully || w.maliciousClient {
		w.mu.Unlock()
		return nil
	}
	if w.conn == nil {
		if w.cfg.QueueHighWaterMark > 0 && len(w.queue) >= w.cfg.QueueHighWaterMark {
			w.mu.Unlock()
			return &callerr.TransportError{Op: "ws send", Err: fmt.Errorf("send queue full")}
		}
		w.queue = append(w.queue, queuedMsg{msgID: msgID, payload: payload})
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return wsutil.WriteClientMessage(w.conn, ws.OpText, payload)
}

func (w *WS) flushQueue() {
	w.mu.Lock()
	pending := w.queue
	w.queue = nil
	w.mu.Unlock()

	for _, m := range pending {
		if err := w.send(m.msgID, m.payload); err != nil {
			w.mu.Lock()
			if ch, ok := w.pending[m.msgID]; ok {
				ch <- pendingAck{err: err}
			}
			w.mu.Unlock()
		}
	}
}

// readLoop drains inbound frames until the connection closes or Close is
// called, then attempts reconnect. A close(1000) frame or a malicious-peer
// violation (unexpected binary frame, malformed JSON) ends the loop without
// reconnecting.
func (w *WS) readLoop() {
	defer w.wg.Done()
	for {
		data, op, err := wsutil.ReadServerData(w.conn)
		if err != nil {
			if w.reconnect() {
				continue
			}
			return
		}
		switch op {
		case ws.OpClose:
			if w.handleCloseFrame(data) {
				continue
			}
			return
		case ws.OpBinary:
			w.closeMalicious("unexpected binary frame")
			return
		case ws.OpText:
			if !w.handleFrame(data) {
				return
			}
		}
	}
}

// handleCloseFrame reacts to a peer-initiated close. A normal closure
// (status 1000) marks the requestor as closedGracefully and ends the read
// loop for good; any other code is reconnect-eligible.
func (w *WS) handleCloseFrame(data []byte) bool {
	code, _ := ws.ParseCloseFrameData(data)
	graceful := code == ws.StatusNormalClosure

	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	if graceful {
		w.closedGracefully = true
	}
	w.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if graceful {
		return false
	}
	return w.reconnect()
}

// handleFrame processes one text frame. It returns false when the frame
// triggered a malicious-peer shutdown and the read loop must stop.
func (w *WS) handleFrame(data []byte) bool {
	if w.cfg.MaxPayloadBytes > 0 && int64(len(data)) > w.cfg.MaxPayloadBytes {
		w.raiseProtocolAlert("oversized frame")
		return true
	}

	var envelope struct {
		Type    string          `json:"type"`
		MsgID   string          `json:"msgid"`
		Command string          `json:"command"`
		CallSID string          `json:"call_sid"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		w.sendProtocolErrorFrame("malformed json frame")
		w.closeMalicious("malformed json frame")
		return false
	}

	// An ack carries the msgid of the request it answers and no command.
	// A session:reconnect ack may instead carry the reconnect frame's own
	// msgid, aliased back to the session:new request it re-keys.
	if envelope.MsgID != "" && envelope.Command == "" {
		w.mu.Lock()
		id := envelope.MsgID
		if real, ok := w.reconnectAlias[id]; ok {
			id = real
			delete(w.reconnectAlias, envelope.MsgID)
		}
		ch, ok := w.pending[id]
		w.mu.Unlock()
		if ok {
			var result any
			if len(envelope.Data) > 0 {
				_ = json.Unmarshal(envelope.Data, &result)
			}
			select {
			case ch <- pendingAck{result: result}:
			default:
			}
		}
		return true
	}

	if envelope.Command != "" {
		var data map[string]any
		_ = json.Unmarshal(envelope.Data, &data)
		cmd := Command{
			MsgID:   envelope.MsgID,
			Command: envelope.Command,
			CallSID: envelope.CallSID,
			Data:    data,
		}
		if qc, ok := data["queue_command"].(bool); ok {
			cmd.QueueCommand = qc
		}
		if tc, ok := data["tool_call_id"].(string); ok {
			cmd.ToolCallID = tc
		}
		select {
		case w.Events().Command <- cmd:
		default:
		}
	}
	return true
}

func (w *WS) raiseProtocolAlert(reason string) {
	if w.cfg.Alerts != nil {
		w.cfg.Alerts.Raise(alerts.InvalidAppPayload, w.callSID, reason)
	}
}

// closeMalicious shuts the connection down after a protocol violation from
// the peer and permanently disables reconnect for this requestor.
func (w *WS) closeMalicious(reason string) {
	w.raiseProtocolAlert(reason)
	w.mu.Lock()
	w.maliciousClient = true
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// sendProtocolErrorFrame best-effort notifies the peer of a protocol
// violation before the connection is torn down. A nil conn (already
// disconnected) is a silent no-op.
func (w *WS) sendProtocolErrorFrame(reason string) {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return
	}
	body := map[string]any{
		"type":     "jambonz:error",
		"msgid":    uuid.NewString(),
		"call_sid": w.callSID,
		"data":     map[string]any{"error": reason},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = wsutil.WriteClientMessage(conn, ws.OpText, payload)
}

// reconnect attempts to re-dial after a dropped connection, with the shared
// backoff curve, up to cfg.MaxReconnects attempts. It bails immediately once
// the requestor is closed, closedGracefully, or maliciousClient. On success
// it replays the cached session:new as a session:reconnect frame before
// flushing the rest of the queue.
func (w *WS) reconnect() bool {
	w.mu.Lock()
	if w.closed || w.closedGracefully || w.maliciousClient {
		w.mu.Unlock()
		return false
	}
	w.conn = nil
	w.mu.Unlock()

	max := w.cfg.MaxReconnects
	if max <= 0 {
		max = 5
	}
	for attempt := 1; attempt <= max; attempt++ {
		time.Sleep(backoffDuration(attempt))

		w.mu.Lock()
		if w.closed || w.closedGracefully || w.maliciousClient {
			w.mu.Unlock()
			return false
		}
		w.mu.Unlock()

		dialer := ws.Dialer{Protocols: []string{subprotocol}, Timeout: w.cfg.HandshakeTimeout}
		conn, _, _, err := dialer.Dial(context.Background(), w.url.String())
		if err != nil {
			continue
		}
		w.mu.Lock()
		w.conn = conn
		w.reconnects++
		initMsgID, initPayload := w.initMsgID, w.initPayload
		w.mu.Unlock()

		if initMsgID != "" {
			w.sendReconnectFrame(initMsgID, initPayload)
		}
		w.flushQueue()
		return true
	}

	select {
	case w.Events().Dropped <- struct{}{}:
	default:
	}
	return false
}

// sendReconnectFrame replays the cached session:new payload as a
// session:reconnect frame under a fresh msgid, aliasing that id back to
// the original session:new request so its caller's pending ack resolves
// whichever id the peer replies with.
func (w *WS) sendReconnectFrame(initMsgID string, payload any) {
	newMsgID := uuid.NewString()

	w.mu.Lock()
	if _, ok := w.pending[initMsgID]; ok {
		w.reconnectAlias[newMsgID] = initMsgID
	}
	w.mu.Unlock()

	body := map[string]any{
		"type":     "session:reconnect",
		"msgid":    newMsgID,
		"call_sid": w.callSID,
		"data":     payload,
	}
	out, err := json.Marshal(body)
	if err != nil {
		return
	}
	_ = w.send(newMsgID, out)
}

// pingLoop sends periodic pings only when the configured interval exceeds
// 15s; an unconfigured (zero) or short interval disables pinging entirely.
func (w *WS) pingLoop() {
	defer w.wg.Done()
	if w.cfg.PingInterval <= 15*time.Second {
		<-w.stop
		return
	}
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			conn := w.conn
			w.mu.Unlock()
			if conn == nil {
				continue
			}
			w.writeMu.Lock()
			_ = wsutil.WriteClientMessage(conn, ws.OpPing, nil)
			w.writeMu.Unlock()
		}
	}
}

// Close implements Requestor.
func (w *WS) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	conn := w.conn
	w.mu.Unlock()

	close(w.stop)
	if conn != nil {
		_ = conn.Close()
	}
	w.wg.Wait()
	return nil
}

package requestor

import (
	"context"
	"encoding/json"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/flowpbx/callengine/internal/alerts"
)

// acceptUpgraded accepts one connection on ln and completes the WS
// handshake, accepting any subprotocol the client offers. It returns a nil
// conn on failure; callers run in a background goroutine where t.Fatalf
// would not fail the test properly, so errors are surfaced by the caller's
// own assertions instead.
func acceptUpgraded(ln net.Listener) net.Conn {
	conn, err := ln.Accept()
	if err != nil {
		return nil
	}
	upgrader := ws.Upgrader{Protocol: func([]byte) bool { return true }}
	if _, err := upgrader.Upgrade(conn); err != nil {
		conn.Close()
		return nil
	}
	return conn
}

func dialWS(t *testing.T, addr string, cfg WSConfig) *WS {
	t.Helper()
	base, err := NewBase("acct-1", "", "")
	if err != nil {
		t.Fatalf("NewBase: %v", err)
	}
	w := NewWS(base, cfg)
	target, err := url.Parse("ws://" + addr + "/")
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	if err := w.dial(context.Background(), target); err != nil {
		t.Fatalf("dial: %v", err)
	}
	return w
}

func TestWSRequestRoundTripsAck(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn := acceptUpgraded(ln)
		if conn == nil {
			return
		}
		defer conn.Close()

		data, _, err := wsutil.ReadClientData(conn)
		if err != nil {
			return
		}
		var env struct {
			MsgID string `json:"msgid"`
		}
		_ = json.Unmarshal(data, &env)

		ack, _ := json.Marshal(map[string]any{
			"msgid": env.MsgID,
			"data":  map[string]any{"status": "ok"},
		})
		_ = wsutil.WriteServerMessage(conn, ws.OpText, ack)
	}()

	w := dialWS(t, ln.Addr().String(), WSConfig{ResponseTimeout: 2 * time.Second, HandshakeTimeout: 2 * time.Second})
	defer w.Close()

	resp, err := w.Request(context.Background(), "call:connect", Hook{}, map[string]any{"foo": "bar"}, nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	m, ok := resp.(map[string]any)
	if !ok || m["status"] != "ok" {
		t.Fatalf("unexpected response: %v", resp)
	}

	<-serverDone
}

func TestWSRequestTimesOutWithoutAck(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn := acceptUpgraded(ln)
		if conn == nil {
			return
		}
		// Never replies; hold the connection open until the test closes it.
		_, _, _ = wsutil.ReadClientData(conn)
	}()

	w := dialWS(t, ln.Addr().String(), WSConfig{ResponseTimeout: 50 * time.Millisecond, HandshakeTimeout: 2 * time.Second})
	defer w.Close()

	_, err = w.Request(context.Background(), "call:connect", Hook{}, nil, nil)
	if err == nil {
		t.Fatal("expected a response-timeout error")
	}
}

func TestWSBinaryFrameRaisesProtocolAlert(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn := acceptUpgraded(ln)
		if conn == nil {
			return
		}
		defer conn.Close()
		_ = wsutil.WriteServerMessage(conn, ws.OpBinary, []byte{0x01, 0x02, 0x03})
	}()

	alertCh := make(chan alerts.Alert, 1)
	emitter := alerts.NewEmitter(chanSink{ch: alertCh})
	defer emitter.Close()

	w := dialWS(t, ln.Addr().String(), WSConfig{Alerts: emitter})
	defer w.Close()

	select {
	case a := <-alertCh:
		if a.Kind != alerts.InvalidAppPayload {
			t.Fatalf("expected InvalidAppPayload alert, got %v", a.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a protocol alert for the unexpected binary frame")
	}
}

type chanSink struct{ ch chan alerts.Alert }

func (s chanSink) Emit(a alerts.Alert) {
	select {
	case s.ch <- a:
	default:
	}
}

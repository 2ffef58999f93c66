package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rigshare/rigshare/internal/auth"
	"github.com/rigshare/rigshare/internal/gate"
	"github.com/rigshare/rigshare/internal/hub"
)

const (
	testRigSecret = "rig-secret"
	testCtlSecret = "ctl-secret"
)

func newTestRelay(t *testing.T, o Options) (*httptest.Server, *gate.Gate) {
	t.Helper()
	h := hub.New()
	g := gate.New(h)
	v := auth.NewVerifier(testRigSecret, testCtlSecret)
	srv := NewServer(g, h, v, NewPipeEngine(8), o)
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, g
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, path), nil)
	if err != nil {
		t.Fatalf("dial %s failed: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func dialReject(t *testing.T, ts *httptest.Server, path string, wantStatus int) {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, path), nil)
	if err == nil {
		conn.Close()
		t.Fatalf("dial %s succeeded, want rejection", path)
	}
	if resp == nil {
		t.Fatalf("dial %s: no HTTP response, err = %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("dial %s: status = %d, want %d", path, resp.StatusCode, wantStatus)
	}
}

func authenticate(t *testing.T, conn *websocket.Conn, secret string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(secret)); err != nil {
		t.Fatalf("writing secret failed: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("no ack received: %v", err)
	}
	if string(msg) != "ok" {
		t.Fatalf("ack = %q, want ok", msg)
	}
	conn.SetReadDeadline(time.Time{})
}

// collect owns all reads on conn, so tests only write to it directly.
func collect(conn *websocket.Conn) <-chan string {
	frames := make(chan string, 16)
	go func() {
		defer close(frames)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- string(msg)
		}
	}()
	return frames
}

func expectFrame(t *testing.T, frames <-chan string, want string) {
	t.Helper()
	select {
	case got, ok := <-frames:
		if !ok {
			t.Fatalf("connection closed while waiting for %q", want)
		}
		if got != want {
			t.Fatalf("received %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

// expectQuiet asserts the connection stays open and silent for d.
func expectQuiet(t *testing.T, frames <-chan string, d time.Duration) {
	t.Helper()
	select {
	case got, ok := <-frames:
		if ok {
			t.Fatalf("unexpected frame %q", got)
		}
		t.Fatal("connection closed unexpectedly")
	case <-time.After(d):
	}
}

// expectClosed asserts the connection closes without any further frame.
func expectClosed(t *testing.T, frames <-chan string) {
	t.Helper()
	for {
		select {
		case got, ok := <-frames:
			if !ok {
				return
			}
			t.Fatalf("unexpected frame %q before close", got)
		case <-time.After(2 * time.Second):
			t.Fatal("connection not closed")
		}
	}
}

func waitOccupancy(t *testing.T, g *gate.Gate, want gate.Occupancy) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if g.Snapshot() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("occupancy = %+v, want %+v", g.Snapshot(), want)
}

func TestSharerAuthenticates(t *testing.T) {
	ts, g := newTestRelay(t, Options{})
	sharer := dial(t, ts, "/sharer")
	authenticate(t, sharer, testRigSecret)

	if occ := g.Snapshot(); !occ.Sharer {
		t.Fatal("sharer slot not occupied after authentication")
	}
}

func TestWrongSecretClosesWithoutAck(t *testing.T) {
	ts, g := newTestRelay(t, Options{})
	sharer := dial(t, ts, "/sharer")
	if err := sharer.WriteMessage(websocket.TextMessage, []byte("wrong")); err != nil {
		t.Fatalf("writing secret failed: %v", err)
	}

	sharer.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, msg, err := sharer.ReadMessage(); err == nil {
		t.Fatalf("received %q, want the connection closed with no ack", msg)
	}

	// The slot is free again: a correct sharer gets in immediately.
	waitOccupancy(t, g, gate.Occupancy{})
	next := dial(t, ts, "/sharer")
	authenticate(t, next, testRigSecret)
}

func TestAdmissionRequiresSharer(t *testing.T) {
	ts, _ := newTestRelay(t, Options{})
	dialReject(t, ts, "/controller", http.StatusPreconditionFailed)
	dialReject(t, ts, "/status", http.StatusPreconditionFailed)
}

func TestSecondSharerRejected(t *testing.T) {
	ts, _ := newTestRelay(t, Options{})
	sharer := dial(t, ts, "/sharer")
	authenticate(t, sharer, testRigSecret)
	sharerFrames := collect(sharer)

	controller := dial(t, ts, "/controller")
	authenticate(t, controller, testCtlSecret)

	dialReject(t, ts, "/sharer", http.StatusConflict)

	// The first pairing is untouched by the rejected attempt.
	if err := controller.WriteMessage(websocket.TextMessage, []byte(`[{"cmd":"move"}]`)); err != nil {
		t.Fatalf("controller write failed: %v", err)
	}
	expectFrame(t, sharerFrames, `[{"cmd":"move"}]`)
}

func TestRelayBothDirections(t *testing.T) {
	ts, _ := newTestRelay(t, Options{})
	sharer := dial(t, ts, "/sharer")
	authenticate(t, sharer, testRigSecret)
	sharerFrames := collect(sharer)

	controller := dial(t, ts, "/controller")
	authenticate(t, controller, testCtlSecret)
	controllerFrames := collect(controller)

	if err := controller.WriteMessage(websocket.TextMessage, []byte(`[{"cmd":"move","axis":1}]`)); err != nil {
		t.Fatalf("controller write failed: %v", err)
	}
	expectFrame(t, sharerFrames, `[{"cmd":"move","axis":1}]`)

	if err := sharer.WriteMessage(websocket.TextMessage, []byte(`[{"pos":42}]`)); err != nil {
		t.Fatalf("sharer write failed: %v", err)
	}
	expectFrame(t, controllerFrames, `[{"pos":42}]`)
}

func TestMalformedBatchDoesNotKillSession(t *testing.T) {
	ts, _ := newTestRelay(t, Options{})
	sharer := dial(t, ts, "/sharer")
	authenticate(t, sharer, testRigSecret)

	controller := dial(t, ts, "/controller")
	authenticate(t, controller, testCtlSecret)
	controllerFrames := collect(controller)

	// A malformed frame is dropped; the session keeps relaying.
	if err := sharer.WriteMessage(websocket.TextMessage, []byte(`{"not":"a batch"`)); err != nil {
		t.Fatalf("sharer write failed: %v", err)
	}
	if err := sharer.WriteMessage(websocket.TextMessage, []byte(`[{"pos":7}]`)); err != nil {
		t.Fatalf("sharer write failed: %v", err)
	}
	expectFrame(t, controllerFrames, `[{"pos":7}]`)
}

func TestHelloNotifiesStatusOnce(t *testing.T) {
	ts, _ := newTestRelay(t, Options{})
	sharer := dial(t, ts, "/sharer")
	authenticate(t, sharer, testRigSecret)
	sharerFrames := collect(sharer)

	status := dial(t, ts, "/status")
	authenticate(t, status, testRigSecret)
	statusFrames := collect(status)

	controller := dial(t, ts, "/controller")
	authenticate(t, controller, testCtlSecret)

	if err := controller.WriteMessage(websocket.TextMessage, []byte(`["hello"]`)); err != nil {
		t.Fatalf("controller write failed: %v", err)
	}
	expectFrame(t, statusFrames, `{"type":"connect"}`)
	// The marker batch is still relayed to the sharer.
	expectFrame(t, sharerFrames, `["hello"]`)

	// A repeated marker must not re-announce the controller.
	if err := controller.WriteMessage(websocket.TextMessage, []byte(`["hello"]`)); err != nil {
		t.Fatalf("controller write failed: %v", err)
	}
	expectFrame(t, sharerFrames, `["hello"]`)
	expectQuiet(t, statusFrames, 300*time.Millisecond)
}

func TestControllerCloseNotifiesStatus(t *testing.T) {
	ts, g := newTestRelay(t, Options{})
	sharer := dial(t, ts, "/sharer")
	authenticate(t, sharer, testRigSecret)

	status := dial(t, ts, "/status")
	authenticate(t, status, testRigSecret)
	statusFrames := collect(status)

	controller := dial(t, ts, "/controller")
	authenticate(t, controller, testCtlSecret)
	if err := controller.WriteMessage(websocket.TextMessage, []byte(`["hello"]`)); err != nil {
		t.Fatalf("controller write failed: %v", err)
	}
	expectFrame(t, statusFrames, `{"type":"connect"}`)

	controller.Close()

	expectFrame(t, statusFrames, `{"type":"disconnect"}`)
	expectQuiet(t, statusFrames, 300*time.Millisecond)

	// The slot is released; a fresh controller can attach.
	waitOccupancy(t, g, gate.Occupancy{Sharer: true, Status: true})
	next := dial(t, ts, "/controller")
	authenticate(t, next, testCtlSecret)
}

func TestSharerCloseCascades(t *testing.T) {
	ts, g := newTestRelay(t, Options{})
	sharer := dial(t, ts, "/sharer")
	authenticate(t, sharer, testRigSecret)
	sharerFrames := collect(sharer)

	status := dial(t, ts, "/status")
	authenticate(t, status, testRigSecret)
	statusFrames := collect(status)

	controller := dial(t, ts, "/controller")
	authenticate(t, controller, testCtlSecret)
	controllerFrames := collect(controller)

	if err := controller.WriteMessage(websocket.TextMessage, []byte(`["hello"]`)); err != nil {
		t.Fatalf("controller write failed: %v", err)
	}
	expectFrame(t, statusFrames, `{"type":"connect"}`)
	expectFrame(t, sharerFrames, `["hello"]`)

	sharer.Close()

	// Both dependents are force-closed and the status transport sees no
	// disconnect frame for the cascade.
	expectClosed(t, statusFrames)
	expectClosed(t, controllerFrames)
	waitOccupancy(t, g, gate.Occupancy{})

	// The relay accepts a fresh pairing afterwards.
	next := dial(t, ts, "/sharer")
	authenticate(t, next, testRigSecret)
}

func TestStatusInboundIgnored(t *testing.T) {
	ts, _ := newTestRelay(t, Options{})
	sharer := dial(t, ts, "/sharer")
	authenticate(t, sharer, testRigSecret)

	status := dial(t, ts, "/status")
	authenticate(t, status, testRigSecret)
	statusFrames := collect(status)

	if err := status.WriteMessage(websocket.TextMessage, []byte(`["noise"]`)); err != nil {
		t.Fatalf("status write failed: %v", err)
	}

	controller := dial(t, ts, "/controller")
	authenticate(t, controller, testCtlSecret)
	if err := controller.WriteMessage(websocket.TextMessage, []byte(`["hello"]`)); err != nil {
		t.Fatalf("controller write failed: %v", err)
	}
	expectFrame(t, statusFrames, `{"type":"connect"}`)
}

func TestUnauthenticatedControllerLeavesNoTrace(t *testing.T) {
	ts, g := newTestRelay(t, Options{})
	sharer := dial(t, ts, "/sharer")
	authenticate(t, sharer, testRigSecret)

	status := dial(t, ts, "/status")
	authenticate(t, status, testRigSecret)
	statusFrames := collect(status)

	controller := dial(t, ts, "/controller")
	controller.Close()

	// No handshake happened, so the status side hears nothing.
	expectQuiet(t, statusFrames, 300*time.Millisecond)
	waitOccupancy(t, g, gate.Occupancy{Sharer: true, Status: true})
}

func TestAuthDeadlineClosesIdleConn(t *testing.T) {
	ts, g := newTestRelay(t, Options{AuthDeadline: 150 * time.Millisecond})
	sharer := dial(t, ts, "/sharer")
	frames := collect(sharer)

	select {
	case _, ok := <-frames:
		if ok {
			t.Fatal("received a frame from an idle unauthenticated connection")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("idle unauthenticated connection not closed")
	}
	waitOccupancy(t, g, gate.Occupancy{})
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sprite-ai/crev/internal/model"
	"github.com/sprite-ai/crev/internal/service"
	"github.com/sprite-ai/crev/internal/workspace"
)

const testCode = `#include <string>

std::string collapse(std::string s) {
    return s;
}
`

// fakeService answers reviews and runs from canned results. A non-nil gate
// holds review calls until it is closed.
type fakeService struct {
	mu     sync.Mutex
	review model.ReviewResult
	run    model.TestRunResult
	gate   chan struct{}
	cases  []model.TestCase
}

func (f *fakeService) Review(ctx context.Context, req service.ReviewRequest) (model.ReviewResult, error) {
	f.mu.Lock()
	gate, res := f.gate, f.review
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.ReviewResult{}, ctx.Err()
		}
	}
	return res, nil
}

func (f *fakeService) Run(ctx context.Context, req service.RunRequest) (model.TestRunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cases = req.Cases
	return f.run, nil
}

var defaultCases = []model.TestCase{{Name: "Test Case 1", Input: "a  b", Expect: "a b"}}

func newTestServer(svc *fakeService) *Server {
	return New(Options{
		Addr:    ":0",
		Service: svc,
		Workspace: workspace.Options{
			Assignment: model.Assignment{Language: "cpp"},
			Timeout:    5 * time.Second,
		},
		Cases:  defaultCases,
		Logger: zerolog.Nop(),
	})
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&fakeService{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %q", resp["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&fakeService{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "crev_ws_sessions_active") {
		t.Error("expected session gauge in metrics output")
	}
}

func TestDecorateEndpoint(t *testing.T) {
	srv := newTestServer(&fakeService{})

	body, _ := json.Marshal(decorateRequest{
		Code: testCode,
		Result: &reviewResultJSON{
			Summary: "returns input",
			ReviewItems: []reviewItemJSON{
				{Type: "Correctness", Issue: "nothing collapsed", FixSuggestion: "loop", Line: rangeJSON{Start: 3, End: 4}},
				{Type: "Style", Issue: "past the end", Line: rangeJSON{Start: 40, End: 50}},
			},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/decorate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp decorateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}

	if len(resp.Decorations) != 2 {
		t.Fatalf("expected 2 decorations, got %d", len(resp.Decorations))
	}
	first := resp.Decorations[0]
	if first.Line != 3 || first.Class != "error" || first.StartColumn != 1 {
		t.Errorf("unexpected first decoration %+v", first)
	}
	second := resp.Decorations[1]
	if second.StartColumn != 5 || second.EndColumn != 14 {
		t.Errorf("expected columns [5,14) on line 4, got %+v", second)
	}
	if len(resp.Hovers) != 2 || !strings.Contains(resp.Hovers[0].Markdown, "nothing collapsed") {
		t.Errorf("unexpected hovers %+v", resp.Hovers)
	}
}

func TestDecorateRequiresResult(t *testing.T) {
	srv := newTestServer(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/api/decorate", strings.NewReader(`{"code": "x"}`))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestDecorateInvalidJSON(t *testing.T) {
	srv := newTestServer(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/api/decorate", strings.NewReader("{bad json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// --- WebSocket ---

func dialSession(t *testing.T, svc *fakeService) *websocket.Conn {
	t.Helper()
	srv := newTestServer(svc)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// Initial state for the empty buffer.
	readType(t, conn, wsMsgState)
	readType(t, conn, wsMsgDecorations)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	msg := wsMessage{Type: msgType}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		msg.Data = raw
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("ws write: %v", err)
	}
}

// readType reads the next message and checks its type.
func readType(t *testing.T, conn *websocket.Conn, want string) wsMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ws read %s: %v", want, err)
	}
	if msg.Type != want {
		t.Fatalf("expected %q message, got %q: %s", want, msg.Type, msg.Data)
	}
	return msg
}

// readState skips decoration messages until a state with the given review
// phase arrives.
func readState(t *testing.T, conn *websocket.Conn, reviewPhase string) wsStateResponse {
	t.Helper()
	for i := 0; i < 10; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ws read state: %v", err)
		}
		if msg.Type != wsMsgState {
			continue
		}
		var st wsStateResponse
		if err := json.Unmarshal(msg.Data, &st); err != nil {
			t.Fatalf("unmarshal state: %v", err)
		}
		if st.Review.Phase == reviewPhase {
			return st
		}
	}
	t.Fatalf("no state with review phase %q", reviewPhase)
	return wsStateResponse{}
}

func TestWebSocketReviewSession(t *testing.T) {
	svc := &fakeService{review: model.ReviewResult{
		Summary: "returns input",
		Items: []model.AnnotationItem{{
			Range:    model.LineRange{Start: 4, End: 4},
			Category: model.CategoryCorrectness,
			Issue:    "nothing collapsed",
		}},
	}}
	conn := dialSession(t, svc)

	send(t, conn, wsMsgLoad, wsLoad{Name: "main.cpp", Code: testCode})
	readType(t, conn, wsMsgState)
	readType(t, conn, wsMsgDecorations)

	send(t, conn, wsMsgStartReview, nil)
	pending := readState(t, conn, "pending")
	if pending.Review.Token == "" {
		t.Error("expected a token while pending")
	}

	done := readState(t, conn, "success")
	if done.Result == nil || done.Result.Summary != "returns input" {
		t.Errorf("unexpected result %+v", done.Result)
	}

	msg := readType(t, conn, wsMsgDecorations)
	var decs wsDecorationsResponse
	if err := json.Unmarshal(msg.Data, &decs); err != nil {
		t.Fatalf("unmarshal decorations: %v", err)
	}
	if len(decs.Decorations) != 1 || decs.Decorations[0].Line != 4 {
		t.Errorf("unexpected decorations %+v", decs.Decorations)
	}

	send(t, conn, wsMsgHover, wsHover{Line: 4})
	msg = readType(t, conn, wsMsgHoverResult)
	var hover hoverJSON
	if err := json.Unmarshal(msg.Data, &hover); err != nil {
		t.Fatalf("unmarshal hover: %v", err)
	}
	if !hover.Found || !strings.Contains(hover.Markdown, "nothing collapsed") {
		t.Errorf("unexpected hover %+v", hover)
	}

	// Shrinking the buffer drops the decoration.
	send(t, conn, wsMsgEdit, wsEdit{Code: "int x;"})
	readType(t, conn, wsMsgState)
	msg = readType(t, conn, wsMsgDecorations)
	if err := json.Unmarshal(msg.Data, &decs); err != nil {
		t.Fatalf("unmarshal decorations: %v", err)
	}
	if len(decs.Decorations) != 0 {
		t.Errorf("expected no decorations after shrink, got %+v", decs.Decorations)
	}
}

func TestWebSocketSupersededReview(t *testing.T) {
	svc := &fakeService{
		review: model.ReviewResult{Summary: "second"},
		gate:   make(chan struct{}),
	}
	conn := dialSession(t, svc)

	send(t, conn, wsMsgLoad, wsLoad{Name: "main.cpp", Code: testCode})
	readType(t, conn, wsMsgState)
	readType(t, conn, wsMsgDecorations)

	send(t, conn, wsMsgStartReview, nil)
	first := readState(t, conn, "pending")
	send(t, conn, wsMsgStartReview, nil)
	second := readState(t, conn, "pending")
	if first.Review.Token == second.Review.Token {
		t.Fatal("expected a fresh token")
	}

	close(svc.gate)
	done := readState(t, conn, "success")
	if done.Review.Token != second.Review.Token {
		t.Errorf("expected success for the latest token")
	}
}

func TestWebSocketRunAndSelect(t *testing.T) {
	svc := &fakeService{run: model.Outcomes([]model.TestCaseOutcome{
		{Name: "Test Case 1", Status: model.StatusPassed},
		{Name: "Test Case 2", Status: model.StatusFailed, Actual: "a  b"},
	})}
	conn := dialSession(t, svc)

	send(t, conn, wsMsgStartRun, nil)
	var st wsStateResponse
	for st.Run.Phase != "success" {
		msg := readType(t, conn, wsMsgState)
		if err := json.Unmarshal(msg.Data, &st); err != nil {
			t.Fatalf("unmarshal state: %v", err)
		}
		readType(t, conn, wsMsgDecorations)
	}
	if st.Active != "Test Case 1" || len(st.Outcomes) != 2 {
		t.Errorf("unexpected run state %+v", st)
	}

	svc.mu.Lock()
	if len(svc.cases) != 1 || svc.cases[0].Name != "Test Case 1" {
		t.Errorf("expected default cases to be sent, got %+v", svc.cases)
	}
	svc.mu.Unlock()

	send(t, conn, wsMsgSelect, wsSelect{Name: "Test Case 2"})
	msg := readType(t, conn, wsMsgOutcome)
	var o outcomeJSON
	if err := json.Unmarshal(msg.Data, &o); err != nil {
		t.Fatalf("unmarshal outcome: %v", err)
	}
	if o.Name != "Test Case 2" || o.Status != "failed" {
		t.Errorf("unexpected outcome %+v", o)
	}

	send(t, conn, wsMsgSelect, wsSelect{Name: "nope"})
	readType(t, conn, wsMsgError)
}

func TestWebSocketPatch(t *testing.T) {
	conn := dialSession(t, &fakeService{})

	send(t, conn, wsMsgLoad, wsLoad{Name: "main.cpp", Code: testCode})
	readType(t, conn, wsMsgState)
	readType(t, conn, wsMsgDecorations)

	patch := `--- a/main.cpp
+++ b/main.cpp
@@ -3,3 +3,4 @@
 std::string collapse(std::string s) {
+    // collapse runs of spaces
     return s;
 }
`
	send(t, conn, wsMsgPatch, wsPatch{Patch: patch})
	msg := readType(t, conn, wsMsgState)
	var st wsStateResponse
	if err := json.Unmarshal(msg.Data, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st.Version != 1 {
		t.Errorf("expected buffer version 1 after patch, got %d", st.Version)
	}
	readType(t, conn, wsMsgDecorations)

	send(t, conn, wsMsgPatch, wsPatch{Patch: "garbage"})
	readType(t, conn, wsMsgError)
}

func TestWebSocketBadMessages(t *testing.T) {
	conn := dialSession(t, &fakeService{})

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("ws write: %v", err)
	}
	readType(t, conn, wsMsgError)

	send(t, conn, "approve", nil)
	msg := readType(t, conn, wsMsgError)
	if !strings.Contains(string(msg.Data), "unknown message type") {
		t.Errorf("unexpected error %s", msg.Data)
	}
}

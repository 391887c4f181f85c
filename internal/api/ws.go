package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sprite-ai/crev/internal/annotate"
	"github.com/sprite-ai/crev/internal/buffer"
	"github.com/sprite-ai/crev/internal/metrics"
	"github.com/sprite-ai/crev/internal/model"
	"github.com/sprite-ai/crev/internal/workspace"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 64,
	WriteBufferSize: 1024 * 64,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev; restrict in production
	},
}

// WebSocket message types from client.
const (
	wsMsgLoad        = "load"
	wsMsgEdit        = "edit"
	wsMsgPatch       = "patch"
	wsMsgStartReview = "start_review"
	wsMsgStartRun    = "start_run"
	wsMsgHover       = "hover"
	wsMsgSelect      = "select"
)

// WebSocket message types to client.
const (
	wsMsgState       = "state"
	wsMsgDecorations = "decorations"
	wsMsgHoverResult = "hover"
	wsMsgOutcome     = "outcome"
	wsMsgError       = "error"
)

// wsMessage is the envelope for WebSocket messages in both directions.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// wsLoad is the payload for "load" messages.
type wsLoad struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// wsEdit is the payload for "edit" messages. Code is the full new text.
type wsEdit struct {
	Code string `json:"code"`
}

// wsPatch is the payload for "patch" messages.
type wsPatch struct {
	Patch string `json:"patch"`
}

// wsStartRun is the payload for "start_run" messages.
type wsStartRun struct {
	Cases []struct {
		Name   string `json:"name"`
		Input  string `json:"input"`
		Expect string `json:"expect"`
	} `json:"cases,omitempty"`
}

// wsHover is the payload for "hover" messages.
type wsHover struct {
	Line int `json:"line"`
}

// wsSelect is the payload for "select" messages.
type wsSelect struct {
	Name string `json:"name"`
}

// wsStateResponse describes both operations.
type wsStateResponse struct {
	Version  int               `json:"version"`
	Review   operationJSON     `json:"review"`
	Result   *reviewResultJSON `json:"result,omitempty"`
	Run      operationJSON     `json:"run"`
	Outcomes []outcomeJSON     `json:"outcomes"`
	Active   string            `json:"active,omitempty"`
}

// wsDecorationsResponse is sent whenever the decoration set may have changed.
type wsDecorationsResponse struct {
	Version     int              `json:"version"`
	LineCount   int              `json:"line_count"`
	Decorations []decorationJSON `json:"decorations"`
}

// reviewSession holds the state for a WebSocket review session. Everything
// except the job goroutines runs on the session loop.
type reviewSession struct {
	ctx  context.Context
	conn *websocket.Conn
	log  zerolog.Logger
	opts Options

	ws      *workspace.Workspace
	release func()
	dirty   bool

	jobs        *errgroup.Group
	completions chan workspace.Completion
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	incoming := make(chan wsMessage)
	g.Go(func() error {
		defer close(incoming)
		return s.readLoop(gctx, conn, incoming)
	})

	session := &reviewSession{
		ctx:         gctx,
		conn:        conn,
		log:         s.log.With().Str("remote", r.RemoteAddr).Logger(),
		opts:        s.opts,
		jobs:        g,
		completions: make(chan workspace.Completion),
	}
	session.load(wsLoad{Name: "untitled"})
	defer session.close()

	session.log.Info().Msg("session opened")
	session.run(incoming)

	// Unblock the reader and any job still waiting to deliver.
	cancel()
	_ = conn.Close()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		session.log.Debug().Err(err).Msg("session ended")
	}
	session.log.Info().Msg("session closed")
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- wsMessage) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("websocket read")
			}
			return nil
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			msg = wsMessage{Type: ""}
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// run is the session loop. It owns the workspace and the connection writer.
func (rs *reviewSession) run(incoming <-chan wsMessage) {
	rs.flush()
	for {
		select {
		case <-rs.ctx.Done():
			return
		case msg, ok := <-incoming:
			if !ok {
				return
			}
			rs.dispatch(msg)
		case c := <-rs.completions:
			rs.ws.Complete(c)
		}

		rs.flush()
	}
}

// flush pushes state and decorations when anything changed.
func (rs *reviewSession) flush() {
	if !rs.dirty {
		return
	}
	rs.dirty = false
	rs.sendState()
	rs.sendDecorations()
}

func (rs *reviewSession) dispatch(msg wsMessage) {
	switch msg.Type {
	case wsMsgLoad:
		var req wsLoad
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			rs.sendError("invalid load data")
			return
		}
		rs.load(req)

	case wsMsgEdit:
		var req wsEdit
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			rs.sendError("invalid edit data")
			return
		}
		rs.ws.SetText(req.Code)

	case wsMsgPatch:
		var req wsPatch
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			rs.sendError("invalid patch data")
			return
		}
		if err := rs.ws.ApplyPatch(req.Patch); err != nil {
			rs.sendError(err.Error())
		}

	case wsMsgStartReview:
		rs.spawn(rs.ws.StartReview())

	case wsMsgStartRun:
		cases := rs.opts.Cases
		if len(msg.Data) > 0 {
			var req wsStartRun
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				rs.sendError("invalid start_run data")
				return
			}
			if len(req.Cases) > 0 {
				cases = make([]model.TestCase, 0, len(req.Cases))
				for _, c := range req.Cases {
					cases = append(cases, model.TestCase{Name: c.Name, Input: c.Input, Expect: c.Expect})
				}
			}
		}
		rs.spawn(rs.ws.StartRun(cases))

	case wsMsgHover:
		var req wsHover
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			rs.sendError("invalid hover data")
			return
		}
		resp := hoverJSON{Line: req.Line}
		if item, ok := rs.ws.HoverAt(req.Line); ok {
			resp.Found = true
			resp.Markdown = annotate.HoverMarkdown(item)
		}
		rs.send(wsMsgHoverResult, resp)

	case wsMsgSelect:
		var req wsSelect
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			rs.sendError("invalid select data")
			return
		}
		if !rs.ws.SelectOutcome(req.Name) {
			rs.sendError("unknown test case: " + req.Name)
			return
		}
		if o, ok := rs.ws.ActiveOutcome(); ok {
			rs.send(wsMsgOutcome, toOutcomeJSON(o))
		}

	case "":
		rs.sendError("invalid message format")

	default:
		rs.sendError("unknown message type: " + msg.Type)
	}
}

// load replaces the session workspace with a fresh buffer.
func (rs *reviewSession) load(req wsLoad) {
	rs.close()

	name := req.Name
	if name == "" {
		name = "untitled"
	}
	opts := rs.opts.Workspace
	opts.Logger = rs.log
	rs.ws = workspace.New(buffer.New(name, req.Code), rs.opts.Service, opts)
	rs.release = rs.ws.Watch(func() { rs.dirty = true })
	rs.dirty = true
}

func (rs *reviewSession) close() {
	if rs.ws == nil {
		return
	}
	rs.release()
	rs.ws.Close()
}

// spawn runs a job off the session loop and posts its completion back.
func (rs *reviewSession) spawn(job workspace.Job) {
	ctx := rs.ctx
	rs.jobs.Go(func() error {
		c := job.Run(ctx)
		select {
		case rs.completions <- c:
		case <-ctx.Done():
		}
		return nil
	})
}

func (rs *reviewSession) sendState() {
	review := rs.ws.ReviewState()
	run := rs.ws.RunState()

	resp := wsStateResponse{
		Version:  rs.ws.Buffer().Version(),
		Review:   toOperationJSON(review),
		Run:      toOperationJSON(run),
		Outcomes: []outcomeJSON{},
	}
	if review.Payload != nil {
		result := fromModelResult(*review.Payload)
		resp.Result = &result
	}
	for _, o := range rs.ws.Outcomes() {
		resp.Outcomes = append(resp.Outcomes, toOutcomeJSON(o))
	}
	if o, ok := rs.ws.ActiveOutcome(); ok {
		resp.Active = o.Name
	}
	rs.send(wsMsgState, resp)
}

func (rs *reviewSession) sendDecorations() {
	rs.send(wsMsgDecorations, wsDecorationsResponse{
		Version:     rs.ws.Buffer().Version(),
		LineCount:   rs.ws.Buffer().LineCount(),
		Decorations: toDecorationsJSON(rs.ws.Decorations()),
	})
}

func (rs *reviewSession) send(msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		rs.log.Error().Err(err).Msg("ws marshal")
		return
	}
	msg := wsMessage{Type: msgType, Data: raw}
	if err := rs.conn.WriteJSON(msg); err != nil {
		rs.log.Debug().Err(err).Msg("ws write")
	}
}

func (rs *reviewSession) sendError(errMsg string) {
	rs.send(wsMsgError, map[string]string{"message": errMsg})
}

// Package simserver serves the driving simulator: it accepts the
// simulator's websocket, plans a cycle for every telemetry frame and sends
// the trajectory back.
package simserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/banshee-data/highway-planner/internal/db"
	"github.com/banshee-data/highway-planner/internal/monitoring"
	"github.com/banshee-data/highway-planner/internal/planner"
	"github.com/banshee-data/highway-planner/internal/simproto"
	"github.com/banshee-data/highway-planner/internal/timeutil"
)

// maxFrameSize bounds a single inbound frame. Telemetry with a full
// previous path and a busy road is a few kilobytes.
const maxFrameSize = 1 << 20

const helloPage = "<h1>Hello world!</h1>"

// Server is the http.Handler the simulator connects to.
type Server struct {
	planner *planner.Planner
	hub     *Hub
	clock   timeutil.Clock
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the clock used to stamp cycles.
func WithClock(c timeutil.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// NewServer returns a Server planning with p and publishing to hub.
func NewServer(p *planner.Planner, hub *Hub, opts ...Option) *Server {
	s := &Server{planner: p, hub: hub, clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades websocket requests on any path. Plain GET / answers
// with a hello page; other paths get an empty response.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		s.serveWebsocket(w, r)
		return
	}
	if r.URL.Path == "/" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, helloPage)
	}
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The simulator connects from a desktop app with no useful origin.
		InsecureSkipVerify: true,
	})
	if err != nil {
		monitoring.Opsf("websocket accept failed: %v", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxFrameSize)

	session := uuid.NewString()
	monitoring.Opsf("Connected: session %s from %s", session, r.RemoteAddr)

	err = s.handle(r.Context(), conn, session)
	switch {
	case err == nil, websocket.CloseStatus(err) != -1, errors.Is(err, context.Canceled):
		monitoring.Opsf("Disconnected: session %s", session)
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		monitoring.Opsf("Disconnected: session %s: %v", session, err)
		conn.Close(websocket.StatusInternalError, "")
	}
}

// handle runs the read, plan, reply loop for one connection until the
// peer goes away.
func (s *Server) handle(ctx context.Context, conn *websocket.Conn, session string) error {
	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		reply, err := s.Respond(session, msg)
		if err != nil {
			monitoring.Opsf("session %s: skipping cycle: %v", session, err)
			continue
		}
		if reply == nil {
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, reply); err != nil {
			return err
		}
	}
}

// Respond handles one inbound frame and returns the reply to send, or nil
// when the frame needs none. A returned error means the cycle was skipped.
func (s *Server) Respond(session string, msg []byte) ([]byte, error) {
	if monitoring.TraceEnabled() {
		monitoring.Tracef("session %s <- %s", session, msg)
	}

	frame, err := simproto.Decode(msg)
	if err != nil {
		return nil, err
	}
	switch frame.Kind {
	case simproto.Manual:
		return simproto.EncodeManual(), nil
	case simproto.Telemetry:
	default:
		return nil, nil
	}

	res, err := s.planner.Plan(frame.Telemetry)
	if err != nil {
		return nil, err
	}
	reply, err := simproto.EncodeControl(res.NextXY())
	if err != nil {
		return nil, err
	}

	if err := s.hub.Publish(s.record(session, res)); err != nil {
		monitoring.Opsf("session %s: %v", session, err)
	}
	if monitoring.TraceEnabled() {
		monitoring.Tracef("session %s -> %s", session, reply)
	}
	return reply, nil
}

func (s *Server) record(session string, res planner.Result) db.CycleRecord {
	return db.CycleRecord{
		SessionID:      session,
		Cycle:          res.Cycle,
		Lane:           res.Decision.Lane,
		PreviousLane:   res.Decision.PreviousLane,
		ReferenceSpeed: res.Decision.ReferenceSpeed,
		TooClose:       res.Decision.TooClose,
		EgoS:           res.Ego.S,
		EgoD:           res.Ego.D,
		KeptPoints:     res.Kept,
		VehicleCount:   len(res.Vehicles),
		Trajectory:     res.Path,
		CreatedAt:      s.clock.Now(),
	}
}

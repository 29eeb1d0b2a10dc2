package httpserver

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Abdo12KM/nour-alma3refa/internal/auth"
	"github.com/Abdo12KM/nour-alma3refa/internal/flow"
	"github.com/Abdo12KM/nour-alma3refa/internal/metrics"
)

// flowWSMessage is the signaling envelope for a flow session.
// Types: "hello", "select_method", "submit_identity", "submit_secret",
// "back", "replay_id", "proceed", "bye" inbound; "state", "error" outbound.
type flowWSMessage struct {
	Type string `json:"type"`
	// hello
	Mode string `json:"mode,omitempty"` // "register" | "login"
	// select_method
	Method string `json:"method,omitempty"` // "text" | "voice"
	// submit_identity / submit_secret
	Value string `json:"value,omitempty"`
	// state
	Step      string `json:"step,omitempty"`
	UserID    int    `json:"userId,omitempty"`
	Name      string `json:"name,omitempty"`
	CanReplay bool   `json:"canReplay,omitempty"`
	// AuthCookie carries the encoded auth-storage value once the session has
	// registered or logged in. Set-Cookie cannot be sent after the upgrade,
	// so the client stores this itself to reach the cookie-gated routes.
	AuthCookie string `json:"authCookie,omitempty"`
	// error / state
	Error string `json:"error,omitempty"`
}

var flowUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The session starts anonymous; non-browser clients carry no Origin.
		return true
	},
}

// storeCredentials adapts the user store to the flow engines so a gateway
// session submits directly instead of looping back over HTTP.
type storeCredentials struct {
	st UserStore
}

func (s storeCredentials) Register(_ context.Context, name, pin string) (int, error) {
	return s.st.CreateUser(name, pin)
}

func (s storeCredentials) Login(_ context.Context, userID int, pin string) (string, error) {
	name, ok, err := s.st.VerifyPIN(userID, pin)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", flow.ErrInvalidCredentials
	}
	return name, nil
}

// handleFlowSession runs one enrollment or login flow over a WebSocket. The
// first frame must be a hello naming the mode; every subsequent event is
// answered with a state snapshot.
func (s *Server) handleFlowSession(c echo.Context) error {
	conn, err := flowUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("flow ws upgrade: %v", err)
		return nil
	}
	defer conn.Close()

	metrics.FlowSessions.Inc()
	defer metrics.FlowSessions.Dec()

	creds := storeCredentials{st: s.store}

	var enroll *flow.Enrollment
	var login *flow.Authentication
	for {
		var m flowWSMessage
		if err := conn.ReadJSON(&m); err != nil {
			return nil
		}
		if strings.ToLower(m.Type) != "hello" {
			_ = conn.WriteJSON(flowWSMessage{Type: "error", Error: "expected hello"})
			continue
		}
		switch strings.ToLower(m.Mode) {
		case "register":
			enroll = flow.NewEnrollment(creds, s.tts)
		case "login":
			login = flow.NewAuthentication(creds)
		default:
			_ = conn.WriteJSON(flowWSMessage{Type: "error", Error: "mode must be register or login"})
			continue
		}
		break
	}

	ctx := c.Request().Context()
	if enroll != nil {
		s.runEnrollmentSession(ctx, conn, enroll)
	} else {
		s.runLoginSession(ctx, conn, login)
	}
	return nil
}

func (s *Server) runEnrollmentSession(ctx context.Context, conn *websocket.Conn, e *flow.Enrollment) {
	send := func() {
		snap := flowWSMessage{
			Type:      "state",
			Step:      e.Step().String(),
			CanReplay: e.CanReplay(),
			Error:     e.LastError(),
		}
		if e.Step() >= flow.StepConfirmation {
			snap.UserID = e.AssignedUserID()
			snap.AuthCookie = auth.Encode(auth.Session{
				IsAuthenticated: true,
				UserID:          e.AssignedUserID(),
				Username:        e.UserName(),
			})
		}
		_ = conn.WriteJSON(snap)
	}
	send()

	for {
		var m flowWSMessage
		if err := conn.ReadJSON(&m); err != nil {
			return
		}
		switch strings.ToLower(m.Type) {
		case "select_method":
			e.ChooseMethod(parseMethod(m.Method))
		case "submit_identity":
			if err := e.SubmitName(m.Value); err != nil {
				_ = conn.WriteJSON(flowWSMessage{Type: "error", Error: err.Error()})
				continue
			}
		case "submit_secret":
			e.SubmitPIN(ctx, m.Value)
		case "back":
			e.Back()
		case "replay_id":
			if clip := e.ReplayClip(); clip != nil {
				_ = conn.WriteMessage(websocket.BinaryMessage, clip)
			} else {
				_ = conn.WriteJSON(flowWSMessage{Type: "error", Error: "replay unavailable"})
			}
			continue
		case "proceed":
			e.Proceed()
		case "bye":
			return
		default:
			_ = conn.WriteJSON(flowWSMessage{Type: "error", Error: "unknown message type"})
			continue
		}
		send()
		if e.Step() == flow.StepDone {
			return
		}
	}
}

func (s *Server) runLoginSession(ctx context.Context, conn *websocket.Conn, a *flow.Authentication) {
	send := func() {
		snap := flowWSMessage{
			Type:  "state",
			Step:  a.Step().String(),
			Error: a.LastError(),
		}
		if a.Step() == flow.StepDone {
			snap.UserID = a.UserID()
			snap.Name = a.UserName()
			snap.AuthCookie = auth.Encode(auth.Session{
				IsAuthenticated: true,
				UserID:          a.UserID(),
				Username:        a.UserName(),
			})
		}
		_ = conn.WriteJSON(snap)
	}
	send()

	for {
		var m flowWSMessage
		if err := conn.ReadJSON(&m); err != nil {
			return
		}
		switch strings.ToLower(m.Type) {
		case "select_method":
			a.ChooseMethod(parseMethod(m.Method))
		case "submit_identity":
			if err := a.SubmitUserID(m.Value); err != nil {
				_ = conn.WriteJSON(flowWSMessage{Type: "error", Error: err.Error()})
				continue
			}
		case "submit_secret":
			a.SubmitPIN(ctx, m.Value)
		case "back":
			a.Back()
		case "bye":
			return
		default:
			_ = conn.WriteJSON(flowWSMessage{Type: "error", Error: "unknown message type"})
			continue
		}
		send()
		if a.Step() == flow.StepDone {
			return
		}
	}
}

func parseMethod(s string) flow.Method {
	if strings.ToLower(s) == "voice" {
		return flow.MethodVoice
	}
	return flow.MethodText
}

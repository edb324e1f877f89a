package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"twiddle-pid-core/control"
	"twiddle-pid-core/utils"
)

const (
	wsReadLimit       = 1 << 20
	wsShutdownTimeout = 5 * time.Second
)

// WSServer accepts simulator websocket connections and runs one Runner
// per connection.
type WSServer struct {
	addr string
	rcfg RunnerConfig
	log  *utils.Logger
}

func NewWSServer(addr string, rcfg RunnerConfig, log *utils.Logger) *WSServer {
	return &WSServer{addr: addr, rcfg: rcfg, log: log}
}

// ServeHTTP upgrades websocket requests into sessions. Plain requests to
// "/" get a placeholder page; anything else an empty response.
func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		if r.URL.Path == "/" {
			_, _ = io.WriteString(w, "<h1>Hello world!</h1>")
		}
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.Error("websocket accept from %s: %v", r.RemoteAddr, err)
		return
	}
	conn.SetReadLimit(wsReadLimit)

	sess := &wsSession{id: uuid.NewString(), conn: conn, log: s.log}
	s.log.Info("Connected: session=%s remote=%s", sess.id, r.RemoteAddr)

	rcfg := s.rcfg
	rcfg.Name = "ws:" + sess.id[:8]
	runner, err := NewRunner(rcfg, s.log)
	if err != nil {
		s.log.Error("session %s: %v", sess.id, err)
		_ = conn.Close(websocket.StatusInternalError, "controller setup failed")
		return
	}

	err = runner.Run(r.Context(), sess, sess)
	switch {
	case err == nil:
		_ = conn.Close(websocket.StatusNormalClosure, "")
	case errors.Is(err, context.Canceled):
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	default:
		s.log.Error("session %s: %v", sess.id, err)
		_ = conn.Close(websocket.StatusInternalError, "")
	}
	s.log.Info("Disconnected: session=%s", sess.id)
}

// ListenAndServe serves until ctx is done.
func (s *WSServer) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.log.Info("Listening to %s", ln.Addr())
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *WSServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), wsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}

// wsSession speaks the simulator's socket.io text protocol on one
// websocket connection.
type wsSession struct {
	id   string
	conn *websocket.Conn
	log  *utils.Logger
}

// steerMsg is the payload of a "steer" event.
type steerMsg struct {
	SteeringAngle float64 `json:"steering_angle"`
	Throttle      float64 `json:"throttle"`
}

// telemetryMsg is the payload of a "telemetry" event. The simulator sends
// numbers as strings.
type telemetryMsg struct {
	CTE           json.RawMessage `json:"cte"`
	Speed         json.RawMessage `json:"speed"`
	SteeringAngle json.RawMessage `json:"steering_angle"`
}

func (s *wsSession) Next(ctx context.Context) (control.Telemetry, error) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
				return control.Telemetry{}, io.EOF
			}
			if ctx.Err() != nil {
				return control.Telemetry{}, ctx.Err()
			}
			return control.Telemetry{}, fmt.Errorf("websocket read: %w", err)
		}

		msg := string(data)
		if msg == utils.EngineIOPing {
			if err := s.write(ctx, []byte(utils.EngineIOPong)); err != nil {
				return control.Telemetry{}, err
			}
			continue
		}
		if len(msg) <= len(utils.SocketIOEvent) || !strings.HasPrefix(msg, utils.SocketIOEvent) {
			continue
		}

		payload := utils.EventPayload(msg)
		if payload == "" {
			// Manual driving
			if err := s.emit(ctx, "manual", nil); err != nil {
				return control.Telemetry{}, err
			}
			continue
		}

		event, arg, err := utils.DecodeEvent(payload)
		if err != nil {
			s.log.Warn("session %s: %v", s.id, err)
			continue
		}
		if event != "telemetry" {
			s.log.Trace("session %s: ignoring event %q", s.id, event)
			continue
		}
		tel, err := parseTelemetry(arg)
		if err != nil {
			s.log.Warn("session %s: bad telemetry: %v", s.id, err)
			continue
		}
		return tel, nil
	}
}

func (s *wsSession) Send(ctx context.Context, cmd control.Command) error {
	return s.emit(ctx, "steer", steerMsg{SteeringAngle: cmd.Steering, Throttle: cmd.Throttle})
}

func (s *wsSession) Restart(ctx context.Context) error {
	s.log.Debug("session %s: requesting episode restart", s.id)
	return s.emit(ctx, "reset", nil)
}

func (s *wsSession) emit(ctx context.Context, event string, payload any) error {
	msg, err := utils.EncodeEvent(event, payload)
	if err != nil {
		return err
	}
	return s.write(ctx, msg)
}

func (s *wsSession) write(ctx context.Context, msg []byte) error {
	if err := s.conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func parseTelemetry(raw json.RawMessage) (control.Telemetry, error) {
	var m telemetryMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return control.Telemetry{}, err
	}
	cte, err := jsonNumber(m.CTE)
	if err != nil {
		return control.Telemetry{}, fmt.Errorf("cte: %w", err)
	}
	speed, err := jsonNumber(m.Speed)
	if err != nil {
		return control.Telemetry{}, fmt.Errorf("speed: %w", err)
	}
	var heading float64
	if len(m.SteeringAngle) > 0 {
		if heading, err = jsonNumber(m.SteeringAngle); err != nil {
			return control.Telemetry{}, fmt.Errorf("steering_angle: %w", err)
		}
	}
	return control.Telemetry{CTE: cte, Speed: speed, Heading: heading}, nil
}

// jsonNumber accepts a JSON number or a string holding one.
func jsonNumber(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, errors.New("missing")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}

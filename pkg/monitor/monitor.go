package monitor

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomjod/forcemeter/internal/log"
	"github.com/tomjod/forcemeter/pkg/meter"
	"github.com/tomjod/forcemeter/pkg/protocol"
)

// DefaultReadingRate is the default number of readings per second pushed to WebSocket clients.
const DefaultReadingRate = 10

// Meter is the part of a meter.Meter the server drives.
type Meter interface {
	DeviceName() string
	State() meter.ConnectionState
	Reading() (protocol.ForceReading, bool)
	Stats() protocol.DecoderStats
	SubscribeState(ctx context.Context) <-chan meter.ConnectionState
	SubscribeReadings(ctx context.Context) <-chan *protocol.ForceReading
	SubscribeAcks(ctx context.Context) <-chan uint64
	StartScan() error
	SendTareCommand() error
	CalibrateChannelA(factor float32) error
	CalibrateChannelB(factor float32) error
	Disconnect()
}

// Response contains a server's response to a client request.
type Response struct {
	Response   interface{} `json:"response"`
	Error      string      `json:"error,omitempty"`
	ErrDetails string      `json:"error_description,omitempty"`
}

type commandResult struct {
	Result bool `json:"result"`
}

// StateResponse is the body of GET /api/state.
type StateResponse struct {
	Device  string                 `json:"device"`
	State   meter.ConnectionState  `json:"state"`
	Reading *protocol.ForceReading `json:"reading"`
	Stats   protocol.DecoderStats  `json:"stats"`
	Clients int                    `json:"clients"`
}

// Server exposes a Meter over HTTP.
type Server struct {
	// Token, if set, must be presented as a bearer token (or, for /ws, an access_token query
	// parameter) on every request.
	Token string

	meter    Meter
	hub      *hub
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a Server and starts forwarding m's updates to WebSocket clients. Readings are
// throttled to readingsPerSecond; state changes and cleared readings are always sent.
func New(ctx context.Context, m Meter, readingsPerSecond float64) *Server {
	if readingsPerSecond <= 0 {
		readingsPerSecond = DefaultReadingRate
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Server{
		meter:   m,
		hub:     newHub(),
		limiter: rate.NewLimiter(rate.Limit(readingsPerSecond), 1),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.feed(ctx)
	return s
}

// AllowAnyOrigin disables the same-origin check on WebSocket upgrades.
func (s *Server) AllowAnyOrigin() {
	s.upgrader.CheckOrigin = func(*http.Request) bool { return true }
}

// Close stops the feed and disconnects WebSocket clients. It does not disconnect the meter.
func (s *Server) Close() {
	s.cancel()
	s.hub.closeAll()
	<-s.done
}

func (s *Server) feed(ctx context.Context) {
	defer close(s.done)
	states := s.meter.SubscribeState(ctx)
	readings := s.meter.SubscribeReadings(ctx)
	acks := s.meter.SubscribeAcks(ctx)
	// The first value on acks is the count at subscription time, not a new acknowledgment.
	replayed := true
	for {
		select {
		case state, ok := <-states:
			if !ok {
				return
			}
			s.hub.broadcast(Message{Type: "state", Data: state})
		case reading, ok := <-readings:
			if !ok {
				return
			}
			if reading == nil || s.limiter.Allow() {
				s.hub.broadcast(Message{Type: "reading", Data: reading})
			}
		case n, ok := <-acks:
			if !ok {
				return
			}
			if replayed {
				replayed = false
				continue
			}
			s.hub.broadcast(Message{Type: "ack", Data: n})
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, reply *Response) {
	jsonBytes, err := json.Marshal(reply)
	if err != nil {
		log.Error("Error serializing reply %+v: %s", reply, err)
		code = http.StatusInternalServerError
		jsonBytes = []byte("{\"error\": \"internal server error\"}")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	jsonBytes = append(jsonBytes, '\n')
	w.Write(jsonBytes)
}

func writeJSONError(w http.ResponseWriter, code int, err error) {
	reply := Response{}
	if err == nil {
		reply.Error = http.StatusText(code)
	} else {
		reply.Error = err.Error()
		if protocol.Temporary(err) {
			reply.ErrDetails = "temporary error; retry"
		}
	}
	if code >= http.StatusInternalServerError {
		log.Error("Returning error %s: %s", http.StatusText(code), reply.Error)
	} else {
		log.Warning("Returning error %s: %s", http.StatusText(code), reply.Error)
	}
	writeJSON(w, code, &reply)
}

// statusCode maps facade errors onto HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, protocol.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, protocol.ErrReleased):
		return http.StatusServiceUnavailable
	case protocol.MayHaveSucceeded(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) authorized(req *http.Request) bool {
	if s.Token == "" {
		return true
	}
	token, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
	if !ok && req.URL.Path == "/ws" {
		token, ok = req.URL.Query().Get("access_token"), true
	}
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) == 1
}

func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	log.Info("Received %s request for %s", req.Method, req.URL.Path)

	if !s.authorized(req) {
		writeJSONError(w, http.StatusForbidden, errors.New("client did not provide a valid token"))
		return
	}

	method := http.MethodPost
	var action func() error
	switch path := req.URL.Path; {
	case path == "/ws":
		if req.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, nil)
			return
		}
		s.handleWebSocket(w, req)
		return
	case path == "/api/state":
		method = http.MethodGet
	case path == "/api/scan":
		action = s.meter.StartScan
	case path == "/api/tare":
		action = s.meter.SendTareCommand
	case path == "/api/disconnect":
		action = func() error {
			s.meter.Disconnect()
			return nil
		}
	case strings.HasPrefix(path, "/api/calibrate/"):
		var err error
		if action, err = s.calibration(req, strings.TrimPrefix(path, "/api/calibrate/")); err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
	default:
		writeJSONError(w, http.StatusNotFound, nil)
		return
	}

	if req.Method != method {
		writeJSONError(w, http.StatusMethodNotAllowed, nil)
		return
	}
	if action == nil {
		writeJSON(w, http.StatusOK, &Response{Response: s.snapshot()})
		return
	}
	if err := action(); err != nil {
		writeJSONError(w, statusCode(err), err)
		return
	}
	writeJSON(w, http.StatusOK, &Response{Response: commandResult{Result: true}})
}

func (s *Server) calibration(req *http.Request, channel string) (func() error, error) {
	raw := req.URL.Query().Get("factor")
	factor, err := strconv.ParseFloat(raw, 32)
	if err != nil || factor == 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return nil, fmt.Errorf("invalid calibration factor '%s'", raw)
	}
	switch strings.ToLower(channel) {
	case "a":
		return func() error { return s.meter.CalibrateChannelA(float32(factor)) }, nil
	case "b":
		return func() error { return s.meter.CalibrateChannelB(float32(factor)) }, nil
	}
	return nil, fmt.Errorf("unknown channel '%s' (expected a or b)", channel)
}

func (s *Server) snapshot() *StateResponse {
	snapshot := &StateResponse{
		Device:  s.meter.DeviceName(),
		State:   s.meter.State(),
		Stats:   s.meter.Stats(),
		Clients: s.hub.count(),
	}
	if r, ok := s.meter.Reading(); ok {
		snapshot.Reading = &r
	}
	return snapshot
}

// handleWebSocket registers the client and then reads until it goes away. Incoming messages are
// ignored.
func (s *Server) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Warning("WebSocket upgrade failed: %s", err)
		return
	}
	c := s.hub.add(conn)
	log.Info("WebSocket client %s connected", conn.RemoteAddr())

	snapshot := s.snapshot()
	for _, msg := range []Message{{Type: "state", Data: snapshot.State}, {Type: "reading", Data: snapshot.Reading}} {
		if b, err := json.Marshal(msg); err == nil {
			c.send(b)
		}
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Info("WebSocket client %s disconnected", conn.RemoteAddr())
			s.hub.remove(c)
			return
		}
	}
}

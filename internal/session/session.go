package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/repairmind/print-agent/internal/job"
	"github.com/repairmind/print-agent/internal/printer"
)

type State string

const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateConnected      State = "connected"
	StateReconnecting   State = "reconnecting"
)

var (
	ErrNotConnected = errors.New("session not connected")
	ErrTimeout      = errors.New("request timed out")
	ErrAuthRejected = errors.New("authentication rejected")
)

var defaultReconnectDelays = []time.Duration{
	5 * time.Second, 5 * time.Second, 10 * time.Second, 10 * time.Second,
	30 * time.Second, 30 * time.Second, 60 * time.Second,
}

type Config struct {
	URL               string
	Namespace         string
	TenantID          string
	ClientID          string
	Token             string
	APIKey            string
	HeartbeatInterval time.Duration
	RequestTimeout    time.Duration
	AuthTimeout       time.Duration
	ReconnectDelays   []time.Duration
	MaxReconnectDelay time.Duration
	Log               *logrus.Logger
}

func (c *Config) applyDefaults() {
	if c.Namespace == "" {
		c.Namespace = "/print"
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.AuthTimeout == 0 {
		c.AuthTimeout = 10 * time.Second
	}
	if len(c.ReconnectDelays) == 0 {
		c.ReconnectDelays = defaultReconnectDelays
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 300 * time.Second
	}
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
}

// Callbacks are the session's outbound seam. All callbacks are optional and
// invoked outside the session lock.
type Callbacks struct {
	OnJob             func(job.Job)
	OnPendingJobs     func([]job.Job)
	OnStateChange     func(State)
	OnConnected       func()
	OnReconnected     func()
	OnReconnecting    func(attempt int, delay time.Duration)
	OnReconnectFailed func(attempt int, err error)
	OnAuthError       func(message string)
	OnError           func(error)
}

// envelope is one wire message: an event name, an optional correlation id
// and an event-specific payload.
type envelope struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type waiterResult struct {
	env envelope
	err error
}

// waiter is a scoped ack/error listener pair for one in-flight request. It
// is removed on every resolution path.
type waiter struct {
	id       string
	ackEvent string
	errEvent string
	ch       chan waiterResult
}

// Session is the single logical connection to the backend. It owns the
// registered-printer cache used to replay registrations after reconnect.
type Session struct {
	cfg Config
	cb  Callbacks
	log *logrus.Entry

	mu            sync.Mutex
	state         State
	conn          *websocket.Conn
	gen           int
	waiters       []*waiter
	registered    []printer.Descriptor
	attempts      int
	manual        bool
	everConnected bool
	hbStop        chan struct{}
	retryTimer    *time.Timer

	writeMu sync.Mutex
}

func New(cfg Config, cb Callbacks) *Session {
	cfg.applyDefaults()
	return &Session{
		cfg:   cfg,
		cb:    cb,
		state: StateDisconnected,
		log:   cfg.Log.WithField("component", "session"),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	if s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()
	if s.cb.OnStateChange != nil {
		s.cb.OnStateChange(next)
	}
}

// RegisteredPrinters snapshots the replay cache in insertion order.
func (s *Session) RegisteredPrinters() []printer.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]printer.Descriptor(nil), s.registered...)
}

// Connect dials, authenticates and arms the heartbeat. A transient failure
// schedules a background reconnect; an explicit auth rejection does not,
// since retrying the same credentials cannot succeed.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected && s.state != StateReconnecting {
		s.mu.Unlock()
		return nil
	}
	s.manual = false
	s.mu.Unlock()

	s.setState(StateConnecting)

	url := strings.TrimSuffix(s.cfg.URL, "/") + s.cfg.Namespace
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		s.setState(StateDisconnected)
		s.scheduleReconnect()
		return fmt.Errorf("dial %s: %w", url, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	// The read loop is the one inbound handler for this socket instance;
	// gen keeps a stale loop from touching a replacement socket.
	go s.readLoop(conn, gen)

	s.setState(StateAuthenticating)
	if err := s.authenticate(ctx); err != nil {
		s.closeConn(conn, gen)
		s.setState(StateDisconnected)
		if errors.Is(err, ErrAuthRejected) {
			if s.cb.OnAuthError != nil {
				s.cb.OnAuthError(err.Error())
			}
			return err
		}
		s.scheduleReconnect()
		return err
	}

	s.mu.Lock()
	s.attempts = 0
	first := !s.everConnected
	s.everConnected = true
	s.mu.Unlock()

	s.setState(StateConnected)
	s.startHeartbeat()

	if first {
		if s.cb.OnConnected != nil {
			go s.cb.OnConnected()
		}
	} else {
		go func() {
			s.replayRegistrations()
			if s.cb.OnReconnected != nil {
				s.cb.OnReconnected()
			}
		}()
	}
	return nil
}

// Disconnect is operator-initiated: no reconnect is scheduled.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.manual = true
	conn := s.conn
	gen := s.gen
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.mu.Unlock()

	if conn != nil {
		s.closeConn(conn, gen)
	}
	s.setState(StateDisconnected)
}

type authPayload struct {
	TenantID string `json:"tenantId"`
	ClientID string `json:"clientId"`
	Token    string `json:"token"`
	APIKey   string `json:"apiKey"`
}

type authResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Session) authenticate(ctx context.Context) error {
	data, err := s.request(ctx, "authenticate", authPayload{
		TenantID: s.cfg.TenantID,
		ClientID: s.cfg.ClientID,
		Token:    s.cfg.Token,
		APIKey:   s.cfg.APIKey,
	}, "authenticated", "auth_error", s.cfg.AuthTimeout)
	if err != nil {
		if errors.Is(err, errRequestRejected) {
			return fmt.Errorf("%w: %v", ErrAuthRejected, err)
		}
		return fmt.Errorf("authenticate: %w", err)
	}

	var res authResult
	if err := json.Unmarshal(data, &res); err != nil {
		return fmt.Errorf("authenticate: decode ack: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("%w: %s", ErrAuthRejected, res.Message)
	}
	return nil
}

// RegisterPrinter announces a descriptor to the backend and, on success,
// records it for replay after reconnect.
func (s *Session) RegisterPrinter(ctx context.Context, desc printer.Descriptor) error {
	_, err := s.request(ctx, "register_printer", desc, "printer_registered", "error", s.cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("register printer %s: %w", desc.SystemName, err)
	}

	s.mu.Lock()
	replaced := false
	for i := range s.registered {
		if s.registered[i].SystemName == desc.SystemName {
			s.registered[i] = desc
			replaced = true
			break
		}
	}
	if !replaced {
		s.registered = append(s.registered, desc)
	}
	s.mu.Unlock()
	return nil
}

type printerStatusPayload struct {
	PrinterID string         `json:"printerId"`
	Status    string         `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (s *Session) UpdatePrinterStatus(ctx context.Context, printerID, status string, meta map[string]any) error {
	_, err := s.request(ctx, "printer_status", printerStatusPayload{
		PrinterID: printerID,
		Status:    status,
		Metadata:  meta,
	}, "status_updated", "error", s.cfg.RequestTimeout)
	return err
}

// SendHeartbeat is fire-and-forget; heartbeat_ack is never awaited.
func (s *Session) SendHeartbeat(printerID string) error {
	return s.emit("heartbeat", map[string]string{"printerId": printerID})
}

type pendingJobsResult struct {
	Jobs []job.Job `json:"jobs"`
}

// GetAllPendingJobs asks the backend for every pending job of this client.
func (s *Session) GetAllPendingJobs(ctx context.Context) ([]job.Job, error) {
	data, err := s.request(ctx, "get_pending_jobs", map[string]string{
		"clientId": s.cfg.ClientID,
	}, "pending_jobs", "error", s.cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("get pending jobs: %w", err)
	}

	var res pendingJobsResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode pending jobs: %w", err)
	}
	return res.Jobs, nil
}

type jobStatusPayload struct {
	JobID    string         `json:"jobId"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UpdateJobStatus is deliberately fire-and-forget: concurrent jobs would
// otherwise race on the shared job_status_updated ack channel.
func (s *Session) UpdateJobStatus(jobID, status string, meta map[string]any) error {
	return s.emit("job_status", jobStatusPayload{JobID: jobID, Status: status, Metadata: meta})
}

var errRequestRejected = errors.New("request rejected")

func (s *Session) request(ctx context.Context, event string, payload any, ackEvent, errEvent string, timeout time.Duration) (json.RawMessage, error) {
	w := &waiter{
		id:       uuid.NewString(),
		ackEvent: ackEvent,
		errEvent: errEvent,
		ch:       make(chan waiterResult, 1),
	}

	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()
	defer s.removeWaiter(w)

	if err := s.write(conn, envelope{Event: event, ID: w.id, Data: mustMarshal(payload)}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-w.ch:
		if res.err != nil {
			return nil, res.err
		}
		if res.env.Event == errEvent {
			return nil, fmt.Errorf("%w: %s", errRequestRejected, errorMessage(res.env.Data))
		}
		return res.env.Data, nil
	case <-timer.C:
		return nil, fmt.Errorf("%s: %w", event, ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) emit(event string, payload any) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()
	if conn == nil || !connected {
		return ErrNotConnected
	}
	return s.write(conn, envelope{Event: event, Data: mustMarshal(payload)})
}

func (s *Session) write(conn *websocket.Conn, env envelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.RequestTimeout))
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("write %s: %w", env.Event, err)
	}
	return nil
}

func (s *Session) removeWaiter(w *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cand := range s.waiters {
		if cand == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

func (s *Session) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(conn, gen, err)
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.WithError(err).Warn("undecodable message")
			continue
		}
		s.dispatch(env)
	}
}

func (s *Session) dispatch(env envelope) {
	if w := s.takeWaiter(env); w != nil {
		w.ch <- waiterResult{env: env}
		return
	}

	switch env.Event {
	case "new_print_job":
		var j job.Job
		if err := json.Unmarshal(env.Data, &j); err != nil {
			s.log.WithError(err).Warn("undecodable print job")
			return
		}
		if s.cb.OnJob != nil {
			s.cb.OnJob(j)
		}
	case "pending_jobs":
		var res pendingJobsResult
		if err := json.Unmarshal(env.Data, &res); err != nil {
			s.log.WithError(err).Warn("undecodable pending jobs")
			return
		}
		if s.cb.OnPendingJobs != nil {
			s.cb.OnPendingJobs(res.Jobs)
		}
	case "heartbeat_ack", "job_status_updated", "printer_registered", "status_updated":
		s.log.WithField("event", env.Event).Trace("unsolicited ack")
	case "error":
		if s.cb.OnError != nil {
			s.cb.OnError(errors.New(errorMessage(env.Data)))
		}
	default:
		s.log.WithField("event", env.Event).Debug("unhandled event")
	}
}

// takeWaiter resolves an inbound envelope to its pending request: by
// correlation id when the backend echoes one, by ack/error event name
// otherwise (oldest waiter wins).
func (s *Session) takeWaiter(env envelope) *waiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.waiters {
		matched := (env.ID != "" && env.ID == w.id) ||
			(env.ID == "" && (env.Event == w.ackEvent || env.Event == w.errEvent))
		if matched {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return w
		}
	}
	return nil
}

func (s *Session) closeConn(conn *websocket.Conn, gen int) {
	s.mu.Lock()
	if s.gen == gen && s.conn == conn {
		s.conn = nil
		// Detach the read loop: a bumped generation keeps its disconnect
		// handler from scheduling a second reconnect.
		s.gen++
	}
	s.stopHeartbeatLocked()
	s.failWaitersLocked()
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Session) failWaitersLocked() {
	for _, w := range s.waiters {
		select {
		case w.ch <- waiterResult{err: ErrNotConnected}:
		default:
		}
	}
	s.waiters = nil
}

func (s *Session) handleDisconnect(conn *websocket.Conn, gen int, cause error) {
	s.mu.Lock()
	if s.gen != gen {
		// A replacement socket is already live; this loop belonged to the
		// old, fully detached one.
		s.mu.Unlock()
		return
	}
	s.conn = nil
	manual := s.manual
	s.stopHeartbeatLocked()
	s.failWaitersLocked()
	s.mu.Unlock()
	_ = conn.Close()

	if manual {
		s.setState(StateDisconnected)
		return
	}

	s.log.WithError(cause).Warn("connection lost")
	s.setState(StateDisconnected)
	s.scheduleReconnect()
}

// scheduleReconnect arms the next attempt with the progressive delay
// ladder. Attempts are unlimited; the delay is capped.
func (s *Session) scheduleReconnect() {
	s.mu.Lock()
	if s.manual {
		s.mu.Unlock()
		return
	}
	attempt := s.attempts
	s.attempts++
	idx := attempt
	if idx >= len(s.cfg.ReconnectDelays) {
		idx = len(s.cfg.ReconnectDelays) - 1
	}
	delay := s.cfg.ReconnectDelays[idx]
	if delay > s.cfg.MaxReconnectDelay {
		delay = s.cfg.MaxReconnectDelay
	}
	s.retryTimer = time.AfterFunc(delay, func() {
		if err := s.Connect(context.Background()); err != nil {
			if s.cb.OnReconnectFailed != nil {
				s.cb.OnReconnectFailed(attempt+1, err)
			}
		}
	})
	s.mu.Unlock()

	s.setState(StateReconnecting)
	if s.cb.OnReconnecting != nil {
		s.cb.OnReconnecting(attempt+1, delay)
	}
}

// replayRegistrations re-announces every cached descriptor. Failures are
// non-fatal; the cache keeps its entries for the next reconnect.
func (s *Session) replayRegistrations() {
	for _, desc := range s.RegisteredPrinters() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
		_, err := s.request(ctx, "register_printer", desc, "printer_registered", "error", s.cfg.RequestTimeout)
		cancel()
		if err != nil {
			s.log.WithError(err).WithField("printer", desc.SystemName).Warn("re-registration failed")
		}
	}
}

func (s *Session) startHeartbeat() {
	s.mu.Lock()
	s.stopHeartbeatLocked()
	stop := make(chan struct{})
	s.hbStop = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				for _, desc := range s.RegisteredPrinters() {
					if err := s.SendHeartbeat(desc.SystemName); err != nil {
						return
					}
				}
			}
		}
	}()
}

func (s *Session) stopHeartbeatLocked() {
	if s.hbStop != nil {
		close(s.hbStop)
		s.hbStop = nil
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

func errorMessage(data json.RawMessage) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return string(data)
}

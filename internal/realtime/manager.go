package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/campusconnect/backend/internal/auth"
	"github.com/campusconnect/backend/internal/messages"
	"github.com/campusconnect/backend/internal/metrics"
	"github.com/campusconnect/backend/internal/notifications"
	"github.com/campusconnect/backend/internal/presence"
	"github.com/campusconnect/backend/internal/serviceerr"
	"github.com/campusconnect/backend/internal/users"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultSendBuffer    = 64
	defaultMaxFrameBytes = 64 * 1024
	defaultPingInterval  = 25 * time.Second

	messageAuthenticationFailed = "Authentication failed"
	messageAccountRestricted    = "Account is not allowed to connect"
	messageNotAuthenticated     = "Not authenticated"
	messageEmptyContent         = "Message content is required"
	messageInvalidRecipient     = "Invalid recipient"
	messageRecipientNotFound    = "Recipient not found"
	messageSendFailed           = "Failed to send message"
	messageNotificationsFailed  = "Failed to load notifications"
	messageMalformedFrame       = "Malformed event"
	messageUnknownEvent         = "Unknown event"
	messageRateLimited          = "rate limit exceeded"
	messageInternal             = "Internal server error"
)

var (
	errMissingVerifier      = errors.New("identity verifier is required")
	errMissingMessages      = errors.New("message service is required")
	errMissingNotifications = errors.New("notification reader is required")
	errMissingDirectory     = errors.New("presence directory is required")
)

// Verifier resolves a bearer credential to an active account.
type Verifier interface {
	Verify(ctx context.Context, token string) (users.User, error)
}

// MessageDeliverer persists outbound messages.
type MessageDeliverer interface {
	Deliver(ctx context.Context, request messages.DeliverRequest) (messages.View, error)
}

// NotificationReader loads the unread notifications pushed on request.
type NotificationReader interface {
	RecentUnread(ctx context.Context, userID string, limit int) ([]notifications.View, error)
}

type ManagerConfig struct {
	Verifier      Verifier
	Messages      MessageDeliverer
	Notifications NotificationReader
	Directory     *presence.Directory
	Metrics       *metrics.Metrics
	Logger        *zap.Logger

	SendBuffer      int
	MaxFrameBytes   int64
	PingInterval    time.Duration
	EventsPerSecond float64
	EventBurst      int
	AllowedOrigins  []string
}

// Manager owns every open client channel and routes their events.
type Manager struct {
	verifier      Verifier
	messages      MessageDeliverer
	notifications NotificationReader
	directory     *presence.Directory
	metrics       *metrics.Metrics
	logger        *zap.Logger

	sendBuffer      int
	maxFrameBytes   int64
	pingInterval    time.Duration
	eventsPerSecond float64
	eventBurst      int
	upgrader        websocket.Upgrader

	mu          sync.RWMutex
	connections map[int64]*Connection
	nextID      int64
}

// clientError is reported to the client verbatim as an error event.
type clientError struct {
	message string
	cause   error
}

func (e *clientError) Error() string {
	if e.cause == nil {
		return e.message
	}
	return fmt.Sprintf("%s: %v", e.message, e.cause)
}

func (e *clientError) Unwrap() error {
	return e.cause
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Verifier == nil {
		return nil, errMissingVerifier
	}
	if cfg.Messages == nil {
		return nil, errMissingMessages
	}
	if cfg.Notifications == nil {
		return nil, errMissingNotifications
	}
	if cfg.Directory == nil {
		return nil, errMissingDirectory
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sendBuffer := cfg.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	maxFrameBytes := cfg.MaxFrameBytes
	if maxFrameBytes <= 0 {
		maxFrameBytes = defaultMaxFrameBytes
	}
	pingInterval := cfg.PingInterval
	if pingInterval < 0 {
		pingInterval = 0
	}
	eventBurst := cfg.EventBurst
	if cfg.EventsPerSecond > 0 && eventBurst <= 0 {
		eventBurst = 1
	}

	manager := &Manager{
		verifier:        cfg.Verifier,
		messages:        cfg.Messages,
		notifications:   cfg.Notifications,
		directory:       cfg.Directory,
		metrics:         cfg.Metrics,
		logger:          logger,
		sendBuffer:      sendBuffer,
		maxFrameBytes:   maxFrameBytes,
		pingInterval:    pingInterval,
		eventsPerSecond: cfg.EventsPerSecond,
		eventBurst:      eventBurst,
		connections:     make(map[int64]*Connection),
	}
	manager.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return manager, nil
}

// Open registers a new unauthenticated connection.
func (m *Manager) Open() *Connection {
	var limiter *rate.Limiter
	if m.eventsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(m.eventsPerSecond), m.eventBurst)
	}
	m.mu.Lock()
	m.nextID++
	connection := newConnection(m.nextID, m.sendBuffer, limiter)
	m.connections[connection.id] = connection
	m.mu.Unlock()
	m.metrics.ConnectionOpened()
	return connection
}

// Close releases the connection and its presence registration. Closing twice is a no-op.
func (m *Manager) Close(connection *Connection) {
	if connection == nil {
		return
	}
	registration, ok := connection.close()
	if !ok {
		return
	}
	m.mu.Lock()
	delete(m.connections, connection.id)
	m.mu.Unlock()
	m.metrics.ConnectionClosed()
	m.release(registration)
}

// HandleFrame decodes one raw inbound frame and dispatches it.
func (m *Manager) HandleFrame(ctx context.Context, connection *Connection, raw []byte) {
	if connection.Closed() {
		return
	}
	if !connection.allow() {
		m.metrics.RealtimeError("rate_limited")
		connection.Deliver(EventError, ErrorPayload{Message: messageRateLimited})
		return
	}
	name, event, err := DecodeInbound(raw)
	if err != nil {
		reply := messageMalformedFrame
		if errors.Is(err, ErrUnknownEvent) {
			reply = messageUnknownEvent
		}
		m.metrics.RealtimeError(metricEventLabel(name))
		m.logger.Debug("realtime frame rejected", zap.String("event", name), zap.Error(err))
		connection.Deliver(EventError, ErrorPayload{Message: reply})
		return
	}
	m.Handle(ctx, connection, event)
}

// Handle dispatches a decoded event. Handler failures and panics become error events
// and never close the connection.
func (m *Manager) Handle(ctx context.Context, connection *Connection, event InboundEvent) {
	if connection == nil || event == nil || connection.Closed() {
		return
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			m.metrics.RealtimeError(event.EventName())
			m.logger.Error("realtime handler panic",
				zap.String("event", event.EventName()),
				zap.Any("panic", recovered))
			connection.Deliver(EventError, ErrorPayload{Message: messageInternal})
		}
	}()

	if err := m.dispatch(ctx, connection, event); err != nil {
		m.metrics.RealtimeError(event.EventName())
		var reply *clientError
		if errors.As(err, &reply) {
			connection.Deliver(EventError, ErrorPayload{Message: reply.message})
			return
		}
		m.logger.Error("realtime handler failed",
			zap.String("event", event.EventName()),
			zap.String("code", serviceerr.Code(err)),
			zap.Error(err))
		connection.Deliver(EventError, ErrorPayload{Message: messageInternal})
	}
}

func (m *Manager) dispatch(ctx context.Context, connection *Connection, event InboundEvent) error {
	if authenticate, ok := event.(Authenticate); ok {
		return m.authenticate(ctx, connection, authenticate)
	}
	state, userID := connection.currentState()
	if state != stateAuthenticated {
		if _, ok := event.(Disconnect); ok {
			m.Close(connection)
			return nil
		}
		return &clientError{message: messageNotAuthenticated}
	}

	switch e := event.(type) {
	case SendMessage:
		return m.sendMessage(ctx, connection, userID, e)
	case Typing:
		m.forwardTyping(userID, e.ReceiverID, EventUserTyping)
		return nil
	case StopTyping:
		m.forwardTyping(userID, e.ReceiverID, EventUserStopTyping)
		return nil
	case FetchNotifications:
		return m.fetchNotifications(ctx, connection, userID)
	case Disconnect:
		m.Close(connection)
		return nil
	default:
		return &clientError{message: messageUnknownEvent}
	}
}

func (m *Manager) authenticate(ctx context.Context, connection *Connection, event Authenticate) error {
	account, err := m.verifier.Verify(ctx, event.Token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			m.logger.Info("realtime authentication failed", zap.Error(err))
		case auth.IsAuthenticationFailure(err), auth.IsAccountRestricted(err):
			m.logger.Warn("realtime authentication failed", zap.Error(err))
		default:
			return err
		}
		if auth.IsAccountRestricted(err) {
			return &clientError{message: messageAccountRestricted, cause: err}
		}
		return &clientError{message: messageAuthenticationFailed, cause: err}
	}

	previous := connection.currentRegistration()
	registration := previous
	if previous.UserID() != account.UserID {
		if previous.Valid() {
			m.release(previous)
		}
		registration, _ = m.directory.Register(account.UserID, connection)
	}
	connection.authenticated(registration)
	if connection.Closed() {
		m.release(registration)
		return nil
	}

	m.metrics.SetOnlineUsers(m.directory.Count())
	m.broadcast(EventUserOnline, account.UserID)
	connection.Deliver(EventOnlineUsers, m.directory.Users())
	return nil
}

func (m *Manager) sendMessage(ctx context.Context, connection *Connection, userID string, event SendMessage) error {
	view, err := m.messages.Deliver(ctx, messages.DeliverRequest{
		SenderID:   userID,
		ReceiverID: event.ReceiverID,
		Text:       event.Text,
		Media:      event.Media,
		Path:       metrics.PathRealtime,
	})
	if err != nil {
		switch {
		case errors.Is(err, messages.ErrEmptyContent):
			return &clientError{message: messageEmptyContent, cause: err}
		case errors.Is(err, messages.ErrInvalidRecipient):
			return &clientError{message: messageInvalidRecipient, cause: err}
		case errors.Is(err, users.ErrUserNotFound):
			return &clientError{message: messageRecipientNotFound, cause: err}
		default:
			m.logger.Error("realtime message delivery failed",
				zap.String("sender_id", userID),
				zap.String("code", serviceerr.Code(err)),
				zap.Error(err))
			return &clientError{message: messageSendFailed, cause: err}
		}
	}

	sent := view
	sent.IsFromUser = true
	connection.Deliver(EventMessageSent, sent)

	received := view
	received.IsFromUser = false
	present, delivered := m.directory.SendTo(view.Receiver, EventNewMessage, received)
	switch {
	case !present:
		m.metrics.LivePush(metrics.PushOffline)
	case delivered == 0:
		m.metrics.LivePush(metrics.PushDropped)
		m.logger.Warn("live push dropped",
			zap.String("message_id", view.ID),
			zap.String("receiver_id", view.Receiver))
	default:
		m.metrics.LivePush(metrics.PushDelivered)
	}
	return nil
}

func (m *Manager) forwardTyping(userID, receiverID, event string) {
	if receiverID == "" {
		return
	}
	m.directory.SendTo(receiverID, event, TypingPayload{UserID: userID})
}

func (m *Manager) fetchNotifications(ctx context.Context, connection *Connection, userID string) error {
	views, err := m.notifications.RecentUnread(ctx, userID, notifications.DefaultRecentLimit)
	if err != nil {
		m.logger.Error("realtime notifications fetch failed",
			zap.String("user_id", userID),
			zap.String("code", serviceerr.Code(err)),
			zap.Error(err))
		return &clientError{message: messageNotificationsFailed, cause: err}
	}
	connection.Deliver(EventNotifications, views)
	return nil
}

func (m *Manager) release(registration presence.Registration) {
	if !registration.Valid() {
		return
	}
	last := m.directory.Unregister(registration)
	m.metrics.SetOnlineUsers(m.directory.Count())
	if last {
		m.broadcast(EventUserOffline, registration.UserID())
	}
}

// broadcast queues the event on every open connection, authenticated or not.
func (m *Manager) broadcast(event string, payload interface{}) {
	m.mu.RLock()
	targets := make([]*Connection, 0, len(m.connections))
	for _, connection := range m.connections {
		targets = append(targets, connection)
	}
	m.mu.RUnlock()
	for _, connection := range targets {
		connection.Deliver(event, payload)
	}
}

// ConnectionCount returns the number of open connections.
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func metricEventLabel(name string) string {
	switch name {
	case EventAuthenticate, EventSendMessage, EventTyping, EventStopTyping, EventGetNotifications, EventDisconnect:
		return name
	case "":
		return "malformed"
	default:
		return "unknown"
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	origins := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		origins[origin] = struct{}{}
	}
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := origins[origin]
		return ok
	}
}

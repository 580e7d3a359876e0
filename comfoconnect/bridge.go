package comfoconnect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultRequestTimeout is how long a request waits for its reply.
	DefaultRequestTimeout = 5 * time.Second

	// DefaultConnectTimeout bounds dialing the gateway.
	DefaultConnectTimeout = 5 * time.Second
)

// Option configures a Bridge or ComfoConnect.
type Option func(*options)

type options struct {
	logger         *zap.SugaredLogger
	requestTimeout time.Duration
	port           int
	sensorCallback func(Sensor, any)
	alarmCallback  func(nodeID uint32, errors map[int]string)
}

func defaultOptions() options {
	return options{
		logger:         zap.NewNop().Sugar(),
		requestTimeout: DefaultRequestTimeout,
		port:           Port,
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRequestTimeout sets how long requests wait for a reply.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.requestTimeout = timeout
	}
}

// WithPort overrides the gateway TCP port.
func WithPort(port int) Option {
	return func(o *options) {
		o.port = port
	}
}

// WithSensorCallback is called with the decoded value of every registered sensor update.
func WithSensorCallback(cb func(sensor Sensor, value any)) Option {
	return func(o *options) {
		o.sensorCallback = cb
	}
}

// WithAlarmCallback is called with the active errors when a node raises an alarm.
func WithAlarmCallback(cb func(nodeID uint32, errors map[int]string)) Option {
	return func(o *options) {
		o.alarmCallback = cb
	}
}

type reply struct {
	msg *message
	err error
}

// Bridge is a session with a ComfoConnect LAN C gateway.
//
// All methods are safe for concurrent use. Replies are matched to requests by reference; anything
// else that arrives is handed to the notification handler.
type Bridge struct {
	Host string
	UUID uuid.UUID

	opts   options
	logger *zap.SugaredLogger

	mu        sync.Mutex
	conn      net.Conn
	localUUID uuid.UUID
	reference uint32
	pending   map[uint32]chan reply

	writeMu sync.Mutex

	// notify receives unsolicited messages. It runs on the read goroutine.
	notify func(*message)
}

// NewBridge returns a Bridge for the gateway at host. It does not connect.
func NewBridge(host string, id uuid.UUID, opts ...Option) *Bridge {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Bridge{
		Host:    host,
		UUID:    id,
		opts:    o,
		logger:  o.logger,
		pending: map[uint32]chan reply{},
	}
}

// IsConnected reports whether the TCP connection is open.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// Connect opens the TCP connection to the gateway. It does not start a session.
func (b *Bridge) Connect(ctx context.Context, localUUID uuid.UUID) error {
	b.mu.Lock()
	old := b.conn
	b.mu.Unlock()
	if old != nil {
		b.closeConn(old, nil)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultConnectTimeout)
		defer cancel()
	}

	address := net.JoinHostPort(b.Host, strconv.Itoa(b.opts.port))
	b.logger.Debugf("Connecting to bridge %v", address)

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return fmt.Errorf("%w: connecting to %v", ErrTimeout, address)
		}
		return fmt.Errorf("connecting to %v: %w", address, err)
	}

	b.mu.Lock()
	b.conn = conn
	b.localUUID = localUUID
	b.mu.Unlock()

	go b.readLoop(conn)

	return nil
}

// Disconnect closes the session and the connection.
func (b *Bridge) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return nil
	}

	if err := b.CmdCloseSession(ctx); err != nil {
		b.logger.Debugf("Closing session failed: %v", err)
	}

	b.closeConn(conn, nil)
	return nil
}

// CmdStartSession starts a session, optionally taking over an existing one.
func (b *Bridge) CmdStartSession(ctx context.Context, takeover bool) (StartSessionConfirm, error) {
	resp, err := b.request(ctx, OperationStartSessionRequest, marshalStartSessionRequest(takeover), true)
	if err != nil {
		return StartSessionConfirm{}, err
	}
	return unmarshalStartSessionConfirm(resp.Body)
}

// CmdCloseSession ends the session. The gateway does not confirm.
func (b *Bridge) CmdCloseSession(ctx context.Context) error {
	_, err := b.request(ctx, OperationCloseSessionRequest, nil, false)
	return err
}

// CmdRegisterApp registers localUUID as an app on the gateway.
func (b *Bridge) CmdRegisterApp(ctx context.Context, localUUID uuid.UUID, deviceName string, pin uint32) error {
	_, err := b.request(ctx, OperationRegisterAppRequest, marshalRegisterAppRequest(localUUID[:], pin, deviceName), true)
	return err
}

// CmdDeregisterApp removes a registered app.
func (b *Bridge) CmdDeregisterApp(ctx context.Context, appUUID uuid.UUID) error {
	if appUUID == b.currentLocalUUID() {
		return errors.New("refusing to deregister the current app")
	}
	_, err := b.request(ctx, OperationDeregisterAppRequest, marshalDeregisterAppRequest(appUUID[:]), true)
	return err
}

// CmdListRegisteredApps lists the apps registered on the gateway.
func (b *Bridge) CmdListRegisteredApps(ctx context.Context) ([]RegisteredApp, error) {
	resp, err := b.request(ctx, OperationListRegisteredAppsRequest, nil, true)
	if err != nil {
		return nil, err
	}
	return unmarshalRegisteredApps(resp.Body)
}

// CmdVersionRequest returns the gateway version and serial number.
func (b *Bridge) CmdVersionRequest(ctx context.Context) (VersionConfirm, error) {
	resp, err := b.request(ctx, OperationVersionRequest, nil, true)
	if err != nil {
		return VersionConfirm{}, err
	}
	return unmarshalVersionConfirm(resp.Body)
}

// CmdTimeRequest returns the unit's clock. It is used as keepalive because, unlike KeepAlive, it
// gets an answer.
func (b *Bridge) CmdTimeRequest(ctx context.Context) (uint32, error) {
	resp, err := b.request(ctx, OperationCnTimeRequest, nil, true)
	if err != nil {
		return 0, err
	}
	return unmarshalTimeConfirm(resp.Body)
}

// CmdKeepAlive sends a keepalive. The gateway does not answer.
func (b *Bridge) CmdKeepAlive(ctx context.Context) error {
	_, err := b.request(ctx, OperationKeepAlive, nil, false)
	return err
}

// CmdRmiRequest sends a raw RMI message to a node and returns the response payload.
func (b *Bridge) CmdRmiRequest(ctx context.Context, msg []byte, nodeID uint32) ([]byte, error) {
	resp, err := b.request(ctx, OperationCnRmiRequest, marshalRmiRequest(nodeID, msg), true)
	if err != nil {
		return nil, err
	}
	return unmarshalRmiResponse(resp.Body)
}

// CmdRpdoRequest subscribes to a process data object.
func (b *Bridge) CmdRpdoRequest(ctx context.Context, pdid uint32, typ PdoType, zone uint32, timeout *uint32) error {
	_, err := b.request(ctx, OperationCnRpdoRequest, marshalRpdoRequest(pdid, zone, typ, timeout), true)
	return err
}

func (b *Bridge) currentLocalUUID() uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.localUUID
}

// request sends a message and, when wantReply is set, waits for the reply with the same reference.
func (b *Bridge) request(ctx context.Context, typ OperationType, body []byte, wantReply bool) (*message, error) {
	b.mu.Lock()
	conn := b.conn
	if conn == nil {
		b.mu.Unlock()
		return nil, ErrNotConnected
	}
	b.reference++
	ref := b.reference
	var ch chan reply
	if wantReply {
		ch = make(chan reply, 1)
		b.pending[ref] = ch
	}
	msg := &message{
		Src:  b.localUUID,
		Dst:  b.UUID,
		Op:   operation{Type: typ, Reference: ref},
		Body: body,
	}
	b.mu.Unlock()

	b.logger.Debugf("Sending %v (ref %d)", typ, ref)

	b.writeMu.Lock()
	err := writeMessage(conn, msg)
	b.writeMu.Unlock()
	if err != nil {
		b.forget(ref)
		b.closeConn(conn, err)
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	if !wantReply {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.opts.requestTimeout)
	defer cancel()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if r.msg.Op.Result != ResultOK {
			return r.msg, &ResultError{Operation: typ, Result: r.msg.Op.Result, Description: r.msg.Op.ResultDescription}
		}
		return r.msg, nil
	case <-ctx.Done():
		b.forget(ref)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, typ)
		}
		return nil, ctx.Err()
	}
}

func (b *Bridge) forget(ref uint32) {
	b.mu.Lock()
	delete(b.pending, ref)
	b.mu.Unlock()
}

func (b *Bridge) readLoop(conn net.Conn) {
	for {
		msg, err := readMessage(conn)
		if err != nil {
			b.closeConn(conn, err)
			return
		}

		b.logger.Debugf("Received %v (ref %d, result %v)", msg.Op.Type, msg.Op.Reference, msg.Op.Result)

		switch msg.Op.Type {
		case OperationCnRpdoNotification, OperationCnAlarmNotification, OperationGatewayNotification, OperationCnNodeNotification:
			if b.notify != nil {
				b.notify(msg)
			}
			continue
		case OperationCloseSessionRequest:
			b.logger.Warnf("Bridge %v closed our session, another app took over", b.Host)
			b.closeConn(conn, nil)
			return
		}

		b.mu.Lock()
		ch, ok := b.pending[msg.Op.Reference]
		if ok {
			delete(b.pending, msg.Op.Reference)
		}
		b.mu.Unlock()

		if !ok {
			b.logger.Debugf("Ignoring unexpected %v (ref %d)", msg.Op.Type, msg.Op.Reference)
			continue
		}
		ch <- reply{msg: msg}
	}
}

// closeConn tears down conn if it is still the active connection and fails every pending request.
func (b *Bridge) closeConn(conn net.Conn, cause error) {
	b.mu.Lock()
	if b.conn != conn {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.conn = nil
	pending := b.pending
	b.pending = map[uint32]chan reply{}
	b.mu.Unlock()

	if cause != nil {
		b.logger.Debugf("Connection to %v closed: %v", b.Host, cause)
	}
	conn.Close()

	for _, ch := range pending {
		ch <- reply{err: ErrNotConnected}
	}
}

// closeCurrent drops the active connection, if any.
func (b *Bridge) closeCurrent() {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn != nil {
		b.closeConn(conn, nil)
	}
}

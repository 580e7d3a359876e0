package comfoconnect

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testBridgeUUID = uuid.MustParse("00000000-0000-0000-0000-aaaaaaaaaaaa")
	testLocalUUID  = uuid.MustParse(DefaultLocalUUID)
)

// fakeGateway answers requests over a real TCP socket.
type fakeGateway struct {
	t  *testing.T
	ln net.Listener

	mu       sync.Mutex
	conn     net.Conn
	received []*message

	// handle returns the replies for a request. A nil handle echoes an empty confirm.
	handle func(m *message) []*message
}

func newFakeGateway(t *testing.T, handle func(m *message) []*message) *fakeGateway {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	g := &fakeGateway{t: t, ln: ln, handle: handle}
	go g.serve()
	t.Cleanup(func() {
		ln.Close()
		g.mu.Lock()
		if g.conn != nil {
			g.conn.Close()
		}
		g.mu.Unlock()
	})

	return g
}

func (g *fakeGateway) port() int {
	return g.ln.Addr().(*net.TCPAddr).Port
}

func (g *fakeGateway) serve() {
	for {
		conn, err := g.ln.Accept()
		if err != nil {
			return
		}
		g.mu.Lock()
		g.conn = conn
		g.mu.Unlock()

		for {
			m, err := readMessage(conn)
			if err != nil {
				break
			}
			g.mu.Lock()
			g.received = append(g.received, m)
			g.mu.Unlock()

			if _, ok := confirmTypes[m.Op.Type]; !ok {
				continue
			}

			var replies []*message
			if g.handle != nil {
				replies = g.handle(m)
			} else {
				replies = []*message{confirm(m, nil)}
			}
			for _, r := range replies {
				if r == nil {
					continue
				}
				if err := writeMessage(conn, r); err != nil {
					break
				}
			}
		}
	}
}

func (g *fakeGateway) push(m *message) {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	require.NotNil(g.t, conn)
	require.NoError(g.t, writeMessage(conn, m))
}

func (g *fakeGateway) requests(typ OperationType) []*message {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []*message
	for _, m := range g.received {
		if m.Op.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

var confirmTypes = map[OperationType]OperationType{
	OperationRegisterAppRequest:        OperationRegisterAppConfirm,
	OperationStartSessionRequest:       OperationStartSessionConfirm,
	OperationListRegisteredAppsRequest: OperationListRegisteredAppsConfirm,
	OperationDeregisterAppRequest:      OperationDeregisterAppConfirm,
	OperationVersionRequest:            OperationVersionConfirm,
	OperationCnTimeRequest:             OperationCnTimeConfirm,
	OperationCnRmiRequest:              OperationCnRmiResponse,
	OperationCnRpdoRequest:             OperationCnRpdoConfirm,
}

// confirm builds the reply to m.
func confirm(m *message, body []byte) *message {
	return &message{
		Src:  m.Dst,
		Dst:  m.Src,
		Op:   operation{Type: confirmTypes[m.Op.Type], Reference: m.Op.Reference},
		Body: body,
	}
}

func connectBridge(t *testing.T, g *fakeGateway, opts ...Option) *Bridge {
	opts = append([]Option{WithPort(g.port()), WithRequestTimeout(time.Second)}, opts...)
	b := NewBridge("127.0.0.1", testBridgeUUID, opts...)
	require.NoError(t, b.Connect(context.Background(), testLocalUUID))
	t.Cleanup(func() { b.Disconnect(context.Background()) })
	return b
}

func TestBridgeStartSession(t *testing.T) {
	g := newFakeGateway(t, func(m *message) []*message {
		if m.Op.Type == OperationStartSessionRequest {
			body := appendString(nil, 1, "ComfoConnect LAN C")
			body = appendBool(body, 2, true)
			return []*message{confirm(m, body)}
		}
		return []*message{confirm(m, nil)}
	})
	b := connectBridge(t, g)

	assert.True(t, b.IsConnected())

	resp, err := b.CmdStartSession(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "ComfoConnect LAN C", resp.DeviceName)
	assert.True(t, resp.Resumed)

	reqs := g.requests(OperationStartSessionRequest)
	require.Len(t, reqs, 1)
	assert.Equal(t, testLocalUUID, reqs[0].Src)
	assert.Equal(t, testBridgeUUID, reqs[0].Dst)
	assert.Equal(t, marshalStartSessionRequest(true), reqs[0].Body)
}

func TestBridgeReferencesIncrease(t *testing.T) {
	g := newFakeGateway(t, nil)
	b := connectBridge(t, g)

	_, err := b.CmdTimeRequest(context.Background())
	require.NoError(t, err)
	_, err = b.CmdTimeRequest(context.Background())
	require.NoError(t, err)

	reqs := g.requests(OperationCnTimeRequest)
	require.Len(t, reqs, 2)
	assert.Less(t, reqs[0].Op.Reference, reqs[1].Op.Reference)
}

func TestBridgeNotAllowed(t *testing.T) {
	g := newFakeGateway(t, func(m *message) []*message {
		r := confirm(m, nil)
		r.Op.Result = ResultNotAllowed
		return []*message{r}
	})
	b := connectBridge(t, g)

	err := b.CmdRegisterApp(context.Background(), testLocalUUID, "Home (Living room)", 1234)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAllowed)
	assert.NotErrorIs(t, err, ErrOtherSession)

	var resultErr *ResultError
	require.ErrorAs(t, err, &resultErr)
	assert.Equal(t, OperationRegisterAppRequest, resultErr.Operation)
}

func TestBridgeTimeout(t *testing.T) {
	g := newFakeGateway(t, func(m *message) []*message { return nil })
	b := connectBridge(t, g, WithRequestTimeout(50*time.Millisecond))

	_, err := b.CmdTimeRequest(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestBridgeNotConnected(t *testing.T) {
	b := NewBridge("127.0.0.1", testBridgeUUID)

	assert.False(t, b.IsConnected())
	_, err := b.CmdTimeRequest(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestBridgeConnectionDropFailsPending(t *testing.T) {
	g := newFakeGateway(t, func(m *message) []*message { return nil })
	b := connectBridge(t, g, WithRequestTimeout(5*time.Second))

	done := make(chan error, 1)
	go func() {
		_, err := b.CmdTimeRequest(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return len(g.requests(OperationCnTimeRequest)) == 1 }, time.Second, 10*time.Millisecond)
	g.mu.Lock()
	g.conn.Close()
	g.mu.Unlock()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrNotConnected)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request was not failed")
	}
	assert.Eventually(t, func() bool { return !b.IsConnected() }, time.Second, 10*time.Millisecond)
}

func TestBridgeTakeoverClosesConnection(t *testing.T) {
	g := newFakeGateway(t, nil)
	b := connectBridge(t, g)

	_, err := b.CmdTimeRequest(context.Background())
	require.NoError(t, err)

	g.push(&message{Src: testBridgeUUID, Dst: testLocalUUID, Op: operation{Type: OperationCloseSessionRequest}})

	assert.Eventually(t, func() bool { return !b.IsConnected() }, time.Second, 10*time.Millisecond)
}

func TestBridgeListRegisteredApps(t *testing.T) {
	g := newFakeGateway(t, func(m *message) []*message {
		app := appendBytes(nil, 1, testLocalUUID[:])
		app = appendString(app, 2, "Home Assistant (Home)")
		return []*message{confirm(m, appendBytes(nil, 1, app))}
	})
	b := connectBridge(t, g)

	apps, err := b.CmdListRegisteredApps(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, testLocalUUID[:], apps[0].UUID)
	assert.Equal(t, "Home Assistant (Home)", apps[0].DeviceName)
}

func TestBridgeRefusesToDeregisterItself(t *testing.T) {
	g := newFakeGateway(t, nil)
	b := connectBridge(t, g)

	assert.Error(t, b.CmdDeregisterApp(context.Background(), testLocalUUID))
	assert.NoError(t, b.CmdDeregisterApp(context.Background(), uuid.New()))
}

func TestBridgeRmiError(t *testing.T) {
	g := newFakeGateway(t, func(m *message) []*message {
		return []*message{confirm(m, appendVarint(nil, 1, 11))}
	})
	b := connectBridge(t, g)

	_, err := b.CmdRmiRequest(context.Background(), []byte{0x83, 0x15, 0x01, 0x01}, 1)

	var rmiErr *RmiError
	require.ErrorAs(t, err, &rmiErr)
	assert.Equal(t, uint32(11), rmiErr.Code)
}

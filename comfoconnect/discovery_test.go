package comfoconnect

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeDiscoveryResponder(t *testing.T, answers ...[]byte) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	old := discoveryPort
	discoveryPort = conn.LocalAddr().(*net.UDPAddr).Port
	t.Cleanup(func() { discoveryPort = old })

	go func() {
		buf := make([]byte, 64)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if string(buf[:n]) != string(searchGatewayRequest) {
				continue
			}
			for _, a := range answers {
				conn.WriteToUDP(a, from)
			}
		}
	}()
}

func searchGatewayAnswer(ip string, id []byte) []byte {
	resp := appendString(nil, 1, ip)
	resp = appendBytes(resp, 2, id)
	resp = appendVarint(resp, 3, 1)
	return appendBytes(nil, 2, resp)
}

func TestDiscoverHost(t *testing.T) {
	fakeDiscoveryResponder(t,
		[]byte{0xff, 0xff},
		searchGatewayAnswer("192.168.1.213", testBridgeUUID[:]),
	)

	bridges, err := Discover(context.Background(), "127.0.0.1", time.Second, nil)
	require.NoError(t, err)
	require.Len(t, bridges, 1)
	assert.Equal(t, "192.168.1.213", bridges[0].Host)
	assert.Equal(t, testBridgeUUID, bridges[0].UUID)
	assert.Equal(t, uint32(1), bridges[0].Version)
}

func TestDiscoverDeduplicates(t *testing.T) {
	answer := searchGatewayAnswer("192.168.1.213", testBridgeUUID[:])
	fakeDiscoveryResponder(t, answer, answer)

	old := broadcastAddress
	broadcastAddress = "127.0.0.1"
	t.Cleanup(func() { broadcastAddress = old })

	bridges, err := Discover(context.Background(), "", 200*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Len(t, bridges, 1)
}

func TestDiscoverNothing(t *testing.T) {
	fakeDiscoveryResponder(t)

	bridges, err := Discover(context.Background(), "127.0.0.1", 100*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Empty(t, bridges)
}

func TestDiscoverCancelled(t *testing.T) {
	fakeDiscoveryResponder(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	bridges, err := Discover(ctx, "127.0.0.1", 5*time.Second, nil)
	require.NoError(t, err)
	assert.Empty(t, bridges)
	assert.Less(t, time.Since(start), 2*time.Second)
}

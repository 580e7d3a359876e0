package comfoconnect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultDiscoveryTimeout is how long Discover listens for answers.
const DefaultDiscoveryTimeout = time.Second

var (
	// discoveryPort is the UDP port gateways answer search requests on.
	discoveryPort = Port

	broadcastAddress = "255.255.255.255"
)

// DiscoveredBridge is a gateway that answered a search request.
type DiscoveredBridge struct {
	Host    string
	UUID    uuid.UUID
	Version uint32
}

// Discover searches for gateways. With an empty host the request is broadcast and every answer
// within timeout is collected; with a host it returns as soon as that gateway answers. Ending ctx
// ends the search with whatever answered so far.
func Discover(ctx context.Context, host string, timeout time.Duration, logger *zap.SugaredLogger) ([]DiscoveredBridge, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}

	target := host
	if target == "" {
		target = broadcastAddress
	}
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(target, strconv.Itoa(discoveryPort)))
	if err != nil {
		return nil, fmt.Errorf("resolving %v: %w", target, err)
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("opening discovery socket: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	// Unblock the read when ctx is cancelled early.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	logger.Debugf("Sending discovery request to %v", addr)
	if _, err := conn.WriteToUDP(searchGatewayRequest, addr); err != nil {
		return nil, fmt.Errorf("sending discovery request: %w", err)
	}

	seen := map[uuid.UUID]bool{}
	var bridges []DiscoveredBridge
	buf := make([]byte, 1024)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			return bridges, fmt.Errorf("reading discovery answer: %w", err)
		}

		resp, err := unmarshalSearchGatewayResponse(buf[:n])
		if err != nil || resp == nil {
			logger.Debugf("Ignoring invalid discovery answer from %v", from)
			continue
		}

		id, err := uuid.FromBytes(resp.UUID)
		if err != nil {
			logger.Debugf("Ignoring discovery answer from %v with invalid uuid", from)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		bridgeHost := resp.IPAddress
		if bridgeHost == "" {
			bridgeHost = from.IP.String()
		}
		logger.Debugf("Discovered bridge %v at %v", id, bridgeHost)
		bridges = append(bridges, DiscoveredBridge{Host: bridgeHost, UUID: id, Version: resp.Version})

		if host != "" {
			break
		}
	}

	return bridges, nil
}

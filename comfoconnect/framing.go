package comfoconnect

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

const (
	// lengthPrefixSize is the size of the frame length prefix.
	lengthPrefixSize = 4

	// headerSize covers the source and destination uuids and the operation length.
	headerSize = 16 + 16 + 2

	// maxFrameSize bounds a single frame. Gateway messages are small.
	maxFrameSize = 65536
)

var (
	errFrameTooLarge  = errors.New("frame too large")
	errFrameTooShort  = errors.New("frame too short")
	errFrameTruncated = errors.New("frame truncated")
)

// message is one frame on the gateway connection.
type message struct {
	Src  uuid.UUID
	Dst  uuid.UUID
	Op   operation
	Body []byte
}

// writeMessage encodes m as
//
//	uint32 length | src[16] | dst[16] | uint16 op length | op | body
//
// where length counts everything after itself.
func writeMessage(w io.Writer, m *message) error {
	op := m.Op.marshal()
	if len(op) > 0xffff {
		return fmt.Errorf("%w: operation of %d bytes", errFrameTooLarge, len(op))
	}

	length := headerSize + len(op) + len(m.Body)
	if length > maxFrameSize {
		return fmt.Errorf("%w: %d > %d", errFrameTooLarge, length, maxFrameSize)
	}

	buf := make([]byte, 0, lengthPrefixSize+length)
	buf = binary.BigEndian.AppendUint32(buf, uint32(length))
	buf = append(buf, m.Src[:]...)
	buf = append(buf, m.Dst[:]...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(op)))
	buf = append(buf, op...)
	buf = append(buf, m.Body...)

	// A single write keeps frames intact when several goroutines share the socket.
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	return nil
}

// readMessage reads one frame.
func readMessage(r io.Reader) (*message, error) {
	var lengthBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errFrameTruncated
		}
		return nil, fmt.Errorf("failed to read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", errFrameTooShort, length)
	}
	if length > maxFrameSize {
		return nil, fmt.Errorf("%w: %d > %d", errFrameTooLarge, length, maxFrameSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return nil, errFrameTruncated
		}
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}

	m := &message{}
	copy(m.Src[:], payload[0:16])
	copy(m.Dst[:], payload[16:32])

	opLength := int(binary.BigEndian.Uint16(payload[32:34]))
	if headerSize+opLength > len(payload) {
		return nil, fmt.Errorf("%w: operation of %d bytes in frame of %d", errFrameTooShort, opLength, length)
	}

	op, err := unmarshalOperation(payload[headerSize : headerSize+opLength])
	if err != nil {
		return nil, fmt.Errorf("failed to decode operation: %w", err)
	}
	m.Op = op
	m.Body = payload[headerSize+opLength:]

	return m, nil
}

package websocket

import (
	"bufio"
	"crypto/sha1" //nolint:gosec // SHA-1 is mandated by RFC 6455 §4.1; not used for security
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// Opcodes used by the change stream (RFC 6455 §5.2).
const (
	opText  byte = 0x1
	opClose byte = 0x8
	opPing  byte = 0x9
	opPong  byte = 0xA
)

// maxClientPayload bounds a client frame. Clients have nothing to say on a
// change stream, so anything bigger is treated as abuse.
const maxClientPayload = 64 * 1024

// maxControlPayload is the RFC 6455 §5.5 limit for control frames.
const maxControlPayload = 125

// wsGUID is the fixed GUID from RFC 6455 §4.1.
const wsGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// closeGoingAway is the close payload sent when the server shuts down.
var closeGoingAway = []byte{0x03, 0xE9} // 1001

var (
	errUnmasked      = errors.New("websocket: client frame is not masked")
	errFrameTooLarge = errors.New("websocket: client frame too large")
)

type frame struct {
	op      byte
	payload []byte
}

// readFrame reads one client frame and unmasks its payload.
func readFrame(r *bufio.Reader) (frame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return frame{}, err
	}
	f := frame{op: hdr[0] & 0x0F}
	if hdr[1]&0x80 == 0 {
		return frame{}, errUnmasked
	}

	n := uint64(hdr[1] & 0x7F)
	switch n {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return frame{}, err
		}
		n = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return frame{}, err
		}
		n = binary.BigEndian.Uint64(ext[:])
	}
	if n > maxClientPayload || (f.op&0x8 != 0 && n > maxControlPayload) {
		return frame{}, errFrameTooLarge
	}

	var mask [4]byte
	if _, err := io.ReadFull(r, mask[:]); err != nil {
		return frame{}, err
	}
	f.payload = make([]byte, n)
	if _, err := io.ReadFull(r, f.payload); err != nil {
		return frame{}, err
	}
	for i := range f.payload {
		f.payload[i] ^= mask[i%4]
	}
	return f, nil
}

// appendFrame appends a single unmasked, final server frame to dst.
func appendFrame(dst []byte, op byte, payload []byte) []byte {
	dst = append(dst, 0x80|op)
	switch n := len(payload); {
	case n < 126:
		dst = append(dst, byte(n))
	case n <= math.MaxUint16:
		dst = append(dst, 126)
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, 127)
		dst = binary.BigEndian.AppendUint64(dst, uint64(n))
	}
	return append(dst, payload...)
}

// closeReply echoes the status code of a client close frame, if it sent one.
func closeReply(payload []byte) []byte {
	if len(payload) < 2 {
		return nil
	}
	return payload[:2]
}

func acceptKey(key string) string {
	sum := sha1.Sum([]byte(key + wsGUID)) //nolint:gosec // see import
	return base64.StdEncoding.EncodeToString(sum[:])
}

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// NativeEndian is the byte order used for the 4-byte integer prefixes on
// the wire. The source protocol packs these with C's native '@i' struct
// format, which is host-dependent; this codec follows the same baseline
// behavior rather than fixing a portable order (see FramingError for the
// cases that are NOT tolerated: negative lengths and truncated bodies).
var NativeEndian = binary.NativeEndian

// FramingError reports a malformed frame: a negative length prefix or a
// read failure in the middle of a length-prefixed body. It is distinct
// from io.EOF / io.ErrUnexpectedEOF, which callers treat as an ordinary
// disconnect rather than a protocol violation worth a warning log.
type FramingError struct {
	Op  string
	Err error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("wire: framing fault during %s: %v", e.Op, e.Err)
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

// Conn wraps a byte stream (typically a net.Conn) with the tracker's
// length-prefixed read/write primitives. It has no internal buffering of
// its own beyond what rw provides, and is safe for use by a single
// goroutine at a time per direction.
type Conn struct {
	rw   io.ReadWriter
	conn net.Conn // non-nil when rw was constructed from a net.Conn; used for Close/addr
}

// NewConn wraps an arbitrary io.ReadWriter (tests typically pass a
// net.Pipe() end or a bytes.Buffer-backed fake).
func NewConn(rw io.ReadWriter) *Conn {
	c := &Conn{rw: rw}
	if nc, ok := rw.(net.Conn); ok {
		c.conn = nc
	}
	return c
}

// Close closes the underlying net.Conn, if any.
func (c *Conn) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// RemoteAddr returns the underlying connection's remote address, or ""
// when wrapping a non-net.Conn stream.
func (c *Conn) RemoteAddr() string {
	if c.conn != nil {
		return c.conn.RemoteAddr().String()
	}
	return ""
}

func (c *Conn) readFull(buf []byte) error {
	_, err := io.ReadFull(c.rw, buf)
	return err
}

// ReadInt reads a 4-byte native-endian signed integer.
func (c *Conn) ReadInt() (int32, error) {
	var buf [4]byte
	if err := c.readFull(buf[:]); err != nil {
		return 0, err
	}
	return int32(NativeEndian.Uint32(buf[:])), nil
}

// WriteInt writes a 4-byte native-endian signed integer.
func (c *Conn) WriteInt(n int32) error {
	var buf [4]byte
	NativeEndian.PutUint32(buf[:], uint32(n))
	_, err := c.rw.Write(buf[:])
	return err
}

// ReadString reads an int-prefixed UTF-8 string with no NUL terminator.
func (c *Conn) ReadString() (string, error) {
	b, err := c.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteString writes an int-prefixed UTF-8 string.
func (c *Conn) WriteString(s string) error {
	return c.WriteBytes([]byte(s))
}

// ReadBytes reads an int-prefixed raw byte blob. A negative length or a
// short read on the body is reported as a *FramingError; a short read
// on the length prefix itself (ordinary EOF) is passed through unwrapped
// so callers can treat it as a plain disconnect.
func (c *Conn) ReadBytes() ([]byte, error) {
	length, err := c.ReadInt()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, &FramingError{Op: "read length prefix", Err: fmt.Errorf("negative length %d", length)}
	}
	buf := make([]byte, length)
	if err := c.readFull(buf); err != nil {
		return nil, &FramingError{Op: "read body", Err: err}
	}
	return buf, nil
}

// WriteBytes writes an int-prefixed raw byte blob.
func (c *Conn) WriteBytes(b []byte) error {
	if err := c.WriteInt(int32(len(b))); err != nil {
		return err
	}
	_, err := c.rw.Write(b)
	return err
}

// ReadCommand reads the next command verb off the wire. It is a thin
// alias over ReadString kept separate so dispatch code reads naturally.
func (c *Conn) ReadCommand() (string, error) {
	return c.ReadString()
}

// WriteReply writes a reply verb, the common case of a bare string reply
// (e.g. "barrier_done", "exclude_done").
func (c *Conn) WriteReply(reply string) error {
	return c.WriteString(reply)
}

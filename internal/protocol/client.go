package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
)

// Client is the peer side of the protocol. The fan-control front end
// speaks it; tests and tooling use this implementation.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to a server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Handshake sends CheckMessage in one write and waits for OkMessage.
func (c *Client) Handshake() error {
	if _, err := c.conn.Write([]byte(CheckMessage)); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	buf := make([]byte, len(OkMessage))
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	if string(buf) != OkMessage {
		return fmt.Errorf("%w: received %q", ErrHandshakeFailed, buf)
	}
	return nil
}

// ReadFrame reads one newline-terminated JSON frame and returns it without
// the delimiter.
func (c *Client) ReadFrame() ([]byte, error) {
	line, err := c.r.ReadBytes(FrameDelimiter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShortRead, err)
	}
	return line[:len(line)-1], nil
}

// ReadSnapshot reads one JSON frame into v.
func (c *Client) ReadSnapshot(v any) error {
	frame, err := c.ReadFrame()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(frame, v); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}
	return nil
}

// Send writes raw integers, for commands and for probing bad input.
func (c *Client) Send(values ...int32) error {
	buf := make([]byte, 0, len(values)*Int32Size)
	for _, v := range values {
		buf = append(buf, EncodeInt32(v)...)
	}
	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("%w: %w", ErrShortWrite, err)
	}
	return nil
}

// RecvInt32 reads one integer.
func (c *Client) RecvInt32() (int32, error) {
	var buf [Int32Size]byte
	if _, err := io.ReadFull(c.r, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrShortRead, err)
	}
	return DecodeInt32(buf[:]), nil
}

// GetHardware requests the identity snapshot and decodes it into v.
func (c *Client) GetHardware(v any) error {
	if err := c.Send(int32(CmdGetHardware)); err != nil {
		return err
	}
	return c.ReadSnapshot(v)
}

// SetAuto returns a control to automatic mode.
func (c *Client) SetAuto(index int32) error {
	return c.Send(int32(CmdSetAuto), index)
}

// SetValue puts a control under software command.
func (c *Client) SetValue(index, value int32) error {
	return c.Send(int32(CmdSetValue), index, value)
}

// GetValue reads the value of an entry.
func (c *Client) GetValue(index int32) (int32, error) {
	if err := c.Send(int32(CmdGetValue), index); err != nil {
		return 0, err
	}
	return c.RecvInt32()
}

// Update asks the server to re-poll the hardware.
func (c *Client) Update() error {
	return c.Send(int32(CmdUpdate))
}

// Shutdown asks the server to stop.
func (c *Client) Shutdown() error {
	return c.Send(int32(CmdShutdown))
}

// Conn exposes the underlying connection.
func (c *Client) Conn() net.Conn {
	return c.conn
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

package backend

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// tcpClient is a minimal length-prefixed TCP client for a 0-db-like
// remote key-value store, reached via a Descriptor. The real wire
// protocol of such a store is out of scope here; no test exercises
// this client, and its format exists to give ctx.backend something
// genuine to dial when UPLOADBACKEND or the "backend" metadata record
// names a host.
type tcpClient struct {
	conn net.Conn
	rw   *bufio.ReadWriter
	ns   string
}

const (
	opPut byte = 1
	opGet byte = 2

	statusOK      byte = 0
	statusMissing byte = 1
)

// Dial connects to the remote blob store described by d.
func Dial(d Descriptor) (Client, error) {
	addr := fmt.Sprintf("%s:%d", d.Host, d.Port)
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("backend: dial %s: %w", addr, err)
	}
	return &tcpClient{
		conn: conn,
		rw:   bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		ns:   d.Namespace,
	}, nil
}

func writeFrame(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *tcpClient) Put(key, value []byte) error {
	if err := c.rw.WriteByte(opPut); err != nil {
		return fmt.Errorf("backend: put write op: %w", err)
	}
	if err := writeFrame(c.rw, []byte(c.ns)); err != nil {
		return fmt.Errorf("backend: put write namespace: %w", err)
	}
	if err := writeFrame(c.rw, key); err != nil {
		return fmt.Errorf("backend: put write key: %w", err)
	}
	if err := writeFrame(c.rw, value); err != nil {
		return fmt.Errorf("backend: put write value: %w", err)
	}
	if err := c.rw.Flush(); err != nil {
		return fmt.Errorf("backend: put flush: %w", err)
	}

	status, err := c.rw.ReadByte()
	if err != nil {
		return fmt.Errorf("backend: put read status: %w", err)
	}
	if status != statusOK {
		return fmt.Errorf("backend: put rejected by remote")
	}
	return nil
}

func (c *tcpClient) Get(key []byte) ([]byte, bool, error) {
	if err := c.rw.WriteByte(opGet); err != nil {
		return nil, false, fmt.Errorf("backend: get write op: %w", err)
	}
	if err := writeFrame(c.rw, []byte(c.ns)); err != nil {
		return nil, false, fmt.Errorf("backend: get write namespace: %w", err)
	}
	if err := writeFrame(c.rw, key); err != nil {
		return nil, false, fmt.Errorf("backend: get write key: %w", err)
	}
	if err := c.rw.Flush(); err != nil {
		return nil, false, fmt.Errorf("backend: get flush: %w", err)
	}

	status, err := c.rw.ReadByte()
	if err != nil {
		return nil, false, fmt.Errorf("backend: get read status: %w", err)
	}
	if status == statusMissing {
		return nil, false, nil
	}
	value, err := readFrame(c.rw)
	if err != nil {
		return nil, false, fmt.Errorf("backend: get read value: %w", err)
	}
	return value, true, nil
}

func (c *tcpClient) Close() error {
	return c.conn.Close()
}

package transport

import (
	"fmt"
	"net"
)

// UDPListener binds (host, port) and forwards each datagram's bytes to
// onBytes. It never self-resets on a read error — only a bind failure at
// Start is fatal.
type UDPListener struct {
	host    string
	port    int
	onBytes func([]byte)
	onDiag  func(Diagnostic)

	conn     *net.UDPConn
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewUDPListener builds a listener for (host, port). onBytes is called
// from the read-loop goroutine for every datagram; it must not block.
func NewUDPListener(host string, port int, onBytes func([]byte), onDiag func(Diagnostic)) *UDPListener {
	return &UDPListener{
		host:    host,
		port:    port,
		onBytes: onBytes,
		onDiag:  onDiag,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start binds the socket and launches the read loop. A bind failure,
// including an unparsable host, is returned synchronously and is fatal to
// the caller.
func (u *UDPListener) Start() error {
	ip := net.ParseIP(u.host)
	if ip == nil && u.host != "" {
		return fmt.Errorf("udp listen %s:%d: invalid listen address", u.host, u.port)
	}
	addr := &net.UDPAddr{IP: ip, Port: u.port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("udp listen %s:%d: %w", u.host, u.port, err)
	}
	u.conn = conn
	go u.readLoop()
	return nil
}

// Stop closes the socket and waits for the read loop to exit.
func (u *UDPListener) Stop() error {
	close(u.stopCh)
	var err error
	if u.conn != nil {
		err = u.conn.Close()
	}
	<-u.doneCh
	return err
}

func (u *UDPListener) readLoop() {
	defer close(u.doneCh)
	buf := make([]byte, 65536)
	for {
		n, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-u.stopCh:
				return
			default:
				if u.onDiag != nil {
					u.onDiag(Diagnostic{Kind: "read_error", Detail: err.Error()})
				}
				continue
			}
		}
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			u.onBytes(chunk)
		}
	}
}

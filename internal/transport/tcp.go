package transport

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sdale511/p3-bridge/internal/retry"
)

// TCPClient drives the Idle→Connecting→Connected→{Closing,Backoff}→…→
// Stopped state machine against one mutable (host, port) target. It is
// a single supervisor goroutine owns the connection and reconnects with
// backoff on any close, and the caller never blocks waiting for a
// connection to exist.
type TCPClient struct {
	connectTimeout time.Duration
	backoffCfg     retry.Config
	onBytes        func([]byte)
	onDiag         func(Diagnostic)
	onState        func(State)

	mu      sync.Mutex
	target  Target
	conn    net.Conn
	state   State
	started bool
	stopped bool

	stopCh chan struct{}
	wake   chan struct{}
}

// TCPOption configures a TCPClient at construction time.
type TCPOption func(*TCPClient)

// WithConnectTimeout overrides T_connect (default 8000ms).
func WithConnectTimeout(d time.Duration) TCPOption {
	return func(c *TCPClient) { c.connectTimeout = d }
}

// WithBackoff overrides the reconnect backoff config (default per
// retry.DefaultReconnect).
func WithBackoff(cfg retry.Config) TCPOption {
	return func(c *TCPClient) { c.backoffCfg = cfg }
}

// WithDiagnostics registers a callback for non-fatal transport events.
func WithDiagnostics(fn func(Diagnostic)) TCPOption {
	return func(c *TCPClient) { c.onDiag = fn }
}

// WithStateCallback registers a callback invoked on every state
// transition, used to publish connected/backoff status.
func WithStateCallback(fn func(State)) TCPOption {
	return func(c *TCPClient) { c.onState = fn }
}

// NewTCPClient builds a client against target. onBytes is called from the
// supervisor goroutine for every chunk read off the socket; it must not
// block (the single-writer event loop depends on this).
func NewTCPClient(target Target, onBytes func([]byte), opts ...TCPOption) *TCPClient {
	c := &TCPClient{
		connectTimeout: 8000 * time.Millisecond,
		backoffCfg:     retry.DefaultReconnect(),
		onBytes:        onBytes,
		target:         target,
		state:          StateIdle,
		stopCh:         make(chan struct{}),
		wake:           make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the reconnect supervisor loop on a new goroutine. It
// never blocks.
func (c *TCPClient) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()
	go c.run()
}

// Stop requests shutdown, closing any live connection and unblocking any
// pending backoff sleep. It does not wait for the supervisor goroutine
// to observe the request.
func (c *TCPClient) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	conn := c.conn
	c.mu.Unlock()
	close(c.stopCh)
	if conn != nil {
		conn.Close()
	}
}

// State returns the current state.
func (c *TCPClient) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetTarget replaces the connect target. If currently connected, the
// live socket is closed, which the supervisor observes as a close and
// transitions through Backoff with zero delay back to Connecting against
// the new target. If currently backing off, the pending wait is cancelled
// and a new attempt starts immediately. A dial already in flight is not
// interrupted: if it fails, the retry against the new target starts
// without waiting; if it succeeds, the client stays connected to the old
// target until that connection closes.
func (c *TCPClient) SetTarget(target Target) {
	c.mu.Lock()
	c.target = target
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *TCPClient) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.onState != nil {
		c.onState(s)
	}
}

func (c *TCPClient) diag(kind, detail string) {
	if c.onDiag != nil {
		c.onDiag(Diagnostic{Kind: kind, Detail: detail, At: time.Now()})
	}
}

func (c *TCPClient) run() {
	b := retry.New(c.backoffCfg)
	for {
		select {
		case <-c.stopCh:
			c.setState(StateStopped)
			return
		default:
		}

		c.setState(StateConnecting)
		conn, err := c.dial()
		if err != nil {
			c.diag("connect_error", err.Error())
			c.setState(StateBackoff)
			if !c.sleep(b.Next()) {
				c.setState(StateStopped)
				return
			}
			continue
		}

		b.Reset()
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateConnected)

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		select {
		case <-c.stopCh:
			c.setState(StateStopped)
			return
		default:
		}
		c.setState(StateBackoff)
		if !c.sleep(b.Next()) {
			c.setState(StateStopped)
			return
		}
	}
}

// sleep waits for d, for a stop request, or for a wake signal requesting
// an immediate retry (triggered by SetTarget). It returns false only when
// the client is stopping.
func (c *TCPClient) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.wake:
		return true
	case <-c.stopCh:
		return false
	}
}

func (c *TCPClient) dial() (net.Conn, error) {
	c.mu.Lock()
	target := c.target
	c.mu.Unlock()

	d := net.Dialer{Timeout: c.connectTimeout}
	conn, err := d.Dial("tcp", net.JoinHostPort(target.Host, strconv.Itoa(target.Port)))
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	return conn, nil
}

func (c *TCPClient) readLoop(conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.onBytes(chunk)
		}
		if err != nil {
			conn.Close()
			c.diag("closed", err.Error())
			return
		}
	}
}

package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// AsyncClient is the non-blocking FileReader. It keeps one connection per
// node and pipelines requests over it; a reader goroutine completes pending
// requests in order. Callers still observe a synchronous call, but many
// callers share one connection without serializing on each other's round
// trips.
type AsyncClient struct {
	resolver    AddressResolver
	dialTimeout time.Duration
	queueDepth  int
	logger      *slog.Logger

	mu     sync.Mutex
	conns  map[string]*asyncConn
	closed bool
}

// AsyncClientConfig configures an AsyncClient.
type AsyncClientConfig struct {
	DialTimeout time.Duration
	// QueueDepth is the number of in-flight requests per node (default 32).
	QueueDepth int
	Logger     *slog.Logger
}

// NewAsyncClient creates a non-blocking pipelined client.
func NewAsyncClient(resolver AddressResolver, cfg AsyncClientConfig) *AsyncClient {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 32
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AsyncClient{
		resolver:    resolver,
		dialTimeout: cfg.DialTimeout,
		queueDepth:  cfg.QueueDepth,
		logger:      cfg.Logger,
		conns:       make(map[string]*asyncConn),
	}
}

type readResult struct {
	data []byte
	err  error
}

type pendingReq struct {
	send func(*bufio.Writer) error
	done chan readResult
}

type asyncConn struct {
	conn      net.Conn
	reqCh     chan *pendingReq
	pendingCh chan *pendingReq
	closed    chan struct{}
	closeErr  error
	closeOnce sync.Once
	onClose   func()
}

// ReadFile implements FileReader.
func (c *AsyncClient) ReadFile(ctx context.Context, node, path string, offset int64, length int32) ([]byte, error) {
	return c.roundTrip(ctx, node, func(bw *bufio.Writer) error {
		return writeReadFileRequest(bw, path, offset, length)
	})
}

// InstallSlot implements SnapshotPusher. The install response pipelines
// behind any in-flight reads on the same connection.
func (c *AsyncClient) InstallSlot(ctx context.Context, node string, slot uint32, snapshot []byte) error {
	_, err := c.roundTrip(ctx, node, func(bw *bufio.Writer) error {
		return writeInstallRequest(bw, slot, snapshot)
	})
	return err
}

func (c *AsyncClient) roundTrip(ctx context.Context, node string, send func(*bufio.Writer) error) ([]byte, error) {
	addr, ok := c.resolver.Resolve(node)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, node)
	}

	ac, err := c.conn(ctx, addr)
	if err != nil {
		return nil, err
	}

	p := &pendingReq{send: send, done: make(chan readResult, 1)}

	select {
	case ac.reqCh <- p:
	case <-ac.closed:
		return nil, ac.closeErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-p.done:
		return res.data, res.err
	case <-ac.closed:
		return nil, ac.closeErr
	case <-ctx.Done():
		// The response, when it arrives, lands in the buffered done channel
		// and is dropped with it.
		return nil, ctx.Err()
	}
}

func (c *AsyncClient) conn(ctx context.Context, addr string) (*asyncConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, net.ErrClosed
	}
	if ac, ok := c.conns[addr]; ok {
		return ac, nil
	}

	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}

	ac := &asyncConn{
		conn:      conn,
		reqCh:     make(chan *pendingReq),
		pendingCh: make(chan *pendingReq, c.queueDepth),
		closed:    make(chan struct{}),
	}
	ac.onClose = func() {
		c.mu.Lock()
		if c.conns[addr] == ac {
			delete(c.conns, addr)
		}
		c.mu.Unlock()
	}
	c.conns[addr] = ac

	go ac.writeLoop()
	go ac.readLoop()
	return ac, nil
}

// writeLoop exits on teardown via the closed channel; reqCh and pendingCh
// are never closed because roundTrip may still be sending on them.
func (ac *asyncConn) writeLoop() {
	bw := bufio.NewWriter(ac.conn)
	for {
		var p *pendingReq
		select {
		case p = <-ac.reqCh:
		case <-ac.closed:
			return
		}

		err := p.send(bw)
		if err == nil {
			err = bw.Flush()
		}
		if err != nil {
			p.done <- readResult{err: err}
			ac.teardown(err)
			return
		}

		select {
		case ac.pendingCh <- p:
		case <-ac.closed:
			p.done <- readResult{err: ac.closeErr}
			return
		}
	}
}

func (ac *asyncConn) readLoop() {
	br := bufio.NewReader(ac.conn)
	for {
		var p *pendingReq
		select {
		case p = <-ac.pendingCh:
		case <-ac.closed:
			return
		}

		data, err := readResponse(br)
		p.done <- readResult{data: data, err: err}
		if err != nil {
			var remote *RemoteError
			if errors.As(err, &remote) {
				// The stream is still framed correctly after a remote error.
				continue
			}
			ac.teardown(err)
			return
		}
	}
}

// teardown closes the connection and fails everything still queued.
// Blocked callers observe the closed channel instead.
func (ac *asyncConn) teardown(cause error) {
	ac.closeOnce.Do(func() {
		ac.closeErr = cause
		close(ac.closed)
		ac.conn.Close()
		ac.onClose()
		for {
			select {
			case p := <-ac.pendingCh:
				p.done <- readResult{err: cause}
			default:
				return
			}
		}
	})
}

// Close tears down all node connections.
func (c *AsyncClient) Close() error {
	c.mu.Lock()
	conns := make([]*asyncConn, 0, len(c.conns))
	for _, ac := range c.conns {
		conns = append(conns, ac)
	}
	c.closed = true
	c.mu.Unlock()

	for _, ac := range conns {
		ac.teardown(net.ErrClosed)
	}
	return nil
}

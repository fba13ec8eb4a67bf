package transport

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// PooledClient is the blocking FileReader. Each call borrows a connection
// from a per-node pool, performs one request/response exchange and returns
// the connection. Failed connections are discarded instead of returned.
type PooledClient struct {
	resolver    AddressResolver
	dialTimeout time.Duration
	ioTimeout   time.Duration
	poolSize    int
	logger      *slog.Logger

	mu     sync.Mutex
	pools  map[string]chan net.Conn
	closed bool
}

// PooledClientConfig configures a PooledClient.
type PooledClientConfig struct {
	DialTimeout time.Duration
	IOTimeout   time.Duration
	// PoolSize is the number of idle connections kept per node (default 4).
	PoolSize int
	Logger   *slog.Logger
}

// NewPooledClient creates a blocking pooled client.
func NewPooledClient(resolver AddressResolver, cfg PooledClientConfig) *PooledClient {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.IOTimeout == 0 {
		cfg.IOTimeout = 30 * time.Second
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &PooledClient{
		resolver:    resolver,
		dialTimeout: cfg.DialTimeout,
		ioTimeout:   cfg.IOTimeout,
		poolSize:    cfg.PoolSize,
		logger:      cfg.Logger,
		pools:       make(map[string]chan net.Conn),
	}
}

// ReadFile implements FileReader.
func (c *PooledClient) ReadFile(ctx context.Context, node, path string, offset int64, length int32) ([]byte, error) {
	return c.roundTrip(ctx, node, c.ioTimeout, func(bw *bufio.Writer) error {
		return writeReadFileRequest(bw, path, offset, length)
	})
}

// InstallSlot implements SnapshotPusher. The receiver pulls files during the
// install, so the exchange runs without an i/o deadline of its own; bound it
// with the context.
func (c *PooledClient) InstallSlot(ctx context.Context, node string, slot uint32, snapshot []byte) error {
	_, err := c.roundTrip(ctx, node, 0, func(bw *bufio.Writer) error {
		return writeInstallRequest(bw, slot, snapshot)
	})
	return err
}

func (c *PooledClient) roundTrip(ctx context.Context, node string, ioTimeout time.Duration, send func(*bufio.Writer) error) ([]byte, error) {
	addr, ok := c.resolver.Resolve(node)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, node)
	}

	conn, err := c.acquire(ctx, addr)
	if err != nil {
		return nil, err
	}

	var deadline time.Time
	if ioTimeout > 0 {
		deadline = time.Now().Add(ioTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	data, err := c.exchange(conn, send)
	if err != nil {
		// The connection state is unknown after a failed exchange.
		conn.Close()
		if _, isRemote := err.(*RemoteError); isRemote {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	c.release(addr, conn)
	return data, nil
}

func (c *PooledClient) exchange(conn net.Conn, send func(*bufio.Writer) error) ([]byte, error) {
	bw := bufio.NewWriter(conn)
	if err := send(bw); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	return readResponse(bufio.NewReader(conn))
}

func (c *PooledClient) acquire(ctx context.Context, addr string) (net.Conn, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, net.ErrClosed
	}
	pool, ok := c.pools[addr]
	if !ok {
		pool = make(chan net.Conn, c.poolSize)
		c.pools[addr] = pool
	}
	c.mu.Unlock()

	select {
	case conn := <-pool:
		return conn, nil
	default:
	}

	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return conn, nil
}

func (c *PooledClient) release(addr string, conn net.Conn) {
	conn.SetDeadline(time.Time{})

	c.mu.Lock()
	pool, ok := c.pools[addr]
	closed := c.closed
	c.mu.Unlock()

	if closed || !ok {
		conn.Close()
		return
	}
	select {
	case pool <- conn:
	default:
		conn.Close()
	}
}

// Close discards all pooled connections.
func (c *PooledClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, pool := range c.pools {
		close(pool)
		for conn := range pool {
			conn.Close()
		}
	}
	c.pools = nil
	return nil
}

package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ServerConfig holds the file server configuration.
type ServerConfig struct {
	// Addr is the listen address, e.g. "0.0.0.0:5721".
	Addr string
	// Root is the directory served. Requested paths are resolved under it;
	// traversal outside is rejected.
	Root string
	// ReadTimeout is the per-request read deadline (default 30s).
	ReadTimeout time.Duration
	// WriteTimeout is the per-response write deadline (default 30s).
	WriteTimeout time.Duration
	// IdleTimeout closes connections with no requests (default 5m).
	IdleTimeout time.Duration
	// Install handles pushed slot snapshots. Nil rejects install requests.
	Install InstallHandler
	// Logger is the structured logger.
	Logger *slog.Logger
}

// InstallHandler receives a pushed slot snapshot. It runs on the connection
// goroutine, so a slow install backpressures the sender.
type InstallHandler func(ctx context.Context, slot uint32, snapshot []byte) error

// DefaultServerConfig returns the default configuration.
func DefaultServerConfig(addr, root string) ServerConfig {
	return ServerConfig{
		Addr:         addr,
		Root:         root,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  5 * time.Minute,
	}
}

// Server serves byte-range reads of local data files to peer nodes.
type Server struct {
	cfg     ServerConfig
	logger  *slog.Logger
	ln      net.Listener
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewServer creates a file server. Call Start to begin serving.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	return &Server{cfg: cfg, logger: cfg.Logger}
}

// Start binds the listener and serves connections until Close.
func (s *Server) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("transport: server already running")
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("transport: listen %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	s.logger.Info("file server started", "addr", ln.Addr().String(), "root", s.cfg.Root)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound address, empty before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Close stops the listener and waits for in-flight connections.
func (s *Server) Close() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	err := s.ln.Close()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.running.Load() {
				s.logger.Error("accept failed", "error", err)
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)

	for s.running.Load() {
		conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		op, err := readRequestOp(br)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !isTimeout(err) {
				s.logger.Warn("bad request", "peer", conn.RemoteAddr().String(), "error", err)
			}
			return
		}

		switch op {
		case opReadFile:
			path, offset, length, err := readReadFileBody(br)
			if err != nil {
				s.logger.Warn("bad request", "peer", conn.RemoteAddr().String(), "error", err)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			err = s.serveRead(bw, path, offset, length)
			if err == nil {
				err = bw.Flush()
			}
			if err != nil {
				s.logger.Warn("write response failed", "peer", conn.RemoteAddr().String(), "error", err)
				return
			}
		case opInstallSlot:
			slot, snapshot, err := readInstallBody(br)
			if err != nil {
				s.logger.Warn("bad request", "peer", conn.RemoteAddr().String(), "error", err)
				return
			}
			// The install pulls remote files and can run long; the write
			// deadline starts after it finishes.
			conn.SetReadDeadline(time.Time{})
			err = s.serveInstall(bw, conn, slot, snapshot)
			if err == nil {
				err = bw.Flush()
			}
			if err != nil {
				s.logger.Warn("write response failed", "peer", conn.RemoteAddr().String(), "error", err)
				return
			}
		}
	}
}

func (s *Server) serveInstall(w io.Writer, conn net.Conn, slot uint32, snapshot []byte) error {
	if s.cfg.Install == nil {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		return writeErrorResponse(w, "slot install not supported")
	}
	err := s.cfg.Install(context.Background(), slot, snapshot)
	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err != nil {
		return writeErrorResponse(w, fmt.Sprintf("install slot %d: %v", slot, err))
	}
	return writeDataResponse(w, nil)
}

func (s *Server) serveRead(w io.Writer, path string, offset int64, length int32) error {
	local, err := s.resolve(path)
	if err != nil {
		return writeErrorResponse(w, err.Error())
	}

	f, err := os.Open(local)
	if err != nil {
		return writeErrorResponse(w, fmt.Sprintf("open %s: %v", path, err))
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return writeErrorResponse(w, fmt.Sprintf("read %s: %v", path, err))
	}
	// A short or empty read at EOF is a normal end-of-file signal.
	return writeDataResponse(w, buf[:n])
}

// resolve maps a requested path onto the served root, rejecting traversal.
func (s *Server) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(path))
	if clean == "/" {
		return "", errors.New("empty path")
	}
	full := filepath.Join(s.cfg.Root, clean)
	if !strings.HasPrefix(full, filepath.Clean(s.cfg.Root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes root", path)
	}
	return full, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Package daemon implements the local IPC surface: a unix socket
// accepting one JSON request per connection, dispatched against the
// task executor.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/taskcell/taskcell/internal/config"
	"github.com/taskcell/taskcell/internal/executor"
)

// Tasks is the executor surface the dispatcher drives.
type Tasks interface {
	Submit(ctx context.Context, command []string, workingDir string, env, metadata map[string]string) (executor.Snapshot, error)
	Get(taskID string) (executor.Snapshot, bool)
	List() []executor.Snapshot
	Kill(taskID string) error
}

// Server owns the unix socket and the per-connection goroutines.
type Server struct {
	cfg    *config.Config
	tasks  Tasks
	logger *log.Logger

	mu       sync.Mutex
	listener *net.UnixListener
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a silent server (for tests and embedding).
func New(cfg *config.Config, tasks Tasks) *Server {
	return newServer(cfg, tasks, io.Discard)
}

// NewWithLogging creates a server that logs to w (daemon mode).
func NewWithLogging(cfg *config.Config, tasks Tasks, w io.Writer) *Server {
	return newServer(cfg, tasks, w)
}

func newServer(cfg *config.Config, tasks Tasks, w io.Writer) *Server {
	return &Server{
		cfg:    cfg,
		tasks:  tasks,
		logger: log.NewWithOptions(w, log.Options{Prefix: "daemon"}),
	}
}

// Start binds the socket and launches the accept loop. With socket
// takeover enabled an existing socket is removed unconditionally;
// otherwise Start probes it and refuses when another daemon answers.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("server already started")
	}

	if err := s.prepareSocket(); err != nil {
		return err
	}

	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("bind socket %s: %w", s.cfg.SocketPath, err)
	}

	s.listener = ln.(*net.UnixListener)
	s.running = true
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("Daemon listening", "socket", s.cfg.SocketPath)
	return nil
}

// prepareSocket clears the way for binding. A socket nothing listens
// on is stale and removed in either mode.
func (s *Server) prepareSocket() error {
	if _, err := os.Stat(s.cfg.SocketPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat socket %s: %w", s.cfg.SocketPath, err)
	}

	if !s.cfg.SocketTakeover {
		conn, err := net.DialTimeout("unix", s.cfg.SocketPath, dialTimeout)
		if err == nil {
			conn.Close()
			return errors.New("daemon already running")
		}
	}

	if err := os.Remove(s.cfg.SocketPath); err != nil {
		return fmt.Errorf("remove stale socket %s: %w", s.cfg.SocketPath, err)
	}
	return nil
}

// Stop closes the listener, waits for in-flight connections and
// removes the socket file.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	ln := s.listener
	s.mu.Unlock()

	ln.Close()
	s.wg.Wait()
	os.Remove(s.cfg.SocketPath)
	s.logger.Info("Daemon stopped")
}

// acceptLoop accepts with a short deadline so shutdown is noticed
// between connections. Each connection gets its own goroutine.
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.listener.SetDeadline(time.Now().Add(acceptPoll))
		conn, err := s.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.logger.Error("Accept failed", "error", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn reads one bounded request, writes one reply and closes.
// Dispatch errors become error payloads, never connection teardown.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connTimeout))

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		s.logger.Debug("Connection read failed", "error", err)
		return
	}
	if n == 0 {
		return
	}

	reply := s.dispatch(buf[:n])
	if _, err := conn.Write(reply); err != nil {
		s.logger.Debug("Connection write failed", "error", err)
	}
}

package server

import (
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"marketchat/observability"
	"marketchat/persistence"
	"marketchat/store"
)

// Server owns the listening socket and one worker goroutine per accepted
// connection. All workers share the same directory and conversation store.
type Server struct {
	log           *slog.Logger
	directory     *store.Directory
	conversations *store.ConversationStore
	files         *persistence.FileStore
	monitor       *observability.Monitor

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New builds a server over shared state. The monitor may be nil when
// telemetry is disabled.
func New(log *slog.Logger, directory *store.Directory, conversations *store.ConversationStore, files *persistence.FileStore, monitor *observability.Monitor) *Server {
	return &Server{
		log:           log,
		directory:     directory,
		conversations: conversations,
		files:         files,
		monitor:       monitor,
		conns:         make(map[net.Conn]struct{}),
	}
}

// ListenAndServe binds addr and accepts until the server is closed.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve runs the accept loop on ln. It returns nil after Close, or the
// accept error otherwise.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.ln = ln
	s.mu.Unlock()

	s.log.Info("listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				s.wg.Wait()
				return nil
			}
			return err
		}
		s.track(conn)
		s.wg.Add(1)
		go s.worker(conn)
	}
}

func (s *Server) worker(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	session := uuid.NewString()
	log := s.log.With("session", session, "remote", conn.RemoteAddr().String())
	log.Info("session started")
	if s.monitor != nil {
		s.monitor.SessionStarted()
		defer s.monitor.SessionEnded()
	}

	d := NewDispatcher(s.directory, s.conversations, log, s.monitor, func() { go s.Close() })
	graceful := d.Serve(conn)
	if graceful {
		log.Info("session ended")
		return
	}

	// A broken stream may have cut off a peer mid-edit; persist what we
	// have before the worker exits.
	log.Warn("session aborted, flushing state")
	s.Flush()
}

// Flush writes the directory and every conversation to disk.
func (s *Server) Flush() {
	if err := s.files.Save(s.directory, s.conversations); err != nil {
		s.log.Error("flushing state", "error", err)
		return
	}
	if s.monitor != nil {
		s.monitor.StateFlushed()
	}
}

// Close flushes state, stops the accept loop and shuts every open
// connection. It is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		ln := s.ln
		open := make([]net.Conn, 0, len(s.conns))
		for c := range s.conns {
			open = append(open, c)
		}
		s.mu.Unlock()

		s.Flush()
		if ln != nil {
			ln.Close()
		}
		for _, c := range open {
			c.Close()
		}
		s.log.Info("server closed")
	})
	return nil
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

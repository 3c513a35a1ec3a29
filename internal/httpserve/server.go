package httpserve

import (
	"context"
	"errors"
	"net"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"
)

// acceptPollInterval is the blocking-accept-with-timeout poll period, the
// direct rendering of spec.md §5's "500 ms poll timeout so it can observe
// a shared shutdown flag".
const acceptPollInterval = 500 * time.Millisecond

// Server is the fixed-size worker-pool HTTP listener of spec.md §4.5: N
// symmetric worker goroutines share one listening socket, each running its own
// accept-with-timeout loop, with no async runtime.
type Server struct {
	Handler http.Handler
	Workers int

	listener *net.TCPListener
	shutdown atomic.Bool
	wg       sync.WaitGroup
}

// NewServer creates a server with Workers defaulting to
// runtime.NumCPU() when n <= 0.
func NewServer(handler http.Handler, n int) *Server {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Server{Handler: handler, Workers: n}
}

// ListenAndServe binds addr and runs Workers accept-loop goroutines until
// Shutdown is called. It blocks until every worker has returned.
func (s *Server) ListenAndServe(addr string) error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return err
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return err
	}
	s.listener = ln

	klog.Infof("httpserve: listening on %s with %d workers", ln.Addr(), s.Workers)
	s.wg.Add(s.Workers)
	for i := 0; i < s.Workers; i++ {
		go s.acceptLoop(i)
	}
	s.wg.Wait()
	return nil
}

// Shutdown sets the shared atomic shutdown flag; each worker observes it
// within one poll interval and closing the listener unblocks any pending
// Accept immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) acceptLoop(workerID int) {
	defer s.wg.Done()
	for {
		if s.shutdown.Load() {
			return
		}
		if err := s.listener.SetDeadline(time.Now().Add(acceptPollInterval)); err != nil {
			klog.Errorf("httpserve[worker %d]: set deadline: %v", workerID, err)
			return
		}
		conn, err := s.listener.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if s.shutdown.Load() {
				return
			}
			klog.Warningf("httpserve[worker %d]: accept: %v", workerID, err)
			continue
		}
		s.serveConn(conn)
	}
}

// serveConn hands one already-accepted connection to an http.Server via a
// single-connection Listener shim, so keep-alive requests on it are
// served in-place rather than spinning up a per-request goroutine. A
// connection left idle for acceptPollInterval is closed, which returns
// the worker to its accept loop.
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	srv := &http.Server{Handler: s.Handler, IdleTimeout: acceptPollInterval}
	if err := srv.Serve(newSingleConnListener(conn)); err != nil && !errors.Is(err, errSingleConnDone) {
		klog.V(2).Infof("httpserve: connection serve ended: %v", err)
	}
}

var errSingleConnDone = errors.New("httpserve: single connection already accepted")

// singleConnListener adapts one net.Conn into a net.Listener that yields
// it exactly once, for use with http.Serve. The wrapped connection's
// Close signals the listener so Serve's next Accept call returns once
// net/http is done with the connection (including any keep-alive
// requests), instead of blocking forever.
type singleConnListener struct {
	conn   net.Conn
	wrapped net.Conn
	once   sync.Once
	done   chan struct{}
}

func newSingleConnListener(conn net.Conn) *singleConnListener {
	l := &singleConnListener{conn: conn, done: make(chan struct{})}
	l.wrapped = &closeSignalConn{Conn: conn, onClose: l.closeDone}
	return l
}

func (l *singleConnListener) closeDone() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}

func (l *singleConnListener) Accept() (net.Conn, error) {
	var c net.Conn
	l.once.Do(func() { c = l.wrapped })
	if c != nil {
		return c, nil
	}
	<-l.done
	return nil, errSingleConnDone
}

func (l *singleConnListener) Close() error {
	l.closeDone()
	return nil
}

func (l *singleConnListener) Addr() net.Addr { return l.conn.LocalAddr() }

// closeSignalConn runs onClose exactly once when the connection is closed.
type closeSignalConn struct {
	net.Conn
	once    sync.Once
	onClose func()
}

func (c *closeSignalConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(c.onClose)
	return err
}

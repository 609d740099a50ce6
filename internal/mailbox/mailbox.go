// Package mailbox implements the per-peer point-to-point channel described
// in spec §4.2. Each peer runs an HTTP server exposing a websocket mailbox
// endpoint; the owning peer is the only reader of the channel feeding that
// endpoint ("open_receive exclusive to owning peer"), and any peer may dial
// in to deliver one operation at a time ("open_send opened by any peer").
package mailbox

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Narendra20078/AtomEdit/internal/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ErrFull is returned by Sender.Send when the receiving peer's server reports
// that its inbox is at capacity; Broadcast treats it like any other failed send.
var ErrFull = fmt.Errorf("mailbox full")

// Inbox is the receiving half of a peer's mailbox: a capacity-bounded,
// FIFO, non-blocking channel fed by the HTTP server below.
type Inbox struct {
	ch chan types.Operation
}

func newInbox(capacity int) *Inbox {
	return &Inbox{ch: make(chan types.Operation, capacity)}
}

// Receive returns an operation and true if one is queued, or the zero value
// and false if the inbox is currently empty. It never blocks.
func (b *Inbox) Receive() (types.Operation, bool) {
	select {
	case op := <-b.ch:
		return op, true
	default:
		return types.Operation{}, false
	}
}

func (b *Inbox) tryDeliver(op types.Operation) bool {
	select {
	case b.ch <- op:
		return true
	default:
		return false
	}
}

// Server hosts the owning peer's mailbox endpoint.
type Server struct {
	inbox    *Inbox
	log      *logrus.Entry
	listener net.Listener
	http     *http.Server
	mu       sync.Mutex
	addr     string
}

// Listen opens the mailbox's listening socket on addr ("host:port", port 0
// picks a free port) and starts accepting websocket connections. It does
// not block; call Close to shut the server down.
func Listen(addr string, capacity int, log *logrus.Entry) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("mailbox listen: %w", err)
	}

	s := &Server{
		inbox:    newInbox(capacity),
		log:      log,
		listener: ln,
		addr:     ln.Addr().String(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/mailbox", s.handleMailbox)
	s.http = &http.Server{Handler: mux}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("mailbox server stopped")
		}
	}()

	return s, nil
}

// Addr is the address other peers should dial to reach this mailbox.
func (s *Server) Addr() string { return s.addr }

// Inbox exposes the receiving channel for the mailbox listener goroutine.
func (s *Server) Inbox() *Inbox { return s.inbox }

func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) handleMailbox(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("mailbox upgrade failed")
		return
	}
	defer conn.Close()

	var op types.Operation
	if err := conn.ReadJSON(&op); err != nil {
		return
	}

	if !s.inbox.tryDeliver(op) {
		_ = conn.WriteJSON(map[string]string{"status": "full"})
		return
	}
	_ = conn.WriteJSON(map[string]string{"status": "ok"})
}

// Sender delivers operations to other peers' mailboxes, tolerating
// transient "not found" failures (peer just joined, mailbox not open yet)
// with a small bounded exponential backoff.
type Sender struct {
	self    types.PeerInfo
	log     *logrus.Entry
	retries uint64
	base    time.Duration
	dialer  *websocket.Dialer
}

func NewSender(self types.PeerInfo, retries int, base time.Duration, log *logrus.Entry) *Sender {
	return &Sender{
		self:    self,
		log:     log,
		retries: uint64(retries),
		base:    base,
		dialer:  &websocket.Dialer{HandshakeTimeout: 2 * time.Second},
	}
}

// Send delivers op to the mailbox at addr. It dials a short-lived websocket
// connection per send (mirroring a per-message queue open/write/close
// cycle), retrying on dial failure (peer not ready yet) up to the
// configured bound. A "full" response from the receiver is logged and
// dropped for this round; convergence relies on rebroadcast, not delivery
// guarantees.
func (s *Sender) Send(ctx context.Context, addr string, op types.Operation) error {
	url := fmt.Sprintf("ws://%s/mailbox", addr)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.base
	eb.MaxElapsedTime = 0
	policy := backoff.WithMaxRetries(eb, s.retries)

	var lastResp map[string]string
	err := backoff.Retry(func() error {
		conn, _, err := s.dialer.DialContext(ctx, url, nil)
		if err != nil {
			return err // not-found: retry
		}
		defer conn.Close()

		if err := conn.WriteJSON(op); err != nil {
			return err
		}
		var resp map[string]string
		if err := conn.ReadJSON(&resp); err != nil {
			return nil // best-effort ack; treat as delivered
		}
		lastResp = resp
		return nil
	}, backoff.WithContext(policy, ctx))

	if err != nil {
		s.log.WithFields(logrus.Fields{"addr": addr, "op": op.Fingerprint()}).
			WithError(err).Warn("mailbox send failed permanently, dropping for this round")
		return err
	}
	if lastResp["status"] == "full" {
		s.log.WithFields(logrus.Fields{"addr": addr, "op": op.Fingerprint()}).
			Warn("mailbox full, dropping for this round")
		return ErrFull
	}
	return nil
}

// Broadcast sends op to every peer in peers other than self, best-effort.
func (s *Sender) Broadcast(ctx context.Context, peers []types.PeerInfo, op types.Operation) {
	for _, p := range peers {
		if p.Name == s.self.Name {
			continue
		}
		_ = s.Send(ctx, p.Addr, op)
	}
}

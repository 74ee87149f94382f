// Package observer streams tile activations to websocket observers and feeds
// their TRACK updates back to the control loop.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"terrainforge.dev/internal/events"
	"terrainforge.dev/internal/observerproto"
	"terrainforge.dev/internal/tile"
)

type Options struct {
	Logger *log.Logger
	// TrackRate limits TRACK messages per connection. Zero means 10/s.
	TrackRate  rate.Limit
	TrackBurst int
	// AllowRemote accepts non-loopback clients.
	AllowRemote bool
}

// Server is safe for concurrent use. Bus handlers run on the control
// goroutine; websocket handlers run on net/http goroutines.
type Server struct {
	log  *log.Logger
	opts Options

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu        sync.Mutex
	sessions  map[string]*session
	tiles     map[tile.GridPosition]activation
	bootstrap observerproto.BootstrapResponse

	tracks chan mgl64.Vec2
}

// activation holds a TILE_ACTIVATED message with and without height data.
type activation struct {
	full []byte
	bare []byte
}

type session struct {
	id      string
	out     chan []byte
	heights atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func (s *session) close() { s.once.Do(func() { close(s.done) }) }

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.TrackRate == 0 {
		opts.TrackRate = 10
	}
	if opts.TrackBurst <= 0 {
		opts.TrackBurst = 5
	}
	return &Server{
		log:      opts.Logger,
		opts:     opts,
		sessions: map[string]*session{},
		tiles:    map[tile.GridPosition]activation{},
		tracks:   make(chan mgl64.Vec2, 64),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Tracks delivers accepted TRACK positions. The control loop drains it.
func (s *Server) Tracks() <-chan mgl64.Vec2 { return s.tracks }

func (s *Server) SetBootstrap(b observerproto.BootstrapResponse) {
	s.mu.Lock()
	s.bootstrap = b
	s.mu.Unlock()
}

func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Attach mirrors tile activations from bus to every session.
func (s *Server) Attach(bus *events.Bus) func() {
	return bus.Subscribe(s.handle)
}

func (s *Server) handle(e events.Event) {
	pos := tile.GridPosition{X: e.X, Z: e.Z}
	switch e.Kind {
	case events.TileActivated:
		msg := observerproto.TileActivatedMsg{
			Type:            observerproto.TypeTileActivated,
			ProtocolVersion: observerproto.Version,
			X:               e.X,
			Z:               e.Z,
			Resolution:      e.Resolution,
			Length:          e.Length,
			Digest:          e.Digest,
		}
		bare, _ := json.Marshal(msg)
		msg.Encoding = observerproto.HeightsEncoding
		msg.Data = observerproto.EncodeHeights(e.Heights)
		full, _ := json.Marshal(msg)
		a := activation{full: full, bare: bare}

		s.mu.Lock()
		s.tiles[pos] = a
		for _, sess := range s.sessions {
			s.sendLocked(sess, a.pick(sess))
		}
		s.mu.Unlock()

	case events.TileDeactivated:
		b, _ := json.Marshal(observerproto.TileDeactivatedMsg{
			Type:            observerproto.TypeTileDeactivated,
			ProtocolVersion: observerproto.Version,
			X:               e.X,
			Z:               e.Z,
		})
		s.mu.Lock()
		delete(s.tiles, pos)
		for _, sess := range s.sessions {
			s.sendLocked(sess, b)
		}
		s.mu.Unlock()
	}
}

func (a activation) pick(sess *session) []byte {
	if sess.heights.Load() {
		return a.full
	}
	return a.bare
}

// sendLocked never blocks the publisher. A session that cannot keep up is
// dropped; it resynchronizes on reconnect.
func (s *Server) sendLocked(sess *session, b []byte) {
	select {
	case sess.out <- b:
	default:
		s.log.Printf("observer %s: send queue full, dropping session", sess.id)
		delete(s.sessions, sess.id)
		sess.close()
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.opts.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		s.mu.Lock()
		resp := s.bootstrap
		s.mu.Unlock()
		resp.ProtocolVersion = observerproto.Version

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.opts.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub observerproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sess := &session{
			id:   fmt.Sprintf("O%d", s.nextID.Add(1)),
			done: make(chan struct{}),
		}
		sess.heights.Store(sub.Heights)
		s.register(sess)
		defer s.unregister(sess)
		s.log.Printf("observer %s: subscribed from %s", sess.id, r.RemoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case <-sess.done:
					writeErr <- nil
					_ = conn.Close()
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: TRACK updates and SUBSCRIBE re-sends.
		limiter := rate.NewLimiter(s.opts.TrackRate, s.opts.TrackBurst)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var env observerproto.Envelope
			if err := json.Unmarshal(msg, &env); err != nil || env.ProtocolVersion != observerproto.Version {
				continue
			}
			switch env.Type {
			case observerproto.TypeSubscribe:
				var sub observerproto.SubscribeMsg
				if err := json.Unmarshal(msg, &sub); err == nil {
					sess.heights.Store(sub.Heights)
				}
			case observerproto.TypeTrack:
				var tr observerproto.TrackMsg
				if err := json.Unmarshal(msg, &tr); err != nil {
					continue
				}
				if !limiter.Allow() {
					continue
				}
				select {
				case s.tracks <- mgl64.Vec2{tr.X, tr.Z}:
				default:
					// Drop updates under load; the client may resend.
				}
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// register adds sess and queues every active tile, so a late subscriber sees
// the same set as one that was connected all along.
func (s *Server) register(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.out = make(chan []byte, len(s.tiles)+4096)
	keys := make([]tile.GridPosition, 0, len(s.tiles))
	for pos := range s.tiles {
		keys = append(keys, pos)
	}
	tile.SortPositions(keys)
	for _, pos := range keys {
		sess.out <- s.tiles[pos].pick(sess)
	}
	s.sessions[sess.id] = sess
}

func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	sess.close()
}

// Close disconnects every session.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		delete(s.sessions, id)
		sess.close()
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

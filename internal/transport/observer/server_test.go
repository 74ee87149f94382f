package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"terrainforge.dev/internal/events"
	"terrainforge.dev/internal/observerproto"
)

func startServer(t *testing.T, opts Options) (*Server, *events.Bus, string) {
	t.Helper()
	s := NewServer(opts)
	bus := events.NewBus()
	s.Attach(bus)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer/ws", s.WSHandler())
	mux.HandleFunc("/v1/observer/bootstrap", s.BootstrapHandler())
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return s, bus, srv.URL
}

func dial(t *testing.T, s *Server, base string, heights bool) *websocket.Conn {
	t.Helper()
	before := s.Sessions()
	url := "ws" + strings.TrimPrefix(base, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	sub := observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version, Heights: heights}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for s.Sessions() <= before {
		if time.Now().After(deadline) {
			t.Fatalf("session never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) (observerproto.Envelope, []byte) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env observerproto.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env, b
}

func activated(x, z int) events.Event {
	return events.Event{
		Kind: events.TileActivated, X: x, Z: z,
		Digest: strings.Repeat("0", 64), Resolution: 2, Length: 8,
		Heights: []float64{1, 2, 3, 4},
	}
}

func TestServer_StreamsActivations(t *testing.T) {
	s, bus, base := startServer(t, Options{})
	conn := dial(t, s, base, true)

	bus.Publish(activated(1, -2))
	env, b := readMsg(t, conn)
	if env.Type != observerproto.TypeTileActivated {
		t.Fatalf("type: got %s", env.Type)
	}
	var msg observerproto.TileActivatedMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.X != 1 || msg.Z != -2 || msg.Resolution != 2 || msg.Encoding != observerproto.HeightsEncoding {
		t.Fatalf("unexpected message: %+v", msg)
	}
	heights, err := observerproto.DecodeHeights(msg.Data)
	if err != nil || len(heights) != 4 || heights[3] != 4 {
		t.Fatalf("heights: %v (%v)", heights, err)
	}

	bus.Publish(events.Event{Kind: events.TileDeactivated, X: 1, Z: -2})
	env, b = readMsg(t, conn)
	if env.Type != observerproto.TypeTileDeactivated {
		t.Fatalf("type: got %s", env.Type)
	}
	var de observerproto.TileDeactivatedMsg
	if err := json.Unmarshal(b, &de); err != nil || de.X != 1 || de.Z != -2 {
		t.Fatalf("unexpected deactivation: %+v (%v)", de, err)
	}
}

func TestServer_LateSubscriberReceivesActiveSet(t *testing.T) {
	s, bus, base := startServer(t, Options{})
	bus.Publish(activated(2, 0))
	bus.Publish(activated(0, 1))
	bus.Publish(activated(5, 5))
	bus.Publish(events.Event{Kind: events.TileDeactivated, X: 5, Z: 5})

	conn := dial(t, s, base, false)
	var got [][2]int
	for i := 0; i < 2; i++ {
		_, b := readMsg(t, conn)
		var msg observerproto.TileActivatedMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Data != "" {
			t.Fatalf("heights sent to a subscriber that did not ask for them")
		}
		got = append(got, [2]int{msg.X, msg.Z})
	}
	if got[0] != [2]int{0, 1} || got[1] != [2]int{2, 0} {
		t.Fatalf("initial tiles out of order or wrong: %v", got)
	}
}

func TestServer_ForwardsTrackWithRateLimit(t *testing.T) {
	s, _, base := startServer(t, Options{TrackRate: rate.Limit(0.001), TrackBurst: 2})
	conn := dial(t, s, base, false)

	for i := 0; i < 5; i++ {
		tr := observerproto.TrackMsg{Type: observerproto.TypeTrack, ProtocolVersion: observerproto.Version, X: float64(i), Z: 10}
		if err := conn.WriteJSON(tr); err != nil {
			t.Fatalf("track: %v", err)
		}
	}

	var xs []float64
	timeout := time.After(2 * time.Second)
	for len(xs) < 2 {
		select {
		case p := <-s.Tracks():
			xs = append(xs, p[0])
		case <-timeout:
			t.Fatalf("tracks: got %v want 2 positions", xs)
		}
	}
	select {
	case p := <-s.Tracks():
		t.Fatalf("rate limit let through an extra TRACK: %v", p)
	case <-time.After(300 * time.Millisecond):
	}
	if xs[0] != 0 || xs[1] != 1 {
		t.Fatalf("unexpected tracked positions: %v", xs)
	}
}

func TestServer_RejectsBadHandshake(t *testing.T) {
	s, _, base := startServer(t, Options{})
	url := "ws" + strings.TrimPrefix(base, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(observerproto.TrackMsg{Type: observerproto.TypeTrack, ProtocolVersion: observerproto.Version}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
	if s.Sessions() != 0 {
		t.Fatalf("rejected connection registered a session")
	}
}

func TestServer_Bootstrap(t *testing.T) {
	s, _, base := startServer(t, Options{})
	s.SetBootstrap(observerproto.BootstrapResponse{
		WorldID: "w1",
		WorldParams: observerproto.WorldParams{
			TickRateHz: 10, Seed: 7, TileLength: 64, TileResolution: 33, Radius: 3,
		},
		Biomes: []string{"plains"},
	})
	resp, err := http.Get(base + "/v1/observer/bootstrap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var b observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.ProtocolVersion != observerproto.Version || b.WorldID != "w1" || b.WorldParams.Seed != 7 || len(b.Biomes) != 1 {
		t.Fatalf("unexpected bootstrap: %+v", b)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:1234": true,
		"[::1]:80":       true,
		"10.0.0.1:80":    false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", addr, got, want)
		}
	}
}

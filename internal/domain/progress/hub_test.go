package progress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/bannerforge/bannerforge-api/internal/domain/generation"
	"github.com/bannerforge/bannerforge-api/internal/middleware"
	"github.com/bannerforge/bannerforge-api/internal/pkg/metrics"
)

func startHub(t *testing.T, client *redis.Client, instanceID string) *Hub {
	t.Helper()
	h := NewHubWithInstanceID(client, instanceID)
	go h.Run()
	t.Cleanup(h.Shutdown)
	return h
}

func waitConnections(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ConnectionCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d connections, got %d", n, h.ConnectionCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitMessage(t *testing.T, ch <-chan []byte) Message {
	t.Helper()
	select {
	case data := <-ch:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Message{}
}

func TestObserveDeliversToOwnerOnly(t *testing.T) {
	h := startHub(t, nil, "a")
	owner, other := uuid.New(), uuid.New()

	mine := &Connection{UserID: owner, Send: make(chan []byte, 4)}
	theirs := &Connection{UserID: other, Send: make(chan []byte, 4)}
	h.Register(mine)
	h.Register(theirs)
	waitConnections(t, h, 2)

	h.Observe(generation.Event{GenerationID: uuid.New(), UserID: owner, State: generation.StateCharged})

	msg := waitMessage(t, mine.Send)
	if msg.Type != "generation.progress" || msg.Event.State != generation.StateCharged {
		t.Fatalf("unexpected message %+v", msg)
	}
	select {
	case <-theirs.Send:
		t.Fatal("event leaked to another user")
	default:
	}
}

func TestObserveNeverWaitsOnRedis(t *testing.T) {
	// Nothing listens on port 1 and the publisher is not started, so every
	// queued event stays queued.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	m := metrics.New(prometheus.NewRegistry())
	h := NewHubWithInstanceID(client, "stalled").WithMetrics(m)
	defer h.Shutdown()

	const extra = 10
	start := time.Now()
	for i := 0; i < publishBuffer+extra; i++ {
		h.Observe(generation.Event{GenerationID: uuid.New(), UserID: uuid.New(), State: generation.StateCharged})
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Observe blocked for %s", elapsed)
	}
	if got := testutil.ToFloat64(m.ProgressEvents.WithLabelValues(metrics.ResultDropped)); got != extra {
		t.Fatalf("expected %d dropped events, got %v", extra, got)
	}
}

func TestConnectionGauge(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := NewHubWithInstanceID(nil, "gauge").WithMetrics(m)
	go h.Run()
	defer h.Shutdown()

	conn := &Connection{UserID: uuid.New(), Send: make(chan []byte, 1)}
	h.Register(conn)
	waitConnections(t, h, 1)
	if got := testutil.ToFloat64(m.ProgressConnections); got != 1 {
		t.Fatalf("expected gauge 1, got %v", got)
	}
	h.Unregister(conn)
	waitConnections(t, h, 0)
	if got := testutil.ToFloat64(m.ProgressConnections); got != 0 {
		t.Fatalf("expected gauge 0, got %v", got)
	}
}

func TestRemoteEnvelopeFromSelfIgnored(t *testing.T) {
	h := startHub(t, nil, "self")
	userID := uuid.New()
	conn := &Connection{UserID: userID, Send: make(chan []byte, 4)}
	h.Register(conn)
	waitConnections(t, h, 1)

	payload, _ := json.Marshal(envelope{UserID: userID.String(), Payload: json.RawMessage(`{"type":"x"}`), SenderInstanceID: "self"})
	h.handleRemote(string(payload))
	select {
	case <-conn.Send:
		t.Fatal("own publication delivered twice")
	default:
	}

	payload, _ = json.Marshal(envelope{UserID: userID.String(), Payload: json.RawMessage(`{"type":"x"}`), SenderInstanceID: "other"})
	h.handleRemote(string(payload))
	if msg := waitMessage(t, conn.Send); msg.Type != "x" {
		t.Fatalf("unexpected %+v", msg)
	}
}

func TestWebSocketStream(t *testing.T) {
	h := startHub(t, nil, "a")
	userID := uuid.New()

	withUser := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("anon") == "" {
			r = r.WithContext(middleware.WithIdentity(r.Context(), userID, "free"))
		}
		NewHandler(h, nil).WebSocket(w, r)
	})
	srv := httptest.NewServer(withUser)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	if _, resp, err := websocket.DefaultDialer.Dial(wsURL+"?anon=1", nil); err == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous dial, got %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitConnections(t, h, 1)

	h.Observe(generation.Event{GenerationID: uuid.New(), UserID: userID, State: generation.StateSucceeded, Provider: "gradient"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Event.State != generation.StateSucceeded || msg.Event.Provider != "gradient" {
		t.Fatalf("unexpected message %+v", msg)
	}

	conn.Close()
	waitConnections(t, h, 0)
}

func TestCrossInstanceDelivery(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer client.Close()

	a := startHub(t, client, "a")
	b := startHub(t, client, "b")
	userID := uuid.New()

	conn := &Connection{UserID: userID, Send: make(chan []byte, 4)}
	b.Register(conn)
	waitConnections(t, b, 1)
	// give the subscription time to become active
	time.Sleep(100 * time.Millisecond)

	a.Observe(generation.Event{GenerationID: uuid.New(), UserID: userID, State: generation.StatePlanned})
	if msg := waitMessage(t, conn.Send); msg.Event.State != generation.StatePlanned {
		t.Fatalf("unexpected %+v", msg)
	}
}

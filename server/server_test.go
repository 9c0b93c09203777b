package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/moyuhunter/huntqueue/bili"
	"github.com/moyuhunter/huntqueue/broadcast"
	"github.com/moyuhunter/huntqueue/config"
	"github.com/moyuhunter/huntqueue/queue"
	"github.com/moyuhunter/huntqueue/supervisor"
	"github.com/moyuhunter/huntqueue/testutil"
)

func testDeps(t *testing.T) (Deps, *queue.Engine, *broadcast.Hub) {
	t.Helper()
	hub := broadcast.NewHub()
	catalog := testutil.StaticCatalog{{Name: "雌火龙", Aliases: []string{"雌龙"}}}
	engine := queue.NewEngine(catalog, hub, queue.DefaultConfig())
	stream := testutil.NewFakeStream()
	t.Cleanup(func() { _ = stream.Close() })
	sup := supervisor.New(context.Background(), &testutil.MemCredentialStore{},
		testutil.AlwaysDial(stream), testutil.AcquireFixed("DedeUserID=1"), engine.HandleEvent)
	cfg := &config.Config{RoomID: 100, LoginURL: "https://live.example/login", TargetCookie: "DedeUserID"}
	return Deps{Engine: engine, Hub: hub, Sup: sup, Cfg: cfg}, engine, hub
}

func newTestServer(t *testing.T) (*httptest.Server, *queue.Engine, *broadcast.Hub) {
	t.Helper()
	deps, engine, hub := testDeps(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := httptest.NewServer(NewMux(ctx, deps))
	t.Cleanup(srv.Close)
	return srv, engine, hub
}

func chatMessage(content string) bili.ChatMessage {
	return bili.ChatMessage{Cmd: "DANMU_MSG", Content: content, UID: 7, Username: "hunter"}
}

func seedQueue(t *testing.T, engine *queue.Engine, names ...string) []queue.Item {
	t.Helper()
	for i, n := range names {
		msg := chatMessage(queue.CommandPrefix + n)
		msg.UID = int64(i + 1)
		if _, ok := engine.Admit(context.Background(), msg); !ok {
			t.Fatalf("seed admission of %q failed", n)
		}
	}
	return engine.Items()
}

func TestQueueEndpoints(t *testing.T) {
	srv, engine, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/queue")
	if err != nil {
		t.Fatalf("get queue: %v", err)
	}
	var items []queue.Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(items) != 0 {
		t.Errorf("fresh queue should be empty, got %d items", len(items))
	}

	seeded := seedQueue(t, engine, "雌火龙", "雌火龙")

	// Remove the first item by id.
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/queue/"+seeded[0].ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete item: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete item status = %d", resp.StatusCode)
	}
	if got := len(engine.Items()); got != 1 {
		t.Errorf("queue length after delete = %d, want 1", got)
	}

	// Deleting again is a 404.
	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/queue/"+seeded[0].ID, nil)
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("repeat delete status = %d, want 404", resp.StatusCode)
	}

	// Clear the rest.
	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/queue", nil)
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("clear status = %d", resp.StatusCode)
	}
	if got := len(engine.Items()); got != 0 {
		t.Errorf("queue length after clear = %d, want 0", got)
	}
}

func TestQueueReplace(t *testing.T) {
	srv, engine, _ := newTestServer(t)
	seeded := seedQueue(t, engine, "雌火龙", "雌火龙", "雌火龙")

	// Reverse the order via PUT.
	reordered := []queue.Item{seeded[2], seeded[1], seeded[0]}
	body, _ := json.Marshal(reordered)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/queue", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put queue: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d", resp.StatusCode)
	}
	items := engine.Items()
	if items[0].ID != seeded[2].ID || items[2].ID != seeded[0].ID {
		t.Errorf("replace did not install the new order")
	}
}

func TestConfigEndpoints(t *testing.T) {
	srv, engine, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/config")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	var cfg queue.Config
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if cfg != queue.DefaultConfig() {
		t.Errorf("initial config = %+v, want defaults", cfg)
	}

	cfg.MinGuardLevel = 3
	cfg.AllowJump = true
	body, _ := json.Marshal(cfg)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/config", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put config: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d", resp.StatusCode)
	}
	if got := engine.Config(); got.MinGuardLevel != 3 || !got.AllowJump {
		t.Errorf("config not installed: %+v", got)
	}

	// Unknown fields and negative tiers are rejected.
	for _, payload := range []string{`{"bogus":1}`, `{"minGuardLevel":-1}`} {
		req, _ = http.NewRequest(http.MethodPut, srv.URL+"/config", strings.NewReader(payload))
		resp, _ = http.DefaultClient.Do(req)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("payload %s: status = %d, want 400", payload, resp.StatusCode)
		}
	}
}

func TestCatalogUnavailableWithoutDB(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/catalog")
	if err != nil {
		t.Fatalf("get catalog: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("catalog without store: status = %d, want 503", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, engine, _ := newTestServer(t)
	seedQueue(t, engine, "雌火龙")

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	var out struct {
		State      string `json:"state"`
		Connected  bool   `json:"connected"`
		QueueDepth int    `json:"queueDepth"`
		RoomID     int64  `json:"roomId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if out.Connected || out.State != "idle" {
		t.Errorf("fresh supervisor reported %+v", out)
	}
	if out.QueueDepth != 1 || out.RoomID != 100 {
		t.Errorf("status payload = %+v", out)
	}
}

func TestConnectEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/connect", "application/json", nil)
	if err != nil {
		t.Fatalf("post connect: %v", err)
	}
	var out struct {
		Connected bool `json:"connected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !out.Connected {
		t.Errorf("connect = %d %+v, want 200 connected", resp.StatusCode, out)
	}
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}
}

func TestEventsUnknownChannel(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/events/bogus")
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown channel status = %d, want 404", resp.StatusCode)
	}
}

func TestEventsSSE(t *testing.T) {
	srv, engine, _ := newTestServer(t)
	seedQueue(t, engine, "雌火龙")

	resp, err := http.Get(srv.URL + "/events/queue")
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEnvelope := func() broadcast.Envelope {
		t.Helper()
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var env broadcast.Envelope
			if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &env); err != nil {
				t.Fatalf("unmarshal %q: %v", line, err)
			}
			return env
		}
		t.Fatal("no SSE event before deadline")
		return broadcast.Envelope{}
	}

	// The catch-up snapshot arrives first.
	env := readEnvelope()
	if env.Type != "update" {
		t.Fatalf("initial envelope type = %q", env.Type)
	}
	var items []queue.Item
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("initial snapshot has %d items, want 1", len(items))
	}

	// A later mutation streams through.
	seedQueue(t, engine, "雌火龙")
	env = readEnvelope()
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatalf("decode second snapshot: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("second snapshot has %d items, want 2", len(items))
	}
}

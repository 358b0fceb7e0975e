//go:build integration

package integration_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func getCount(t *testing.T) int64 {
	t.Helper()
	resp, err := http.Get(testServer.URL + "/api/v1/count")
	if err != nil {
		t.Fatalf("GET count: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode count: %v", err)
	}
	return body.Count
}

func increment(t *testing.T) int64 {
	t.Helper()
	req, err := http.NewRequest(http.MethodPatch, testServer.URL+"/api/v1/count", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH count: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode count: %v", err)
	}
	return body.Count
}

func TestIncrementRoundTrip(t *testing.T) {
	before := getCount(t)
	after := increment(t)
	if after != before+1 {
		t.Fatalf("expected %d, got %d", before+1, after)
	}
	if got := getCount(t); got != after {
		t.Fatalf("expected persisted %d, got %d", after, got)
	}
}

// sseValues streams decoded counts from an SSE response into a channel.
func sseValues(t *testing.T, resp *http.Response) <-chan int64 {
	t.Helper()
	out := make(chan int64, 16)
	go func() {
		defer close(out)
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\n")
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var u struct {
				Count int64 `json:"count"`
			}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &u); err != nil {
				return
			}
			out <- u.Count
		}
	}()
	return out
}

// wsValues streams decoded counts from a WebSocket connection into a channel.
func wsValues(ctx context.Context, t *testing.T, conn *websocket.Conn) <-chan int64 {
	t.Helper()
	out := make(chan int64, 16)
	go func() {
		defer close(out)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var u struct {
				Count int64 `json:"count"`
			}
			if err := json.Unmarshal(data, &u); err != nil {
				return
			}
			out <- u.Count
		}
	}()
	return out
}

func awaitValue(t *testing.T, name string, values <-chan int64, want int64) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got, ok := <-values:
			if !ok {
				t.Fatalf("%s: stream closed before value %d", name, want)
			}
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("%s: timed out waiting for value %d", name, want)
		}
	}
}

func TestBroadcastReachesAllTransports(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sseResp, err := http.Get(testServer.URL + "/sse")
	if err != nil {
		t.Fatalf("open sse: %v", err)
	}
	defer func() { _ = sseResp.Body.Close() }()
	sseCh := sseValues(t, sseResp)

	sseResp2, err := http.Get(testServer.URL + "/sse")
	if err != nil {
		t.Fatalf("open second sse: %v", err)
	}
	defer func() { _ = sseResp2.Body.Close() }()
	sseCh2 := sseValues(t, sseResp2)

	wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
	wsCh := wsValues(ctx, t, conn)

	// Wait until all three are registered before incrementing.
	regDeadline := time.Now().Add(5 * time.Second)
	for testRegistry.Len() < 3 {
		if time.Now().After(regDeadline) {
			t.Fatalf("timed out waiting for 3 subscribers, have %d", testRegistry.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}

	want := increment(t)

	awaitValue(t, "sse-1", sseCh, want)
	awaitValue(t, "sse-2", sseCh2, want)
	awaitValue(t, "ws", wsCh, want)
}

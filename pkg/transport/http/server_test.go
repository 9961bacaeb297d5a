package http

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestServerServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := NewServer(&echoCreator{}, WithShutdownTimeout(2*time.Second))

	done := make(chan error, 1)
	go func() {
		done <- srv.ServeOn(ln)
	}()

	// Give the server a moment to start accepting.
	base := "http://" + ln.Addr().String()
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Post(base+"/v1/query", "application/json",
			strings.NewReader(`{"query": "ping"}`))
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, body: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "resp_test1") {
		t.Errorf("body = %s", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Error("server did not stop after shutdown")
	}
}

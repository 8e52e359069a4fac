package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tenzoki/wampcore/internal/serializer"
)

func TestAcceptDialRoundTrip(t *testing.T) {
	var serverTr *Transport
	done := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		tr, name, err := Accept(w, r)
		if err != nil {
			t.Errorf("Accept: %v", err)
			close(done)
			return
		}
		if name != serializer.NameJSON {
			t.Errorf("negotiated codec = %s, want json", name)
		}
		serverTr = tr
		close(done)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):] + "/ws"
	clientTr, err := Dial(context.Background(), wsURL, serializer.NameJSON)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	<-done
	if serverTr == nil {
		t.Fatal("server never accepted")
	}

	want := []byte(`[1,"realm1",{}]`)
	errc := make(chan error, 1)
	go func() { errc <- clientTr.Write(context.Background(), want) }()

	got, err := serverTr.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Write: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q want %q", got, want)
	}

	// Both sides must keep pumping Read: serverTr to process the inbound
	// PING and trigger gorilla's automatic PONG reply, clientTr so that
	// reply reaches the pong handler that resolves the pending Ping.
	go func() {
		for {
			if _, err := serverTr.Read(context.Background()); err != nil {
				return
			}
		}
	}()
	go func() {
		for {
			if _, err := clientTr.Read(context.Background()); err != nil {
				return
			}
		}
	}()

	latency, err := clientTr.Ping(context.Background(), time.Second, []byte("ping-payload"))
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if latency <= 0 {
		t.Fatalf("expected positive round-trip latency, got %s", latency)
	}

	clientTr.Close()
	serverTr.Close()
	if clientTr.IsConnected() || serverTr.IsConnected() {
		t.Fatal("expected both sides disconnected after close")
	}
}

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tcgvault/messaging/internal/auth"
	"github.com/tcgvault/messaging/internal/messaging"
	"github.com/tcgvault/messaging/internal/realtime"
)

func newRealtimeServer(t *testing.T) (*httptest.Server, *realtime.Hub, *auth.Authenticator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := realtime.NewHub()
	authenticator := auth.NewAuthenticator(testSecret, "", time.Hour)
	srv := httptest.NewServer(NewServer(&MockMessenger{}, authenticator, testCORS, WithHub(hub)).Handler())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, hub, authenticator
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime" + query
}

func TestRealtimeSubscription(t *testing.T) {
	srv, hub, authenticator := newRealtimeServer(t)

	token, err := authenticator.GenerateToken(recipientID, "")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	header := http.Header{}
	header.Set("Origin", "http://localhost:3000")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?access_token="+token), header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer func() {
		_ = ws.Close()
	}()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Connections(recipientID) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Connections(recipientID) != 1 {
		t.Fatalf("expected subscriber to be registered")
	}

	if err := hub.MessageCreated(context.Background(), messaging.Event{ConversationID: conversationA, RecipientID: recipientID}); err != nil {
		t.Fatalf("MessageCreated failed: %v", err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(payload), realtime.EventMessageCreated) {
		t.Errorf("unexpected frame %s", payload)
	}
}

func TestRealtimeRejectsBadRequests(t *testing.T) {
	srv, _, authenticator := newRealtimeServer(t)

	token, err := authenticator.GenerateToken(recipientID, "")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	tests := []struct {
		name   string
		query  string
		origin string
		status int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"bad token", "?access_token=nope", "", http.StatusUnauthorized},
		{"foreign origin", "?access_token=" + token, "https://evil.example", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, tt.query), header)
			if err == nil {
				t.Fatal("expected handshake to fail")
			}
			if resp == nil || resp.StatusCode != tt.status {
				t.Errorf("expected status %d, got %v", tt.status, resp)
			}
		})
	}
}

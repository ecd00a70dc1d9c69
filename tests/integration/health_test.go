package integration

import (
	"io"
	"net/http"
	"testing"

	"github.com/tcgvault/messaging/tests/testutil"
)

func TestHealth(t *testing.T) {
	addr := testutil.ServerAddr(t)
	t.Log("addr:", addr)

	resp, err := http.Get(addr + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "OK" {
		t.Errorf("expected OK, got %q", body)
	}
}

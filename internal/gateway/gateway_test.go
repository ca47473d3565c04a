package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckOrigin_WildcardAllowsAny(t *testing.T) {
	gw := &Gateway{cfg: Config{CORSOrigin: "*"}}
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	if !gw.checkOrigin(req) {
		t.Fatalf("expected wildcard CORS origin to allow any origin")
	}
}

func TestCheckOrigin_AllowsConfiguredOriginOnly(t *testing.T) {
	gw := &Gateway{cfg: Config{CORSOrigin: "https://app.example.com,https://admin.example.com"}}

	allowed := httptest.NewRequest(http.MethodGet, "/ws", nil)
	allowed.Header.Set("Origin", "https://admin.example.com")
	if !gw.checkOrigin(allowed) {
		t.Fatalf("expected configured origin to be allowed")
	}

	denied := httptest.NewRequest(http.MethodGet, "/ws", nil)
	denied.Header.Set("Origin", "https://evil.example")
	if gw.checkOrigin(denied) {
		t.Fatalf("expected unconfigured origin to be denied")
	}
}

func TestConnection_DuplicateIdempotencyKey(t *testing.T) {
	c := &connection{idemID: make(map[string]string)}

	if _, dup := c.duplicateIdempotencyKey("", "m1"); dup {
		t.Fatalf("empty key should never be treated as duplicate")
	}

	if _, dup := c.duplicateIdempotencyKey("k1", "m1"); dup {
		t.Fatalf("first sight of a key should not be a duplicate")
	}
	originalID, dup := c.duplicateIdempotencyKey("k1", "m2")
	if !dup {
		t.Fatalf("second sight of the same key should be a duplicate")
	}
	if originalID != "m1" {
		t.Fatalf("expected original frame id m1, got %s", originalID)
	}
}

func TestFrame_CloseCodesMatchSpec(t *testing.T) {
	if CloseNormal != 1000 {
		t.Fatalf("expected normal close code 1000")
	}
	if CloseServerOverloaded != 1013 {
		t.Fatalf("expected overloaded close code 1013")
	}
	if CloseUnexpectedError != 1011 {
		t.Fatalf("expected unexpected error close code 1011")
	}
}

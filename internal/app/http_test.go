package app

import (
	"net/http"
	"reflect"
	"testing"
	"time"
)

func TestNewHTTPClient_Config(t *testing.T) {
	c := newHTTPClient(30 * time.Second)
	if c.Timeout <= 30*time.Second {
		t.Fatalf("client timeout must exceed the per-request timeout, got %s", c.Timeout)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected http.Transport")
	}
	if tr.MaxIdleConnsPerHost < 2 {
		t.Fatalf("expected pooled connections per host, got %d", tr.MaxIdleConnsPerHost)
	}
	// Ensure we didn't return the default client's transport
	if reflect.ValueOf(http.DefaultTransport).Pointer() == reflect.ValueOf(tr).Pointer() {
		t.Fatalf("transport should not be default")
	}

	if d := newHTTPClient(0); d.Timeout <= defaultTimeout {
		t.Fatalf("zero timeout should fall back to the default, got %s", d.Timeout)
	}
}

package openrouter

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHeaderTransportSetsAttributionHeaders(t *testing.T) {
	t.Parallel()

	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := &Config{SiteURL: "https://clinic.example", SiteName: "Clinic"}
	client := &http.Client{Transport: headerTransport{headers: cfg.headers(), base: http.DefaultTransport}}

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = resp.Body.Close()

	if got.Get("HTTP-Referer") != "https://clinic.example" || got.Get("X-Title") != "Clinic" {
		t.Fatalf("unexpected headers: %v", got)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Parallel()

	if NewClient(ClientConfig{}) != nil {
		t.Fatal("expected nil client without api key")
	}
	if NewClient(ClientConfig{APIKey: "k", BaseURL: "https://api.openai.com/v1/"}) == nil {
		t.Fatal("expected client")
	}
}

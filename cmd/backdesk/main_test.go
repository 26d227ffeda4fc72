package main

import "testing"

func TestStreamURL(t *testing.T) {
	cases := []struct {
		base, path, want string
	}{
		{"http://127.0.0.1:8000/api", "/notifications/stream/", "ws://127.0.0.1:8000/api/notifications/stream/"},
		{"https://example.com/api/", "/notifications/stream/", "wss://example.com/api/notifications/stream/"},
		{"https://example.com/api", "notifications/stream/", "wss://example.com/api/notifications/stream/"},
	}
	for _, c := range cases {
		if got := streamURL(c.base, c.path); got != c.want {
			t.Errorf("streamURL(%q, %q) = %q, want %q", c.base, c.path, got, c.want)
		}
	}
}

func TestWebBaseURL(t *testing.T) {
	cases := []struct {
		base, want string
	}{
		{"http://127.0.0.1:8000/api", "http://127.0.0.1:8000"},
		{"https://example.com/api/", "https://example.com"},
		{"https://example.com", "https://example.com"},
	}
	for _, c := range cases {
		if got := webBaseURL(c.base); got != c.want {
			t.Errorf("webBaseURL(%q) = %q, want %q", c.base, got, c.want)
		}
	}
}

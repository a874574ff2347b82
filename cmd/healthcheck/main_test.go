package main

import "testing"

func TestHealthURL(t *testing.T) {
	tests := []struct {
		addr, want string
	}{
		{"", "http://localhost:8080/healthz"},
		{":8080", "http://localhost:8080/healthz"},
		{":9000", "http://localhost:9000/healthz"},
		{"0.0.0.0:9000", "http://localhost:9000/healthz"},
		{"127.0.0.1:7000", "http://127.0.0.1:7000/healthz"},
		{"[::]:7000", "http://localhost:7000/healthz"},
	}
	for _, tt := range tests {
		if got := healthURL(tt.addr); got != tt.want {
			t.Errorf("healthURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

package geo

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name        string
		forwarded   string
		remoteAddr  string
		frameworkIP string
		want        string
	}{
		{
			name:       "first forwarded entry wins",
			forwarded:  "203.0.113.5, 10.0.0.1",
			remoteAddr: "192.0.2.9:4711",
			want:       "203.0.113.5",
		},
		{
			name:       "forwarded entries are trimmed",
			forwarded:  "  198.51.100.7 ,10.0.0.1",
			remoteAddr: "192.0.2.9:4711",
			want:       "198.51.100.7",
		},
		{
			name:       "falls back to remote address without port",
			remoteAddr: "192.0.2.9:4711",
			want:       "192.0.2.9",
		},
		{
			name:       "remote address without port kept verbatim",
			remoteAddr: "192.0.2.9",
			want:       "192.0.2.9",
		},
		{
			name:        "falls back to framework ip",
			frameworkIP: "198.51.100.20",
			want:        "198.51.100.20",
		},
		{
			name: "empty when nothing known",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.forwarded != "" {
				header.Set("X-Forwarded-For", tt.forwarded)
			}
			got := ClientIP(header, tt.remoteAddr, tt.frameworkIP)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeIP(t *testing.T) {
	assert.Equal(t, "127.0.0.1", NormalizeIP("::1"))
	assert.Equal(t, "203.0.113.5", NormalizeIP("::ffff:203.0.113.5"))
	assert.Equal(t, "198.51.100.7", NormalizeIP("198.51.100.7"))
	assert.Equal(t, "2001:db8::2", NormalizeIP("2001:db8::2"))
}

func TestResolverUsesNormalizedIP(t *testing.T) {
	resolver := NewResolver(Nop{})

	req := httptest.NewRequest(http.MethodPost, "/api/log", nil)
	req.Header.Set("X-Forwarded-For", "::ffff:198.51.100.7")
	req.RemoteAddr = "10.0.0.1:9000"

	client := resolver.Resolve(req)
	assert.Equal(t, "198.51.100.7", client.IP)
	assert.Nil(t, client.Country)
	assert.Nil(t, client.City)
}

func TestResolverLoopback(t *testing.T) {
	resolver := NewResolver(Nop{})

	req := httptest.NewRequest(http.MethodPost, "/api/log", nil)
	req.RemoteAddr = "[::1]:52100"

	client := resolver.Resolve(req)
	assert.Equal(t, "127.0.0.1", client.IP)
}

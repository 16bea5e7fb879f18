package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gatehouse-auth/gatehouse/internal/testutil"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		trustProxy bool
		want       string
	}{
		{"DirectConnection", "198.51.100.7:4312", "", "", false, "198.51.100.7"},
		{"SpoofedXFFIgnored", "198.51.100.7:4312", "203.0.113.9", "", false, "198.51.100.7"},
		{"TrustedXFF", "10.0.0.1:4312", "203.0.113.9", "", true, "203.0.113.9"},
		{"TrustedXFFChain", "10.0.0.1:4312", "203.0.113.9, 10.0.0.2, 10.0.0.1", "", true, "203.0.113.9"},
		{"TrustedXRealIP", "10.0.0.1:4312", "", "203.0.113.9", true, "203.0.113.9"},
		{"XFFWinsOverXRealIP", "10.0.0.1:4312", "203.0.113.9", "192.0.2.1", true, "203.0.113.9"},
		{"MalformedXFFFallsThrough", "10.0.0.1:4312", "not-an-ip", "", true, "10.0.0.1"},
		{"IPv6Direct", "[2001:db8::1]:4312", "", "", false, "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}

			testutil.AssertEqual(t, GetClientIP(r, tt.trustProxy), tt.want)
		})
	}
}

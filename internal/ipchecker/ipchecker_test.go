package ipchecker

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	checker, err := New("")
	require.NoError(t, err)
	assert.True(t, checker.IsTrustedSubnetEmpty())

	_, err = New("not-a-cidr")
	assert.Error(t, err)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name          string
		trustedSubnet string
		remoteAddr    string
		headers       map[string]string
		want          string
	}{
		{
			name:       "no proxy trusted ignores headers",
			remoteAddr: "198.51.100.4:5555",
			headers:    map[string]string{"X-Real-IP": "10.0.0.1"},
			want:       "198.51.100.4",
		},
		{
			name:          "untrusted peer ignores headers",
			trustedSubnet: "10.0.0.0/8",
			remoteAddr:    "198.51.100.4:5555",
			headers:       map[string]string{"X-Forwarded-For": "203.0.113.9"},
			want:          "198.51.100.4",
		},
		{
			name:          "trusted peer uses X-Real-IP",
			trustedSubnet: "10.0.0.0/8",
			remoteAddr:    "10.1.2.3:5555",
			headers:       map[string]string{"X-Real-IP": "203.0.113.9", "X-Forwarded-For": "192.0.2.1"},
			want:          "203.0.113.9",
		},
		{
			name:          "trusted peer falls back to first X-Forwarded-For entry",
			trustedSubnet: "10.0.0.0/8",
			remoteAddr:    "10.1.2.3:5555",
			headers:       map[string]string{"X-Forwarded-For": " 192.0.2.1 , 10.1.2.3"},
			want:          "192.0.2.1",
		},
		{
			name:          "trusted peer without headers",
			trustedSubnet: "10.0.0.0/8",
			remoteAddr:    "10.1.2.3:5555",
			want:          "10.1.2.3",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			checker, err := New(test.trustedSubnet)
			require.NoError(t, err)

			request := httptest.NewRequest("POST", "/login", nil)
			request.RemoteAddr = test.remoteAddr
			for key, value := range test.headers {
				request.Header.Set(key, value)
			}

			ip, err := checker.GetClientIP(request)
			require.NoError(t, err)
			assert.Equal(t, test.want, ip.String())
		})
	}
}

func TestGetClientIPRejectsGarbageRemoteAddr(t *testing.T) {
	checker, err := New("")
	require.NoError(t, err)

	request := httptest.NewRequest("GET", "/", nil)
	request.RemoteAddr = "garbage"

	_, err = checker.GetClientIP(request)
	assert.Error(t, err)
}

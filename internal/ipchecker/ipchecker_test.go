package ipchecker

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	_, err := New("not a cidr")
	assert.Error(t, err)

	checker, err := New("")
	require.NoError(t, err)
	assert.True(t, checker.Allows(net.ParseIP("8.8.8.8")))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "x-real-ip", headers: map[string]string{"X-Real-IP": "10.0.0.7"}, remote: "1.1.1.1:80", want: "10.0.0.7"},
		{name: "x-forwarded-for", headers: map[string]string{"X-Forwarded-For": "10.0.0.8, 172.16.0.1"}, remote: "1.1.1.1:80", want: "10.0.0.8"},
		{name: "remote addr", remote: "192.168.1.5:5555", want: "192.168.1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodPost, "/", nil)
			request.RemoteAddr = tt.remote
			for key, value := range tt.headers {
				request.Header.Set(key, value)
			}
			ip, err := ClientIP(request)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ip.String())
		})
	}
}

func TestRestrict(t *testing.T) {
	checker, err := New("10.0.0.0/24")
	require.NoError(t, err)
	handler := checker.Restrict(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		ip   string
		want int
	}{
		{ip: "10.0.0.42", want: http.StatusOK},
		{ip: "10.0.1.42", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		request := httptest.NewRequest(http.MethodPost, "/webhooks/plaid", nil)
		request.Header.Set("X-Real-IP", tt.ip)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		assert.Equal(t, tt.want, recorder.Code, tt.ip)
	}
}

package restclient

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/jjbank/internal/apperr"
)

func TestCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/plaid":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error_code":"INVALID_PUBLIC_TOKEN","error_message":"provided public token is expired"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"User (role: guests) missing scope (account)","code":401}`))
		}
	}))
	defer srv.Close()

	client := New(Options{Service: "test", BaseURL: srv.URL})

	resp, err := client.R().Get("/ok")
	assert.NoError(t, Check("test", "ok", resp, err))

	resp, err = client.R().Get("/plaid")
	err = Check("plaid", "exchange", resp, err)
	var external *apperr.ExternalServiceError
	require.True(t, errors.As(err, &external))
	assert.Equal(t, http.StatusBadRequest, external.StatusCode)
	assert.Equal(t, "provided public token is expired", external.Message)

	resp, err = client.R().Get("/account")
	err = Check("appwrite", "get account", resp, err)
	require.True(t, errors.As(err, &external))
	assert.Equal(t, http.StatusUnauthorized, external.StatusCode)
	assert.Contains(t, external.Message, "missing scope")

	err = Check("x", "y", nil, errors.New("dial tcp: refused"))
	require.True(t, errors.As(err, &external))
	assert.Equal(t, 0, external.StatusCode)
}

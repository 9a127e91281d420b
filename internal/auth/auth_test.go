package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/patric-chuzhbe/jjbank/internal/models"
)

type fakeResolver struct {
	calls  int
	caller models.Caller
}

func (f *fakeResolver) CurrentUser(context.Context, *http.Request) models.Caller {
	f.calls++
	return f.caller
}

func TestResolveCaller(t *testing.T) {
	tests := []struct {
		name     string
		caller   models.Caller
		wantUser *models.User
	}{
		{
			name:     "authenticated",
			caller:   models.Authenticated{User: &models.User{ID: "u1"}},
			wantUser: &models.User{ID: "u1"},
		},
		{
			name:     "anonymous",
			caller:   models.Anonymous{Reason: errors.New("no cookie")},
			wantUser: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{caller: tt.caller}
			var seen *models.User
			handler := New(resolver).ResolveCaller(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = UserFrom(r.Context())
				w.WriteHeader(http.StatusNoContent)
			}))

			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, http.StatusNoContent, recorder.Code)
			assert.Equal(t, tt.wantUser, seen)
			assert.Equal(t, 1, resolver.calls)
		})
	}
}

func TestResolveCallerOncePerRequest(t *testing.T) {
	resolver := &fakeResolver{caller: models.Authenticated{User: &models.User{ID: "u1"}}}
	a := New(resolver)
	handler := a.ResolveCaller(a.ResolveCaller(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, 1, resolver.calls)
}

func TestCallerFromEmptyContext(t *testing.T) {
	assert.Equal(t, models.Anonymous{}, CallerFrom(context.Background()))
	assert.Nil(t, UserFrom(context.Background()))
}

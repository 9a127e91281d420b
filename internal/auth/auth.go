// Package auth resolves the caller of every HTTP request once and keeps the
// result in the request context, so handlers never talk to the identity
// provider themselves.
package auth

import (
	"context"
	"net/http"

	"github.com/patric-chuzhbe/jjbank/internal/logger"
	"github.com/patric-chuzhbe/jjbank/internal/models"
)

type callerResolver interface {
	CurrentUser(ctx context.Context, r *http.Request) models.Caller
}

// Auth is the caller-resolving middleware.
type Auth struct {
	users callerResolver
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// CallerKey is the context key the resolved models.Caller is stored under.
const CallerKey ContextKey = "caller"

// New creates the middleware on top of the user directory.
func New(users callerResolver) *Auth {
	return &Auth{users: users}
}

// ResolveCaller is an HTTP middleware that resolves the session cookie into a
// models.Caller and stores it in the request context. It never rejects a
// request: anonymous callers go through and handlers decide what to render.
func (a *Auth) ResolveCaller(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		if _, ok := request.Context().Value(CallerKey).(models.Caller); ok {
			h.ServeHTTP(response, request)

			return
		}

		caller := a.users.CurrentUser(request.Context(), request)
		if anonymous, ok := caller.(models.Anonymous); ok && anonymous.Reason != nil {
			logger.Log.Debugw("anonymous caller", "uri", request.RequestURI, "reason", anonymous.Reason)
		}

		h.ServeHTTP(response, request.WithContext(WithCaller(request.Context(), caller)))
	}

	return http.HandlerFunc(middleware)
}

// WithCaller returns a copy of ctx carrying caller.
func WithCaller(ctx context.Context, caller models.Caller) context.Context {
	return context.WithValue(ctx, CallerKey, caller)
}

// CallerFrom returns the caller stored by ResolveCaller. A context without one
// yields an Anonymous caller.
func CallerFrom(ctx context.Context) models.Caller {
	caller, ok := ctx.Value(CallerKey).(models.Caller)
	if !ok || caller == nil {
		return models.Anonymous{}
	}

	return caller
}

// UserFrom is a shortcut for models.UserOf(CallerFrom(ctx)).
func UserFrom(ctx context.Context) *models.User {
	return models.UserOf(CallerFrom(ctx))
}

package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextWithLogger(t *testing.T) {
	ctx, rlog := ContextWithLogger(context.Background())
	require.NotNil(t, rlog)
	id := RequestIDFromContext(ctx)
	assert.NotEmpty(t, id)

	// a second call keeps the existing logger
	ctx2, rlog2 := ContextWithLogger(ctx)
	assert.Equal(t, rlog, rlog2)
	assert.Equal(t, id, RequestIDFromContext(ctx2))

	ctx3, _ := ContextWithLoggerIdentity(ctx, "me@example.com")
	assert.Equal(t, "me@example.com", IdentityFromContext(ctx3))
	assert.Equal(t, id, RequestIDFromContext(ctx3))

	assert.Empty(t, RequestIDFromContext(context.Background()))
	assert.NotNil(t, FromContext(context.Background()))
	assert.Equal(t, "serializer", Component(ctx, "serializer").Data["component"])
}

func TestAddRequestID(t *testing.T) {
	router := mux.NewRouter()
	AddRequestID(router)

	var seen string
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "abc-123", seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

package metadata_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"warden/pkg/platform/middleware/metadata"
	"warden/pkg/requestcontext"
)

func TestRequestMetadata(t *testing.T) {
	var gotID, gotIP string
	h := metadata.RequestMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = requestcontext.RequestID(r.Context())
		gotIP = metadata.GetClientIP(r.Context())
	}))

	t.Run("honors caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(metadata.HeaderRequestID, "trace-123")
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "trace-123", gotID)
		assert.Equal(t, "trace-123", rec.Header().Get(metadata.HeaderRequestID))
		assert.Equal(t, "203.0.113.7", gotIP)
	})

	t.Run("generates an id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.2:5555"
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.NotEmpty(t, gotID)
		assert.NotEqual(t, "trace-123", gotID)
		assert.Equal(t, "198.51.100.2", gotIP)
	})
}

package httputil

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.7:52311"
	assert.Equal(t, "10.0.0.7", ClientIP(r))

	r.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", ClientIP(r))

	// The forwarded chain wins and only the first hop counts.
	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.7")
	assert.Equal(t, "198.51.100.1", ClientIP(r))
}

func TestAppTypeAndLang(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "", AppType(r))
	assert.Equal(t, "fr", Lang(r))

	r.Header.Set("X-App-Type", "mobile")
	r.Header.Set("X-Lang", "en")
	assert.Equal(t, "mobile", AppType(r))
	assert.Equal(t, "en", Lang(r))
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "", BearerToken(r))

	r.Header.Set("Authorization", "Bearer abc.def.ghi")
	assert.Equal(t, "abc.def.ghi", BearerToken(r))

	r.Header.Set("Authorization", "bearer abc.def.ghi")
	assert.Equal(t, "abc.def.ghi", BearerToken(r))

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Equal(t, "", BearerToken(r))

	r.Header.Set("Authorization", "Bearer")
	assert.Equal(t, "", BearerToken(r))
}

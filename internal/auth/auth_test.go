package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/millflow/millflow/internal/config"
)

func newContext(t *testing.T, headers map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestMiddleware_HeaderMode(t *testing.T) {
	c, _ := newContext(t, map[string]string{
		HeaderUserID:   "u-1",
		HeaderUserName: "priya",
		HeaderUserRole: "admin",
	})

	mw := Middleware(config.Config{Auth: config.Auth{Mode: "header"}})
	err := mw(func(c echo.Context) error {
		id, ok := FromContext(c)
		require.True(t, ok)
		assert.Equal(t, "u-1", id.ID)
		assert.Equal(t, "priya", id.Username)
		assert.Equal(t, "admin", id.Role)
		return nil
	})(c)
	require.NoError(t, err)
}

func TestMiddleware_MissingUserIDStaysAnonymous(t *testing.T) {
	c, _ := newContext(t, map[string]string{HeaderUserName: "priya"})

	mw := Middleware(config.Config{Auth: config.Auth{Mode: "header"}})
	err := mw(func(c echo.Context) error {
		_, ok := FromContext(c)
		assert.False(t, ok)
		return nil
	})(c)
	require.NoError(t, err)
}

func TestMiddleware_NoneModeIgnoresHeaders(t *testing.T) {
	c, _ := newContext(t, map[string]string{HeaderUserID: "u-1"})

	mw := Middleware(config.Config{Auth: config.Auth{Mode: "none"}})
	err := mw(func(c echo.Context) error {
		_, ok := FromContext(c)
		assert.False(t, ok)
		return nil
	})(c)
	require.NoError(t, err)
}

func TestRequireIdentity(t *testing.T) {
	c, rec := newContext(t, nil)

	called := false
	err := RequireIdentity()(func(c echo.Context) error {
		called = true
		return nil
	})(c)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, _ = newContext(t, map[string]string{HeaderUserID: "u-1"})
	mw := Middleware(config.Config{Auth: config.Auth{Mode: "header"}})
	err = mw(RequireIdentity()(func(c echo.Context) error {
		called = true
		return nil
	}))(c)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestRequestID(t *testing.T) {
	c, rec := newContext(t, nil)
	err := RequestID()(func(c echo.Context) error { return nil })(c)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	c, rec = newContext(t, map[string]string{HeaderRequestID: "req-42"})
	err = RequestID()(func(c echo.Context) error { return nil })(c)
	require.NoError(t, err)
	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))
}

func TestCallerFrom(t *testing.T) {
	c, _ := newContext(t, map[string]string{
		HeaderUserID:   "u-1",
		HeaderUserName: "priya",
		HeaderUserRole: "admin",
		"User-Agent":   "millflow-test/1.0",
	})

	mw := Middleware(config.Config{Auth: config.Auth{Mode: "header"}})
	err := mw(func(c echo.Context) error {
		caller := CallerFrom(c)
		assert.Equal(t, "u-1", caller.UserID)
		assert.Equal(t, "priya", caller.Username)
		assert.Equal(t, "admin", caller.Role)
		assert.Equal(t, "millflow-test/1.0", caller.UserAgent)
		assert.NotEmpty(t, caller.IP)
		return nil
	})(c)
	require.NoError(t, err)
}

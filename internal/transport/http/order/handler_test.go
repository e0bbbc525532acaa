package order

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newQueryContext(t *testing.T, rawQuery string) echo.Context {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/orders?"+rawQuery, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestQueryLimit_CapsPageSize(t *testing.T) {
	assert.Equal(t, 20, queryLimit(newQueryContext(t, ""), 20))
	assert.Equal(t, 25, queryLimit(newQueryContext(t, "limit=25"), 20))
	assert.Equal(t, maxListLimit, queryLimit(newQueryContext(t, "limit=100"), 20))

	// Oversized and nonsense values never reach the repository.
	assert.Equal(t, maxListLimit, queryLimit(newQueryContext(t, "limit=1000000"), 20))
	assert.Equal(t, 20, queryLimit(newQueryContext(t, "limit=0"), 20))
	assert.Equal(t, 20, queryLimit(newQueryContext(t, "limit=abc"), 20))
}

package registry

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
	req := httptest.NewRequest(http.MethodGet, "/parties?"+rawQuery, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestPageParams_CapsLimit(t *testing.T) {
	page, limit := pageParams(newQueryContext(t, ""))
	assert.Equal(t, 1, page)
	assert.Equal(t, 50, limit)

	page, limit = pageParams(newQueryContext(t, "page=3&limit=10"))
	assert.Equal(t, 3, page)
	assert.Equal(t, 10, limit)

	_, limit = pageParams(newQueryContext(t, "limit=1000000"))
	assert.Equal(t, maxListLimit, limit)
}

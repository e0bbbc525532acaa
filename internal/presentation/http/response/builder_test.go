package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/millflow/millflow/pkg/errorbank"
)

func newContext(t *testing.T) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestBuilder_Success(t *testing.T) {
	c, rec := newContext(t)

	err := New(c).
		WithStatus(http.StatusCreated).
		WithData(map[string]any{"id": 1}).
		WithMeta("pagination", map[string]any{"currentPage": 1}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
		Meta    map[string]any `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.EqualValues(t, 1, body.Data["id"])
	assert.Contains(t, body.Meta, "pagination")
}

func TestBuilder_Error(t *testing.T) {
	c, rec := newContext(t)

	err := New(c).WithError(errorbank.Conflict("chalan number CH-1 already exists for this order")).Build()
	require.NoError(t, err)

	assert.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, string(errorbank.KindConflict), body.Error.Kind)
	assert.Equal(t, "chalan number CH-1 already exists for this order", body.Error.Message)
}

func TestBuilder_ErrorWrapsUnknown(t *testing.T) {
	c, rec := newContext(t)

	err := New(c).WithError(assert.AnError).Build()
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

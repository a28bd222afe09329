package health

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/logs"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/models"
)

func serve(r *mux.Router, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestLiveness(t *testing.T) {
	r := mux.NewRouter()
	RegisterRoutes(r)
	rr := serve(r, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok\n", rr.Body.String())

	assert.Equal(t, http.StatusNotFound, serve(r, "/readyz").Code)
}

func TestReadiness(t *testing.T) {
	logs.Logger.SetOutput(&bytes.Buffer{})

	ok := Check{Name: "registry", Fn: func(context.Context) error { return nil }}
	bad := Check{Name: "wireguard", Fn: func(context.Context) error { return errors.New("wg0: no such device") }}

	r := mux.NewRouter()
	RegisterRoutesWithChecks(r, ok)
	rr := serve(r, "/readyz")
	assert.Equal(t, http.StatusOK, rr.Code)

	r = mux.NewRouter()
	RegisterRoutesWithChecks(r, ok, bad)
	rr = serve(r, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var body struct {
		Checks []models.CheckResult `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, []models.CheckResult{
		{Name: "registry", OK: true},
		{Name: "wireguard", OK: false, Error: "wg0: no such device"},
	}, body.Checks)
}

func TestRunPassesDeadline(t *testing.T) {
	var hasDeadline bool
	r := mux.NewRouter()
	RegisterRoutesWithChecks(r, Check{Name: "x", Fn: func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}})
	serve(r, "/readyz")
	assert.True(t, hasDeadline)
}

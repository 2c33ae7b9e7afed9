package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	config "github.com/NordCoder/pingwatch/internal/config/scheduler"
	"github.com/NordCoder/pingwatch/internal/domain/service"
)

type fakeReader map[uuid.UUID]service.Service

func (f fakeReader) GetByID(_ context.Context, id uuid.UUID) (*service.Service, error) {
	if id == uuid.Nil {
		return nil, errors.New("boom")
	}
	s, ok := f[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	return &s, nil
}

func adminServer(t *testing.T, reader service.Reader) (*httptest.Server, *fakeRepo) {
	t.Helper()
	now := time.Now().UTC()
	repo := newFakeRepo(activeService("a"), activeService("b"))
	uc := NewUC(repo, okProber(now), fixedClock{now}, zap.NewNop(), Options{})
	r := New(zap.NewNop(), uc, &config.SchedCfg{Tick: time.Minute}, prometheus.NewRegistry())

	mux := runtime.NewServeMux()
	require.NoError(t, RegisterAdminRoutes(mux, r, reader))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, repo
}

func TestAdmin_CycleEndpoints(t *testing.T) {
	srv, repo := adminServer(t, fakeReader{})

	resp, err := http.Get(srv.URL + "/v1/cycles/last")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/v1/cycles", "application/json", nil)
	require.NoError(t, err)
	var triggered CycleSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&triggered))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, triggered.Due)
	assert.Equal(t, 2, triggered.Succeeded)
	assert.Len(t, repo.saved, 2)

	resp, err = http.Get(srv.URL + "/v1/cycles/last")
	require.NoError(t, err)
	var last CycleSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&last))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, triggered.ID, last.ID)
}

func TestAdmin_GetService(t *testing.T) {
	svc := activeService("api")
	svc.TotalProbes, svc.SuccessfulProbes = 4, 3
	srv, _ := adminServer(t, fakeReader{svc.ID: svc})

	resp, err := http.Get(srv.URL + "/v1/services/" + svc.ID.String())
	require.NoError(t, err)
	var body struct {
		ID          uuid.UUID `json:"id"`
		UptimeRatio float64   `json:"uptime_ratio"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, svc.ID, body.ID)
	assert.InDelta(t, 0.75, body.UptimeRatio, 1e-9)

	cases := map[string]int{
		"/v1/services/" + uuid.NewString():  http.StatusNotFound,
		"/v1/services/not-a-uuid":           http.StatusBadRequest,
		"/v1/services/" + uuid.Nil.String(): http.StatusInternalServerError,
	}
	for path, want := range cases {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, path)
	}
}

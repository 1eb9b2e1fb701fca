package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/yourusername/furlong/internal/logger"
	"github.com/yourusername/furlong/internal/models"
	"github.com/yourusername/furlong/internal/registry"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func setup(t *testing.T, db DatabasePinger) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(nil, nil, logger.Discard())
	s := NewServer(Config{
		ServiceName:    "furlong-test",
		Segments:       []models.Segment{"turf", "dirt"},
		Champions:      reg,
		DB:             db,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		Logger:         logger.Discard(),
	})
	return s, reg
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestReadyRequiresChampionPerSegment(t *testing.T) {
	s, reg := setup(t, pinger{})
	s.SetReady(true)
	router := s.Router()

	rec, body := get(t, router, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "missing", checks["champion:turf"])
	assert.Equal(t, "ok", checks["database"])

	for _, seg := range []models.Segment{"turf", "dirt"} {
		_, err := reg.Publish(context.Background(), &models.ModelArtifact{ID: uuid.New(), Segment: seg})
		require.NoError(t, err)
	}
	rec, body = get(t, router, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestReadyReportsDatabaseAndServiceState(t *testing.T) {
	s, _ := setup(t, pinger{err: errors.New("connection refused")})
	rec, body := get(t, s.Router(), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "not_ready", checks["service"])
	assert.Contains(t, checks["database"], "connection refused")
}

func TestLivenessAndMetrics(t *testing.T) {
	s, _ := setup(t, nil)
	router := s.Router()

	rec, body := get(t, router, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "furlong-test", body["service"])

	rec, _ = get(t, router, "/live")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = get(t, router, "/metrics")
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestChampionsEndpoint(t *testing.T) {
	s, reg := setup(t, nil)
	_, err := reg.Publish(context.Background(), &models.ModelArtifact{ID: uuid.New(), Segment: "turf"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/champions", nil))
	var rows []ChampionStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].Version)
	assert.NotNil(t, rows[0].PromotedAt)
	assert.Empty(t, rows[1].ArtifactID)
}

func TestGRPCServingStatus(t *testing.T) {
	s, reg := setup(t, nil)
	s.SetReady(true)
	ctx := context.Background()

	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: "turf"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	_, err = reg.Publish(ctx, &models.ModelArtifact{ID: uuid.New(), Segment: "turf"})
	require.NoError(t, err)
	s.RefreshChampions()

	resp, err = s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: "turf"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	resp, err = s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ""})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status, "dirt has no champion")
}

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/aqicast/internal/modules/readings"
	testingpkg "github.com/aristath/aqicast/internal/testing"
)

func setupRouter(t *testing.T) (chi.Router, *readings.Repository) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	db := testingpkg.NewMemoryDB(t)
	repo := readings.NewRepository(db.Conn(), logger)
	handler := NewHandler(readings.NewService(repo, nil, logger), logger)

	router := chi.NewRouter()
	router.Route("/api", handler.RegisterRoutes)
	return router, repo
}

func TestHandleIngest(t *testing.T) {
	router, repo := setupRouter(t)

	body, _ := json.Marshal(IngestRequest{Readings: testingpkg.FlatReadings(1, 4, 35)})
	req := httptest.NewRequest("POST", "/api/readings", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Contains(t, response, "metadata")
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(4), data["stored"])

	n, err := repo.Count(req.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestHandleIngest_InvalidReading(t *testing.T) {
	router, _ := setupRouter(t)

	batch := testingpkg.FlatReadings(1, 2, 35)
	batch[1].AQI = 900
	body, _ := json.Marshal(IngestRequest{Readings: batch})

	req := httptest.NewRequest("POST", "/api/readings", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleIngest_InvalidBody(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest("POST", "/api/readings", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetRecent(t *testing.T) {
	router, repo := setupRouter(t)
	require.NoError(t, repo.InsertBatch(httptest.NewRequest("GET", "/", nil).Context(),
		testingpkg.HourlyReadings(7, testingpkg.FixtureStart, 10, 20, 30)))

	req := httptest.NewRequest("GET", "/api/readings/7?limit=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["count"])
	list := data["readings"].([]interface{})
	first := list[0].(map[string]interface{})
	assert.Equal(t, float64(20), first["aqi"])
}

func TestHandleGetRecent_BadParams(t *testing.T) {
	router, _ := setupRouter(t)

	for _, path := range []string{"/api/readings/abc", "/api/readings/0", "/api/readings/1?limit=0", "/api/readings/1?limit=x"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestHandleGetRecent_EmptyLocation(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest("GET", "/api/readings/42", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"readings":[]`)
}

func TestRegisterRoutes(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	handler := NewHandler(nil, logger)

	router := chi.NewRouter()

	// Should not panic
	assert.NotPanics(t, func() {
		handler.RegisterRoutes(router)
	}, "RegisterRoutes should not panic")
}

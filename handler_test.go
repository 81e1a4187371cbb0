package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lg/keto-go-api/internal/lookup"
	"lg/keto-go-api/internal/nutrition"
	"lg/keto-go-api/internal/report"
	"lg/keto-go-api/internal/store"
	"lg/keto-go-api/internal/tracker"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

// stubLookup answers 2 kcal and 0.1 g of each macro per gram for any food
// except "unobtainium".
type stubLookup struct{}

func (stubLookup) LookupNutrients(ctx context.Context, name string, grams float64) (lookup.Nutrients, error) {
	if name == "unobtainium" {
		return lookup.Nutrients{}, fmt.Errorf("%w: no match", lookup.ErrLookupFailure)
	}
	return lookup.Nutrients{Calories: int(2 * grams), CarbsG: grams / 10, FatG: grams / 10, ProteinG: grams / 10}, nil
}

type captureSink struct{ sent []report.Report }

func (s *captureSink) Deliver(ctx context.Context, r report.Report, destination string) error {
	s.sent = append(s.sent, r)
	return nil
}

type testServer struct {
	router *gin.Engine
	h      *Handler
	sink   *captureSink
}

// setupTestServer builds the full router on a temp SQLite database. When
// withReports is false no sink is configured.
func setupTestServer(t *testing.T, withReports bool) *testServer {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "api.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(st.Close)

	sink := &captureSink{}
	clock := func() time.Time { return testNow }
	opts := []tracker.Option{tracker.WithClock(clock)}
	if withReports {
		opts = append(opts, tracker.WithReportSink(sink))
	}
	h := &Handler{
		svc:    tracker.New(st, stubLookup{}, zap.NewNop(), opts...),
		store:  st,
		logger: zap.NewNop(),
		now:    clock,
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(h.requestLogger())
	h.registerRoutes(router)
	return &testServer{router: router, h: h, sink: sink}
}

func (s *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// registerUser signs up a user through the API and returns its token.
func (s *testServer) registerUser(t *testing.T, username string) string {
	t.Helper()
	w := s.do("POST", "/api/register", "",
		fmt.Sprintf(`{"username":%q,"email":"%s@example.com","password":"correct horse"}`, username, username))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	return decode[map[string]string](t, w)["error"]
}

/* ─── Auth ───────────────────────────────────────────────────────────── */

func TestRegisterAndLogin(t *testing.T) {
	s := setupTestServer(t, false)
	token := s.registerUser(t, "alice")

	w := s.do("POST", "/api/login", "", `{"username":"alice","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, token, decode[tokenResponse](t, w).Token)

	w = s.do("POST", "/api/login", "", `{"username":"alice","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid credentials", errorMessage(t, w))

	w = s.do("POST", "/api/login", "", `{"username":"nobody","password":"correct horse"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegister_Rejects(t *testing.T) {
	s := setupTestServer(t, false)
	s.registerUser(t, "alice")

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"duplicate username", `{"username":"alice","email":"a2@example.com","password":"longenough"}`, http.StatusConflict},
		{"bad email", `{"username":"bob","email":"nope","password":"longenough"}`, http.StatusBadRequest},
		{"short password", `{"username":"bob","email":"b@example.com","password":"short"}`, http.StatusBadRequest},
		{"missing username", `{"email":"b@example.com","password":"longenough"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do("POST", "/api/register", "", tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	s := setupTestServer(t, false)
	token := s.registerUser(t, "alice")

	assert.Equal(t, http.StatusUnauthorized, s.do("GET", "/api/profile", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do("GET", "/api/profile", "not-a-token", "").Code)
	assert.Equal(t, http.StatusOK, s.do("GET", "/api/profile", token, "").Code)
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	s := setupTestServer(t, false)
	token := s.registerUser(t, "alice")

	// Token creation time comes from the store's clock (real now).
	s.h.tokenMaxAge = time.Hour
	s.h.now = time.Now
	assert.Equal(t, http.StatusOK, s.do("GET", "/api/profile", token, "").Code)

	s.h.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	w := s.do("GET", "/api/profile", token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token expired", errorMessage(t, w))
}

/* ─── Food entries ───────────────────────────────────────────────────── */

func TestFoodEntries_CreateAndListDay(t *testing.T) {
	s := setupTestServer(t, false)
	token := s.registerUser(t, "alice")

	w := s.do("POST", "/api/food-entries", token, `{"name":"eggs","grams":150}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	e := decode[nutrition.FoodEntry](t, w)
	assert.Equal(t, "2026-10-15", e.Date.String())
	require.NotNil(t, e.Calories)
	assert.Equal(t, 300, *e.Calories)

	w = s.do("POST", "/api/food-entries", token, `{"name":"butter","grams":20}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do("GET", "/api/food-entries?ordering=name", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	day := decode[dayResponse](t, w)
	require.Len(t, day.Entries, 2)
	assert.Equal(t, "butter", day.Entries[0].Name)
	assert.Equal(t, 340, day.Aggregate.TotalKcal)
	assert.Equal(t, 17, day.Aggregate.TotalFat)
}

func TestFoodEntries_EmptyDay(t *testing.T) {
	s := setupTestServer(t, false)
	token := s.registerUser(t, "alice")

	w := s.do("GET", "/api/food-entries?date=2026-01-01", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"entries":[]`)
	assert.Equal(t, 0, decode[dayResponse](t, w).Aggregate.TotalKcal)

	w = s.do("GET", "/api/food-entries?date=01/01/2026", token, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFoodEntries_CreateErrors(t *testing.T) {
	s := setupTestServer(t, false)
	token := s.registerUser(t, "alice")

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"digits in name", `{"name":"2 eggs","grams":100}`, http.StatusBadRequest},
		{"zero grams", `{"name":"eggs","grams":0}`, http.StatusBadRequest},
		{"bad date", `{"name":"eggs","grams":10,"date":"yesterday"}`, http.StatusBadRequest},
		{"lookup failure", `{"name":"unobtainium","grams":10}`, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do("POST", "/api/food-entries", token, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}

	w := s.do("GET", "/api/daily-aggregates/2026-10-15", token, "")
	assert.Equal(t, http.StatusNotFound, w.Code, "failed creates leave no aggregate")
}

func TestFoodEntries_UpdateAndDelete(t *testing.T) {
	s := setupTestServer(t, false)
	token := s.registerUser(t, "alice")

	w := s.do("POST", "/api/food-entries", token, `{"name":"bacon","grams":100,"date":"2026-10-10"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	e := decode[nutrition.FoodEntry](t, w)
	path := fmt.Sprintf("/api/food-entries/%d", e.ID)

	w = s.do("PATCH", path, token, `{"grams":50}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 100, *decode[nutrition.FoodEntry](t, w).Calories)

	w = s.do("GET", "/api/daily-aggregates/2026-10-10", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 100, decode[nutrition.DailyAggregate](t, w).TotalKcal)

	assert.Equal(t, http.StatusBadRequest, s.do("PATCH", path, token, `{}`).Code)
	assert.Equal(t, http.StatusNoContent, s.do("DELETE", path, token, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do("GET", path, token, "").Code)

	w = s.do("GET", "/api/daily-aggregates/2026-10-10", token, "")
	require.Equal(t, http.StatusOK, w.Code, "the row persists after the last delete")
	agg := decode[nutrition.DailyAggregate](t, w)
	assert.Equal(t, nutrition.Totals{}, agg.Totals())
}

func TestFoodEntries_OtherUserIsNotFound(t *testing.T) {
	s := setupTestServer(t, false)
	alice := s.registerUser(t, "alice")
	bob := s.registerUser(t, "bob")

	w := s.do("POST", "/api/food-entries", alice, `{"name":"eggs","grams":100}`)
	require.Equal(t, http.StatusCreated, w.Code)
	path := fmt.Sprintf("/api/food-entries/%d", decode[nutrition.FoodEntry](t, w).ID)

	assert.Equal(t, http.StatusNotFound, s.do("GET", path, bob, "").Code)
	assert.Equal(t, http.StatusNotFound, s.do("DELETE", path, bob, "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/food-entries/abc", bob, "").Code)
}

func TestFoodEntries_Preview(t *testing.T) {
	s := setupTestServer(t, false)
	token := s.registerUser(t, "alice")

	w := s.do("POST", "/api/food-entries/preview", token, `{"name":"cheese","grams":30}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 60, decode[lookup.Nutrients](t, w).Calories)

	w = s.do("GET", "/api/food-entries", token, "")
	assert.Empty(t, decode[dayResponse](t, w).Entries)
}

/* ─── Daily aggregates ───────────────────────────────────────────────── */

func TestDailyAggregates_ListAndRemarks(t *testing.T) {
	s := setupTestServer(t, false)
	token := s.registerUser(t, "alice")
	for _, d := range []string{"2026-10-01", "2026-10-02", "2026-10-20"} {
		w := s.do("POST", "/api/food-entries", token, fmt.Sprintf(`{"name":"eggs","grams":100,"date":%q}`, d))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := s.do("GET", "/api/daily-aggregates?start=2026-10-01&end=2026-10-10", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]nutrition.DailyAggregate](t, w), 2)

	w = s.do("GET", "/api/daily-aggregates?start=2026-10-10&end=2026-10-01", token, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do("GET", "/api/daily-aggregates?start=2026-10-10", token, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do("PATCH", "/api/daily-aggregates/2026-10-02", token, `{"remarks":"cheat day"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	agg := decode[nutrition.DailyAggregate](t, w)
	require.NotNil(t, agg.Remarks)
	assert.Equal(t, "cheat day", *agg.Remarks)

	w = s.do("PATCH", "/api/daily-aggregates/2026-09-01", token, `{"remarks":"nothing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

/* ─── Profile & demand ───────────────────────────────────────────────── */

func TestProfile_PatchDerivesDemand(t *testing.T) {
	s := setupTestServer(t, false)
	token := s.registerUser(t, "alice")

	assert.Equal(t, http.StatusNotFound, s.do("GET", "/api/demand", token, "").Code)

	w := s.do("PATCH", "/api/profile", token, `{"weight_kg":55,"height_cm":160,"age_years":25}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Nil(t, decode[profileResponse](t, w).Demand, "incomplete profile has no demand")

	w = s.do("PATCH", "/api/profile", token, `{"gender":"female","activity_level":"medium"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[profileResponse](t, w)
	require.NotNil(t, resp.Demand)
	// BMR 1265.45 * 1.6 = 2024.72
	assert.Equal(t, 2024, resp.Demand.Kcal)
	assert.Equal(t, nutrition.GenderFemale, *resp.Profile.Gender)

	w = s.do("GET", "/api/demand", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2024, decode[nutrition.Demand](t, w).Kcal)
}

func TestProfile_PatchRejectsInvalid(t *testing.T) {
	s := setupTestServer(t, false)
	token := s.registerUser(t, "alice")

	cases := []string{
		`{"gender":"other"}`,
		`{"activity_level":"sometimes"}`,
		`{"weight_kg":-3}`,
		`{"age_years":"old"}`,
	}
	for _, body := range cases {
		w := s.do("PATCH", "/api/profile", token, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

/* ─── Reports ────────────────────────────────────────────────────────── */

func TestReports(t *testing.T) {
	s := setupTestServer(t, true)
	token := s.registerUser(t, "alice")

	w := s.do("POST", "/api/reports", token, `{"start_date":"2026-10-01","end_date":"2026-10-31","email":"alice@example.com"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no food entries in range", errorMessage(t, w))

	w = s.do("POST", "/api/food-entries", token, `{"name":"eggs","grams":100,"date":"2026-10-05"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do("POST", "/api/reports", token, `{"start_date":"2026-10-01","end_date":"2026-10-31","email":"alice@example.com"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	resp := decode[reportResponse](t, w)
	assert.Equal(t, "report_2026-10-01_2026-10-31.pdf", resp.Filename)
	assert.Equal(t, 1, resp.Entries)
	require.Len(t, s.sink.sent, 1)

	w = s.do("POST", "/api/reports", token, `{"start_date":"2026-10-01","end_date":"2026-10-31","email":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do("POST", "/api/reports", token, `{"start_date":"October","end_date":"2026-10-31","email":"alice@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReports_Disabled(t *testing.T) {
	s := setupTestServer(t, false)
	token := s.registerUser(t, "alice")
	w := s.do("POST", "/api/reports", token, `{"start_date":"2026-10-01","end_date":"2026-10-31","email":"alice@example.com"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

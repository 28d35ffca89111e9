package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliowatt/solarstream/pkg/store"
)

func seedAccount(t *testing.T, st store.Store, email string, samples ...store.Sample) {
	t.Helper()
	ctx := context.Background()
	_, err := st.CreateAccount(ctx, email, []byte("hash"))
	require.NoError(t, err)
	for _, s := range samples {
		_, err := st.AppendSample(ctx, email, s)
		require.NoError(t, err)
	}
}

func getHistory(t *testing.T, router http.Handler, params url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/historicaldata?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHistoricalDataFiltersByCutoff(t *testing.T) {
	app, router := newTestApp(t)
	now := time.Now().UTC()
	seedAccount(t, app.Store, "a@example.com",
		store.Sample{Value: 20, Category: store.CategoryNormal, Timestamp: now.Add(-90 * time.Minute)},
		store.Sample{Value: 70, Category: store.CategorySolar, Timestamp: now.Add(-30 * time.Minute)},
	)

	rec := getHistory(t, router, url.Values{"email": {"a@example.com"}, "amount": {"1"}, "unit": {"hours"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var samples []store.Sample
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &samples))
	require.Len(t, samples, 1)
	assert.Equal(t, 70.0, samples[0].Value)
}

func TestHistoricalDataDefaultsToOneHour(t *testing.T) {
	app, router := newTestApp(t)
	now := time.Now().UTC()
	seedAccount(t, app.Store, "a@example.com",
		store.Sample{Value: 20, Timestamp: now.Add(-2 * time.Hour)},
		store.Sample{Value: 30, Timestamp: now.Add(-10 * time.Minute)},
	)

	rec := getHistory(t, router, url.Values{"email": {"a@example.com"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var samples []store.Sample
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &samples))
	require.Len(t, samples, 1)
	assert.Equal(t, 30.0, samples[0].Value)
}

func TestHistoricalDataInvalidUnit(t *testing.T) {
	app, router := newTestApp(t)
	seedAccount(t, app.Store, "a@example.com")

	rec := getHistory(t, router, url.Values{"email": {"a@example.com"}, "amount": {"1"}, "unit": {"fortnights"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoricalDataInvalidAmount(t *testing.T) {
	app, router := newTestApp(t)
	seedAccount(t, app.Store, "a@example.com")

	rec := getHistory(t, router, url.Values{"email": {"a@example.com"}, "amount": {"soon"}, "unit": {"hours"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoricalDataNonPositiveAmount(t *testing.T) {
	app, router := newTestApp(t)
	now := time.Now().UTC()
	seedAccount(t, app.Store, "a@example.com",
		store.Sample{Value: 20, Timestamp: now.Add(-time.Minute)},
	)

	// amount <= 0 is a valid query whose cutoff is at or after now.
	rec := getHistory(t, router, url.Values{"email": {"a@example.com"}, "amount": {"0"}, "unit": {"hours"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var samples []store.Sample
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &samples))
	assert.Empty(t, samples)
}

func TestHistoricalDataUnknownAccount(t *testing.T) {
	_, router := newTestApp(t)
	rec := getHistory(t, router, url.Values{"email": {"ghost@example.com"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoricalDataMissingEmail(t *testing.T) {
	_, router := newTestApp(t)
	rec := getHistory(t, router, url.Values{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTotalSavings(t *testing.T) {
	app, router := newTestApp(t)
	now := time.Now().UTC()
	seedAccount(t, app.Store, "a@example.com",
		store.Sample{Value: 60, Category: store.CategorySolar, Timestamp: now},
		store.Sample{Value: 55, Category: store.CategorySolar, Timestamp: now},
		store.Sample{Value: 10, Category: store.CategoryNormal, Timestamp: now},
	)

	req := httptest.NewRequest(http.MethodGet, "/totalsavings?email=a%40example.com", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 115.0, body["totalSavings"])
}

func TestTotalSavingsUnknownAccount(t *testing.T) {
	_, router := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/totalsavings?email=ghost%40example.com", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoricalDataRejectsNonFiniteAmount(t *testing.T) {
	app, router := newTestApp(t)
	seedAccount(t, app.Store, "a@example.com")

	for _, amount := range []string{"NaN", "Inf", "-Inf", "+Inf"} {
		rec := getHistory(t, router, url.Values{"email": {"a@example.com"}, "amount": {amount}})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "amount=%s", amount)
	}
}

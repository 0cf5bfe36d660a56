package inat

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averho/wildset/internal/errors"
)

const testBaseURL = "https://api.test/v1"

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

// newTestClient builds a client against the mock API with throttling opened
// wide so tests never sleep on the limiter.
func newTestClient(t *testing.T, pages PageStore) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:           testBaseURL,
		Timeout:           5 * time.Second,
		RequestsPerMinute: 100000,
		CacheTTL:          time.Minute,
	}, pages)
	require.NoError(t, err)
	return client
}

// registerPagedResponder serves per-page bodies keyed by the "page" query
// parameter; unknown pages return 404.
func registerPagedResponder(t *testing.T, bodies map[string]string) {
	t.Helper()
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/observations",
		func(req *http.Request) (*http.Response, error) {
			body, ok := bodies[req.URL.Query().Get("page")]
			if !ok {
				return httpmock.NewStringResponse(http.StatusNotFound, `{"error": "no such page", "status": 404}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, body), nil
		})
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	client, err := NewClient(Config{}, nil)

	require.Error(t, err)
	assert.Nil(t, client)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestNewClient_AppliesDefaults(t *testing.T) {
	client, err := NewClient(Config{BaseURL: testBaseURL}, nil)

	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, client.config.Timeout)
	assert.Equal(t, 60, client.config.RequestsPerMinute)
	assert.Equal(t, 10*time.Minute, client.config.CacheTTL)
}

func TestClient_FetchObservations_Paginates(t *testing.T) {
	setupHTTPMock(t)
	registerPagedResponder(t, map[string]string{
		"1": `{"total_results": 3, "page": 1, "per_page": 2, "results": [
			{"id": 1, "taxon": {"id": 42, "name": "Vulpes vulpes"}},
			{"id": 2, "taxon": {"id": 42, "name": "Vulpes vulpes"}}
		]}`,
		"2": `{"total_results": 3, "page": 2, "per_page": 2, "results": [
			{"id": 3, "taxon": {"id": 42, "name": "Vulpes vulpes"}}
		]}`,
	})

	client := newTestClient(t, nil)
	observations, err := client.FetchObservations(context.Background(), SearchParams{
		TaxonIDs: []int64{42},
		PerPage:  2,
	})

	require.NoError(t, err)
	require.Len(t, observations, 3)
	assert.Equal(t, int64(1), observations[0].ID)
	assert.Equal(t, int64(2), observations[1].ID)
	assert.Equal(t, int64(3), observations[2].ID)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestClient_FetchObservations_MaxResultsTruncates(t *testing.T) {
	setupHTTPMock(t)
	registerPagedResponder(t, map[string]string{
		"1": `{"total_results": 100, "page": 1, "per_page": 2, "results": [
			{"id": 1, "taxon": {"id": 42}},
			{"id": 2, "taxon": {"id": 42}}
		]}`,
	})

	client := newTestClient(t, nil)
	observations, err := client.FetchObservations(context.Background(), SearchParams{
		PerPage:    2,
		MaxResults: 1,
	})

	require.NoError(t, err)
	require.Len(t, observations, 1)
	assert.Equal(t, int64(1), observations[0].ID)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestClient_FetchObservations_EmptyPageStops(t *testing.T) {
	setupHTTPMock(t)
	registerPagedResponder(t, map[string]string{
		"1": `{"total_results": 10, "page": 1, "per_page": 200, "results": []}`,
	})

	client := newTestClient(t, nil)
	observations, err := client.FetchObservations(context.Background(), SearchParams{})

	require.NoError(t, err)
	assert.Empty(t, observations)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestClient_FetchObservations_CachesPages(t *testing.T) {
	setupHTTPMock(t)
	registerPagedResponder(t, map[string]string{
		"1": `{"total_results": 1, "page": 1, "per_page": 200, "results": [
			{"id": 1, "taxon": {"id": 42}}
		]}`,
	})

	client := newTestClient(t, nil)
	params := SearchParams{TaxonIDs: []int64{42}}

	first, err := client.FetchObservations(context.Background(), params)
	require.NoError(t, err)
	second, err := client.FetchObservations(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())

	metrics := client.GetMetrics()
	assert.Equal(t, int64(1), metrics.APICalls)
	assert.Equal(t, int64(1), metrics.CacheHits)
	assert.Equal(t, int64(1), metrics.CacheMisses)

	// Dropping the cache forces the network again.
	client.ClearCache()
	_, err = client.FetchObservations(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestClient_FetchObservations_RetriesServerError(t *testing.T) {
	setupHTTPMock(t)

	var calls int
	var mu sync.Mutex
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/observations",
		func(req *http.Request) (*http.Response, error) {
			mu.Lock()
			calls++
			attempt := calls
			mu.Unlock()
			if attempt == 1 {
				return httpmock.NewStringResponse(http.StatusInternalServerError, `{"error": "upstream down", "status": 500}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK,
				`{"total_results": 1, "page": 1, "per_page": 200, "results": [{"id": 7, "taxon": {"id": 42}}]}`), nil
		})

	client := newTestClient(t, nil)
	observations, err := client.FetchObservations(context.Background(), SearchParams{})

	require.NoError(t, err)
	require.Len(t, observations, 1)
	assert.Equal(t, int64(7), observations[0].ID)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestClient_FetchObservations_ClientErrorsDoNotRetry(t *testing.T) {
	setupHTTPMock(t)

	tests := []struct {
		name         string
		statusCode   int
		wantCategory errors.ErrorCategory
	}{
		{"not_found", http.StatusNotFound, errors.CategoryNotFound},
		{"bad_request", http.StatusBadRequest, errors.CategoryHTTP},
		{"unauthorized", http.StatusUnauthorized, errors.CategoryConfiguration},
		{"forbidden", http.StatusForbidden, errors.CategoryConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpmock.Reset()
			httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/observations",
				httpmock.NewStringResponder(tt.statusCode,
					fmt.Sprintf(`{"error": "refused", "status": %d}`, tt.statusCode)))

			client := newTestClient(t, nil)
			observations, err := client.FetchObservations(context.Background(), SearchParams{})

			require.Error(t, err)
			assert.Nil(t, observations)
			assert.True(t, errors.IsCategory(err, tt.wantCategory))
			assert.Contains(t, err.Error(), "refused")
			assert.Equal(t, 1, httpmock.GetTotalCallCount())
		})
	}
}

func TestClient_FetchObservations_InvalidJSON(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/observations",
		httpmock.NewStringResponder(http.StatusOK, `{not json`))

	client := newTestClient(t, nil)
	observations, err := client.FetchObservations(context.Background(), SearchParams{})

	require.Error(t, err)
	assert.Nil(t, observations)
	assert.True(t, errors.IsCategory(err, errors.CategoryParsing))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestClient_FetchObservations_PaginationWindow(t *testing.T) {
	setupHTTPMock(t)

	// Every page is full and the reported total exceeds the window the API
	// will actually serve; fetching must stop at the window.
	var results []string
	for i := 0; i < 200; i++ {
		results = append(results, fmt.Sprintf(`{"id": %d, "taxon": {"id": 42}}`, i+1))
	}
	body := fmt.Sprintf(`{"total_results": 20000, "page": 1, "per_page": 200, "results": [%s]}`,
		strings.Join(results, ","))
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/observations",
		httpmock.NewStringResponder(http.StatusOK, body))

	client := newTestClient(t, nil)
	observations, err := client.FetchObservations(context.Background(), SearchParams{})

	require.NoError(t, err)
	assert.Len(t, observations, 10000)
	assert.Equal(t, 50, httpmock.GetTotalCallCount())
}

// fakePageStore is an in-memory PageStore for tests.
type fakePageStore struct {
	mu      sync.Mutex
	entries map[string][]byte
	puts    int
	getErr  error
}

func (f *fakePageStore) storeKey(key string, pageNum int) string {
	return fmt.Sprintf("%s|%d", key, pageNum)
}

func (f *fakePageStore) Get(key string, pageNum int, maxAge time.Duration) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	body, ok := f.entries[f.storeKey(key, pageNum)]
	return body, ok, nil
}

func (f *fakePageStore) Put(key string, pageNum int, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries == nil {
		f.entries = make(map[string][]byte)
	}
	f.entries[f.storeKey(key, pageNum)] = body
	f.puts++
	return nil
}

// corruptAll replaces every stored body with junk.
func (f *fakePageStore) corruptAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.entries {
		f.entries[k] = []byte(`{broken`)
	}
}

func TestClient_FetchObservations_PersistentStore(t *testing.T) {
	setupHTTPMock(t)
	registerPagedResponder(t, map[string]string{
		"1": `{"total_results": 1, "page": 1, "per_page": 200, "results": [
			{"id": 9, "taxon": {"id": 42}}
		]}`,
	})

	store := &fakePageStore{}
	params := SearchParams{TaxonIDs: []int64{42}}

	// First client fills the store from the network.
	first := newTestClient(t, store)
	observations, err := first.FetchObservations(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, observations, 1)
	assert.Equal(t, 1, store.puts)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())

	// A fresh client replays the same query from the store.
	second := newTestClient(t, store)
	replayed, err := second.FetchObservations(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, observations, replayed)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.Equal(t, int64(1), second.GetMetrics().StoreHits)
}

func TestClient_FetchObservations_StoreReadFailureFallsBack(t *testing.T) {
	setupHTTPMock(t)
	registerPagedResponder(t, map[string]string{
		"1": `{"total_results": 1, "page": 1, "per_page": 200, "results": [
			{"id": 9, "taxon": {"id": 42}}
		]}`,
	})

	store := &fakePageStore{getErr: errors.NewStd("disk exploded")}
	client := newTestClient(t, store)

	observations, err := client.FetchObservations(context.Background(), SearchParams{TaxonIDs: []int64{42}})

	require.NoError(t, err)
	assert.Len(t, observations, 1)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestClient_FetchObservations_CorruptStoreEntryRefetches(t *testing.T) {
	setupHTTPMock(t)
	registerPagedResponder(t, map[string]string{
		"1": `{"total_results": 1, "page": 1, "per_page": 200, "results": [
			{"id": 9, "taxon": {"id": 42}}
		]}`,
	})

	store := &fakePageStore{}
	params := SearchParams{TaxonIDs: []int64{42}}

	first := newTestClient(t, store)
	_, err := first.FetchObservations(context.Background(), params)
	require.NoError(t, err)
	store.corruptAll()

	second := newTestClient(t, store)
	observations, err := second.FetchObservations(context.Background(), params)

	require.NoError(t, err)
	assert.Len(t, observations, 1)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
	assert.Equal(t, int64(0), second.GetMetrics().StoreHits)
}

func TestSearchParams_Query(t *testing.T) {
	t.Parallel()

	params := SearchParams{
		TaxonIDs:       []int64{42, 7},
		PlaceID:        99,
		QualityGrade:   "research",
		ObservedAfter:  "2024-01-01",
		ObservedBefore: "2024-12-31",
	}
	v := params.query(3, 50)

	assert.Equal(t, "42,7", v.Get("taxon_id"))
	assert.Equal(t, "99", v.Get("place_id"))
	assert.Equal(t, "research", v.Get("quality_grade"))
	assert.Equal(t, "2024-01-01", v.Get("d1"))
	assert.Equal(t, "2024-12-31", v.Get("d2"))
	assert.Equal(t, "true", v.Get("photos"))
	assert.Equal(t, "asc", v.Get("order"))
	assert.Equal(t, "id", v.Get("order_by"))
	assert.Equal(t, "50", v.Get("per_page"))
	assert.Equal(t, "3", v.Get("page"))
	assert.Empty(t, v.Get("swlat"))
}

func TestSearchParams_Query_RadiusBecomesBox(t *testing.T) {
	t.Parallel()

	center := orb.Point{24.9384, 60.1699}
	params := SearchParams{Center: &center, RadiusKM: 10}
	v := params.query(1, 200)

	swlat, err := strconv.ParseFloat(v.Get("swlat"), 64)
	require.NoError(t, err)
	nelat, err := strconv.ParseFloat(v.Get("nelat"), 64)
	require.NoError(t, err)
	swlng, err := strconv.ParseFloat(v.Get("swlng"), 64)
	require.NoError(t, err)
	nelng, err := strconv.ParseFloat(v.Get("nelng"), 64)
	require.NoError(t, err)

	assert.Less(t, swlat, center.Lat())
	assert.Greater(t, nelat, center.Lat())
	assert.Less(t, swlng, center.Lon())
	assert.Greater(t, nelng, center.Lon())
}

func TestSearchParams_Fingerprint(t *testing.T) {
	t.Parallel()

	params := SearchParams{TaxonIDs: []int64{42}, QualityGrade: "research"}

	fp := params.fingerprint(200)
	assert.NotContains(t, fp, "page=")
	assert.Contains(t, fp, "taxon_id=42")

	// Stable across calls, sensitive to the query itself.
	assert.Equal(t, fp, params.fingerprint(200))
	other := SearchParams{TaxonIDs: []int64{43}, QualityGrade: "research"}
	assert.NotEqual(t, fp, other.fingerprint(200))
}

func TestGetErrorCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		statusCode int
		want       errors.ErrorCategory
	}{
		{http.StatusUnauthorized, errors.CategoryConfiguration},
		{http.StatusForbidden, errors.CategoryConfiguration},
		{http.StatusTooManyRequests, errors.CategoryRateLimit},
		{http.StatusNotFound, errors.CategoryNotFound},
		{http.StatusInternalServerError, errors.CategoryNetwork},
		{http.StatusServiceUnavailable, errors.CategoryNetwork},
		{http.StatusBadRequest, errors.CategoryHTTP},
		{http.StatusTeapot, errors.CategoryHTTP},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, getErrorCategory(tt.statusCode), "status %d", tt.statusCode)
	}
}

package etl_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdoweather/cdoweather/internal/etl"
	"github.com/cdoweather/cdoweather/internal/noaa"
	"github.com/cdoweather/cdoweather/internal/provider/resilience"
	"github.com/cdoweather/cdoweather/internal/publish"
)

func stationID(i int) string {
	return fmt.Sprintf("S%02d", i)
}

func cdoEnvelope(results []string) string {
	return fmt.Sprintf(`{"metadata":{"resultset":{"offset":1,"count":%d,"limit":1000}},"results":[%s]}`,
		len(results), strings.Join(results, ","))
}

// newStationsServer lists n stations and answers 502 for the measurements of
// every station in broken.
func newStationsServer(t *testing.T, n int, broken map[string]bool, dataHits *atomic.Int64) *httptest.Server {
	t.Helper()

	stations := make([]string, 0, n)
	for i := 0; i < n; i++ {
		stations = append(stations, fmt.Sprintf(`{"id":%q}`, stationID(i)))
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/datatypes":
			_, _ = w.Write([]byte(cdoEnvelope([]string{`{"id":"TMAX"}`})))
		case "/stations":
			_, _ = w.Write([]byte(cdoEnvelope(stations)))
		case "/data":
			dataHits.Add(1)
			station := r.URL.Query().Get("stationid")
			if broken[station] {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(cdoEnvelope([]string{fmt.Sprintf(`{"station":%q,"value":1}`, station)})))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newCDOJob runs against baseURL with the production client and breaker
// settings, shortening only the retry delays.
func newCDOJob(t *testing.T, baseURL string, concurrency int) *etl.Job {
	t.Helper()

	httpCfg := resilience.DefaultClientConfig(noaa.ProviderName)
	httpCfg.InitialInterval = time.Millisecond
	httpCfg.MaxInterval = time.Millisecond

	client, err := noaa.NewClient(noaa.ClientConfig{
		Token:      "token",
		BaseURL:    baseURL,
		HTTPClient: resilience.NewClient(httpCfg),
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)

	cfg := etl.DefaultJobConfig()
	cfg.Concurrency = concurrency

	job, err := etl.NewJob(etl.JobOptions{
		Config:    cfg,
		Fetcher:   client,
		Publisher: publish.NewMemoryPublisher(),
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return job
}

func TestJob_Run_FailingStationsDoNotBlockHealthyOnes(t *testing.T) {
	tests := []struct {
		name        string
		broken      []int
		concurrency int
	}{
		{name: "a few early failures", broken: []int{0, 1, 3}, concurrency: 1},
		{name: "every other station failing", broken: []int{0, 2, 4, 6, 8, 10, 12, 14, 16, 18}, concurrency: 1},
		{name: "four in a row", broken: []int{2, 3, 4, 5}, concurrency: 1},
		{name: "concurrent workers", broken: []int{0, 1, 3}, concurrency: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := make(map[string]bool, len(tt.broken))
			for _, i := range tt.broken {
				broken[stationID(i)] = true
			}
			var dataHits atomic.Int64
			srv := newStationsServer(t, 20, broken, &dataHits)

			result, err := newCDOJob(t, srv.URL, tt.concurrency).Run(context.Background())
			require.NoError(t, err)

			healthy := int64(20 - len(tt.broken))
			assert.Equal(t, int64(len(tt.broken)), result.ErrorCount)
			assert.Equal(t, healthy, result.StationsProcessed)
			assert.Equal(t, 1+20+healthy, result.PublishedCount)
			assert.Equal(t, int64(22), result.APICallCount)
			// Three attempts per broken station, one per healthy one.
			assert.Equal(t, 3*int64(len(tt.broken))+healthy, dataHits.Load())
		})
	}
}

func TestJob_Run_UpstreamOutageOpensBreaker(t *testing.T) {
	broken := make(map[string]bool, 20)
	for i := 0; i < 20; i++ {
		broken[stationID(i)] = true
	}
	var dataHits atomic.Int64
	srv := newStationsServer(t, 20, broken, &dataHits)

	result, err := newCDOJob(t, srv.URL, 1).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(20), result.ErrorCount)
	assert.Equal(t, int64(0), result.StationsProcessed)
	// Once the breaker opens the remaining stations fail without reaching the server.
	assert.Equal(t, int64(3*resilience.DefaultConsecutiveFailures), dataHits.Load())
}

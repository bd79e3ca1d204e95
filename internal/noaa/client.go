package noaa

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/cdoweather/cdoweather/internal/provider/resilience"
)

const (
	// ProviderName identifies the CDO API in logs and the provider registry.
	ProviderName = "noaa-cdo"

	// DefaultBaseURL is the CDO web services v2 base URL.
	DefaultBaseURL = "https://www.ncei.noaa.gov/cdo-web/api/v2"

	// DefaultPageSize is the largest page the CDO API serves.
	DefaultPageSize = 1000

	tokenHeader = "token"
)

// ClientConfig holds configuration for the CDO client.
type ClientConfig struct {
	// Token is the CDO web services token (required).
	Token string

	// BaseURL is the API base URL (optional, defaults to DefaultBaseURL).
	BaseURL string

	// PageSize is the limit requested per page (optional, defaults to DefaultPageSize).
	PageSize int

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a CDO API client.
type Client struct {
	token      string
	baseURL    string
	pageSize   int
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new CDO client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		token:      cfg.Token,
		baseURL:    baseURL,
		pageSize:   pageSize,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Fetch retrieves every record matching req, following pagination until the
// accumulated count reaches the total reported by the server.
//
// counter is incremented once per call, not per page: it tracks logical fetches
// against the daily quota, so it undercounts raw HTTP requests on multi-page
// results.
func (c *Client) Fetch(ctx context.Context, req FetchRequest, counter CallCounter) ([]Record, error) {
	if counter != nil {
		counter.AddCall()
	}

	logger := c.logger.With().
		Str("endpoint", string(req.Endpoint)).
		Str("query", req.Query().Encode()).
		Logger()
	logger.Info().Msg("fetching records")

	var records []Record
	offset := 1
	for {
		page, err := c.fetchPage(ctx, req, c.pageSize, offset)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Results...)

		logger.Debug().
			Int("offset", offset).
			Int("page_records", len(page.Results)).
			Int("total", page.Count).
			Msg("fetched page")

		if len(records) >= page.Count {
			logger.Info().Int("records", len(records)).Msg("fetched records from api")
			return records, nil
		}

		offset += c.pageSize
		if offset > page.Count {
			// Server reported more records than it served.
			logger.Warn().
				Int("records", len(records)).
				Int("total", page.Count).
				Msg("pagination ended short of reported total")
			return records, nil
		}
	}
}

// Ping requests a single datatype to verify the token and connectivity.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.fetchPage(ctx, FetchRequest{Endpoint: EndpointDatatypes}, 1, 1)
	return err
}

func (c *Client) fetchPage(ctx context.Context, req FetchRequest, limit, offset int) (*Page, error) {
	url := c.baseURL + req.Endpoint.Path() + "?" + req.pageQuery(limit, offset).Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, &FetchError{Endpoint: req.Endpoint, Err: fmt.Errorf("creating request: %w", err)}
	}
	httpReq.Header.Set(tokenHeader, c.token)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		fetchErr := &FetchError{Endpoint: req.Endpoint, Err: fmt.Errorf("executing request: %w", err)}
		if errors.Is(err, resilience.ErrMaxRetriesExceeded) {
			fetchErr.Transient = true
			fetchErr.Err = fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
		}
		return nil, fetchErr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resilience.IsRetryableStatus(resp.StatusCode) {
			return nil, &FetchError{
				Endpoint:  req.Endpoint,
				Status:    resp.StatusCode,
				Transient: true,
				Err:       ErrRetriesExhausted,
			}
		}
		return nil, &FetchError{Endpoint: req.Endpoint, Status: resp.StatusCode, Err: ErrUnexpectedStatus}
	}

	var env envelope
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return nil, &FetchError{
			Endpoint: req.Endpoint,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("decoding response: %w", err),
		}
	}

	page := env.page()
	return &page, nil
}

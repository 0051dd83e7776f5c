package gotham

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"gotham_viewer/viewer-go/internal/metrics"
)

const (
	tokenPath         = "/multipass/api/oauth2/token"
	mapsPath          = "/api/gotham/v1/maps/load/%s/layers?preview=true"
	targetPath        = "/api/gotham/v1/cosmos/target/%s?preview=true"
	targetCreatePath  = "/api/gotham/v1/cosmos/target?preview=true"
	targetBoardPath   = "/api/gotham/v1/cosmos/targetCollection/%s?preview=true"
	maxResponseBytes  = 16 << 20
	defaultTimeout    = 15 * time.Second
	defaultRatePerSec = 10
	defaultBurst      = 5
	operationToken    = "token"
	operationLoad     = "load_layers"
	operationBoard    = "get_target_collection"
	operationTarget   = "get_target"
	operationCreate   = "create_target"
	operationUpdate   = "update_target"
)

// Client talks to the Gotham REST API. Every call other than FetchToken
// needs a bearer token obtained from FetchToken.
type Client struct {
	log     zerolog.Logger
	baseURL string
	http    *http.Client
	creds   clientcredentials.Config
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

type Options struct {
	BaseURL           string
	ClientID          string
	ClientSecret      string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
}

func New(log zerolog.Logger, opts Options, m *metrics.Metrics) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("gotham: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("gotham: invalid base url: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRatePerSec
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	return &Client{
		log:     log,
		baseURL: base,
		http:    hc,
		creds: clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     base + tokenPath,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		metrics: m,
	}, nil
}

// FetchToken runs the client-credentials grant and returns the access token.
// Each call performs a fresh exchange; tokens are never cached here.
func (c *Client) FetchToken(ctx context.Context) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	tok, err := c.creds.Token(context.WithValue(ctx, oauth2.HTTPClient, c.http))
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response != nil {
			c.metrics.ObserveUpstreamRequest(operationToken, rErr.Response.StatusCode, time.Since(start))
			return "", parseAPIError(rErr.Response.StatusCode, rErr.Body)
		}
		c.metrics.ObserveUpstreamRequest(operationToken, 0, time.Since(start))
		return "", fmt.Errorf("fetch token: %w", err)
	}
	c.metrics.ObserveUpstreamRequest(operationToken, http.StatusOK, time.Since(start))
	return tok.AccessToken, nil
}

func (c *Client) LoadLayers(ctx context.Context, token, mapID string, layerIDs []string) (*LoadLayersResponse, error) {
	var out LoadLayersResponse
	path := fmt.Sprintf(mapsPath, url.PathEscape(mapID))
	if err := c.do(ctx, operationLoad, http.MethodPut, path, token, loadLayersRequest{LayerIDs: layerIDs}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetTargetCollection(ctx context.Context, token, boardRID string) (*TargetCollectionResponse, error) {
	var out TargetCollectionResponse
	path := fmt.Sprintf(targetBoardPath, url.PathEscape(boardRID))
	if err := c.do(ctx, operationBoard, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetTarget(ctx context.Context, token, targetRID string) (*TargetDetailResponse, error) {
	var out TargetDetailResponse
	path := fmt.Sprintf(targetPath, url.PathEscape(targetRID))
	if err := c.do(ctx, operationTarget, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateTarget(ctx context.Context, token string, req CreateTargetRequest) (RawResponse, error) {
	var out RawResponse
	if err := c.do(ctx, operationCreate, http.MethodPost, targetCreatePath, token, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateTarget(ctx context.Context, token, targetRID string, req UpdateTargetRequest) (RawResponse, error) {
	var out RawResponse
	path := fmt.Sprintf(targetPath, url.PathEscape(targetRID))
	if err := c.do(ctx, operationUpdate, http.MethodPut, path, token, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveUpstreamRequest(op, 0, time.Since(start))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.ObserveUpstreamRequest(op, resp.StatusCode, time.Since(start))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := parseAPIError(resp.StatusCode, raw)
		c.log.Debug().Str("operation", op).Int("status", resp.StatusCode).Str("error_name", apiErr.ErrorName).Msg("gotham request failed")
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

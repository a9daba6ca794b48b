package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

type HTTPConfig struct {
	// Endpoint is the base URL of the database server, e.g. "http://localhost:8529".
	Endpoint string

	Username string
	Password string

	// Client overrides the underlying HTTP client. Timeouts and socket-level
	// retries belong there, not in this layer.
	Client *http.Client

	Logger logrus.FieldLogger
}

func NewHTTP(cfg HTTPConfig) (Connection, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("no endpoint specified")
	}

	base, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", cfg.Endpoint, err)
	}

	cl := cfg.Client
	if cl == nil {
		cl = &http.Client{Timeout: time.Minute}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &httpConnection{
		base:     base,
		username: cfg.Username,
		password: cfg.Password,
		client:   cl,
		logger:   logger,
	}, nil
}

type httpConnection struct {
	base     *url.URL
	username string
	password string
	client   *http.Client
	logger   logrus.FieldLogger
}

func (c *httpConnection) Do(ctx context.Context, req Request, result any) error {
	endpoint := c.base.JoinPath(req.Path)
	if req.Query != nil {
		endpoint.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	hr, err := http.NewRequestWithContext(ctx, req.Method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if req.Body != nil {
		hr.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		hr.SetBasicAuth(c.username, c.password)
	}

	res, err := c.client.Do(hr)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"method": req.Method,
		"path":   req.Path,
		"status": res.StatusCode,
	}).Debug("request completed")

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusBadRequest {
		return statusErrorFromBody(res.StatusCode, raw)
	}

	if result == nil {
		return nil
	}

	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}

	return nil
}

// serverFault is the failure payload the server attaches to rejected requests.
type serverFault struct {
	Error        bool   `json:"error"`
	Code         int    `json:"code"`
	ErrorNum     int    `json:"errorNum"`
	ErrorMessage string `json:"errorMessage"`
}

func statusErrorFromBody(status int, raw []byte) *StatusError {
	se := &StatusError{Code: status}

	var fault serverFault
	if err := json.Unmarshal(raw, &fault); err == nil && fault.Error {
		se.ErrorNum = fault.ErrorNum
		se.Message = fault.ErrorMessage
		if fault.Code != 0 {
			se.Code = fault.Code
		}
	}

	return se
}

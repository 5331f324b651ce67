// Package erpcall executes resolved capability calls against the ERP
// system over HTTP.
package erpcall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"askerp/internal/catalog"
	"askerp/internal/logging"
)

// FailureKind classifies how a capability call went wrong.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureTimeout   FailureKind = "timeout"
	FailureStatus    FailureKind = "status"
	FailureTransport FailureKind = "transport"
)

// Outcome is the normalized result of one capability invocation.
// No retry happens at this layer; retry policy belongs to the caller.
type Outcome struct {
	CapabilityID   string      `json:"api_id"`
	CapabilityName string      `json:"api_name"`
	Endpoint       string      `json:"endpoint"`
	Success        bool        `json:"success"`
	StatusCode     int         `json:"status_code,omitempty"`
	Data           any         `json:"data,omitempty"`
	Error          string      `json:"error,omitempty"`
	Failure        FailureKind `json:"failure_kind,omitempty"`
}

// Caller issues capability calls over a shared pooled connection. Safe for
// concurrent use by the orchestrator's fan-out.
type Caller struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	log     *logging.Logger
}

func New(baseURL string, timeout time.Duration, log *logging.Logger) *Caller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logging.Nop()
	}
	tr := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	_ = http2.ConfigureTransport(tr)
	return &Caller{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{Transport: tr, Timeout: timeout},
		log:     log.Component("erpcall"),
	}
}

// Close releases pooled connections.
func (c *Caller) Close() {
	c.client.CloseIdleConnections()
}

// Call maps a capability definition plus a resolved parameter mapping into
// one HTTP request and normalizes the response.
func (c *Caller) Call(ctx context.Context, def catalog.Capability, params map[string]any) Outcome {
	out := Outcome{
		CapabilityID:   def.ID,
		CapabilityName: def.Name,
		Endpoint:       def.Endpoint,
	}

	req, err := c.buildRequest(ctx, def, params)
	if err != nil {
		out.Error = err.Error()
		out.Failure = FailureTransport
		return out
	}

	c.log.Debug().Str("capability", def.ID).Str("method", req.Method).Str("url", req.URL.String()).Msg("calling ERP")

	resp, err := c.client.Do(req)
	if err != nil {
		out.Failure = classify(err)
		if out.Failure == FailureTimeout {
			out.Error = fmt.Sprintf("request timeout after %s", c.timeout)
		} else {
			out.Error = err.Error()
		}
		c.log.Warn().Str("capability", def.ID).Str("kind", string(out.Failure)).Err(err).Msg("ERP call failed")
		return out
	}
	defer resp.Body.Close()

	out.StatusCode = resp.StatusCode
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		out.Error = err.Error()
		out.Failure = FailureTransport
		return out
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		out.Error = fmt.Sprintf("HTTP error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		out.Failure = FailureStatus
		c.log.Warn().Str("capability", def.ID).Int("status", resp.StatusCode).Msg("ERP call returned error status")
		return out
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		data = string(body)
	}
	out.Success = true
	out.Data = data
	return out
}

func (c *Caller) buildRequest(ctx context.Context, def catalog.Capability, params map[string]any) (*http.Request, error) {
	endpoint := def.Endpoint
	query := url.Values{}
	form := url.Values{}
	body := map[string]any{}

	locations := make(map[string]catalog.Location, len(def.Parameters))
	for _, p := range def.Parameters {
		locations[p.Name] = p.Location
	}

	for name, value := range params {
		switch locations[name] {
		case catalog.LocationPath:
			endpoint = strings.ReplaceAll(endpoint, "{"+name+"}", url.PathEscape(fmt.Sprint(value)))
		case catalog.LocationForm:
			form.Set(name, fmt.Sprint(value))
		case catalog.LocationBody:
			body[name] = value
		default:
			// Undeclared parameters travel as query, matching the catalog's
			// loosest contract.
			query.Set(name, fmt.Sprint(value))
		}
	}

	full := c.baseURL + endpoint
	if enc := query.Encode(); enc != "" {
		full += "?" + enc
	}

	method := strings.ToUpper(strings.TrimSpace(def.Method))
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	contentType := "application/json"
	switch {
	case len(form) > 0:
		reader = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case len(body) > 0:
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, full, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func classify(err error) FailureKind {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return FailureTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureTransport
}

// Package kwap queries the KWAP pension inquiry service (InquireEmass SOAP
// operation) by Malaysian identity card number.
package kwap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"
)

const (
	DefaultURL     = "https://apim.kwap.my/ws/PortalServiceInquireEmass/1.0"
	soapAction     = "http://tempuri.org/InquireEmass"
	defaultTimeout = 30 * time.Second
	maxResponse    = 4 << 20
)

var (
	// ErrNotFound means the service answered but holds no record for the IC number.
	ErrNotFound = errors.New("kwap: no pension information found")
	// ErrInvalidIC means the IC number is not 4 to 15 digits.
	ErrInvalidIC = errors.New("kwap: IC number must be between 4 and 15 digits")
	// ErrNotConfigured means no API key is set.
	ErrNotConfigured = errors.New("kwap: api key not configured")
)

var icPattern = regexp.MustCompile(`^\d{4,15}$`)

// ValidateIC checks the format of an identity card number.
func ValidateIC(nokp string) error {
	if !icPattern.MatchString(nokp) {
		return ErrInvalidIC
	}
	return nil
}

type Config struct {
	URL     string // default: DefaultURL
	APIKey  string
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

// Client calls the InquireEmass operation.
type Client struct {
	url    string
	apiKey string
	client *http.Client
	logger *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{url: cfg.URL, apiKey: cfg.APIKey, client: cfg.Client, logger: cfg.Logger}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool { return c.apiKey != "" }

func envelope(nokp string) []byte {
	return []byte(`<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:tem="http://tempuri.org/">
   <soap:Header/>
   <soap:Body>
      <tem:InquireEmass>
         <tem:nokp>` + nokp + `</tem:nokp>
      </tem:InquireEmass>
   </soap:Body>
</soap:Envelope>`)
}

// Inquire looks up the pensioner registered under nokp.
func (c *Client) Inquire(ctx context.Context, nokp string) (*Pensioner, error) {
	if err := ValidateIC(nokp); err != nil {
		return nil, err
	}
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("kwap: parse url: %w", err)
	}
	q := u.Query()
	q.Set("apikey", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(envelope(nokp)))
	if err != nil {
		return nil, fmt.Errorf("kwap: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapAction)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("kwap: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return nil, fmt.Errorf("kwap: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kwap: status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	p, err := ParseResponse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.logger.Info("kwap inquiry completed", "dependants", len(p.Dependants), "duration", time.Since(start))
	return p, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

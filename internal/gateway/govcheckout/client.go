// Package govcheckout is a client for the government checkout invoice API.
package govcheckout

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/veristore/veristore/internal/domain/checkout"
	"github.com/veristore/veristore/internal/domain/fulfillment"
)

const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://www.govgh.org/api/v1.0/"

	invoicePath     = "checkout/invoice.php"
	maxResponseSize = 1 << 20
	defaultTimeout  = 15 * time.Second
)

// Config holds the merchant credentials and URLs sent with every invoice.
type Config struct {
	BaseURL     string
	APIKey      string
	MDABranch   string
	RedirectURL string
	PostURL     string
	Timeout     time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTelemetry instruments outgoing requests with the given providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(cl *Client) {
		cl.transportOpts = append(cl.transportOpts,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithMeterProvider(mp),
		)
	}
}

// Client implements checkout.PaymentGateway.
type Client struct {
	cfg           Config
	endpoint      string
	http          *http.Client
	transportOpts []otelhttp.Option
	newID         func() string
}

var _ checkout.PaymentGateway = (*Client)(nil)

// New creates a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	c := &Client{
		cfg:      cfg,
		endpoint: base.ResolveReference(&url.URL{Path: invoicePath}).String(),
		newID:    func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, c.transportOpts...),
		}
	}
	return c, nil
}

// BeginCheckout creates a gateway invoice for req.
func (c *Client) BeginCheckout(ctx context.Context, req checkout.CheckoutRequest) (checkout.Checkout, error) {
	payload := buildCreateRequest(c.cfg, c.newID(), req)
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	payload.Encode(e)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(e.Bytes()))
	if err != nil {
		return checkout.Checkout{}, errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	var resp createInvoiceResponse
	if err := c.do(httpReq, resp.Decode); err != nil {
		return checkout.Checkout{}, errors.Wrap(err, "create invoice")
	}
	if strings.TrimSpace(resp.InvoiceNumber) == "" {
		return checkout.Checkout{}, errors.Errorf("create invoice: no invoice number (status %d: %s)", resp.Status, resp.Message)
	}
	return checkout.Checkout{
		InvoiceNo:   strings.TrimSpace(resp.InvoiceNumber),
		CheckoutURL: strings.TrimSpace(resp.CheckoutURL),
	}, nil
}

// CheckStatus fetches the payment status of invoiceNo.
func (c *Client) CheckStatus(ctx context.Context, invoiceNo string) (fulfillment.Status, error) {
	q := url.Values{}
	q.Set("request", requestInvoiceState)
	q.Set("api_key", c.cfg.APIKey)
	q.Set("invoice_number", invoiceNo)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return "", errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Accept", "application/json")

	var resp statusResponse
	if err := c.do(httpReq, resp.Decode); err != nil {
		return "", errors.Wrap(err, "invoice status")
	}
	if !resp.HasOutput {
		return fulfillment.StatusPending, nil
	}
	return checkout.MapGatewayStatus(resp.StatusCode, resp.StatusText), nil
}

func (c *Client) do(req *http.Request, decode func(d *jx.Decoder) error) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "send")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := decode(jx.DecodeBytes(body)); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}

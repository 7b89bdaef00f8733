package esewa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/anishmaharjan/kinmel-backend/pkg/config"
	pkgerrors "github.com/anishmaharjan/kinmel-backend/pkg/errors"
)

// Gateway status vocabulary. These are the gateway's tokens, not ours;
// mapping onto internal payment statuses happens in the payments service.
const (
	StatusComplete      = "COMPLETE"
	StatusPending       = "PENDING"
	StatusAmbiguous     = "AMBIGUOUS"
	StatusCanceled      = "CANCELED"
	StatusNotFound      = "NOT_FOUND"
	StatusFullRefund    = "FULL_REFUND"
	StatusPartialRefund = "PARTIAL_REFUND"
)

// StatusResponse is the gateway's answer to a transaction status check.
type StatusResponse struct {
	ProductCode     string `json:"product_code"`
	TransactionUUID string `json:"transaction_uuid"`
	TotalAmount     any    `json:"total_amount"`
	Status          string `json:"status"`
	RefID           string `json:"ref_id"`
}

// StatusChecker is the slice of the gateway the payments service depends on.
type StatusChecker interface {
	CheckStatus(ctx context.Context, totalAmount, transactionUUID string) (*StatusResponse, error)
}

// Client talks to the eSewa ePay-v2 HTTP API.
type Client struct {
	cfg        config.EsewaConfig
	httpClient *http.Client
}

func NewClient(cfg config.EsewaConfig) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CheckStatus queries the gateway's authoritative transaction status
// endpoint. Any transport or decode failure surfaces as a dependency error so
// callers leave the payment untouched rather than guessing.
func (c *Client) CheckStatus(ctx context.Context, totalAmount, transactionUUID string) (*StatusResponse, error) {
	query := url.Values{}
	query.Set("product_code", c.cfg.ProductCode)
	query.Set("total_amount", totalAmount)
	query.Set("transaction_uuid", transactionUUID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.StatusURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building esewa status request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "esewa status check failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("esewa status check returned %d", resp.StatusCode))
	}

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding esewa status response")
	}
	return &status, nil
}

// FormURL is where the buyer's browser posts the signed initiation form.
func (c *Client) FormURL() string { return c.cfg.FormURL }

var _ StatusChecker = (*Client)(nil)

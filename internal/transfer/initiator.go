// Package transfer moves money out through the payment gateway once a
// withdrawal has been committed locally.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"fund_ledger/internal/domain"

	"github.com/shopspring/decimal"
)

// Request is what the gateway needs to pay out a withdrawal
type Request struct {
	Reference   string                `json:"reference"`
	Amount      decimal.Decimal       `json:"amount"`
	Method      domain.TransferMethod `json:"method"`
	Destination string                `json:"destination"`
	Purpose     string                `json:"purpose"`
}

// Receipt identifies the transfer on the gateway side
type Receipt struct {
	TransactionID     string `json:"transaction_id"`
	ExternalReference string `json:"external_reference"`
}

// Initiator starts an external money transfer.
//
//go:generate mockgen -destination=mocks/mock_initiator.go -source=initiator.go Initiator
type Initiator interface {
	Initiate(ctx context.Context, req Request) (Receipt, error)
}

// HTTPInitiator calls the gateway's REST API
type HTTPInitiator struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPInitiator creates a gateway client. Deadlines come from the context
// passed to Initiate.
func NewHTTPInitiator(baseURL, apiKey string, client *http.Client) *HTTPInitiator {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPInitiator{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

// Initiate implements Initiator
func (h *HTTPInitiator) Initiate(ctx context.Context, req Request) (Receipt, error) {
	if h.baseURL == "" {
		return Receipt{}, fmt.Errorf("%w: gateway not configured", domain.ErrExternalTransfer)
	}
	b, err := json.Marshal(req)
	if err != nil {
		return Receipt{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/transfers", bytes.NewReader(b))
	if err != nil {
		return Receipt{}, err
	}
	httpReq.SetBasicAuth(h.apiKey, "")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.Reference)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", domain.ErrExternalTransfer, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Receipt{}, fmt.Errorf("%w: gateway returned %s: %s", domain.ErrExternalTransfer, resp.Status, strings.TrimSpace(string(body)))
	}

	var out Receipt
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Receipt{}, fmt.Errorf("%w: decode gateway response: %v", domain.ErrExternalTransfer, err)
	}
	if out.TransactionID == "" {
		return Receipt{}, fmt.Errorf("%w: gateway returned empty transaction id", domain.ErrExternalTransfer)
	}
	return out, nil
}

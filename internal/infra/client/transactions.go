package client

import (
	"context"
	"net/url"
	"time"

	"github.com/boddenberg/ledger-bfa/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FetchTransactions loads the user's raw transaction list with retry,
// circuit breaker, and tracing.
func (c *FinanceClient) FetchTransactions(ctx context.Context, creds domain.Credentials, filter domain.FetchFilter) (domain.FetchResult, error) {
	path := "/api/Transaction/get"
	if filter.Kind != "" {
		path += "?" + url.Values{"type": {string(filter.Kind)}}.Encode()
	}

	var res domain.FetchResult
	err := c.do(ctx, call{
		op:     "FetchTransactions",
		method: "GET",
		path:   path,
		creds:  &creds,
		decode: func(body []byte) error {
			var err error
			res, err = DecodeEnvelope(body)
			return err
		},
	})
	if err != nil {
		return domain.FetchResult{}, err
	}
	return res, nil
}

type addBody struct {
	Title    string          `json:"title"`
	Amount   decimal.Decimal `json:"amount"`
	Type     domain.Kind     `json:"type"`
	Date     string          `json:"date"`
	Icon     string          `json:"icon,omitempty"`
	Category string          `json:"category,omitempty"`
}

// AddTransaction creates a transaction upstream. A request id header lets
// the remote side de-duplicate retried adds.
func (c *FinanceClient) AddTransaction(ctx context.Context, creds domain.Credentials, tx domain.NewTransaction) error {
	body := addBody{
		Title:  tx.Title,
		Amount: tx.Amount,
		Type:   tx.Type,
		Date:   tx.Date.UTC().Format(time.RFC3339Nano),
		Icon:   tx.Icon,
	}
	if tx.Icon != "" {
		body.Category = string(tx.Type)
	}
	return c.do(ctx, call{
		op:      "AddTransaction",
		method:  "POST",
		path:    "/api/Transaction/add",
		creds:   &creds,
		body:    body,
		headers: map[string]string{"X-Request-ID": uuid.NewString()},
	})
}

// EditTransaction updates title and amount of an existing transaction.
func (c *FinanceClient) EditTransaction(ctx context.Context, creds domain.Credentials, id string, upd domain.TransactionUpdate) error {
	return c.do(ctx, call{
		op:     "EditTransaction",
		method: "PUT",
		path:   "/api/Transaction/edit/" + url.PathEscape(id),
		creds:  &creds,
		body:   upd,
	})
}

// DeleteTransaction removes a transaction upstream.
func (c *FinanceClient) DeleteTransaction(ctx context.Context, creds domain.Credentials, id string) error {
	return c.do(ctx, call{
		op:     "DeleteTransaction",
		method: "DELETE",
		path:   "/api/Transaction/delete/" + url.PathEscape(id),
		creds:  &creds,
	})
}

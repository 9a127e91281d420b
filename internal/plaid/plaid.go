// Package plaid is a small client for the bank-data aggregation API: link
// tokens, token exchange, accounts, transactions and processor tokens.
package plaid

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/patric-chuzhbe/jjbank/internal/apperr"
	"github.com/patric-chuzhbe/jjbank/internal/restclient"
)

const (
	service = "plaid"

	EnvSandbox     = "sandbox"
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// ProcessorDwolla scopes a processor token to the payment rail.
	ProcessorDwolla = "dwolla"

	dateLayout = "2006-01-02"
)

var baseURLs = map[string]string{
	EnvSandbox:     "https://sandbox.plaid.com",
	EnvDevelopment: "https://development.plaid.com",
	EnvProduction:  "https://production.plaid.com",
}

// Link tokens are always requested for this product set and locale.
var (
	linkProducts     = []string{"auth"}
	linkCountryCodes = []string{"US"}
)

const linkLanguage = "en"

type Config struct {
	ClientID    string
	Secret      string
	Environment string
	BaseURL     string
	WebhookURL  string
	Timeout     time.Duration
}

type Client struct {
	rest       *resty.Client
	webhookURL string
}

func New(cfg Config) (*Client, error) {
	baseURL, ok := baseURLs[cfg.Environment]
	if !ok {
		return nil, fmt.Errorf(
			"in internal/plaid/plaid.go/New(): %w: unknown plaid environment %q",
			apperr.ErrConfiguration,
			cfg.Environment,
		)
	}
	if cfg.BaseURL != "" {
		baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	rest := restclient.New(restclient.Options{
		Service: service,
		BaseURL: baseURL,
		Timeout: cfg.Timeout,
	})
	rest.SetHeader("Content-Type", "application/json")
	rest.SetHeader("PLAID-CLIENT-ID", cfg.ClientID)
	rest.SetHeader("PLAID-SECRET", cfg.Secret)

	return &Client{rest: rest, webhookURL: cfg.WebhookURL}, nil
}

func (c *Client) call(ctx context.Context, op, path string, body, result any) error {
	resp, err := c.rest.R().SetContext(ctx).SetBody(body).SetResult(result).Post(path)

	return restclient.Check(service, op, resp, err)
}

type LinkTokenUser struct {
	ClientUserID string `json:"client_user_id"`
}

type linkTokenRequest struct {
	User         LinkTokenUser `json:"user"`
	ClientName   string        `json:"client_name"`
	Products     []string      `json:"products"`
	Language     string        `json:"language"`
	CountryCodes []string      `json:"country_codes"`
	Webhook      string        `json:"webhook,omitempty"`
}

// CreateLinkToken returns a link token for the user clientUserID.
func (c *Client) CreateLinkToken(ctx context.Context, clientUserID, clientName string) (string, error) {
	if clientUserID == "" {
		return "", apperr.NewValidationError("create link token", "clientUserID", "is required")
	}

	var result struct {
		LinkToken string `json:"link_token"`
	}
	err := c.call(ctx, "create link token", "/link/token/create", linkTokenRequest{
		User:         LinkTokenUser{ClientUserID: clientUserID},
		ClientName:   clientName,
		Products:     linkProducts,
		Language:     linkLanguage,
		CountryCodes: linkCountryCodes,
		Webhook:      c.webhookURL,
	}, &result)
	if err != nil {
		return "", err
	}

	return result.LinkToken, nil
}

type TokenExchange struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
}

// ExchangePublicToken trades a short-lived public token for durable access.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*TokenExchange, error) {
	if publicToken == "" {
		return nil, apperr.NewValidationError("exchange public token", "publicToken", "is required")
	}

	result := &TokenExchange{}
	if err := c.call(ctx, "exchange public token", "/item/public_token/exchange", map[string]string{
		"public_token": publicToken,
	}, result); err != nil {
		return nil, err
	}

	return result, nil
}

type Balances struct {
	Available       decimal.NullDecimal `json:"available"`
	Current         decimal.NullDecimal `json:"current"`
	ISOCurrencyCode string              `json:"iso_currency_code"`
}

type Account struct {
	AccountID    string   `json:"account_id"`
	Balances     Balances `json:"balances"`
	Mask         string   `json:"mask"`
	Name         string   `json:"name"`
	OfficialName string   `json:"official_name"`
	Type         string   `json:"type"`
	Subtype      string   `json:"subtype"`
}

type Item struct {
	ItemID        string `json:"item_id"`
	InstitutionID string `json:"institution_id"`
}

type AccountsResponse struct {
	Accounts []Account `json:"accounts"`
	Item     Item      `json:"item"`
}

func (c *Client) GetAccounts(ctx context.Context, accessToken string) (*AccountsResponse, error) {
	result := &AccountsResponse{}
	if err := c.call(ctx, "get accounts", "/accounts/get", map[string]string{
		"access_token": accessToken,
	}, result); err != nil {
		return nil, err
	}

	return result, nil
}

// CreateProcessorToken issues a token the payment rail can use to reach the account.
func (c *Client) CreateProcessorToken(ctx context.Context, accessToken, accountID string) (string, error) {
	var result struct {
		ProcessorToken string `json:"processor_token"`
	}
	if err := c.call(ctx, "create processor token", "/processor/token/create", map[string]string{
		"access_token": accessToken,
		"account_id":   accountID,
		"processor":    ProcessorDwolla,
	}, &result); err != nil {
		return "", err
	}

	return result.ProcessorToken, nil
}

type Transaction struct {
	TransactionID  string          `json:"transaction_id"`
	AccountID      string          `json:"account_id"`
	Name           string          `json:"name"`
	Amount         decimal.Decimal `json:"amount"`
	Date           string          `json:"date"`
	Category       []string        `json:"category"`
	PaymentChannel string          `json:"payment_channel"`
	Pending        bool            `json:"pending"`
}

type transactionsRequest struct {
	AccessToken string              `json:"access_token"`
	StartDate   string              `json:"start_date"`
	EndDate     string              `json:"end_date"`
	Options     transactionsOptions `json:"options"`
}

type transactionsOptions struct {
	Count      int      `json:"count"`
	Offset     int      `json:"offset"`
	AccountIDs []string `json:"account_ids,omitempty"`
}

const transactionsPageSize = 100

// GetTransactions returns every transaction of the item between start and
// end (inclusive days), optionally narrowed to accountIDs.
func (c *Client) GetTransactions(
	ctx context.Context,
	accessToken string,
	start time.Time,
	end time.Time,
	accountIDs ...string,
) ([]Transaction, error) {
	var transactions []Transaction
	for {
		var page struct {
			Transactions      []Transaction `json:"transactions"`
			TotalTransactions int           `json:"total_transactions"`
		}
		err := c.call(ctx, "get transactions", "/transactions/get", transactionsRequest{
			AccessToken: accessToken,
			StartDate:   start.Format(dateLayout),
			EndDate:     end.Format(dateLayout),
			Options: transactionsOptions{
				Count:      transactionsPageSize,
				Offset:     len(transactions),
				AccountIDs: accountIDs,
			},
		}, &page)
		if err != nil {
			return nil, err
		}

		transactions = append(transactions, page.Transactions...)
		if len(page.Transactions) == 0 || len(transactions) >= page.TotalTransactions {
			return transactions, nil
		}
	}
}

// RemoveItem revokes the access token; used to undo an aborted link.
func (c *Client) RemoveItem(ctx context.Context, accessToken string) error {
	var result struct {
		RequestID string `json:"request_id"`
	}

	return c.call(ctx, "remove item", "/item/remove", map[string]string{
		"access_token": accessToken,
	}, &result)
}

// JWK is a webhook verification public key.
type JWK struct {
	Alg       string `json:"alg"`
	Crv       string `json:"crv"`
	Kid       string `json:"kid"`
	Kty       string `json:"kty"`
	Use       string `json:"use"`
	X         string `json:"x"`
	Y         string `json:"y"`
	CreatedAt int64  `json:"created_at"`
	ExpiredAt *int64 `json:"expired_at"`
}

func (c *Client) GetWebhookVerificationKey(ctx context.Context, keyID string) (*JWK, error) {
	var result struct {
		Key JWK `json:"key"`
	}
	if err := c.call(ctx, "get webhook verification key", "/webhook_verification_key/get", map[string]string{
		"key_id": keyID,
	}, &result); err != nil {
		return nil, err
	}

	return &result.Key, nil
}

// Package dwolla is the payment-rail gateway: customers, funding sources and
// transfers. Every operation validates its input before any request is sent.
package dwolla

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/patric-chuzhbe/jjbank/internal/apperr"
	"github.com/patric-chuzhbe/jjbank/internal/logger"
	"github.com/patric-chuzhbe/jjbank/internal/restclient"
)

const (
	service = "dwolla"

	EnvSandbox    = "sandbox"
	EnvProduction = "production"

	// Currency of every transfer.
	Currency = "USD"

	halJSON = "application/vnd.dwolla.v1.hal+json"
)

var baseURLs = map[string]string{
	EnvSandbox:    "https://api-sandbox.dwolla.com",
	EnvProduction: "https://api.dwolla.com",
}

type Config struct {
	Environment string
	Key         string
	Secret      string
	// BaseURL overrides the environment's API root.
	BaseURL string
	Timeout time.Duration
}

// Link is a HAL link.
type Link struct {
	Href string `json:"href"`
}

// Links is a HAL "_links" object.
type Links map[string]Link

type NewCustomerParams struct {
	FirstName   string `json:"firstName" validate:"required"`
	LastName    string `json:"lastName" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Type        string `json:"type"`
	Address1    string `json:"address1,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	PostalCode  string `json:"postalCode,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	SSN         string `json:"ssn,omitempty"`
}

type FundingSourceParams struct {
	CustomerID        string `validate:"required"`
	FundingSourceName string `validate:"required"`
	PlaidToken        string `validate:"required"`
	Links             Links
}

type AddFundingSourceParams struct {
	DwollaCustomerID string `validate:"required"`
	ProcessorToken   string `validate:"required"`
	BankName         string `validate:"required"`
}

// TransferParams.Amount is a decimal string such as "10.50", at most two
// decimal places.
type TransferParams struct {
	SourceURL      string `validate:"required,url"`
	DestinationURL string `validate:"required,url"`
	Amount         string `validate:"required,positive_amount"`
}

type Client struct {
	rest     *resty.Client
	validate *validator.Validate
}

// New validates cfg and builds a client. An unknown environment fails with
// apperr.ErrConfiguration.
func New(cfg Config) (*Client, error) {
	baseURL, ok := baseURLs[cfg.Environment]
	if !ok {
		return nil, fmt.Errorf(
			"in internal/dwolla/dwolla.go/New(): %w: dwolla environment should either be set to `sandbox` or `production`, got %q",
			apperr.ErrConfiguration,
			cfg.Environment,
		)
	}
	if cfg.BaseURL != "" {
		baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	credentials := clientcredentials.Config{
		ClientID:     cfg.Key,
		ClientSecret: cfg.Secret,
		TokenURL:     baseURL + "/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: cfg.Timeout})

	rest := restclient.New(restclient.Options{
		Service:    service,
		BaseURL:    baseURL,
		Timeout:    cfg.Timeout,
		HTTPClient: credentials.Client(tokenCtx),
	})
	rest.SetHeader("Accept", halJSON)
	rest.SetHeader("Content-Type", halJSON)

	validate := validator.New()
	if err := validate.RegisterValidation("positive_amount", positiveAmount); err != nil {
		return nil, fmt.Errorf("in internal/dwolla/dwolla.go/New(): error while `validate.RegisterValidation()` calling: %w", err)
	}

	return &Client{rest: rest, validate: validate}, nil
}

// ValidAmount reports whether amount can be sent as is: positive and in
// whole cents. The rail takes two decimal places, so anything finer would be
// rounded into a different sum.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}

func positiveAmount(fl validator.FieldLevel) bool {
	amount, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
	if err != nil {
		return false
	}
	return ValidAmount(amount)
}

func (c *Client) post(ctx context.Context, op, url string, body any) (*resty.Response, error) {
	request := c.rest.R().SetContext(ctx)
	if body != nil {
		request.SetBody(body)
	}
	resp, err := request.Post(url)
	if err := restclient.Check(service, op, resp, err); err != nil {
		logger.Log.Debugln("Error calling the dwolla `"+op+"`: ", zap.Error(err))
		return nil, err
	}

	return resp, nil
}

// location returns the created resource; a success without it is a
// vendor failure.
func location(op string, resp *resty.Response) (string, error) {
	loc := resp.Header().Get("Location")
	if loc == "" {
		return "", &apperr.ExternalServiceError{
			Service:    service,
			Op:         op,
			StatusCode: resp.StatusCode(),
			Message:    "response has no Location header",
		}
	}
	return loc, nil
}

// CreateCustomer registers a personal customer and returns its URL.
func (c *Client) CreateCustomer(ctx context.Context, params NewCustomerParams) (string, error) {
	const op = "create customer"
	if err := c.validate.Struct(params); err != nil {
		return "", apperr.FromValidator(op, err)
	}
	if params.Type == "" {
		params.Type = "personal"
	}

	resp, err := c.post(ctx, op, "/customers", params)
	if err != nil {
		return "", err
	}

	return location(op, resp)
}

// CreateOnDemandAuthorization returns the links of a fresh single-use
// authorization needed to co-sign funding source creation.
func (c *Client) CreateOnDemandAuthorization(ctx context.Context) (Links, error) {
	const op = "create on-demand authorization"

	var body struct {
		Links Links `json:"_links"`
	}
	resp, err := c.rest.R().SetContext(ctx).SetResult(&body).Post("/on-demand-authorizations")
	if err := restclient.Check(service, op, resp, err); err != nil {
		return nil, err
	}

	return body.Links, nil
}

// CreateFundingSource attaches a bank account to a customer and returns the
// funding source URL.
func (c *Client) CreateFundingSource(ctx context.Context, params FundingSourceParams) (string, error) {
	const op = "create funding source"
	if err := c.validate.Struct(params); err != nil {
		return "", apperr.FromValidator(op, err)
	}

	body := map[string]any{
		"name":       params.FundingSourceName,
		"plaidToken": params.PlaidToken,
	}
	if len(params.Links) > 0 {
		body["_links"] = params.Links
	}

	resp, err := c.post(ctx, op, "/customers/"+params.CustomerID+"/funding-sources", body)
	if err != nil {
		return "", err
	}

	return location(op, resp)
}

// AddFundingSource obtains an on-demand authorization and uses it to create
// the funding source.
func (c *Client) AddFundingSource(ctx context.Context, params AddFundingSourceParams) (string, error) {
	const op = "add funding source"
	if err := c.validate.Struct(params); err != nil {
		return "", apperr.FromValidator(op, err)
	}

	links, err := c.CreateOnDemandAuthorization(ctx)
	if err != nil {
		return "", err
	}

	return c.CreateFundingSource(ctx, FundingSourceParams{
		CustomerID:        params.DwollaCustomerID,
		FundingSourceName: params.BankName,
		PlaidToken:        params.ProcessorToken,
		Links:             links,
	})
}

// CreateTransfer moves Amount USD between two funding sources and returns the
// transfer URL.
func (c *Client) CreateTransfer(ctx context.Context, params TransferParams) (string, error) {
	const op = "create transfer"
	if err := c.validate.Struct(params); err != nil {
		return "", apperr.FromValidator(op, err)
	}
	amount, _ := decimal.NewFromString(strings.TrimSpace(params.Amount))

	body := map[string]any{
		"_links": Links{
			"source":      {Href: params.SourceURL},
			"destination": {Href: params.DestinationURL},
		},
		"amount": map[string]string{
			"currency": Currency,
			"value":    amount.StringFixed(2),
		},
	}

	resp, err := c.post(ctx, op, "/transfers", body)
	if err != nil {
		return "", err
	}

	return location(op, resp)
}

// RemoveFundingSource soft-deletes a funding source.
func (c *Client) RemoveFundingSource(ctx context.Context, fundingSourceURL string) error {
	if fundingSourceURL == "" {
		return apperr.NewValidationError("remove funding source", "fundingSourceURL", "is required")
	}
	_, err := c.post(ctx, "remove funding source", fundingSourceURL, map[string]bool{"removed": true})

	return err
}

// CancelTransfer cancels a transfer that is still pending.
func (c *Client) CancelTransfer(ctx context.Context, transferURL string) error {
	if transferURL == "" {
		return apperr.NewValidationError("cancel transfer", "transferURL", "is required")
	}
	_, err := c.post(ctx, "cancel transfer", transferURL, map[string]string{"status": "cancelled"})

	return err
}

// DeactivateCustomer deactivates a customer created by an aborted sign-up.
func (c *Client) DeactivateCustomer(ctx context.Context, customerURL string) error {
	if customerURL == "" {
		return apperr.NewValidationError("deactivate customer", "customerURL", "is required")
	}
	_, err := c.post(ctx, "deactivate customer", customerURL, map[string]string{"status": "deactivated"})

	return err
}

// ExtractCustomerID returns the id segment following "customers/" in a
// customer URL, or "" if there is none.
func ExtractCustomerID(customerURL string) string {
	_, rest, found := strings.Cut(customerURL, "customers/")
	if !found {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")

	return id
}

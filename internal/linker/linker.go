// Package linker turns a public token from the bank link widget into a
// funding source and a stored bank account record.
//
// The steps are strictly sequential. Each one that leaves something behind at
// a vendor registers an undo action, and a failure anywhere runs those undo
// actions in reverse, so an aborted link leaves neither a live access token
// nor a dangling funding source.
package linker

import (
	"context"
	"errors"
	"fmt"

	validator "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/jjbank/internal/apperr"
	"github.com/patric-chuzhbe/jjbank/internal/db/storage"
	"github.com/patric-chuzhbe/jjbank/internal/dwolla"
	"github.com/patric-chuzhbe/jjbank/internal/logger"
	"github.com/patric-chuzhbe/jjbank/internal/models"
	"github.com/patric-chuzhbe/jjbank/internal/plaid"
	"github.com/patric-chuzhbe/jjbank/internal/saga"
)

var (
	ErrNoAccounts      = errors.New("the linked item exposes no accounts")
	ErrNoFundingSource = errors.New("no funding source URL returned")
)

type aggregator interface {
	ExchangePublicToken(ctx context.Context, publicToken string) (*plaid.TokenExchange, error)
	GetAccounts(ctx context.Context, accessToken string) (*plaid.AccountsResponse, error)
	CreateProcessorToken(ctx context.Context, accessToken, accountID string) (string, error)
	RemoveItem(ctx context.Context, accessToken string) error
}

type fundingSources interface {
	AddFundingSource(ctx context.Context, params dwolla.AddFundingSourceParams) (string, error)
	RemoveFundingSource(ctx context.Context, fundingSourceURL string) error
}

type documentCreator interface {
	CreateDocument(ctx context.Context, collection string, data map[string]any) (storage.Document, error)
}

type encrypter interface {
	Encrypt(id string) (string, error)
}

type revalidator interface {
	Revalidate(ctx context.Context, userIDs ...string)
}

type Linker struct {
	plaid          aggregator
	dwolla         fundingSources
	store          documentCreator
	shareIDs       encrypter
	pages          revalidator
	bankCollection string
	validate       *validator.Validate
}

func New(
	bankData aggregator,
	paymentRail fundingSources,
	store documentCreator,
	shareIDs encrypter,
	pages revalidator,
	bankCollection string,
) *Linker {
	return &Linker{
		plaid:          bankData,
		dwolla:         paymentRail,
		store:          store,
		shareIDs:       shareIDs,
		pages:          pages,
		bankCollection: bankCollection,
		validate:       validator.New(),
	}
}

// ExchangeParams.AccountID picks one account of a multi-account item. When
// empty the first account returned by the aggregator is linked.
type ExchangeParams struct {
	PublicToken string `json:"publicToken" validate:"required"`
	AccountID   string `json:"accountId"`
}

// ExchangePublicToken links the bank behind params.PublicToken to user and
// returns the stored record.
func (l *Linker) ExchangePublicToken(
	ctx context.Context,
	params ExchangeParams,
	user *models.User,
) (*models.BankAccount, error) {
	const op = "exchange public token"

	if user == nil {
		return nil, apperr.ErrNoSession
	}
	if err := l.validate.Struct(params); err != nil {
		return nil, apperr.FromValidator(op, err)
	}
	if user.DwollaCustomerID == "" {
		return nil, apperr.NewValidationError(op, "dwollaCustomerId", "is required")
	}

	var (
		exchange         *plaid.TokenExchange
		accounts         *plaid.AccountsResponse
		processorToken   string
		fundingSourceURL string
	)
	flow := saga.New("bank link")

	err := flow.Run(ctx, saga.Step{
		Name: "exchange public token",
		Do: func(ctx context.Context) (err error) {
			exchange, err = l.plaid.ExchangePublicToken(ctx, params.PublicToken)
			return err
		},
		Compensate: func(ctx context.Context) error {
			return l.plaid.RemoveItem(ctx, exchange.AccessToken)
		},
	})
	if err != nil {
		return nil, err
	}

	err = flow.Run(ctx, saga.Step{
		Name: "get accounts",
		Do: func(ctx context.Context) (err error) {
			accounts, err = l.plaid.GetAccounts(ctx, exchange.AccessToken)
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	account, err := selectAccount(accounts.Accounts, params.AccountID)
	if err != nil {
		return nil, flow.Fail(ctx, "select account", err)
	}

	err = flow.Run(ctx, saga.Step{
		Name: "create processor token",
		Do: func(ctx context.Context) (err error) {
			processorToken, err = l.plaid.CreateProcessorToken(ctx, exchange.AccessToken, account.AccountID)
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	err = flow.Run(ctx, saga.Step{
		Name: "add funding source",
		Do: func(ctx context.Context) (err error) {
			fundingSourceURL, err = l.dwolla.AddFundingSource(ctx, dwolla.AddFundingSourceParams{
				DwollaCustomerID: user.DwollaCustomerID,
				ProcessorToken:   processorToken,
				BankName:         account.Name,
			})
			return err
		},
		Compensate: func(ctx context.Context) error {
			if fundingSourceURL == "" {
				return nil
			}
			return l.dwolla.RemoveFundingSource(ctx, fundingSourceURL)
		},
	})
	if err != nil {
		return nil, err
	}
	if fundingSourceURL == "" {
		return nil, flow.Fail(ctx, "add funding source", ErrNoFundingSource)
	}

	shareableID, err := l.shareIDs.Encrypt(account.AccountID)
	if err != nil {
		return nil, flow.Fail(ctx, "encrypt account id", err)
	}

	bank := &models.BankAccount{
		UserID:           user.ID,
		BankID:           exchange.ItemID,
		AccountID:        account.AccountID,
		AccessToken:      exchange.AccessToken,
		FundingSourceURL: fundingSourceURL,
		ShareableID:      shareableID,
	}
	err = flow.Run(ctx, saga.Step{
		Name: "create bank account",
		Do: func(ctx context.Context) error {
			data, err := storage.Encode(bank)
			if err != nil {
				return err
			}
			doc, err := l.store.CreateDocument(ctx, l.bankCollection, data)
			if err != nil {
				logger.Log.Debugln("Error calling the `l.store.CreateDocument()`: ", zap.Error(err))
				if !apperr.IsExternal(err) {
					err = &apperr.ExternalServiceError{Service: "document store", Op: "create bank account", Err: err}
				}
				return err
			}
			bank.ID = doc.ID
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	l.pages.Revalidate(ctx, user.ID)
	logger.Log.Infow("bank linked", "user", user.ID, "bank", bank.ID, "item", bank.BankID)

	return bank, nil
}

func selectAccount(accounts []plaid.Account, accountID string) (*plaid.Account, error) {
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	if accountID == "" {
		return &accounts[0], nil
	}

	for i := range accounts {
		if accounts[i].AccountID == accountID {
			return &accounts[i], nil
		}
	}

	return nil, apperr.NewValidationError("exchange public token", "accountId", fmt.Sprintf("%q is not an account of the linked item", accountID))
}

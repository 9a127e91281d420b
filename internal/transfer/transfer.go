// Package transfer sends money from one of the caller's banks to the bank
// behind a shareable id and records the movement.
package transfer

import (
	"context"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/jjbank/internal/apperr"
	"github.com/patric-chuzhbe/jjbank/internal/db/storage"
	"github.com/patric-chuzhbe/jjbank/internal/dwolla"
	"github.com/patric-chuzhbe/jjbank/internal/logger"
	"github.com/patric-chuzhbe/jjbank/internal/models"
	"github.com/patric-chuzhbe/jjbank/internal/saga"
)

const (
	op = "send transfer"

	defaultName = "Transfer"
	channel     = "online"
	category    = "Transfer"
)

type bankLookup interface {
	GetBank(ctx context.Context, documentID string) (*models.BankAccount, error)
	GetBankByAccountID(ctx context.Context, accountID string) (*models.BankAccount, error)
}

type paymentRail interface {
	CreateTransfer(ctx context.Context, params dwolla.TransferParams) (string, error)
	CancelTransfer(ctx context.Context, transferURL string) error
}

type documentCreator interface {
	CreateDocument(ctx context.Context, collection string, data map[string]any) (storage.Document, error)
}

type decrypter interface {
	Decrypt(token string) (string, error)
}

type revalidator interface {
	Revalidate(ctx context.Context, userIDs ...string)
}

type Service struct {
	banks      bankLookup
	rail       paymentRail
	store      documentCreator
	shareIDs   decrypter
	pages      revalidator
	collection string
	validate   *validator.Validate
	now        func() time.Time
}

func New(
	banks bankLookup,
	rail paymentRail,
	store documentCreator,
	shareIDs decrypter,
	pages revalidator,
	transactionCollection string,
) *Service {
	return &Service{
		banks:      banks,
		rail:       rail,
		store:      store,
		shareIDs:   shareIDs,
		pages:      pages,
		collection: transactionCollection,
		validate:   validator.New(),
		now:        time.Now,
	}
}

// SendParams is the payment-transfer form. SenderBankID is the bank record
// id of one of the caller's banks; Amount is a decimal string.
type SendParams struct {
	SenderBankID        string `json:"senderBank" validate:"required"`
	ReceiverShareableID string `json:"sharableId" validate:"required"`
	Amount              string `json:"amount" validate:"required"`
	Email               string `json:"email" validate:"required,email"`
	Name                string `json:"name"`
}

// Send executes the transfer and returns the recorded transaction.
func (s *Service) Send(ctx context.Context, user *models.User, params SendParams) (*models.Transaction, error) {
	if user == nil {
		return nil, apperr.ErrNoSession
	}
	if err := s.validate.Struct(params); err != nil {
		return nil, apperr.FromValidator(op, err)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(params.Amount))
	if err != nil || !dwolla.ValidAmount(amount) {
		return nil, apperr.NewValidationError(op, "amount", "must be a positive amount in whole cents")
	}

	receiverAccountID, err := s.shareIDs.Decrypt(params.ReceiverShareableID)
	if err != nil {
		return nil, apperr.NewValidationError(op, "sharableId", "is not a valid shareable id")
	}

	receiver, err := s.banks.GetBankByAccountID(ctx, receiverAccountID)
	if err != nil {
		return nil, err
	}
	if receiver == nil {
		return nil, apperr.NewValidationError(op, "sharableId", "does not identify a linked bank")
	}

	sender, err := s.banks.GetBank(ctx, params.SenderBankID)
	if err != nil {
		return nil, err
	}
	if sender == nil || sender.UserID != user.ID {
		return nil, apperr.NewValidationError(op, "senderBank", "is not one of your banks")
	}

	var transferURL string
	flow := saga.New("payment transfer")

	err = flow.Run(ctx, saga.Step{
		Name: "create transfer",
		Do: func(ctx context.Context) (err error) {
			transferURL, err = s.rail.CreateTransfer(ctx, dwolla.TransferParams{
				SourceURL:      sender.FundingSourceURL,
				DestinationURL: receiver.FundingSourceURL,
				Amount:         amount.String(),
			})
			return err
		},
		Compensate: func(ctx context.Context) error {
			return s.rail.CancelTransfer(ctx, transferURL)
		},
	})
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(params.Name)
	if name == "" {
		name = defaultName
	}
	tx := &models.Transaction{
		Name:           name,
		Amount:         amount,
		Channel:        channel,
		Category:       category,
		SenderID:       user.ID,
		SenderBankID:   sender.ID,
		ReceiverID:     receiver.UserID,
		ReceiverBankID: receiver.ID,
		Email:          params.Email,
		TransferURL:    transferURL,
		CreatedAt:      s.now().UTC(),
	}

	err = flow.Run(ctx, saga.Step{
		Name: "record transaction",
		Do: func(ctx context.Context) error {
			data, err := storage.Encode(tx)
			if err != nil {
				return err
			}
			doc, err := s.store.CreateDocument(ctx, s.collection, data)
			if err != nil {
				logger.Log.Debugln("Error calling the `s.store.CreateDocument()`: ", zap.Error(err))
				if !apperr.IsExternal(err) {
					err = &apperr.ExternalServiceError{Service: "document store", Op: "record transaction", Err: err}
				}
				return err
			}
			tx.ID = doc.ID
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	s.pages.Revalidate(ctx, sender.UserID, receiver.UserID)
	logger.Log.Infow("transfer sent", "sender", sender.ID, "receiver", receiver.ID, "amount", amount.String())

	return tx, nil
}

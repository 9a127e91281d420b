// Package accounts answers the read side: which banks a user linked, their
// balances, and each account's transaction history.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/jjbank/internal/apperr"
	"github.com/patric-chuzhbe/jjbank/internal/db/storage"
	"github.com/patric-chuzhbe/jjbank/internal/logger"
	"github.com/patric-chuzhbe/jjbank/internal/models"
	"github.com/patric-chuzhbe/jjbank/internal/plaid"
)

// ErrBankNotFound is returned by GetAccount for an unknown record id.
var ErrBankNotFound = errors.New("bank not found")

const historyDays = 30

type documentLister interface {
	ListDocuments(ctx context.Context, collection string, queries ...storage.Query) (storage.DocumentList, error)
}

type bankData interface {
	GetAccounts(ctx context.Context, accessToken string) (*plaid.AccountsResponse, error)
	GetTransactions(ctx context.Context, accessToken string, start, end time.Time, accountIDs ...string) ([]plaid.Transaction, error)
}

type Config struct {
	BankCollection        string
	TransactionCollection string
}

type Service struct {
	store documentLister
	plaid bankData
	cfg   Config
	now   func() time.Time
}

func New(store documentLister, aggregator bankData, cfg Config) *Service {
	return &Service{store: store, plaid: aggregator, cfg: cfg, now: time.Now}
}

func (s *Service) listBanks(ctx context.Context, op string, query storage.Query) ([]models.BankAccount, error) {
	list, err := s.store.ListDocuments(ctx, s.cfg.BankCollection, query)
	if err != nil {
		logger.Log.Debugln("Error calling the `s.store.ListDocuments()`: ", zap.Error(err))
		if !apperr.IsExternal(err) {
			err = &apperr.ExternalServiceError{Service: "document store", Op: op, Err: err}
		}
		return nil, err
	}

	banks := make([]models.BankAccount, 0, len(list.Documents))
	for _, doc := range list.Documents {
		var bank models.BankAccount
		if err := storage.Decode(doc, &bank); err != nil {
			return nil, fmt.Errorf("in internal/accounts/accounts.go/listBanks(): error while `storage.Decode()` calling: %w", err)
		}
		banks = append(banks, bank)
	}

	return banks, nil
}

// GetBanks returns the user's bank records in insertion order.
func (s *Service) GetBanks(ctx context.Context, userID string) ([]models.BankAccount, error) {
	return s.listBanks(ctx, "get banks", storage.Equal("userId", userID))
}

// GetBank returns the record with the given document id, or nil.
func (s *Service) GetBank(ctx context.Context, documentID string) (*models.BankAccount, error) {
	banks, err := s.listBanks(ctx, "get bank", storage.Equal(storage.AttributeID, documentID))
	if err != nil || len(banks) == 0 {
		return nil, err
	}

	return &banks[0], nil
}

// GetBankByAccountID returns the record only when exactly one matches; an
// ambiguous account id is reported as not found.
func (s *Service) GetBankByAccountID(ctx context.Context, accountID string) (*models.BankAccount, error) {
	banks, err := s.listBanks(ctx, "get bank by account id", storage.Equal("accountId", accountID))
	if err != nil || len(banks) != 1 {
		return nil, err
	}

	return &banks[0], nil
}

// GetBankByItemID returns the first record of an aggregator item, or nil.
func (s *Service) GetBankByItemID(ctx context.Context, itemID string) (*models.BankAccount, error) {
	banks, err := s.listBanks(ctx, "get bank by item id", storage.Equal("bankId", itemID))
	if err != nil || len(banks) == 0 {
		return nil, err
	}

	return &banks[0], nil
}

func (s *Service) account(ctx context.Context, bank models.BankAccount) (models.Account, error) {
	response, err := s.plaid.GetAccounts(ctx, bank.AccessToken)
	if err != nil {
		return models.Account{}, err
	}
	if len(response.Accounts) == 0 {
		return models.Account{}, &apperr.ExternalServiceError{Service: "plaid", Op: "get accounts", Message: "no accounts returned"}
	}

	selected := response.Accounts[0]
	for _, candidate := range response.Accounts {
		if candidate.AccountID == bank.AccountID {
			selected = candidate
			break
		}
	}

	return models.Account{
		ID:               selected.AccountID,
		AvailableBalance: selected.Balances.Available.Decimal,
		CurrentBalance:   selected.Balances.Current.Decimal,
		InstitutionID:    response.Item.InstitutionID,
		Name:             selected.Name,
		OfficialName:     selected.OfficialName,
		Mask:             selected.Mask,
		Type:             selected.Type,
		Subtype:          selected.Subtype,
		BankRecordID:     bank.ID,
		ShareableID:      bank.ShareableID,
	}, nil
}

// GetAccounts fetches live balances for every bank of the user.
func (s *Service) GetAccounts(ctx context.Context, userID string) (*models.AccountsSummary, error) {
	banks, err := s.GetBanks(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &models.AccountsSummary{
		Accounts:            make([]models.Account, 0, len(banks)),
		TotalBanks:          len(banks),
		TotalCurrentBalance: decimal.Zero,
	}
	for _, bank := range banks {
		account, err := s.account(ctx, bank)
		if err != nil {
			logger.Log.Debugln("Error calling the `s.account()`: ", zap.Error(err))
			return nil, err
		}
		summary.Accounts = append(summary.Accounts, account)
		summary.TotalCurrentBalance = summary.TotalCurrentBalance.Add(account.CurrentBalance)
	}

	return summary, nil
}

// GetAccount returns one account with the last 30 days of aggregator
// transactions merged with the transfers recorded for it, newest first.
func (s *Service) GetAccount(ctx context.Context, documentID string) (*models.AccountDetail, error) {
	bank, err := s.GetBank(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if bank == nil {
		return nil, ErrBankNotFound
	}

	account, err := s.account(ctx, *bank)
	if err != nil {
		return nil, err
	}

	end := s.now().UTC()
	transactions, err := s.plaid.GetTransactions(ctx, bank.AccessToken, end.AddDate(0, 0, -historyDays), end, bank.AccountID)
	if err != nil {
		logger.Log.Debugln("Error calling the `s.plaid.GetTransactions()`: ", zap.Error(err))
		return nil, err
	}

	history := make([]models.TransactionView, 0, len(transactions))
	for _, tx := range transactions {
		history = append(history, fromAggregator(tx))
	}

	transfers, err := s.GetTransfers(ctx, bank.ID)
	if err != nil {
		return nil, err
	}
	for _, tx := range transfers {
		history = append(history, fromTransfer(tx, bank.ID))
	}

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Date.After(history[j].Date)
	})

	return &models.AccountDetail{Account: account, Transactions: history}, nil
}

// GetTransfers returns the recorded transfers sent or received by the bank
// record bankID, oldest first.
func (s *Service) GetTransfers(ctx context.Context, bankID string) ([]models.Transaction, error) {
	var result []models.Transaction
	for _, attribute := range []string{"senderBankId", "receiverBankId"} {
		list, err := s.store.ListDocuments(ctx, s.cfg.TransactionCollection, storage.Equal(attribute, bankID))
		if err != nil {
			if !apperr.IsExternal(err) {
				err = &apperr.ExternalServiceError{Service: "document store", Op: "get transfers", Err: err}
			}
			return nil, err
		}
		for _, doc := range list.Documents {
			var tx models.Transaction
			if err := storage.Decode(doc, &tx); err != nil {
				return nil, fmt.Errorf("in internal/accounts/accounts.go/GetTransfers(): error while `storage.Decode()` calling: %w", err)
			}
			if tx.CreatedAt.IsZero() {
				tx.CreatedAt = doc.CreatedAt
			}
			result = append(result, tx)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func fromAggregator(tx plaid.Transaction) models.TransactionView {
	date, _ := time.Parse("2006-01-02", tx.Date)

	view := models.TransactionView{
		ID:             tx.TransactionID,
		Name:           tx.Name,
		Amount:         tx.Amount,
		Date:           date,
		Category:       strings.Join(tx.Category, ", "),
		PaymentChannel: tx.PaymentChannel,
		Pending:        tx.Pending,
		Type:           "debit",
		Source:         models.SourceAggregator,
	}
	// Positive aggregator amounts leave the account.
	if tx.Amount.IsNegative() {
		view.Type = "credit"
	}

	return view
}

func fromTransfer(tx models.Transaction, bankID string) models.TransactionView {
	view := models.TransactionView{
		ID:             tx.ID,
		Name:           tx.Name,
		Amount:         tx.Amount,
		Date:           tx.CreatedAt,
		Category:       tx.Category,
		PaymentChannel: tx.Channel,
		Type:           "debit",
		Source:         models.SourceTransfer,
	}
	if tx.ReceiverBankID == bankID {
		view.Type = "credit"
		view.Amount = tx.Amount.Neg()
	}

	return view
}

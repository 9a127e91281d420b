// Package models holds the data shapes shared between the workflows, the
// document storage and the HTTP layer.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the profile document stored for every signed-up person.
type User struct {
	ID                string `json:"$id,omitempty"`
	UserID            string `json:"userId"`
	Email             string `json:"email"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Address1          string `json:"address1,omitempty"`
	City              string `json:"city,omitempty"`
	State             string `json:"state,omitempty"`
	PostalCode        string `json:"postalCode,omitempty"`
	DateOfBirth       string `json:"dateOfBirth,omitempty"`
	DwollaCustomerID  string `json:"dwollaCustomerId"`
	DwollaCustomerURL string `json:"dwollaCustomerUrl"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// BankAccount is the record written once per successfully linked bank.
// It is never updated.
type BankAccount struct {
	ID               string `json:"$id,omitempty"`
	UserID           string `json:"userId"`
	BankID           string `json:"bankId"`
	AccountID        string `json:"accountId"`
	AccessToken      string `json:"accessToken"`
	FundingSourceURL string `json:"fundingSourceUrl"`
	ShareableID      string `json:"sharableId"`
}

// Transaction is a recorded payment transfer between two linked banks.
type Transaction struct {
	ID             string          `json:"$id,omitempty"`
	Name           string          `json:"name"`
	Amount         decimal.Decimal `json:"amount"`
	Channel        string          `json:"channel"`
	Category       string          `json:"category"`
	SenderID       string          `json:"senderId"`
	SenderBankID   string          `json:"senderBankId"`
	ReceiverID     string          `json:"receiverId"`
	ReceiverBankID string          `json:"receiverBankId"`
	Email          string          `json:"email"`
	TransferURL    string          `json:"transferUrl"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Account is the read view of a linked bank: the aggregator's metadata and
// balances joined with the local record.
type Account struct {
	ID               string          `json:"id"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	CurrentBalance   decimal.Decimal `json:"currentBalance"`
	InstitutionID    string          `json:"institutionId"`
	Name             string          `json:"name"`
	OfficialName     string          `json:"officialName"`
	Mask             string          `json:"mask"`
	Type             string          `json:"type"`
	Subtype          string          `json:"subtype"`
	BankRecordID     string          `json:"appwriteItemId"`
	ShareableID      string          `json:"sharableId"`
}

// AccountsSummary is what the home and my-banks pages display.
type AccountsSummary struct {
	Accounts            []Account       `json:"data"`
	TotalBanks          int             `json:"totalBanks"`
	TotalCurrentBalance decimal.Decimal `json:"totalCurrentBalance"`
}

// TransactionSource tells where a history line came from.
type TransactionSource string

const (
	SourceAggregator TransactionSource = "bank"
	SourceTransfer   TransactionSource = "transfer"
)

// TransactionView is one line of an account's history.
type TransactionView struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Amount         decimal.Decimal   `json:"amount"`
	Date           time.Time         `json:"date"`
	Category       string            `json:"category"`
	PaymentChannel string            `json:"paymentChannel"`
	Pending        bool              `json:"pending"`
	Type           string            `json:"type"`
	Source         TransactionSource `json:"source"`
}

// AccountDetail is an account with its transaction history, newest first.
type AccountDetail struct {
	Account      Account           `json:"data"`
	Transactions []TransactionView `json:"transactions"`
}

// Caller is the result of resolving the current request's identity.
// It is either Authenticated or Anonymous.
type Caller interface {
	isCaller()
}

// Authenticated carries the signed-in user's profile.
type Authenticated struct {
	User *User
}

// Anonymous means the request has no valid session. Reason is kept for logging only.
type Anonymous struct {
	Reason error
}

func (Authenticated) isCaller() {}
func (Anonymous) isCaller()     {}

// UserOf returns the profile of an Authenticated caller, or nil.
func UserOf(caller Caller) *User {
	if authenticated, ok := caller.(Authenticated); ok {
		return authenticated.User
	}
	return nil
}

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeAppwrite
	StorageTypeFile
	StorageTypeMemory
)

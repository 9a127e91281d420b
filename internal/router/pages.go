package router

import (
	"net/http"

	"github.com/patric-chuzhbe/jjbank/internal/accounts"
	"github.com/patric-chuzhbe/jjbank/internal/apperr"
	"github.com/patric-chuzhbe/jjbank/internal/auth"
	"github.com/patric-chuzhbe/jjbank/internal/models"
)

const recentTransactions = 10

// accountPage loads the summary of user's banks and, when there is at least
// one, the detail of the bank chosen by the "id" query parameter or of the
// first bank. A bank id that is not one of the user's is not found.
func (router *Router) accountPage(request *http.Request, user *models.User, title string) (pageData, error) {
	data := pageData{Title: title, User: user}
	ctx := request.Context()

	summary, err := router.accounts.GetAccounts(ctx, user.ID)
	if err != nil {
		return data, err
	}
	data.Summary = summary
	if summary.TotalBanks == 0 {
		data.Message = MessageNoAccounts
		return data, nil
	}

	selected := request.URL.Query().Get("id")
	if selected == "" {
		selected = summary.Accounts[0].BankRecordID
	}
	owned := false
	for _, account := range summary.Accounts {
		if account.BankRecordID == selected {
			owned = true
			break
		}
	}
	if !owned {
		return data, accounts.ErrBankNotFound
	}
	data.Selected = selected

	detail, err := router.accounts.GetAccount(ctx, selected)
	if err != nil {
		return data, err
	}
	data.Detail = detail

	return data, nil
}

// GetRoot is the home page: total balance and the recent transactions of
// the selected bank.
func (router *Router) GetRoot(response http.ResponseWriter, request *http.Request) {
	user := auth.UserFrom(request.Context())
	if user == nil {
		router.renderError(response, "home", pageData{Title: "Home"}, apperr.ErrNoSession)
		return
	}

	key := "home"
	if id := request.URL.Query().Get("id"); id != "" {
		key += ":" + id
	}
	router.cachedPage(response, request, user, key, "home", func() (pageData, error) {
		data, err := router.accountPage(request, user, "Home")
		if err == nil && data.Detail != nil && len(data.Detail.Transactions) > recentTransactions {
			data.Detail.Transactions = data.Detail.Transactions[:recentTransactions]
		}
		return data, err
	})
}

// GetMybanks lists every linked bank with its balances and shareable id.
func (router *Router) GetMybanks(response http.ResponseWriter, request *http.Request) {
	user := auth.UserFrom(request.Context())
	if user == nil {
		router.renderError(response, "my-banks", pageData{Title: "My Banks"}, apperr.ErrNoSession)
		return
	}

	router.cachedPage(response, request, user, "my-banks", "my-banks", func() (pageData, error) {
		data := pageData{Title: "My Banks", User: user}
		summary, err := router.accounts.GetAccounts(request.Context(), user.ID)
		if err != nil {
			return data, err
		}
		data.Summary = summary
		if summary.TotalBanks == 0 {
			data.Message = MessageNoAccounts
		}
		return data, nil
	})
}

// GetTransactionhistory shows the full 30-day history of one bank.
func (router *Router) GetTransactionhistory(response http.ResponseWriter, request *http.Request) {
	user := auth.UserFrom(request.Context())
	if user == nil {
		router.renderError(response, "transaction-history", pageData{Title: "Transaction History"}, apperr.ErrNoSession)
		return
	}

	data, err := router.accountPage(request, user, "Transaction History")
	if err != nil {
		router.renderError(response, "transaction-history", data, err)
		return
	}

	router.render(response, http.StatusOK, "transaction-history", data)
}

func (router *Router) transferPage(request *http.Request, user *models.User) (pageData, error) {
	data := pageData{Title: "Payment Transfer", User: user}

	summary, err := router.accounts.GetAccounts(request.Context(), user.ID)
	if err != nil {
		return data, err
	}
	data.Summary = summary
	if summary.TotalBanks == 0 {
		data.Message = MessageNoAccounts
	}

	return data, nil
}

// GetPaymenttransfer renders the transfer form.
func (router *Router) GetPaymenttransfer(response http.ResponseWriter, request *http.Request) {
	user := auth.UserFrom(request.Context())
	if user == nil {
		router.renderError(response, "payment-transfer", pageData{Title: "Payment Transfer"}, apperr.ErrNoSession)
		return
	}

	data, err := router.transferPage(request, user)
	if err != nil {
		router.renderError(response, "payment-transfer", data, err)
		return
	}

	router.render(response, http.StatusOK, "payment-transfer", data)
}

// GetSignin renders the sign-in form, or sends a signed-in caller home.
func (router *Router) GetSignin(response http.ResponseWriter, request *http.Request) {
	if auth.UserFrom(request.Context()) != nil {
		http.Redirect(response, request, "/", http.StatusSeeOther)
		return
	}

	router.render(response, http.StatusOK, "sign-in", pageData{Title: "Sign In"})
}

// GetSignup renders the sign-up form, or sends a signed-in caller home.
func (router *Router) GetSignup(response http.ResponseWriter, request *http.Request) {
	if auth.UserFrom(request.Context()) != nil {
		http.Redirect(response, request, "/", http.StatusSeeOther)
		return
	}

	router.render(response, http.StatusOK, "sign-up", pageData{Title: "Sign Up"})
}

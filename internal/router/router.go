// Package router wires the HTTP surface of jjbank: the server-rendered pages,
// the form actions, the small JSON API used by the bank-link widget and the
// aggregator webhook.
package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/jjbank/internal/gzippedhttp"
	"github.com/patric-chuzhbe/jjbank/internal/linker"
	"github.com/patric-chuzhbe/jjbank/internal/logger"
	"github.com/patric-chuzhbe/jjbank/internal/models"
	"github.com/patric-chuzhbe/jjbank/internal/pagecache"
	"github.com/patric-chuzhbe/jjbank/internal/transfer"
	"github.com/patric-chuzhbe/jjbank/internal/userdir"
)

type authenticator interface {
	ResolveCaller(h http.Handler) http.Handler
}

type userDirectory interface {
	SignIn(ctx context.Context, w http.ResponseWriter, params userdir.SignInParams) (*models.User, error)
	SignUp(ctx context.Context, w http.ResponseWriter, params userdir.SignUpParams) (*models.User, error)
	Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) error
	CreateLinkToken(ctx context.Context, user *models.User) (string, error)
}

type bankLinker interface {
	ExchangePublicToken(ctx context.Context, params linker.ExchangeParams, user *models.User) (*models.BankAccount, error)
}

type accountQueries interface {
	GetAccounts(ctx context.Context, userID string) (*models.AccountsSummary, error)
	GetAccount(ctx context.Context, documentID string) (*models.AccountDetail, error)
	GetBankByItemID(ctx context.Context, itemID string) (*models.BankAccount, error)
}

type transferSender interface {
	Send(ctx context.Context, user *models.User, params transfer.SendParams) (*models.Transaction, error)
}

type webhookVerifier interface {
	Verify(ctx context.Context, token string, body []byte) error
}

type sourceRestrictor interface {
	Restrict(h http.Handler) http.Handler
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the services the handlers are built on.
type Dependencies struct {
	Auth      authenticator
	Users     userDirectory
	Linker    bankLinker
	Accounts  accountQueries
	Transfers transferSender
	Webhooks  webhookVerifier

	// WebhookSources limits who may reach the webhook. Nil allows anyone.
	WebhookSources sourceRestrictor

	Pages pagecache.Cache
	DB    pinger
}

type Router struct {
	users     userDirectory
	linker    bankLinker
	accounts  accountQueries
	transfers transferSender
	webhooks  webhookVerifier
	pages     pagecache.Cache
	db        pinger
}

// New builds the chi mux. The caller is resolved for every route except
// the health check and the webhook, which have no browser session.
func New(deps Dependencies) *chi.Mux {
	pages := deps.Pages
	if pages == nil {
		pages = pagecache.Nop{}
	}
	myRouter := &Router{
		users:     deps.Users,
		linker:    deps.Linker,
		accounts:  deps.Accounts,
		transfers: deps.Transfers,
		webhooks:  deps.Webhooks,
		pages:     pages,
		db:        deps.DB,
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		logger.WithLoggingHTTPMiddleware,
		middleware.Recoverer,
		gzippedhttp.UngzipRequest,
		gzippedhttp.GzipResponse,
	)

	router.Get(`/ping`, myRouter.GetPing)
	router.Group(func(r chi.Router) {
		if deps.WebhookSources != nil {
			r.Use(deps.WebhookSources.Restrict)
		}
		r.Post(`/webhooks/plaid`, myRouter.PostWebhooksplaid)
	})

	router.Group(func(r chi.Router) {
		r.Use(deps.Auth.ResolveCaller)

		r.Get(`/`, myRouter.GetRoot)
		r.Get(`/sign-in`, myRouter.GetSignin)
		r.Post(`/sign-in`, myRouter.PostSignin)
		r.Get(`/sign-up`, myRouter.GetSignup)
		r.Post(`/sign-up`, myRouter.PostSignup)
		r.Post(`/logout`, myRouter.PostLogout)

		r.Get(`/my-banks`, myRouter.GetMybanks)
		r.Get(`/transaction-history`, myRouter.GetTransactionhistory)
		r.Get(`/payment-transfer`, myRouter.GetPaymenttransfer)
		r.Post(`/payment-transfer`, myRouter.PostPaymenttransfer)

		r.Post(`/api/link-token`, myRouter.PostApilinktoken)
		r.Post(`/api/exchange-public-token`, myRouter.PostApiexchangepublictoken)
	})

	return router
}

// GetPing answers 200 when the document store is reachable.
func (router *Router) GetPing(response http.ResponseWriter, request *http.Request) {
	if router.db != nil {
		if err := router.db.Ping(request.Context()); err != nil {
			logger.Log.Debugln("Error calling the `router.db.Ping()`: ", zap.Error(err))
			response.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	response.WriteHeader(http.StatusOK)
}

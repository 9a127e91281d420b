// Package userdir reads and writes user profiles and resolves who the caller
// of a request is. Sign-up is a saga across the identity provider, the
// payment rail and the document store.
package userdir

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/jjbank/internal/apperr"
	"github.com/patric-chuzhbe/jjbank/internal/db/storage"
	"github.com/patric-chuzhbe/jjbank/internal/dwolla"
	"github.com/patric-chuzhbe/jjbank/internal/identity"
	"github.com/patric-chuzhbe/jjbank/internal/logger"
	"github.com/patric-chuzhbe/jjbank/internal/models"
	"github.com/patric-chuzhbe/jjbank/internal/saga"
)

var (
	// ErrPaymentCustomer marks a sign-up that failed at the payment rail.
	ErrPaymentCustomer = errors.New("payment customer creation failed")
	// ErrProfileWrite marks a sign-up that failed writing the profile document.
	ErrProfileWrite = errors.New("profile write failed")
	// ErrSessionAfterSignUp means the account exists but no session could be opened.
	ErrSessionAfterSignUp = errors.New("session creation after sign-up failed")
	// ErrUserNotFound means the identity has no profile document.
	ErrUserNotFound = errors.New("user profile not found")
)

type sessionGateway interface {
	SessionClient(r *http.Request, cookieName string) (*identity.SessionClient, error)
}

type accountAdmin interface {
	CreateAccount(ctx context.Context, email, password, name string) (*identity.Account, error)
	DeleteAccount(ctx context.Context, accountID string) error
	CreateEmailPasswordSession(ctx context.Context, email, password string) (*identity.Session, error)
}

type documents interface {
	ListDocuments(ctx context.Context, collection string, queries ...storage.Query) (storage.DocumentList, error)
	CreateDocument(ctx context.Context, collection string, data map[string]any) (storage.Document, error)
}

type paymentCustomers interface {
	CreateCustomer(ctx context.Context, params dwolla.NewCustomerParams) (string, error)
	DeactivateCustomer(ctx context.Context, customerURL string) error
}

type linkTokens interface {
	CreateLinkToken(ctx context.Context, clientUserID, clientName string) (string, error)
}

type Config struct {
	CookieName     string
	UserCollection string
}

type Service struct {
	sessions sessionGateway
	admin    accountAdmin
	store    documents
	payments paymentCustomers
	links    linkTokens
	cfg      Config
	validate *validator.Validate
}

func New(
	sessions sessionGateway,
	admin accountAdmin,
	store documents,
	payments paymentCustomers,
	links linkTokens,
	cfg Config,
) *Service {
	return &Service{
		sessions: sessions,
		admin:    admin,
		store:    store,
		payments: payments,
		links:    links,
		cfg:      cfg,
		validate: validator.New(),
	}
}

type SignInParams struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SignUpParams struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	FirstName   string `json:"firstName" validate:"required"`
	LastName    string `json:"lastName" validate:"required"`
	Address1    string `json:"address1"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postalCode"`
	DateOfBirth string `json:"dateOfBirth"`
	SSN         string `json:"ssn"`
}

func storeError(op string, err error) error {
	if apperr.IsExternal(err) {
		return err
	}
	return &apperr.ExternalServiceError{Service: "document store", Op: op, Err: err}
}

// GetUserInfo returns the profile whose userId equals userID, or nil when
// there is none.
func (s *Service) GetUserInfo(ctx context.Context, userID string) (*models.User, error) {
	list, err := s.store.ListDocuments(ctx, s.cfg.UserCollection, storage.Equal("userId", userID))
	if err != nil {
		logger.Log.Debugln("Error calling the `s.store.ListDocuments()`: ", zap.Error(err))
		return nil, storeError("get user info", err)
	}
	if len(list.Documents) == 0 {
		return nil, nil
	}

	user := &models.User{}
	if err := storage.Decode(list.Documents[0], user); err != nil {
		return nil, fmt.Errorf("in internal/userdir/userdir.go/GetUserInfo(): error while `storage.Decode()` calling: %w", err)
	}

	return user, nil
}

// SignIn opens a session and returns the profile. The session cookie is set
// on w only once the profile is found.
func (s *Service) SignIn(ctx context.Context, w http.ResponseWriter, params SignInParams) (*models.User, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, apperr.FromValidator("sign in", err)
	}

	session, err := s.admin.CreateEmailPasswordSession(ctx, params.Email, params.Password)
	if err != nil {
		logger.Log.Debugln("Error calling the `s.admin.CreateEmailPasswordSession()`: ", zap.Error(err))
		return nil, err
	}

	user, err := s.GetUserInfo(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	s.setSessionCookie(w, session)

	return user, nil
}

// SignUp creates the identity, the payment customer and the profile, then
// opens a session. A failure before the profile write undoes the identity
// and the payment customer.
func (s *Service) SignUp(ctx context.Context, w http.ResponseWriter, params SignUpParams) (*models.User, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, apperr.FromValidator("sign up", err)
	}

	var (
		account     *identity.Account
		customerURL string
		user        *models.User
	)
	flow := saga.New("sign-up")

	err := flow.Run(ctx, saga.Step{
		Name: "create identity account",
		Do: func(ctx context.Context) (err error) {
			account, err = s.admin.CreateAccount(ctx, params.Email, params.Password, params.FirstName+" "+params.LastName)
			return err
		},
		Compensate: func(ctx context.Context) error {
			return s.admin.DeleteAccount(ctx, account.ID)
		},
	})
	if err != nil {
		return nil, err
	}

	err = flow.Run(ctx, saga.Step{
		Name: "create payment customer",
		Do: func(ctx context.Context) (err error) {
			customerURL, err = s.payments.CreateCustomer(ctx, dwolla.NewCustomerParams{
				FirstName:   params.FirstName,
				LastName:    params.LastName,
				Email:       params.Email,
				Type:        "personal",
				Address1:    params.Address1,
				City:        params.City,
				State:       params.State,
				PostalCode:  params.PostalCode,
				DateOfBirth: params.DateOfBirth,
				SSN:         params.SSN,
			})
			if err != nil {
				return fmt.Errorf("%w: %w", ErrPaymentCustomer, err)
			}
			if customerURL == "" {
				return fmt.Errorf("%w: no customer URL returned", ErrPaymentCustomer)
			}
			return nil
		},
		Compensate: func(ctx context.Context) error {
			return s.payments.DeactivateCustomer(ctx, customerURL)
		},
	})
	if err != nil {
		return nil, err
	}

	customerID := dwolla.ExtractCustomerID(customerURL)
	if customerID == "" {
		return nil, flow.Fail(ctx, "extract customer id",
			fmt.Errorf("%w: unexpected customer URL %q", ErrPaymentCustomer, customerURL))
	}

	err = flow.Run(ctx, saga.Step{
		Name: "write profile",
		Do: func(ctx context.Context) error {
			user = &models.User{
				UserID:            account.ID,
				Email:             params.Email,
				FirstName:         params.FirstName,
				LastName:          params.LastName,
				Address1:          params.Address1,
				City:              params.City,
				State:             params.State,
				PostalCode:        params.PostalCode,
				DateOfBirth:       params.DateOfBirth,
				DwollaCustomerID:  customerID,
				DwollaCustomerURL: customerURL,
			}
			data, err := storage.Encode(user)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrProfileWrite, err)
			}
			doc, err := s.store.CreateDocument(ctx, s.cfg.UserCollection, data)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrProfileWrite, storeError("create user", err))
			}
			user.ID = doc.ID
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	// The profile is committed; from here on the user can always sign in
	// again, so a session failure is reported without undoing anything.
	session, err := s.admin.CreateEmailPasswordSession(ctx, params.Email, params.Password)
	if err != nil {
		logger.Log.Errorw("session creation after sign-up failed", "user", account.ID, zap.Error(err))
		return user, fmt.Errorf("%w: %w", ErrSessionAfterSignUp, err)
	}
	s.setSessionCookie(w, session)

	return user, nil
}

// CurrentUser resolves the caller. It never fails: every problem yields
// models.Anonymous with the reason.
func (s *Service) CurrentUser(ctx context.Context, r *http.Request) models.Caller {
	client, err := s.sessions.SessionClient(r, s.cfg.CookieName)
	if err != nil {
		return models.Anonymous{Reason: err}
	}

	account, err := client.Account(ctx)
	if err != nil {
		logger.Log.Debugln("Error calling the `client.Account()`: ", zap.Error(err))
		return models.Anonymous{Reason: err}
	}

	user, err := s.GetUserInfo(ctx, account.ID)
	if err != nil {
		return models.Anonymous{Reason: err}
	}
	if user == nil {
		return models.Anonymous{Reason: ErrUserNotFound}
	}

	return models.Authenticated{User: user}
}

// GetLoggedInUser is CurrentUser flattened to "user or nil".
func (s *Service) GetLoggedInUser(ctx context.Context, r *http.Request) (*models.User, error) {
	return models.UserOf(s.CurrentUser(ctx, r)), nil
}

// Logout deletes the session cookie, then the provider session. A request
// without a session only gets the cookie cleared.
func (s *Service) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	client, err := s.sessions.SessionClient(r, s.cfg.CookieName)
	s.deleteSessionCookie(w)
	if err != nil {
		if apperr.IsNoSession(err) {
			return nil
		}
		return err
	}

	if err := client.DeleteCurrentSession(ctx); err != nil {
		logger.Log.Debugln("Error calling the `client.DeleteCurrentSession()`: ", zap.Error(err))
		return err
	}

	return nil
}

// CreateLinkToken asks the aggregator for a link token bound to user.
func (s *Service) CreateLinkToken(ctx context.Context, user *models.User) (string, error) {
	if user == nil {
		return "", apperr.ErrNoSession
	}

	token, err := s.links.CreateLinkToken(ctx, user.ID, strings.TrimSpace(user.FullName()))
	if err != nil {
		logger.Log.Debugln("Error calling the `s.links.CreateLinkToken()`: ", zap.Error(err))
		return "", err
	}

	return token, nil
}

func (s *Service) setSessionCookie(w http.ResponseWriter, session *identity.Session) {
	cookie := &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    session.Secret,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
	if expire, err := time.Parse(time.RFC3339Nano, session.Expire); err == nil {
		cookie.Expires = expire
	}

	http.SetCookie(w, cookie)
}

func (s *Service) deleteSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

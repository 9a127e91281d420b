// Package identity is the gateway to the identity and document provider
// (Appwrite). It hands out two kinds of clients: a session client bound to
// the caller's session secret, and an admin client authorized by the
// service key.
package identity

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/patric-chuzhbe/jjbank/internal/apperr"
	"github.com/patric-chuzhbe/jjbank/internal/restclient"
)

const service = "appwrite"

// UniqueID asks the provider to generate an id.
const UniqueID = "unique()"

// Config carries the provider coordinates.
type Config struct {
	Endpoint string
	Project  string
	Key      string
	Timeout  time.Duration
}

// Provider creates clients. It holds no per-request state.
type Provider struct {
	cfg Config
}

// Account is the provider's user account.
type Account struct {
	ID     string `json:"$id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Status bool   `json:"status"`
}

// Session is a provider session. Secret is only returned to admin clients.
type Session struct {
	ID     string `json:"$id"`
	UserID string `json:"userId"`
	Secret string `json:"secret"`
	Expire string `json:"expire"`
}

// RawDocumentList is a document listing as returned by the provider.
type RawDocumentList struct {
	Total     int              `json:"total"`
	Documents []map[string]any `json:"documents"`
}

func New(cfg Config) *Provider {
	return &Provider{cfg: cfg}
}

func (p *Provider) newRestClient() *resty.Client {
	client := restclient.New(restclient.Options{
		Service: service,
		BaseURL: p.cfg.Endpoint,
		Timeout: p.cfg.Timeout,
	})
	client.SetHeader("X-Appwrite-Project", p.cfg.Project)
	client.SetHeader("Content-Type", "application/json")

	return client
}

// SessionClient reads the session cookie from r and returns a client bound to
// it. A missing or empty cookie yields apperr.ErrNoSession. No I/O happens here.
func (p *Provider) SessionClient(r *http.Request, cookieName string) (*SessionClient, error) {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return nil, apperr.ErrNoSession
	}

	return p.SessionClientFromSecret(cookie.Value)
}

// SessionClientFromSecret is SessionClient for an already extracted secret.
func (p *Provider) SessionClientFromSecret(secret string) (*SessionClient, error) {
	if secret == "" {
		return nil, apperr.ErrNoSession
	}

	client := p.newRestClient()
	client.SetHeader("X-Appwrite-Session", secret)

	return &SessionClient{rest: client}, nil
}

// AdminClient returns a client authorized by the service key. It never
// fails; a bad key surfaces on the first call.
func (p *Provider) AdminClient() *AdminClient {
	client := p.newRestClient()
	client.SetHeader("X-Appwrite-Key", p.cfg.Key)

	return &AdminClient{rest: client}
}

// SessionClient acts on behalf of the session owner.
type SessionClient struct {
	rest *resty.Client
}

// Account returns the session owner's account.
func (c *SessionClient) Account(ctx context.Context) (*Account, error) {
	account := &Account{}
	resp, err := c.rest.R().SetContext(ctx).SetResult(account).Get("/account")
	if err := restclient.Check(service, "get account", resp, err); err != nil {
		return nil, err
	}

	return account, nil
}

// DeleteCurrentSession invalidates the session the client is bound to.
func (c *SessionClient) DeleteCurrentSession(ctx context.Context) error {
	resp, err := c.rest.R().SetContext(ctx).Delete("/account/sessions/current")

	return restclient.Check(service, "delete session", resp, err)
}

// AdminClient acts with the service key.
type AdminClient struct {
	rest *resty.Client
}

// CreateAccount registers a new identity.
func (c *AdminClient) CreateAccount(ctx context.Context, email, password, name string) (*Account, error) {
	account := &Account{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"userId":   UniqueID,
			"email":    email,
			"password": password,
			"name":     name,
		}).
		SetResult(account).
		Post("/users")
	if err := restclient.Check(service, "create account", resp, err); err != nil {
		return nil, err
	}

	return account, nil
}

// DeleteAccount removes an identity; used to undo an aborted sign-up.
func (c *AdminClient) DeleteAccount(ctx context.Context, accountID string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("userId", accountID).
		Delete("/users/{userId}")

	return restclient.Check(service, "delete account", resp, err)
}

// CreateEmailPasswordSession opens a session for the credentials and returns
// it with its secret.
func (c *AdminClient) CreateEmailPasswordSession(ctx context.Context, email, password string) (*Session, error) {
	session := &Session{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(session).
		Post("/account/sessions/email")
	if err := restclient.Check(service, "create session", resp, err); err != nil {
		return nil, err
	}

	return session, nil
}

// ListDocuments lists a collection. queries are provider-encoded filters.
func (c *AdminClient) ListDocuments(
	ctx context.Context,
	databaseID string,
	collectionID string,
	queries []string,
) (*RawDocumentList, error) {
	list := &RawDocumentList{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"databaseId": databaseID, "collectionId": collectionID}).
		SetQueryParamsFromValues(map[string][]string{"queries[]": queries}).
		SetResult(list).
		Get("/databases/{databaseId}/collections/{collectionId}/documents")
	if err := restclient.Check(service, "list documents", resp, err); err != nil {
		return nil, err
	}

	return list, nil
}

// CreateDocument stores data under documentID (UniqueID lets the provider choose).
func (c *AdminClient) CreateDocument(
	ctx context.Context,
	databaseID string,
	collectionID string,
	documentID string,
	data map[string]any,
) (map[string]any, error) {
	created := map[string]any{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"databaseId": databaseID, "collectionId": collectionID}).
		SetBody(map[string]any{"documentId": documentID, "data": data}).
		SetResult(&created).
		Post("/databases/{databaseId}/collections/{collectionId}/documents")
	if err := restclient.Check(service, "create document", resp, err); err != nil {
		return nil, err
	}

	return created, nil
}

// Health pings the provider.
func (c *AdminClient) Health(ctx context.Context) error {
	resp, err := c.rest.R().SetContext(ctx).Get("/health")

	return restclient.Check(service, "health", resp, err)
}

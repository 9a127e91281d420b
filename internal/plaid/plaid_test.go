package plaid

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/jjbank/internal/apperr"
)

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	body := map[string]any{}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func newFakePlaid(t *testing.T, signingKey *ecdsa.PrivateKey) (*httptest.Server, *int) {
	t.Helper()

	keyFetches := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/link/token/create", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "client", r.Header.Get("PLAID-CLIENT-ID"))
		assert.Equal(t, "secret", r.Header.Get("PLAID-SECRET"))
		body := decodeBody(t, r)
		assert.Equal(t, []any{"auth"}, body["products"])
		assert.Equal(t, "en", body["language"])
		assert.Equal(t, []any{"US"}, body["country_codes"])
		assert.Equal(t, map[string]any{"client_user_id": "u1"}, body["user"])
		_, _ = w.Write([]byte(`{"link_token":"link-sandbox-1"}`))
	})
	mux.HandleFunc("/item/public_token/exchange", func(w http.ResponseWriter, r *http.Request) {
		if decodeBody(t, r)["public_token"] != "public-good" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error_type":"INVALID_INPUT","error_code":"INVALID_PUBLIC_TOKEN","error_message":"provided public token is in an invalid format"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"access-1","item_id":"item-1"}`))
	})
	mux.HandleFunc("/accounts/get", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accounts":[{"account_id":"acc-1","name":"Plaid Checking","mask":"0000","type":"depository","subtype":"checking","balances":{"available":100.5,"current":110,"iso_currency_code":"USD"}},{"account_id":"acc-2","name":"Plaid Saving","balances":{"available":null,"current":210.25}}],"item":{"item_id":"item-1","institution_id":"ins_1"}}`))
	})
	mux.HandleFunc("/processor/token/create", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assert.Equal(t, "dwolla", body["processor"])
		assert.Equal(t, "acc-1", body["account_id"])
		_, _ = w.Write([]byte(`{"processor_token":"processor-sandbox-1"}`))
	})
	mux.HandleFunc("/transactions/get", func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		options := body["options"].(map[string]any)
		if options["offset"].(float64) == 0 {
			_, _ = w.Write([]byte(`{"total_transactions":2,"transactions":[{"transaction_id":"t1","account_id":"acc-1","name":"Uber","amount":6.33,"date":"2024-05-02","category":["Travel"],"payment_channel":"online"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"total_transactions":2,"transactions":[{"transaction_id":"t2","account_id":"acc-1","name":"Tectra","amount":500,"date":"2024-05-01","payment_channel":"in store","pending":true}]}`))
	})
	mux.HandleFunc("/item/remove", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"request_id":"r1"}`))
	})
	mux.HandleFunc("/webhook_verification_key/get", func(w http.ResponseWriter, r *http.Request) {
		keyFetches++
		assert.Equal(t, "kid-1", decodeBody(t, r)["key_id"])
		key := JWK{
			Alg: "ES256",
			Crv: "P-256",
			Kid: "kid-1",
			Kty: "EC",
			Use: "sig",
			X:   base64.RawURLEncoding.EncodeToString(signingKey.PublicKey.X.FillBytes(make([]byte, 32))),
			Y:   base64.RawURLEncoding.EncodeToString(signingKey.PublicKey.Y.FillBytes(make([]byte, 32))),
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"key": key})
	})

	return httptest.NewServer(mux), &keyFetches
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := New(Config{ClientID: "client", Secret: "secret", Environment: EnvSandbox, BaseURL: srv.URL})
	require.NoError(t, err)
	return client
}

func TestNewRejectsUnknownEnvironment(t *testing.T) {
	_, err := New(Config{Environment: "staging"})
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestLinkFlowCalls(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	srv, _ := newFakePlaid(t, key)
	defer srv.Close()
	client := newTestClient(t, srv)
	ctx := context.Background()

	linkToken, err := client.CreateLinkToken(ctx, "u1", "A B")
	require.NoError(t, err)
	assert.Equal(t, "link-sandbox-1", linkToken)

	_, err = client.ExchangePublicToken(ctx, "public-bad")
	require.Error(t, err)
	assert.True(t, apperr.IsExternal(err))
	assert.Contains(t, err.Error(), "invalid format")

	exchange, err := client.ExchangePublicToken(ctx, "public-good")
	require.NoError(t, err)
	assert.Equal(t, "access-1", exchange.AccessToken)
	assert.Equal(t, "item-1", exchange.ItemID)

	accounts, err := client.GetAccounts(ctx, exchange.AccessToken)
	require.NoError(t, err)
	require.Len(t, accounts.Accounts, 2)
	assert.Equal(t, "100.5", accounts.Accounts[0].Balances.Available.Decimal.String())
	assert.False(t, accounts.Accounts[1].Balances.Available.Valid)
	assert.Equal(t, "ins_1", accounts.Item.InstitutionID)

	processorToken, err := client.CreateProcessorToken(ctx, exchange.AccessToken, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "processor-sandbox-1", processorToken)

	assert.NoError(t, client.RemoveItem(ctx, exchange.AccessToken))
}

func TestGetTransactionsPages(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	srv, _ := newFakePlaid(t, key)
	defer srv.Close()
	client := newTestClient(t, srv)

	end := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
	transactions, err := client.GetTransactions(context.Background(), "access-1", end.AddDate(0, 0, -30), end)
	require.NoError(t, err)
	require.Len(t, transactions, 2)
	assert.Equal(t, "t1", transactions[0].TransactionID)
	assert.Equal(t, "6.33", transactions[0].Amount.String())
	assert.True(t, transactions[1].Pending)
}

func signWebhook(t *testing.T, key *ecdsa.PrivateKey, body []byte, issuedAt time.Time) string {
	t.Helper()

	sum := sha256.Sum256(body)
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iat":                 issuedAt.Unix(),
		"request_body_sha256": hex.EncodeToString(sum[:]),
	})
	token.Header["kid"] = "kid-1"
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	return signed
}

func TestWebhookVerifier(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	srv, keyFetches := newFakePlaid(t, key)
	defer srv.Close()

	verifier := NewWebhookVerifier(newTestClient(t, srv))
	ctx := context.Background()
	body := []byte(`{"webhook_type":"TRANSACTIONS","webhook_code":"DEFAULT_UPDATE","item_id":"item-1"}`)

	require.NoError(t, verifier.Verify(ctx, signWebhook(t, key, body, time.Now()), body))
	require.NoError(t, verifier.Verify(ctx, signWebhook(t, key, body, time.Now()), body))
	assert.Equal(t, 1, *keyFetches)

	tampered := []byte(`{"webhook_type":"TRANSACTIONS","webhook_code":"DEFAULT_UPDATE","item_id":"item-2"}`)
	assert.ErrorIs(t, verifier.Verify(ctx, signWebhook(t, key, body, time.Now()), tampered), ErrInvalidWebhook)

	old := signWebhook(t, key, body, time.Now().Add(-10*time.Minute))
	assert.ErrorIs(t, verifier.Verify(ctx, old, body), ErrInvalidWebhook)

	otherKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	assert.ErrorIs(t, verifier.Verify(ctx, signWebhook(t, otherKey, body, time.Now()), body), ErrInvalidWebhook)

	assert.ErrorIs(t, verifier.Verify(ctx, "", body), ErrInvalidWebhook)

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"iat": time.Now().Unix()})
	hs.Header["kid"] = "kid-1"
	signed, err := hs.SignedString([]byte("k"))
	require.NoError(t, err)
	assert.ErrorIs(t, verifier.Verify(ctx, signed, body), ErrInvalidWebhook)
}

type rotatingKeys struct {
	jwk     JWK
	fetches int
}

func (k *rotatingKeys) GetWebhookVerificationKey(_ context.Context, _ string) (*JWK, error) {
	k.fetches++
	jwk := k.jwk
	return &jwk, nil
}

func TestWebhookVerifierRefetchesRotatedKey(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	keys := &rotatingKeys{jwk: JWK{
		Crv: "P-256",
		Kid: "kid-1",
		Kty: "EC",
		X:   base64.RawURLEncoding.EncodeToString(key.PublicKey.X.FillBytes(make([]byte, 32))),
		Y:   base64.RawURLEncoding.EncodeToString(key.PublicKey.Y.FillBytes(make([]byte, 32))),
	}}

	clock := time.Now()
	verifier := NewWebhookVerifier(keys)
	verifier.now = func() time.Time { return clock }
	ctx := context.Background()
	body := []byte(`{"webhook_type":"ITEM","webhook_code":"ERROR","item_id":"item-1"}`)

	require.NoError(t, verifier.Verify(ctx, signWebhook(t, key, body, clock), body))
	assert.Equal(t, 1, keys.fetches)

	expiredAt := clock.Unix()
	keys.jwk.ExpiredAt = &expiredAt

	clock = clock.Add(keyCacheTTL / 2)
	require.NoError(t, verifier.Verify(ctx, signWebhook(t, key, body, clock), body))
	assert.Equal(t, 1, keys.fetches)

	clock = clock.Add(keyCacheTTL)
	assert.ErrorIs(t, verifier.Verify(ctx, signWebhook(t, key, body, clock), body), ErrInvalidWebhook)
	assert.Equal(t, 2, keys.fetches)
}

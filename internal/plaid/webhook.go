package plaid

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// VerificationHeader carries the signed JWT of a webhook call.
const VerificationHeader = "Plaid-Verification"

var ErrInvalidWebhook = errors.New("invalid webhook signature")

const (
	maxWebhookAge = 5 * time.Minute
	// keyCacheTTL bounds how long a key keeps verifying after Plaid rotates
	// it out.
	keyCacheTTL = time.Hour
)

type keyFetcher interface {
	GetWebhookVerificationKey(ctx context.Context, keyID string) (*JWK, error)
}

type cachedKey struct {
	key       *ecdsa.PublicKey
	fetchedAt time.Time
}

// WebhookVerifier checks webhook bodies against their Plaid-Verification JWT.
// Keys are fetched by kid and cached for keyCacheTTL, after which they are
// fetched again and their expiry rechecked.
type WebhookVerifier struct {
	keys keyFetcher
	now  func() time.Time

	mu    sync.Mutex
	cache map[string]cachedKey
}

func NewWebhookVerifier(keys keyFetcher) *WebhookVerifier {
	return &WebhookVerifier{
		keys:  keys,
		now:   time.Now,
		cache: map[string]cachedKey{},
	}
}

// Webhook is the part of a webhook body the application reacts to.
type Webhook struct {
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	ItemID      string `json:"item_id"`
}

// Verify returns nil only when token is an ES256 JWT signed by a current
// key, issued at most five minutes ago, whose body hash matches body.
func (v *WebhookVerifier) Verify(ctx context.Context, token string, body []byte) error {
	if token == "" {
		return fmt.Errorf("%w: missing %s header", ErrInvalidWebhook, VerificationHeader)
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}))
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("no kid in header")
		}
		return v.key(ctx, kid)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	iat, ok := claims["iat"].(float64)
	if !ok {
		return fmt.Errorf("%w: no iat claim", ErrInvalidWebhook)
	}
	if v.now().Sub(time.Unix(int64(iat), 0)) > maxWebhookAge {
		return fmt.Errorf("%w: token is too old", ErrInvalidWebhook)
	}

	claimed, _ := claims["request_body_sha256"].(string)
	sum := sha256.Sum256(body)
	if subtle.ConstantTimeCompare([]byte(claimed), []byte(hex.EncodeToString(sum[:]))) != 1 {
		return fmt.Errorf("%w: body hash mismatch", ErrInvalidWebhook)
	}

	return nil
}

func (v *WebhookVerifier) key(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if cached, ok := v.cache[kid]; ok && now.Sub(cached.fetchedAt) < keyCacheTTL {
		return cached.key, nil
	}
	delete(v.cache, kid)

	jwk, err := v.keys.GetWebhookVerificationKey(ctx, kid)
	if err != nil {
		return nil, err
	}
	if jwk.ExpiredAt != nil {
		return nil, errors.New("verification key expired")
	}
	key, err := jwk.PublicKey()
	if err != nil {
		return nil, err
	}
	v.cache[kid] = cachedKey{key: key, fetchedAt: now}

	return key, nil
}

// PublicKey decodes a P-256 EC key.
func (k *JWK) PublicKey() (*ecdsa.PublicKey, error) {
	if k.Kty != "EC" || k.Crv != "P-256" {
		return nil, fmt.Errorf("unsupported key type %s/%s", k.Kty, k.Crv)
	}

	x, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, fmt.Errorf("bad x coordinate: %w", err)
	}
	y, err := base64.RawURLEncoding.DecodeString(k.Y)
	if err != nil {
		return nil, fmt.Errorf("bad y coordinate: %w", err)
	}

	key := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}
	if !key.Curve.IsOnCurve(key.X, key.Y) {
		return nil, errors.New("point is not on curve")
	}

	return key, nil
}

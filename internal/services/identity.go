package services

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/plansync-backend/internal/platform/ctxutil"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
)

var (
	ErrTokenMissing = errors.New("missing bearer token")
	ErrTokenFormat  = errors.New("malformed bearer token")
	ErrTokenInvalid = errors.New("invalid bearer token")
)

const (
	AuthModeGoogle = "google"
	AuthModeHMAC   = "hmac"
	AuthModeNone   = "none"

	googleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
)

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

type IdentityConfig struct {
	Mode     string `yaml:"mode"`
	Secret   string `yaml:"secret"`
	Audience string `yaml:"audience"`
	JWKSURL  string `yaml:"jwks_url"`
}

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*ctxutil.Principal, error)
	Enabled() bool
}

func NewTokenVerifier(log *logger.Logger, httpClient *http.Client, cfg IdentityConfig) (TokenVerifier, error) {
	log = log.With("service", "TokenVerifier", "mode", cfg.Mode)
	switch cfg.Mode {
	case AuthModeNone:
		log.Warn("authentication disabled; every request is anonymous")
		return noopVerifier{}, nil
	case AuthModeHMAC:
		if strings.TrimSpace(cfg.Secret) == "" {
			return nil, fmt.Errorf("JWT_SECRET_KEY is required for AUTH_MODE=hmac")
		}
		return &hmacVerifier{secret: []byte(cfg.Secret), audience: cfg.Audience}, nil
	case AuthModeGoogle, "":
		if httpClient == nil {
			httpClient = &http.Client{Timeout: 10 * time.Second}
		}
		url := cfg.JWKSURL
		if url == "" {
			url = googleJWKSURL
		}
		jw := newJWKSCache(httpClient)
		jw.setURL(url)
		return &jwksVerifier{
			jwks:       jw,
			allowedIss: googleIssuers,
			audience:   cfg.Audience,
			algAllow:   []string{"RS256"},
		}, nil
	default:
		return nil, fmt.Errorf("unknown AUTH_MODE %q", cfg.Mode)
	}
}

// CheckFormat rejects strings that cannot be a compact JWS.
func CheckFormat(token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrTokenMissing
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ErrTokenFormat
	}
	for _, p := range parts[:2] {
		if p == "" {
			return ErrTokenFormat
		}
	}
	return nil
}

type noopVerifier struct{}

func (noopVerifier) Enabled() bool { return false }

func (noopVerifier) Verify(context.Context, string) (*ctxutil.Principal, error) {
	return &ctxutil.Principal{Subject: "anonymous"}, nil
}

type hmacVerifier struct {
	secret   []byte
	audience string
}

func (v *hmacVerifier) Enabled() bool { return true }

func (v *hmacVerifier) Verify(_ context.Context, token string) (*ctxutil.Principal, error) {
	if err := CheckFormat(token); err != nil {
		return nil, err
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired()}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	claims := jwt.MapClaims{}
	tok, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || tok == nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return claimsToPrincipal(claims)
}

type jwksVerifier struct {
	jwks       *jwksCache
	allowedIss []string
	audience   string
	algAllow   []string
}

func (v *jwksVerifier) Enabled() bool { return true }

func (v *jwksVerifier) Verify(ctx context.Context, token string) (*ctxutil.Principal, error) {
	if err := CheckFormat(token); err != nil {
		return nil, err
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.algAllow),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	claims := jwt.MapClaims{}
	tok, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if strings.TrimSpace(kid) == "" {
			return nil, fmt.Errorf("missing kid")
		}
		return v.jwks.getKey(ctx, kid)
	})
	if err != nil || tok == nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	iss, _ := claims["iss"].(string)
	if !containsIssuer(v.allowedIss, iss) {
		return nil, fmt.Errorf("%w: issuer mismatch %q", ErrTokenInvalid, iss)
	}
	return claimsToPrincipal(claims)
}

func claimsToPrincipal(c jwt.MapClaims) (*ctxutil.Principal, error) {
	sub, _ := c["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrTokenInvalid)
	}
	p := &ctxutil.Principal{Subject: sub}
	p.Email, _ = c["email"].(string)
	p.Issuer, _ = c["iss"].(string)
	return p, nil
}

func containsIssuer(list []string, iss string) bool {
	for _, v := range list {
		if v == iss {
			return true
		}
	}
	return false
}

// jwksCache holds provider signing keys by kid. An unknown kid or an expired
// cache triggers a refetch; if that fails a cached key is still used.
type jwksCache struct {
	httpClient *http.Client

	mu        sync.RWMutex
	jwksURL   string
	keys      map[string]any
	fetchedAt time.Time
	ttl       time.Duration
}

func newJWKSCache(httpClient *http.Client) *jwksCache {
	return &jwksCache{
		httpClient: httpClient,
		keys:       map[string]any{},
		ttl:        6 * time.Hour,
	}
}

func (j *jwksCache) setURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jwksURL = url
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func (j *jwksCache) getKey(ctx context.Context, kid string) (any, error) {
	j.mu.RLock()
	key := j.keys[kid]
	stale := time.Since(j.fetchedAt) > j.ttl
	url := j.jwksURL
	j.mu.RUnlock()

	if key != nil && !stale {
		return key, nil
	}
	if err := j.refresh(ctx, url); err != nil {
		if key != nil {
			return key, nil
		}
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if key = j.keys[kid]; key == nil {
		return nil, fmt.Errorf("kid not found in jwks: %s", kid)
	}
	return key, nil
}

func (j *jwksCache) refresh(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	res, err := j.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("jwks fetch failed: %s", res.Status)
	}

	var set struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(res.Body).Decode(&set); err != nil {
		return err
	}
	next := map[string]any{}
	for _, k := range set.Keys {
		if strings.TrimSpace(k.Kid) == "" {
			continue
		}
		switch k.Kty {
		case "RSA":
			if pub, err := rsaFromModExp(k.N, k.E); err == nil {
				next[k.Kid] = pub
			}
		case "EC":
			if pub, err := ecdsaFromXY(k.Crv, k.X, k.Y); err == nil {
				next[k.Kid] = pub
			}
		}
	}
	if len(next) == 0 {
		return fmt.Errorf("jwks contained no usable keys")
	}

	j.mu.Lock()
	j.keys = next
	j.fetchedAt = time.Now()
	j.mu.Unlock()
	return nil
}

func rsaFromModExp(nB64, eB64 string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, err
	}
	e := 0
	for _, b := range eb {
		e = e<<8 + int(b)
	}
	if e == 0 {
		return nil, fmt.Errorf("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}

func ecdsaFromXY(crv, xB64, yB64 string) (*ecdsa.PublicKey, error) {
	if crv != "P-256" {
		return nil, fmt.Errorf("unsupported curve: %s", crv)
	}
	xb, err := base64.RawURLEncoding.DecodeString(xB64)
	if err != nil {
		return nil, err
	}
	yb, err := base64.RawURLEncoding.DecodeString(yB64)
	if err != nil {
		return nil, err
	}
	x, y := new(big.Int).SetBytes(xb), new(big.Int).SetBytes(yb)
	curve := elliptic.P256()
	if !curve.IsOnCurve(x, y) {
		return nil, fmt.Errorf("invalid EC point")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

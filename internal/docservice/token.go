package docservice

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenManager signs outbound document-server requests and verifies inbound
// callback tokens. A nil *TokenManager disables signing and verification.
type TokenManager struct {
	secret       []byte
	method       jwt.SigningMethod
	expiresIn    time.Duration
	header       string
	headerPrefix string
}

type TokenOptions struct {
	Secret       string
	Algorithm    string
	ExpiresIn    time.Duration
	Header       string
	HeaderPrefix string
}

func NewTokenManager(opts TokenOptions) (*TokenManager, error) {
	if strings.TrimSpace(opts.Secret) == "" {
		return nil, errors.New("token secret is required")
	}
	algorithm := strings.TrimSpace(opts.Algorithm)
	if algorithm == "" {
		algorithm = "HS256"
	}
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
	expiresIn := opts.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 5 * time.Minute
	}
	header := strings.TrimSpace(opts.Header)
	if header == "" {
		header = "Authorization"
	}
	headerPrefix := opts.HeaderPrefix
	if headerPrefix == "" {
		headerPrefix = "Bearer "
	}
	return &TokenManager{
		secret:       []byte(opts.Secret),
		method:       method,
		expiresIn:    expiresIn,
		header:       header,
		headerPrefix: headerPrefix,
	}, nil
}

// HeaderName returns the header carrying inbound and outbound tokens and
// its value prefix.
func (t *TokenManager) HeaderName() (name, prefix string) {
	return t.header, t.headerPrefix
}

// Sign produces a token over the given payload, used as the body-level
// `token` field of outbound requests.
func (t *TokenManager) Sign(payload map[string]any) (string, error) {
	claims := jwt.MapClaims{}
	for k, v := range payload {
		claims[k] = v
	}
	claims["exp"] = time.Now().Add(t.expiresIn).Unix()
	return jwt.NewWithClaims(t.method, claims).SignedString(t.secret)
}

// SignForURL wraps a payload the way the document server expects header
// tokens: the target URL's query parameters plus the body under fixed keys.
func (t *TokenManager) SignForURL(uri string, payload any) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	query := map[string]string{}
	for name, values := range parsed.Query() {
		if len(values) > 0 {
			query[name] = values[0]
		}
	}
	return t.Sign(map[string]any{"query": query, "payload": payload})
}

// Verify parses and validates a token, returning its claims.
func (t *TokenManager) Verify(token string) (map[string]any, error) {
	parsed, err := jwt.Parse(token, func(tok *jwt.Token) (any, error) {
		if tok.Method.Alg() != t.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method %q", tok.Method.Alg())
		}
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return map[string]any(claims), nil
}

// VerifyHeader extracts and validates the token from a request header.
// It returns ErrInvalidToken when the header is absent or malformed.
func (t *TokenManager) VerifyHeader(r *http.Request) (map[string]any, error) {
	value := r.Header.Get(t.header)
	if value == "" || !strings.HasPrefix(value, t.headerPrefix) {
		return nil, ErrInvalidToken
	}
	return t.Verify(strings.TrimPrefix(value, t.headerPrefix))
}

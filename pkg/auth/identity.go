package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator turns request credentials into Claims. It returns (nil, nil)
// when the request carries no credentials at all.
type Authenticator interface {
	Authenticate(r *http.Request) (*Claims, error)
}

// Claim names issued by the identity provider.
const (
	IdentityClaim = "user_id"
	RoleClaim     = "user_type"
)

// JWTAuthenticator validates HS256 bearer tokens.
type JWTAuthenticator struct {
	secret   []byte
	issuer   string
	audience string
}

// NewJWTAuthenticator creates a JWTAuthenticator. Empty issuer or audience
// disables that check.
func NewJWTAuthenticator(secret, issuer, audience string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret), issuer: issuer, audience: audience}
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	tok, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tok == "" {
		return nil, errors.New("invalid authorization header")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	parsed, err := jwt.Parse(tok, func(t *jwt.Token) (interface{}, error) {
		// Prevent algorithm confusion: only accept HMAC.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	uid, err := userIDClaim(mc[IdentityClaim])
	if err != nil {
		return nil, err
	}
	role, _ := mc[RoleClaim].(string)
	return &Claims{UserID: uid, Role: NormalizeRole(role)}, nil
}

// userIDClaim accepts a JSON number or a numeric string.
func userIDClaim(v any) (int64, error) {
	switch id := v.(type) {
	case float64:
		if id != float64(int64(id)) {
			return 0, fmt.Errorf("non-integer %s claim", IdentityClaim)
		}
		return int64(id), nil
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s claim: %w", IdentityClaim, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("missing %s claim", IdentityClaim)
	}
}

// Gateway headers set by a trusted upstream proxy.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserType = "X-User-Type"
)

// HeaderAuthenticator trusts identity headers injected by an upstream
// gateway that already verified the caller.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (*Claims, error) {
	raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if raw == "" {
		return nil, nil
	}
	uid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s header: %w", HeaderUserID, err)
	}
	return &Claims{UserID: uid, Role: NormalizeRole(r.Header.Get(HeaderUserType))}, nil
}

// DevUserID is the placeholder user id used when AUTH_MODE=dev.
const DevUserID int64 = 0

// DevAuthenticator treats every request as an admin. Local development only.
type DevAuthenticator struct{}

func (DevAuthenticator) Authenticate(*http.Request) (*Claims, error) {
	return &Claims{UserID: DevUserID, Role: RoleAdmin}, nil
}

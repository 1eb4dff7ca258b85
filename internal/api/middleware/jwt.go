package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"givedesk.io/backoffice/internal/domain"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
)

// AccessTokenQueryParam carries the token for websocket upgrades, where
// browsers cannot set an Authorization header. See WithQueryTokenRoutes.
const AccessTokenQueryParam = "access_token"

// ErrJWTSigningKeyMissing is returned when no key is configured to verify tokens.
var ErrJWTSigningKeyMissing = errors.New("jwt signing key missing")

// JWTClaims identifies a recipient. Subject is the recipient id.
type JWTClaims struct {
	Role domain.RecipientRole `json:"role"`
	Name string               `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT signing configuration.
type JWTConfig struct {
	SigningKey []byte
	// VerificationKeys are accepted in addition to SigningKey so tokens
	// signed before a key rotation stay valid until they expire.
	VerificationKeys [][]byte
	Issuer           string
	ExpiresIn        time.Duration
}

// GenerateToken creates a signed JWT for the given recipient.
func GenerateToken(cfg JWTConfig, recipientID string, role domain.RecipientRole, name string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(cfg.ExpiresIn)

	claims := JWTClaims{
		Role: role,
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    cfg.Issuer,
			Subject:   recipientID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}

// ValidateToken parses tokenString against the signing key, then each
// verification key in order.
func (cfg JWTConfig) ValidateToken(tokenString string) (*JWTClaims, error) {
	keys := append([][]byte{cfg.SigningKey}, cfg.VerificationKeys...)

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	if len(cfg.SigningKey) == 0 && len(cfg.VerificationKeys) == 0 {
		return nil, fmt.Errorf("%w: %w", jwt.ErrTokenUnverifiable, ErrJWTSigningKeyMissing)
	}

	var lastErr error
	for _, key := range keys {
		if len(key) == 0 {
			continue
		}
		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		}, opts...)
		if err == nil && token.Valid {
			if claims.Subject == "" || !claims.Role.Valid() {
				return nil, fmt.Errorf("%w: missing subject or role", jwt.ErrTokenInvalidClaims)
			}
			return claims, nil
		}
		lastErr = err
		// Only a signature mismatch is worth retrying with another key.
		if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			break
		}
	}
	if lastErr == nil {
		lastErr = jwt.ErrTokenUnverifiable
	}
	return nil, lastErr
}

// JWTOption configures JWTAuth.
type JWTOption func(*jwtAuthOptions)

type jwtAuthOptions struct {
	queryTokenRoutes map[string]struct{}
}

// WithQueryTokenRoutes accepts the access_token query parameter on GET
// requests to the given routes (gin full paths). Other routes require the
// Authorization header so tokens stay out of access logs.
func WithQueryTokenRoutes(routes ...string) JWTOption {
	return func(o *jwtAuthOptions) {
		for _, r := range routes {
			o.queryTokenRoutes[r] = struct{}{}
		}
	}
}

// JWTAuth returns a Gin middleware that validates Bearer tokens and populates context.
func JWTAuth(cfg JWTConfig, opts ...JWTOption) gin.HandlerFunc {
	options := jwtAuthOptions{queryTokenRoutes: make(map[string]struct{})}
	for _, opt := range opts {
		opt(&options)
	}

	return func(c *gin.Context) {
		tokenString, err := bearerToken(c, options.allowsQueryToken(c))
		if err != nil {
			abortUnauthorized(c, apperrors.CodeUnauthorized, err.Error())
			return
		}

		claims, err := cfg.ValidateToken(tokenString)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				abortUnauthorized(c, apperrors.CodeTokenExpired, "token expired")
				return
			}
			abortUnauthorized(c, apperrors.CodeUnauthorized, "invalid token")
			return
		}

		p := Principal{RecipientID: claims.Subject, Role: claims.Role, Name: claims.Name}
		c.Set(string(ctxKeyPrincipal), p)
		c.Request = c.Request.WithContext(SetPrincipal(c.Request.Context(), p))

		c.Next()
	}
}

func (o jwtAuthOptions) allowsQueryToken(c *gin.Context) bool {
	if c.Request.Method != http.MethodGet {
		return false
	}
	_, ok := o.queryTokenRoutes[c.FullPath()]
	return ok
}

func bearerToken(c *gin.Context, allowQuery bool) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if allowQuery {
			if q := c.Query(AccessTokenQueryParam); q != "" {
				return q, nil
			}
		}
		return "", errors.New("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    code,
		"message": message,
	})
}

package restful

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwt"
	"golang.org/x/exp/slices"
)

// tokenKey is the Gin context key the validated token is stored under.
const tokenKey = "restful-jwt"

// JWTParams configures the bearer-token guard.
type JWTParams struct {
	// SignatureAlgorithm and SignatureKey verify token signatures when both
	// are set, e.g. "HS256" plus the shared secret. Leaving either empty
	// skips signature verification.
	SignatureAlgorithm string
	SignatureKey       string

	// Issuer, when set, must match the token's `iss` claim.
	Issuer string

	// Audience, when set, must appear in the token's `aud` claim.
	Audience string

	// AnyOfRights optionally lists "claim:value" pairs; a token must carry
	// at least one of them or the request is answered 403.
	AnyOfRights []string
}

// JWT returns a guard middleware that admits only requests bearing a valid
// token. Failures leave through the structured-error escape hatch, so the
// error boundary must be installed ahead of it.
func JWT(params JWTParams) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			abortWith(c, Error401Unauthorized("jwt: token was not found"))
			return
		}

		token, err := parseToken(raw, params)
		if err != nil {
			abortWith(c, err)
			return
		}
		if err := validateToken(token, params); err != nil {
			abortWith(c, err)
			return
		}
		if err := checkRights(token, params.AnyOfRights); err != nil {
			abortWith(c, err)
			return
		}

		c.Set(tokenKey, token)
		c.Next()
	}
}

// GetToken returns the validated token for the current request, or nil when
// the guard did not admit one.
func GetToken(c *gin.Context) jwt.Token {
	if token, ok := c.Get(tokenKey); ok {
		return token.(jwt.Token)
	}
	return nil
}

func abortWith(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return header[7:]
	}
	return ""
}

func parseToken(raw string, params JWTParams) (jwt.Token, error) {
	var options []jwt.ParseOption
	if params.SignatureAlgorithm != "" && params.SignatureKey != "" {
		options = append(options, jwt.WithVerify(
			jwa.SignatureAlgorithm(params.SignatureAlgorithm),
			[]byte(params.SignatureKey),
		))
	}

	token, err := jwt.Parse([]byte(raw), options...)
	if err != nil {
		return nil, Error401Unauthorized(fmt.Sprintf("jwt: failed to parse token: %s", err))
	}
	return token, nil
}

func validateToken(token jwt.Token, params JWTParams) error {
	var options []jwt.ValidateOption
	if params.Issuer != "" {
		options = append(options, jwt.WithIssuer(params.Issuer))
	}
	if params.Audience != "" {
		options = append(options, jwt.WithAudience(params.Audience))
	}

	if err := jwt.Validate(token, options...); err != nil {
		return Error401Unauthorized(fmt.Sprintf("jwt: failed to validate token: %s", err))
	}
	return nil
}

// claimValues flattens a private claim into its string values; scalar claims
// come back as a one-element slice.
func claimValues(claims map[string]any, key string) []string {
	switch v := claims[key].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func checkRights(token jwt.Token, anyOfRights []string) error {
	if len(anyOfRights) == 0 {
		return nil
	}

	claims := token.PrivateClaims()
	for _, right := range anyOfRights {
		name, want, ok := strings.Cut(right, ":")
		if !ok {
			continue
		}
		if slices.Contains(claimValues(claims, name), want) {
			return nil
		}
	}

	return Error403Forbidden(fmt.Sprintf("jwt: no rights, necessary rights: %s", strings.Join(anyOfRights, " or ")))
}

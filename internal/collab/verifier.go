// Package collab holds the external collaborators the realtime core
// depends on: the identity verifier, the membership authority and the
// message store. The core only sees the interfaces.
package collab

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/hivechat/relay/internal/domain"
)

// Verifier is the black-box token verifier. Token issuance belongs to
// the persistence service; the gateway only checks what it is handed.
type Verifier interface {
	Verify(ctx context.Context, token string) (*domain.User, error)
}

// JWTVerifier validates HS256 tokens signed with the shared secret and
// extracts the identity claims set by the persistence service.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", ErrBadToken)
	}
	tok, err := jwt.Parse([]byte(token),
		jwt.WithKey(jwa.HS256, v.secret),
		jwt.WithValidate(true),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadToken, err)
	}

	uid := tok.Subject()
	if raw, ok := tok.Get("user:id"); ok {
		if s, ok := raw.(string); ok && s != "" {
			uid = s
		}
	}
	if uid == "" {
		return nil, fmt.Errorf("%w: no subject", ErrBadToken)
	}

	username := uid
	if raw, ok := tok.Get("username"); ok {
		if s, ok := raw.(string); ok && s != "" {
			username = s
		}
	}

	var roles []string
	if raw, ok := tok.Get("roles"); ok {
		if list, ok := raw.([]any); ok {
			for _, r := range list {
				if s, ok := r.(string); ok {
					roles = append(roles, s)
				}
			}
		}
	}

	return domain.NewUser(domain.UserID(uid), username, roles...)
}

// SignToken issues an HS256 token carrying the identity claims the
// verifier expects. Used by tests and by standalone deployments that
// run without the persistence service.
func SignToken(secret string, user *domain.User, ttl time.Duration) (string, error) {
	b := jwt.NewBuilder().
		Subject(string(user.ID)).
		Expiration(time.Now().Add(ttl))

	tok, err := b.Build()
	if err != nil {
		return "", err
	}
	if err = tok.Set("user:id", string(user.ID)); err != nil {
		return "", err
	}
	if err = tok.Set("username", user.Username); err != nil {
		return "", err
	}
	if len(user.Roles) > 0 {
		if err = tok.Set("roles", user.Roles); err != nil {
			return "", err
		}
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(secret)))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

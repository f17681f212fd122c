package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/velora-shop/checkout/internal/checkout"
)

const bearerPrefix = "Bearer "

// Verifier maps a bearer token to a user id. HS256 JWTs with the user id
// in the subject claim; anything else is ErrUnauthenticated.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) UserID(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, bearerPrefix) {
		return "", checkout.ErrUnauthenticated
	}

	tok, err := jwt.Parse(strings.TrimPrefix(h, bearerPrefix), func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !tok.Valid {
		return "", checkout.ErrUnauthenticated
	}

	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", checkout.ErrUnauthenticated
	}
	return sub, nil
}

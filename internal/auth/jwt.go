package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "call-inbox"

// tokenClaims wrap a stored credential. The JWT ID is the credential token;
// the signature only guards against tampering, the store decides validity.
type tokenClaims struct {
	jwt.RegisteredClaims

	Kind      Kind   `json:"kind"`
	Extension string `json:"ext,omitempty"`
}

type signer struct {
	secret []byte
}

/* ===================== ISSUE ===================== */

func (s signer) sign(c Credential) (string, error) {
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(c.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
			ID:        c.Token,
		},
		Kind:      c.Kind,
		Extension: c.Extension,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

/* ===================== VERIFY ===================== */

func (s signer) verify(raw string, now time.Time) (tokenClaims, error) {
	var claims tokenClaims

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30*time.Second), // clock skew tolerance
	)
	if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return tokenClaims{}, err
	}

	if claims.ID == "" {
		return tokenClaims{}, errors.New("token id missing")
	}
	if claims.Kind != KindSession && claims.Kind != KindDevice {
		return tokenClaims{}, errors.New("unknown credential kind")
	}
	return claims, nil
}

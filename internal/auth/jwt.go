package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds carried in the "typ" claim
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// ErrWrongTokenType is returned when a refresh token is presented as an
// access token or the other way round
var ErrWrongTokenType = errors.New("wrong token type")

type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email,omitempty"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

func MintTokens(userID, email, secret string, now time.Time, accessTTL, refreshTTL time.Duration) (TokenPair, error) {
	accessExp := now.Add(accessTTL)
	refreshExp := now.Add(refreshTTL)

	at, err := sign(Claims{
		UserID: userID,
		Email:  email,
		Type:   TokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(accessExp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}, secret)
	if err != nil {
		return TokenPair{}, err
	}
	rt, err := sign(Claims{
		UserID: userID,
		Email:  email,
		Type:   TokenRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(refreshExp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}, secret)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      at,
		RefreshToken:     rt,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func sign(c Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

// ParseClaims validates tokenStr as of now and checks its type
func ParseClaims(tokenStr, secret, wantType string, now time.Time) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || c.UserID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if c.Type != wantType {
		return nil, ErrWrongTokenType
	}
	return c, nil
}

package session

import (
	"errors"
	"time"

	"coincall/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenAudience = "media"

// Claims grant one user entry to one media channel.
type Claims struct {
	jwt.RegisteredClaims

	UserID     string `json:"user_id"`
	ChannelRef string `json:"channel_ref"`
}

// Issuer mints and verifies media session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(cfg config.MediaConfig) (*Issuer, error) {
	if cfg.TokenSecret == "" {
		return nil, errors.New("MEDIA_TOKEN_SECRET is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Issuer{secret: []byte(cfg.TokenSecret), ttl: ttl}, nil
}

func (i *Issuer) Issue(channelRef, userID string, now time.Time) (string, error) {
	if channelRef == "" || userID == "" {
		return "", errors.New("channel_ref and user_id required")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
		UserID:     userID,
		ChannelRef: channelRef,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

func (i *Issuer) Verify(token string, now time.Time) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30*time.Second),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}); err != nil {
		return Claims{}, err
	}
	if claims.UserID == "" || claims.ChannelRef == "" {
		return Claims{}, errors.New("session token missing user_id or channel_ref")
	}
	return claims, nil
}

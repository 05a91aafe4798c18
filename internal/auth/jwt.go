package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func BuildJWTClaims(p Profile, ttl time.Duration) Claims {
	now := time.Now()
	rc := jwt.RegisteredClaims{
		Subject:   p.UserID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	return Claims{
		UserID:           p.UserID,
		Email:            p.Email,
		Role:             p.Role,
		RegisteredClaims: rc,
	}
}

func SignToken(claims Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseToken парсит и валидирует JWT токен
func ParseToken(tokenString string, secret []byte) (Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return Claims{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, jwt.ErrSignatureInvalid
	}
	// UserID может отсутствовать в старых токенах, тогда берём его из Subject
	if claims.UserID == uuid.Nil && claims.Subject != "" {
		if userID, err := uuid.Parse(claims.Subject); err == nil {
			claims.UserID = userID
		}
	}
	if claims.UserID == uuid.Nil || claims.ID == "" || claims.ExpiresAt == nil {
		return Claims{}, jwt.ErrTokenInvalidClaims
	}
	return *claims, nil
}

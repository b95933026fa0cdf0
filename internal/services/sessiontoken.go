package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/academy-backend/internal/platform/logger"
)

// SessionClaims bind a playback session to one user and one lesson; progress
// reports carrying a token minted for a different lesson are rejected.
type SessionClaims struct {
	LessonID string `json:"lesson_id"`
	jwt.RegisteredClaims
}

type SessionTokenService interface {
	Mint(userID, lessonID uuid.UUID) (string, error)
	Verify(tokenString string, userID, lessonID uuid.UUID) error
}

type sessionTokenService struct {
	log          *logger.Logger
	jwtSecretKey string
	ttl          time.Duration
}

func NewSessionTokenService(log *logger.Logger, jwtSecretKey string, ttl time.Duration) SessionTokenService {
	serviceLog := log.With("service", "SessionTokenService")
	return &sessionTokenService{
		log:          serviceLog,
		jwtSecretKey: jwtSecretKey,
		ttl:          ttl,
	}
}

func (st *sessionTokenService) Mint(userID, lessonID uuid.UUID) (string, error) {
	if userID == uuid.Nil || lessonID == uuid.Nil {
		return "", fmt.Errorf("user id and lesson id required")
	}
	claims := SessionClaims{
		LessonID: lessonID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(st.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(st.jwtSecretKey))
}

func (st *sessionTokenService) Verify(tokenString string, userID, lessonID uuid.UUID) error {
	if tokenString == "" {
		return fmt.Errorf("session token required")
	}
	parsedToken, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(st.jwtSecretKey), nil
	})
	if err != nil {
		return fmt.Errorf("parse session token: %w", err)
	}
	claims, ok := parsedToken.Claims.(*SessionClaims)
	if !ok || !parsedToken.Valid {
		return fmt.Errorf("invalid or expired session token")
	}
	if claims.Subject != userID.String() {
		return fmt.Errorf("session token minted for another user")
	}
	if claims.LessonID != lessonID.String() {
		return fmt.Errorf("session token minted for another lesson")
	}
	return nil
}

package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-quiz/internal/config"
)

// ErrTicketInvalid is returned for tickets that fail signature, expiry or
// claim checks.
var ErrTicketInvalid = errors.New("invalid session ticket")

// Claims binds a ticket to one quiz session.
type Claims struct {
	jwt.RegisteredClaims
	SessionID   string `json:"sid"`
	TestToken   string `json:"test_token"`
	StudentName string `json:"student_name"`
}

// TicketService signs and verifies quiz session tickets. A ticket is a
// handle on a session, not a login.
type TicketService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewTicketService creates a new TicketService.
func NewTicketService(cfg *config.Config) *TicketService {
	return &TicketService{
		secret: []byte(cfg.TicketSecret),
		expiry: cfg.TicketExpiry,
		now:    time.Now,
	}
}

// Issue signs a ticket for the session.
func (s *TicketService) Issue(sessionID uuid.UUID, testToken, studentName string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.expiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   sessionID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID:   sessionID.String(),
		TestToken:   testToken,
		StudentName: studentName,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign ticket: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses and validates a ticket, returning its claims.
func (s *TicketService) Validate(ticket string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(ticket, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTicketInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTicketInvalid
	}
	if _, err := uuid.Parse(claims.SessionID); err != nil || claims.TestToken == "" {
		return nil, ErrTicketInvalid
	}
	return claims, nil
}

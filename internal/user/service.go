package user

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"go-channel-chat/internal/apperr"
)

type Service struct {
	repo      *Repository
	jwtSecret string
}

type ChatJWTClaims struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

func NewService(repo *Repository, secret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: secret,
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return nil, fmt.Errorf("name, email, and password are required: %w", apperr.ErrInvalidInput)
	}

	taken, err := s.repo.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("email already used: %w", apperr.ErrInvalidInput)
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hashedPwd),
	}

	return s.repo.CreateUser(ctx, u)
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, fmt.Errorf("email and password are required: %w", apperr.ErrInvalidInput)
	}

	u, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", apperr.ErrUnauthorized)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", apperr.ErrUnauthorized)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ChatJWTClaims{
		ID:   u.ID,
		Name: u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "go-channel-chat",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: ss,
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
	}, nil
}

func (s *Service) ValidateToken(tokenString string) (int, string, error) {
	claims := &ChatJWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})

	if err != nil || !token.Valid {
		return 0, "", apperr.ErrUnauthorized
	}

	return claims.ID, claims.Name, nil
}

// DisplayName resolves an opaque wire identity to a display name. The
// realtime router calls this at identify time; the id on the wire is the
// decimal user id.
func (s *Service) DisplayName(ctx context.Context, userID string) (string, error) {
	id, err := strconv.Atoi(userID)
	if err != nil {
		return "", fmt.Errorf("user id %q: %w", userID, apperr.ErrInvalidInput)
	}
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Name, nil
}

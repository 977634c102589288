package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"messenger/internal/config"
	"messenger/internal/database"
	"messenger/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const maxUsernameLength = 50

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidRequest     = errors.New("invalid request")
)

type Service struct {
	users database.UserRepository
	cfg   config.JWTConfig
	now   func() time.Time
}

func NewService(users database.UserRepository, cfg config.JWTConfig) *Service {
	return &Service{
		users: users,
		cfg:   cfg,
		now:   time.Now,
	}
}

func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.LoginResponse, error) {
	// Validate input
	if err := validateCredentials(&req.Username, req.Password); err != nil {
		return nil, err
	}

	user, err := s.users.CreateUser(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &models.LoginResponse{
		Token: token,
		User:  publicUser(user),
	}, nil
}

func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	if err := validateCredentials(&req.Username, req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetUserByUsername(ctx, req.Username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &models.LoginResponse{
		Token: token,
		User:  publicUser(user),
	}, nil
}

// publicUser copies user without its password hash. The repository's value
// is left untouched.
func publicUser(user *models.User) models.User {
	u := *user
	u.PasswordHash = ""
	return u
}

func (s *Service) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.cfg.Secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// UsernameFromToken resolves a token to the username of a user that still
// exists. The relay trusts the result as the connection's identity.
func (s *Service) UsernameFromToken(ctx context.Context, tokenString string) (string, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}

	userIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return "", fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	user, err := s.users.GetUserByID(ctx, int(userIDFloat))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return user.Username, nil
}

func (s *Service) generateToken(user *models.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"exp":      now.Add(s.cfg.ExpiresIn).Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.Secret)
}

func validateCredentials(username *string, password string) error {
	*username = strings.TrimSpace(*username)
	if *username == "" || password == "" {
		return fmt.Errorf("%w: username and password required", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(*username) > maxUsernameLength {
		return fmt.Errorf("%w: username must be at most %d characters", ErrInvalidRequest, maxUsernameLength)
	}
	if *username == models.ServerSender {
		return fmt.Errorf("%w: username %q is reserved", ErrInvalidRequest, *username)
	}
	return nil
}

package database

import (
	"context"
	"errors"

	"messenger/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already exists")
)

type UserRepository interface {
	CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	ListUsernames(ctx context.Context) ([]string, error)
}

// MessageRepository is the write-only message sink used by the relay.
type MessageRepository interface {
	SaveMessage(ctx context.Context, msg models.Message) error
}

type Database interface {
	UserRepository
	MessageRepository
	EnsureSchema(ctx context.Context) error
	Close() error
}

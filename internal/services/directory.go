package services

import (
	"context"
	"sort"

	"messenger/internal/models"
	"messenger/pkg/logger"
)

// Presence is the read side of the relay's presence tracker.
type Presence interface {
	ListOnline() []string
}

// UserLister lists the usernames of registered users.
type UserLister interface {
	ListUsernames(ctx context.Context) ([]string, error)
}

// Directory joins registered users with live presence.
type Directory struct {
	users    UserLister
	presence Presence
}

func NewDirectory(users UserLister, presence Presence) *Directory {
	return &Directory{users: users, presence: presence}
}

// OnlineUsers lists every known user with its online flag. Users that are
// connected but absent from the user store are included as online. If the
// store fails, the listing falls back to connected users only.
func (d *Directory) OnlineUsers(ctx context.Context) []models.OnlineUser {
	online := d.presence.ListOnline()
	seen := make(map[string]bool, len(online))
	for _, name := range online {
		seen[name] = true
	}

	var known []string
	if d.users != nil {
		var err error
		known, err = d.users.ListUsernames(ctx)
		if err != nil {
			logger.Warn("Error listing users, falling back to connected users: %v", err)
			known = nil
		}
	}

	result := make([]models.OnlineUser, 0, len(known)+len(online))
	for _, name := range known {
		result = append(result, models.OnlineUser{Username: name, Online: seen[name]})
		delete(seen, name)
	}
	for name := range seen {
		result = append(result, models.OnlineUser{Username: name, Online: true})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result
}

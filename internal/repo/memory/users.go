package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/ninjafinder/internal/domain/user"
	"github.com/google/uuid"
)

type UsersRepo struct {
	mu      sync.RWMutex
	byEmail map[string]user.User
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		byEmail: make(map[string]user.User),
	}
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	r.mu.RLock()
	u, ok := r.byEmail[user.NormalizeEmail(email)]
	r.mu.RUnlock()

	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) Create(ctx context.Context, p user.CreateParams) (user.User, error) {
	now := time.Now().UTC()

	role := p.Role
	if role == "" {
		role = user.DefaultRole
	}

	u := user.User{
		ID:           uuid.NewString(),
		Email:        user.NormalizeEmail(p.Email),
		PasswordHash: p.PasswordHash,
		Name:         p.Name,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[u.Email]; exists {
		return user.User{}, user.ErrEmailTaken
	}

	r.byEmail[u.Email] = u

	return u, nil
}

func (r *UsersRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byEmail)
}

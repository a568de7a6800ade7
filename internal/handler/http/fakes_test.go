package http

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/authservice/internal/domain"
	"github.com/utafrali/authservice/internal/repository"
	apperrors "github.com/utafrali/authservice/pkg/errors"
)

// memoryStore is an in-memory implementation of both repositories, enough to
// drive the handlers end to end.
type memoryStore struct {
	mu       sync.Mutex
	nextUser int64
	nextTok  int64
	users    map[int64]*domain.User
	roles    map[string]domain.Role
	tokens   map[int64]*domain.RefreshToken
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:  make(map[int64]*domain.User),
		tokens: make(map[int64]*domain.RefreshToken),
		roles: map[string]domain.Role{
			domain.RoleUser: {ID: 1, Name: domain.RoleUser, Permissions: []domain.Permission{
				{Name: domain.PermProfileRead},
			}},
			domain.RoleAdmin: {ID: 2, Name: domain.RoleAdmin, Permissions: []domain.Permission{
				{Name: domain.PermProfileRead},
				{Name: domain.PermUsersRead},
				{Name: domain.PermTokensCleanup},
			}},
		},
	}
}

// grant adds role to the user, as an operator would in the database.
func (s *memoryStore) grant(userID int64, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID]
	u.Roles = append(u.Roles, s.roles[role])
}

func (s *memoryStore) liveTokens(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

// users

type memoryUsers struct{ *memoryStore }

func (s memoryUsers) Create(_ context.Context, u *domain.User, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
	}
	s.nextUser++
	now := time.Now().UTC()
	u.ID, u.CreatedAt, u.UpdatedAt = s.nextUser, now, now
	if r, ok := s.roles[role]; ok {
		u.Roles = []domain.Role{r}
	}
	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s memoryUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return u.Sanitized(), nil
}

func (s memoryUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s memoryUsers) List(_ context.Context, limit, offset int) ([]domain.User, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.User{}
	for id := int64(1); id <= s.nextUser; id++ {
		u, ok := s.users[id]
		if !ok {
			continue
		}
		out = append(out, *u.Sanitized())
	}
	total := int64(len(out))
	if offset >= len(out) {
		return []domain.User{}, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

// refresh tokens

type memoryTokens struct{ *memoryStore }

func (s memoryTokens) insert(t *domain.RefreshToken) {
	s.nextTok++
	c := *t
	c.ID = s.nextTok
	c.CreatedAt = time.Now().UTC()
	s.tokens[c.ID] = &c
}

func (s memoryTokens) find(userID int64, hash string) (int64, *domain.RefreshToken) {
	for id, t := range s.tokens {
		if t.UserID == userID && t.TokenHash == hash {
			return id, t
		}
	}
	return 0, nil
}

func (s memoryTokens) Create(_ context.Context, t *domain.RefreshToken, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if replace {
		for id, existing := range s.tokens {
			if existing.UserID == t.UserID {
				delete(s.tokens, id)
			}
		}
	}
	s.insert(t)
	return nil
}

func (s memoryTokens) Rotate(_ context.Context, userID int64, oldHash string, next *domain.RefreshToken, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, old := s.find(userID, oldHash)
	if old == nil {
		return apperrors.ErrNotFound
	}
	delete(s.tokens, id)
	if old.Expired(now) {
		return repository.ErrRefreshTokenExpired
	}
	s.insert(next)
	return nil
}

func (s memoryTokens) DeleteByUserAndHash(_ context.Context, userID int64, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, t := s.find(userID, hash)
	if t == nil {
		return false, nil
	}
	delete(s.tokens, id)
	return true, nil
}

func (s memoryTokens) DeleteByUser(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.tokens {
		if t.UserID == userID {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}

func (s memoryTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}

// events

type recordedEvents struct {
	mu         sync.Mutex
	registered []int64
	revoked    map[int64]int64
}

func (e *recordedEvents) PublishUserRegistered(_ context.Context, u *domain.User) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registered = append(e.registered, u.ID)
	return nil
}

func (e *recordedEvents) PublishSessionsRevoked(_ context.Context, userID, revoked int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.revoked == nil {
		e.revoked = make(map[int64]int64)
	}
	e.revoked[userID] = revoked
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

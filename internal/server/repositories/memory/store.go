// Package memory provides in-process implementations of the user and session
// stores. They back the "memory" storage mode and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/server/models"
	"github.com/dmitrijs2005/zkvault/internal/server/repositories/sessions"
)

// Store holds users and sessions in maps guarded by a single mutex. Per-user
// admission locks are kept separately so WithUserLock never holds mu while
// the callback runs.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	byEmail  map[string]string
	sessions map[string]*models.Session
	byToken  map[string]string

	userLocks sync.Map
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]*models.User),
		byEmail:  make(map[string]string),
		sessions: make(map[string]*models.Session),
		byToken:  make(map[string]string),
	}
}

// Users

func (s *Store) Create(ctx context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[user.Email]; ok {
		return nil, common.ErrAlreadyExists
	}
	if _, ok := s.users[user.ID]; ok {
		return nil, common.ErrAlreadyExists
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	cp := *user
	s.users[user.ID] = &cp
	s.byEmail[user.Email] = user.ID
	return user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

// Sessions is a view of the store satisfying sessions.Store. It shares the
// underlying maps with the user view so deletes can cascade.
func (s *Store) Sessions() *SessionView {
	return &SessionView{s: s}
}

type SessionView struct {
	s *Store
}

var _ sessions.Store = (*SessionView)(nil)

func copySession(in *models.Session) *models.Session {
	cp := *in
	if in.RefreshToken != nil {
		t := *in.RefreshToken
		cp.RefreshToken = &t
	}
	return &cp
}

func (v *SessionView) Create(ctx context.Context, sess *models.Session) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; ok {
		return common.ErrAlreadyExists
	}
	if _, ok := s.users[sess.UserID]; !ok {
		return common.ErrorNotFound
	}
	if sess.RefreshToken != nil {
		if _, ok := s.byToken[*sess.RefreshToken]; ok {
			return common.ErrAlreadyExists
		}
		s.byToken[*sess.RefreshToken] = sess.ID
	}
	s.sessions[sess.ID] = copySession(sess)
	return nil
}

func (v *SessionView) FindByID(ctx context.Context, id string) (*models.Session, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copySession(sess), nil
}

func (v *SessionView) FindByUserID(ctx context.Context, userID string) ([]*models.Session, error) {
	out := v.filter(userID, func(*models.Session) bool { return true })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (v *SessionView) FindActive(ctx context.Context, userID string, now time.Time) ([]*models.Session, error) {
	out := v.filter(userID, func(sess *models.Session) bool { return sess.Usable(now) })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (v *SessionView) filter(userID string, keep func(*models.Session) bool) []*models.Session {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID && keep(sess) {
			out = append(out, copySession(sess))
		}
	}
	return out
}

func (v *SessionView) FindByRefreshToken(ctx context.Context, token string, now time.Time) (*models.Session, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byToken[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	sess := s.sessions[id]
	if !sess.Usable(now) {
		return nil, common.ErrorNotFound
	}
	return copySession(sess), nil
}

func (v *SessionView) Revoke(ctx context.Context, id string) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.IsActive = false
	}
	return nil
}

func (v *SessionView) RevokeOldestSession(ctx context.Context, userID string, now time.Time) (string, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *models.Session
	for _, sess := range s.sessions {
		if sess.UserID != userID || !sess.Usable(now) {
			continue
		}
		if oldest == nil || sess.CreatedAt.Before(oldest.CreatedAt) {
			oldest = sess
		}
	}
	if oldest == nil {
		return "", common.ErrorNotFound
	}
	oldest.IsActive = false
	return oldest.ID, nil
}

func (v *SessionView) CountActive(ctx context.Context, userID string, now time.Time) (int, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Usable(now) {
			n++
		}
	}
	return n, nil
}

func (v *SessionView) CleanExpired(ctx context.Context, now time.Time) (int64, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			if sess.RefreshToken != nil {
				delete(s.byToken, *sess.RefreshToken)
			}
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// WithUserLock serialises callers per user with a dedicated mutex. Calling it
// again for the same user from inside fn deadlocks.
func (v *SessionView) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, repo sessions.Repository) error) error {
	if _, err := v.s.GetByID(ctx, userID); err != nil {
		return err
	}

	m, _ := v.s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, v)
}

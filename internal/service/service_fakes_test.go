package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/fasalrakshak-api/internal/domain/entity"
	apperrors "github.com/yourusername/fasalrakshak-api/internal/pkg/errors"
)

// ============================================================================
// In-memory fakes shared by the service tests
// ============================================================================

// memUserRepo is an in-memory repository.UserRepository. It stores copies and
// runs the BeforeSave hook the way GORM would, so password hashing behaves as
// in production.
type memUserRepo struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]*entity.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[uint]*entity.User)}
}

func cloneUser(u *entity.User) *entity.User {
	clone := *u
	if u.OTPExpiresAt != nil {
		t := *u.OTPExpiresAt
		clone.OTPExpiresAt = &t
	}
	return &clone
}

func (r *memUserRepo) Create(user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := user.BeforeSave(nil); err != nil {
		return err
	}
	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *memUserRepo) GetByID(id uint) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *memUserRepo) GetByEmail(email string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memUserRepo) Update(user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return apperrors.ErrNotFound
	}
	if err := user.BeforeSave(nil); err != nil {
		return err
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *memUserRepo) UpdateFields(userID uint, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	for k, v := range updates {
		switch k {
		case "last_delivery_error":
			u.LastDeliveryError = v.(string)
		case "is_verified":
			u.IsVerified = v.(bool)
		}
	}
	u.UpdatedAt = time.Now()
	return nil
}

// fakeTransport records dispatched messages and returns scripted errors.
type fakeTransport struct {
	mu    sync.Mutex
	calls int
	sent  []Message
	errs  []error // per-call errors in order; nil means success
}

func (t *fakeTransport) SendMessage(ctx context.Context, msg Message) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.calls
	t.calls++
	t.sent = append(t.sent, msg)
	if idx < len(t.errs) && t.errs[idx] != nil {
		return "", t.errs[idx]
	}
	return fmt.Sprintf("msg-%d", idx), nil
}

var otpCodePattern = regexp.MustCompile(`\b(\d{6})\b`)

// lastCode extracts the 6-digit code from the most recently sent message.
func (t *fakeTransport) lastCode() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sent) == 0 {
		return ""
	}
	return otpCodePattern.FindString(t.sent[len(t.sent)-1].Text)
}

func (t *fakeTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// memCache is an in-memory repository.CacheRepository.
type memCache struct {
	mu   sync.Mutex
	data map[string]string
	exp  map[string]time.Time
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]string), exp: make(map[string]time.Time)}
}

func (c *memCache) expired(key string) bool {
	exp, ok := c.exp[key]
	return ok && time.Now().After(exp)
}

func (c *memCache) Set(key string, value interface{}, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = fmt.Sprintf("%v", value)
	if expiration > 0 {
		c.exp[key] = time.Now().Add(expiration)
	} else {
		delete(c.exp, key)
	}
	return nil
}

func (c *memCache) Get(key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expired(key) {
		delete(c.data, key)
		delete(c.exp, key)
	}
	val, ok := c.data[key]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	return val, nil
}

func (c *memCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	delete(c.exp, key)
	return nil
}

func (c *memCache) Increment(key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expired(key) {
		delete(c.data, key)
		delete(c.exp, key)
	}
	n, _ := strconv.ParseInt(c.data[key], 10, 64)
	n++
	c.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (c *memCache) Expire(key string, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exp[key] = time.Now().Add(expiration)
	return nil
}

func (c *memCache) TTL(key string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.exp[key]
	if !ok {
		return -1, nil
	}
	return time.Until(exp), nil
}

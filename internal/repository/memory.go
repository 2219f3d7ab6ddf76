package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/bazaardial/internal/models"
)

// MemoryStore is a process-local Store used by tests and the memory driver.
// It enforces the same unique keys as the database adapters.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]*models.User
	businesses map[string]*models.Business
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]*models.User),
		businesses: make(map[string]*models.Business),
	}
}

func (s *MemoryStore) Users() UserStore         { return memUsers{s} }
func (s *MemoryStore) Businesses() BusinessStore { return memBusinesses{s} }
func (s *MemoryStore) Close(context.Context) error {
	return nil
}

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.OTP != nil {
		c.OTP = make(map[models.Channel]*models.OTPRecord, len(u.OTP))
		for ch, rec := range u.OTP {
			if rec == nil {
				continue
			}
			r := *rec
			c.OTP[ch] = &r
		}
	}
	return &c
}

func cloneBusiness(b *models.Business) *models.Business {
	c := *b
	if b.GalleryURLs != nil {
		c.GalleryURLs = append([]string(nil), b.GalleryURLs...)
	}
	return &c
}

type memUsers struct{ s *MemoryStore }

func (r memUsers) checkUnique(u *models.User) error {
	for id, other := range r.s.users {
		if id == u.ID {
			continue
		}
		switch {
		case other.Username == u.Username:
			return &DuplicateError{Field: FieldUsername}
		case u.Mobile != "" && other.Mobile == u.Mobile:
			return &DuplicateError{Field: FieldMobile}
		case u.Email != "" && other.Email == u.Email:
			return &DuplicateError{Field: FieldEmail}
		}
	}
	return nil
}

func (r memUsers) Create(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u.Touch(time.Now())
	if _, exists := r.s.users[u.ID]; exists {
		return &DuplicateError{Field: "_id"}
	}
	if err := r.checkUnique(u); err != nil {
		return err
	}
	r.s.users[u.ID] = cloneUser(u)
	return nil
}

func (r memUsers) Save(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u.Touch(time.Now())
	if err := r.checkUnique(u); err != nil {
		return err
	}
	r.s.users[u.ID] = cloneUser(u)
	return nil
}

func (r memUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ID == id })
}

func (r memUsers) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Username == username })
}

func (r memUsers) FindByMobile(_ context.Context, mobile string) (*models.User, error) {
	if mobile == "" {
		return nil, ErrNotFound
	}
	return r.find(func(u *models.User) bool { return u.Mobile == mobile })
}

func (r memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, ErrNotFound
	}
	return r.find(func(u *models.User) bool { return u.Email == email })
}

func (r memUsers) UsernameTaken(_ context.Context, username, excludeID string) (bool, error) {
	_, err := r.find(func(u *models.User) bool { return u.Username == username && u.ID != excludeID })
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r memUsers) find(match func(*models.User) bool) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

type memBusinesses struct{ s *MemoryStore }

func (r memBusinesses) checkUnique(b *models.Business) error {
	for id, other := range r.s.businesses {
		if id == b.ID {
			continue
		}
		if other.OwnerID == b.OwnerID {
			return &DuplicateError{Field: FieldOwner}
		}
		if other.PrimaryPhone == b.PrimaryPhone {
			return &DuplicateError{Field: FieldPrimaryPhone}
		}
	}
	return nil
}

func (r memBusinesses) Create(_ context.Context, b *models.Business) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b.Touch(time.Now())
	if _, exists := r.s.businesses[b.ID]; exists {
		return &DuplicateError{Field: "_id"}
	}
	if err := r.checkUnique(b); err != nil {
		return err
	}
	r.s.businesses[b.ID] = cloneBusiness(b)
	return nil
}

func (r memBusinesses) Save(_ context.Context, b *models.Business) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b.Touch(time.Now())
	if err := r.checkUnique(b); err != nil {
		return err
	}
	r.s.businesses[b.ID] = cloneBusiness(b)
	return nil
}

func (r memBusinesses) FindByID(_ context.Context, id string) (*models.Business, error) {
	return r.find(func(b *models.Business) bool { return b.ID == id })
}

func (r memBusinesses) FindByOwner(_ context.Context, ownerID string) (*models.Business, error) {
	return r.find(func(b *models.Business) bool { return b.OwnerID == ownerID })
}

func (r memBusinesses) PhoneTaken(_ context.Context, phone, excludeID string) (bool, error) {
	_, err := r.find(func(b *models.Business) bool { return b.PrimaryPhone == phone && b.ID != excludeID })
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r memBusinesses) DeleteByOwner(_ context.Context, ownerID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, b := range r.s.businesses {
		if b.OwnerID == ownerID {
			delete(r.s.businesses, id)
			return nil
		}
	}
	return ErrNotFound
}

func (r memBusinesses) List(_ context.Context, f ListFilter) ([]models.Business, error) {
	r.s.mu.RLock()
	query := strings.ToLower(f.Query)
	items := make([]models.Business, 0, len(r.s.businesses))
	for _, b := range r.s.businesses {
		if query != "" && !strings.Contains(strings.ToLower(b.BusinessName), query) {
			continue
		}
		if f.Category != "" && b.Category != f.Category {
			continue
		}
		items = append(items, *cloneBusiness(b))
	}
	r.s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	if f.Offset >= len(items) {
		return []models.Business{}, nil
	}
	items = items[f.Offset:]
	if f.Limit > 0 && len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return items, nil
}

func (r memBusinesses) find(match func(*models.Business) bool) (*models.Business, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, b := range r.s.businesses {
		if match(b) {
			return cloneBusiness(b), nil
		}
	}
	return nil, ErrNotFound
}

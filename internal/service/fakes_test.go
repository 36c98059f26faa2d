package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"rallyup/activityhub/internal/model"
	"rallyup/activityhub/internal/repository"
)

// fakeStore is an in-memory stand-in for the database behind both repositories.
type fakeStore struct {
	mu         sync.Mutex
	users      map[uuid.UUID]model.User
	activities map[uuid.UUID]model.Activity
	members    map[uuid.UUID][]model.ActivityInvitee

	createCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:      make(map[uuid.UUID]model.User),
		activities: make(map[uuid.UUID]model.Activity),
		members:    make(map[uuid.UUID][]model.ActivityInvitee),
	}
}

func (f *fakeStore) addUser(username string, role model.Role) model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := model.User{ID: uuid.New(), Username: username, Email: username + "@example.com", Role: role}
	f.users[u.ID] = u
	return u
}

// resolve copies an activity and attaches owner and invitees. Caller holds mu.
func (f *fakeStore) resolve(a model.Activity) *model.Activity {
	a.Owner = f.users[a.OwnerID]
	a.Invitees = nil
	for _, m := range f.members[a.ID] {
		m.User = f.users[m.UserID]
		a.Invitees = append(a.Invitees, m)
	}
	return &a
}

type fakeActivityRepo struct{ *fakeStore }

func (r fakeActivityRepo) Create(_ context.Context, activity *model.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if _, ok := r.users[activity.OwnerID]; !ok {
		return repository.ErrMissingReference
	}
	for _, existing := range r.activities {
		if existing.ReferralCode == activity.ReferralCode {
			return fmt.Errorf("%w: referral_code", repository.ErrDuplicateKey)
		}
	}
	if activity.ID == uuid.Nil {
		activity.ID = uuid.New()
	}
	if activity.Visibility == "" {
		activity.Visibility = model.VisibilityPrivate
	}
	activity.CreatedAt = time.Now()
	activity.UpdatedAt = activity.CreatedAt
	r.activities[activity.ID] = *activity
	return nil
}

func (r fakeActivityRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.activities[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r.resolve(a), nil
}

func (r fakeActivityRepo) GetByReferralCode(_ context.Context, code string) (*model.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.activities {
		if a.ReferralCode == code {
			return r.resolve(a), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeActivityRepo) List(_ context.Context, query repository.ActivityQuery) ([]model.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Activity, 0)
	for _, a := range r.activities {
		if query.Visibility != "" && a.Visibility != query.Visibility {
			continue
		}
		if query.Category != "" && a.Category != query.Category {
			continue
		}
		if query.OwnerID != uuid.Nil && a.OwnerID != query.OwnerID {
			continue
		}
		if query.ViewerID != uuid.Nil && !r.visibleTo(a, query.ViewerID) {
			continue
		}
		out = append(out, *r.resolve(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r fakeActivityRepo) Update(_ context.Context, id uuid.UUID, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.activities[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for key, value := range fields {
		switch key {
		case "title":
			a.Title = value.(string)
		case "description":
			a.Description = value.(string)
		case "category":
			a.Category = value.(string)
		case "visibility":
			a.Visibility = model.Visibility(value.(string))
		case "banner_image":
			a.BannerImage = value.(string)
		default:
			return fmt.Errorf("unexpected column %s", key)
		}
	}
	a.UpdatedAt = time.Now()
	r.activities[id] = a
	return nil
}

func (r fakeActivityRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.activities[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.activities, id)
	delete(r.members, id)
	return nil
}

func (r fakeActivityRepo) AddInvitee(_ context.Context, activityID, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.activities[activityID]; !ok {
		return false, repository.ErrMissingReference
	}
	for _, m := range r.members[activityID] {
		if m.UserID == userID {
			return false, nil
		}
	}
	r.members[activityID] = append(r.members[activityID], model.ActivityInvitee{
		ActivityID: activityID,
		UserID:     userID,
		JoinedAt:   time.Now(),
	})
	return true, nil
}

func (r fakeActivityRepo) RemoveInvitee(_ context.Context, activityID, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := r.members[activityID]
	for i, m := range members {
		if m.UserID == userID {
			r.members[activityID] = append(members[:i:i], members[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// visibleTo mirrors the store's viewer scoping. Caller holds mu.
func (r fakeActivityRepo) visibleTo(a model.Activity, viewer uuid.UUID) bool {
	if a.Visibility == model.VisibilityPublic || a.OwnerID == viewer {
		return true
	}
	for _, m := range r.members[a.ID] {
		if m.UserID == viewer {
			return true
		}
	}
	return false
}

type fakeUserRepo struct{ *fakeStore }

func (r fakeUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) || strings.EqualFold(u.Username, user.Username) {
			return fmt.Errorf("%w: users", repository.ErrDuplicateKey)
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	r.users[user.ID] = *user
	return nil
}

func (r fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (r fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Username, username) {
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeUserRepo) List(_ context.Context) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

func (r fakeUserRepo) Update(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, u := range r.users {
		if id != user.ID && strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("%w: users", repository.ErrDuplicateKey)
		}
	}
	r.users[user.ID] = *user
	return nil
}

func (r fakeUserRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.users, id)
	return nil
}

// fakeAssetStore records uploads in memory.
type fakeAssetStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	failPut bool
}

func newFakeAssetStore() *fakeAssetStore {
	return &fakeAssetStore{objects: make(map[string][]byte)}
}

func (s *fakeAssetStore) Put(_ context.Context, key string, _ string, body []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut {
		return "", fmt.Errorf("bucket unavailable")
	}
	url := "https://cdn.example.com/" + key
	s.objects[url] = body
	return url, nil
}

func (s *fakeAssetStore) Delete(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, url)
	s.deleted = append(s.deleted, url)
	return nil
}

// Package storetest provides in-memory stores for handler tests.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/webprogramming/estate/backend/models"
	"github.com/webprogramming/estate/backend/query"
	"github.com/webprogramming/estate/backend/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	_ store.UserStore    = (*Users)(nil)
	_ store.ListingStore = (*Listings)(nil)
)

// Users is an in-memory store.UserStore with the same uniqueness rules as
// the Mongo indexes.
type Users struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]models.User

	// Err, when set, is returned by every call.
	Err error
}

func NewUsers() *Users {
	return &Users{users: make(map[primitive.ObjectID]models.User)}
}

func (s *Users) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if err := s.checkUnique(primitive.NilObjectID, user.Email, user.Username); err != nil {
		return err
	}

	now := time.Now().UTC()
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = *user
	return nil
}

func (s *Users) checkUnique(self primitive.ObjectID, email, username string) error {
	for id, u := range s.users {
		if id == self {
			continue
		}
		if email != "" && u.Email == email {
			return &store.DuplicateKeyError{Field: "email"}
		}
		if username != "" && u.Username == username {
			return &store.DuplicateKeyError{Field: "username"}
		}
	}
	return nil
}

func (s *Users) FindByID(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, store.ErrNotFound
	}
	u, ok := s.users[objID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Users) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return s.findBy(func(u models.User) bool { return u.Email == email })
}

func (s *Users) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return s.findBy(func(u models.User) bool { return u.Username == username })
}

func (s *Users) findBy(match func(models.User) bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, u := range s.users {
		if match(u) {
			u := u
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Users) Update(_ context.Context, id string, update models.UserUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, store.ErrNotFound
	}
	u, ok := s.users[objID]
	if !ok {
		return nil, store.ErrNotFound
	}

	var email, username string
	if update.Email != nil {
		email = *update.Email
	}
	if update.Username != nil {
		username = *update.Username
	}
	if err := s.checkUnique(objID, email, username); err != nil {
		return nil, err
	}

	if update.Username != nil {
		u.Username = *update.Username
	}
	if update.Email != nil {
		u.Email = *update.Email
	}
	if update.Password != nil {
		u.Password = *update.Password
	}
	if update.Avatar != nil {
		u.Avatar = *update.Avatar
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[objID] = u
	return &u, nil
}

func (s *Users) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return store.ErrNotFound
	}
	if _, ok := s.users[objID]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, objID)
	return nil
}

// Listings is an in-memory store.ListingStore. Find applies the same
// filters, ordering and paging as the Mongo query.
type Listings struct {
	mu       sync.Mutex
	listings map[primitive.ObjectID]models.Listing

	// Err, when set, is returned by every call.
	Err error
	// Finds counts calls to Find.
	Finds int
	// UnreadablePhones blanks phone numbers on read, as the Mongo store does
	// for values it cannot decrypt.
	UnreadablePhones bool
}

func NewListings() *Listings {
	return &Listings{listings: make(map[primitive.ObjectID]models.Listing)}
}

func clone(l models.Listing) models.Listing {
	l.ImageURLs = append([]string{}, l.ImageURLs...)
	return l
}

// Put stores l as is, keeping its timestamps. Tests use it to seed data.
func (s *Listings) Put(l models.Listing) models.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID.IsZero() {
		l.ID = primitive.NewObjectID()
	}
	s.listings[l.ID] = clone(l)
	return l
}

// Stored returns the listing exactly as held, bypassing read-side blanking.
func (s *Listings) Stored(id primitive.ObjectID) (models.Listing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	return clone(l), ok
}

func (s *Listings) read(l models.Listing) models.Listing {
	l = clone(l)
	if s.UnreadablePhones {
		l.PhoneNumber = ""
	}
	return l
}

func (s *Listings) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listings)
}

func (s *Listings) Create(_ context.Context, listing *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	now := time.Now().UTC()
	if listing.ID.IsZero() {
		listing.ID = primitive.NewObjectID()
	}
	listing.CreatedAt = now
	listing.UpdatedAt = now
	s.listings[listing.ID] = clone(*listing)
	return nil
}

func (s *Listings) FindByID(_ context.Context, id string) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, store.ErrNotFound
	}
	l, ok := s.listings[objID]
	if !ok {
		return nil, store.ErrNotFound
	}
	l = s.read(l)
	return &l, nil
}

func (s *Listings) Update(_ context.Context, listing *models.Listing, phoneChanged bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	current, ok := s.listings[listing.ID]
	if !ok || current.UserRef != listing.UserRef {
		return store.ErrNotFound
	}
	listing.CreatedAt = current.CreatedAt
	listing.UpdatedAt = time.Now().UTC()
	stored := clone(*listing)
	if !phoneChanged {
		stored.PhoneNumber = current.PhoneNumber
	}
	s.listings[listing.ID] = stored
	return nil
}

func (s *Listings) Delete(_ context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return store.ErrNotFound
	}
	current, ok := s.listings[objID]
	if !ok || current.UserRef != ownerID {
		return store.ErrNotFound
	}
	delete(s.listings, objID)
	return nil
}

func (s *Listings) Find(_ context.Context, params query.Params) ([]models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Finds++
	if s.Err != nil {
		return nil, s.Err
	}

	matched := []models.Listing{}
	for _, l := range s.listings {
		if Matches(params, l) {
			matched = append(matched, s.read(l))
		}
	}
	sortListings(matched, params.Sort, params.Descending)

	start := min(params.StartIndex, int64(len(matched)))
	end := min(start+params.Limit, int64(len(matched)))
	return matched[start:end], nil
}

func (s *Listings) FindByOwner(_ context.Context, ownerID string) ([]models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	owned := []models.Listing{}
	for _, l := range s.listings {
		if l.UserRef == ownerID {
			owned = append(owned, s.read(l))
		}
	}
	sortListings(owned, query.DefaultSort, true)
	return owned, nil
}

func (s *Listings) DeleteByOwner(_ context.Context, ownerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	var n int64
	for id, l := range s.listings {
		if l.UserRef == ownerID {
			delete(s.listings, id)
			n++
		}
	}
	return n, nil
}

// Matches reports whether l satisfies every condition the Mongo filter built
// by params would apply.
func Matches(params query.Params, l models.Listing) bool {
	if params.Type != "" && l.Type != params.Type {
		return false
	}
	if !triStateMatches(params.Offer, l.Offer) || !triStateMatches(params.Parking, l.Parking) || !triStateMatches(params.Furnished, l.Furnished) {
		return false
	}
	if params.Bedrooms != nil && l.Bedrooms != *params.Bedrooms {
		return false
	}
	if params.Bathrooms != nil && l.Bathrooms != *params.Bathrooms {
		return false
	}
	if params.SearchTerm != "" && !strings.EqualFold(l.Name, params.SearchTerm) && !strings.EqualFold(l.Address, params.SearchTerm) {
		return false
	}
	return true
}

func triStateMatches(s query.TriState, v bool) bool {
	switch s {
	case query.True:
		return v
	case query.False:
		return !v
	default:
		return true
	}
}

func sortListings(listings []models.Listing, field string, descending bool) {
	sort.SliceStable(listings, func(i, j int) bool {
		c := compareField(listings[i], listings[j], field)
		if c == 0 {
			c = strings.Compare(listings[i].ID.Hex(), listings[j].ID.Hex())
		}
		if descending {
			return c > 0
		}
		return c < 0
	})
}

func compareField(a, b models.Listing, field string) int {
	switch field {
	case "updatedAt":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case "regularPrice":
		return compareFloat(a.RegularPrice, b.RegularPrice)
	case "discountPrice":
		return compareFloat(a.DiscountPrice, b.DiscountPrice)
	case "bedrooms":
		return a.Bedrooms - b.Bedrooms
	case "bathrooms":
		return a.Bathrooms - b.Bathrooms
	case "name":
		return strings.Compare(a.Name, b.Name)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

package controllers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webprogramming/estate/backend/cache"
	"github.com/webprogramming/estate/backend/models"
	"github.com/webprogramming/estate/backend/query"
	"github.com/webprogramming/estate/backend/store/storetest"
	"github.com/webprogramming/estate/backend/utils"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const ownerID = "64b7f0c2a1b2c3d4e5f60718"

func validListingBody() map[string]interface{} {
	return map[string]interface{}{
		"name":          "Seaside Cottage",
		"description":   "Two rooms and a view",
		"address":       "1 Harbour Rd",
		"phoneNumber":   "555-0100",
		"type":          "sale",
		"bedrooms":      2,
		"bathrooms":     1,
		"regularPrice":  250000,
		"discountPrice": 230000,
		"offer":         true,
		"parking":       true,
		"furnished":     false,
		"imageUrls":     []string{"https://img.example/a.jpg", "https://img.example/b.jpg"},
	}
}

func (f *fixture) seedListing(owner string, mutate func(*models.Listing)) models.Listing {
	now := time.Now().UTC()
	l := models.Listing{
		Name:         "Listing",
		Description:  "desc",
		Address:      "addr",
		Type:         models.ListingTypeRent,
		RegularPrice: 1000,
		ImageURLs:    []string{},
		UserRef:      owner,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if mutate != nil {
		mutate(&l)
	}
	return f.listings.Put(l)
}

func TestCreateListing(t *testing.T) {
	f := newFixture(t)
	body := validListingBody()
	body["userRef"] = "someone-else"
	body["name"] = "<b>Seaside</b> Cottage"

	w := serve(t, CreateListing(f.env), request{method: http.MethodPost, target: "/api/listing/create", body: body, userID: ownerID})
	require.Equal(t, http.StatusCreated, w.Code)

	var got models.Listing
	decodeBody(t, w, &got)
	assert.False(t, got.ID.IsZero())
	assert.Equal(t, ownerID, got.UserRef)
	assert.Equal(t, "Seaside Cottage", got.Name)
	assert.Equal(t, []string{"https://img.example/a.jpg", "https://img.example/b.jpg"}, got.ImageURLs)
	assert.Equal(t, 1, f.listings.Len())
}

func TestCreateListingValidation(t *testing.T) {
	f := newFixture(t)

	cases := map[string]struct {
		mutate  func(map[string]interface{})
		message string
	}{
		"discount not below regular": {
			mutate:  func(b map[string]interface{}) { b["discountPrice"] = 250000 },
			message: "Discount price must be lower than regular price.",
		},
		"missing name": {
			mutate:  func(b map[string]interface{}) { delete(b, "name") },
			message: "name is required.",
		},
		"bad type": {
			mutate:  func(b map[string]interface{}) { b["type"] = "lease" },
			message: "type must be either sale or rent.",
		},
		"negative rooms": {
			mutate:  func(b map[string]interface{}) { b["bedrooms"] = -1 },
			message: "bedrooms and bathrooms cannot be negative.",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			body := validListingBody()
			tc.mutate(body)
			w := serve(t, CreateListing(f.env), request{method: http.MethodPost, target: "/api/listing/create", body: body, userID: ownerID})
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.message, errorBody(t, w).Message)
		})
	}
	assert.Zero(t, f.listings.Len())
}

func TestCreateListingRentOfferSkipsDiscountRule(t *testing.T) {
	f := newFixture(t)
	body := validListingBody()
	body["type"] = "rent"
	body["discountPrice"] = 300000

	w := serve(t, CreateListing(f.env), request{method: http.MethodPost, target: "/api/listing/create", body: body, userID: ownerID})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCreateListingRequiresUser(t *testing.T) {
	f := newFixture(t)

	w := serve(t, CreateListing(f.env), request{method: http.MethodPost, target: "/api/listing/create", body: validListingBody()})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEditListing(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedListing(ownerID, nil)

	w := serve(t, EditListing(f.env), request{
		method: http.MethodPut,
		target: "/api/listing/edit/" + seeded.ID.Hex(),
		body:   map[string]interface{}{"name": "Renamed", "bedrooms": 4, "userRef": "thief", "_id": primitive.NewObjectID().Hex()},
		userID: ownerID,
		vars:   map[string]string{"id": seeded.ID.Hex()},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Listing
	decodeBody(t, w, &got)
	assert.Equal(t, seeded.ID, got.ID)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, 4, got.Bedrooms)
	assert.Equal(t, ownerID, got.UserRef)
	assert.Equal(t, "desc", got.Description)

	stored, err := f.listings.FindByID(context.Background(), seeded.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, ownerID, stored.UserRef)
}

func TestEditListingKeepsUnreadablePhone(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedListing(ownerID, func(l *models.Listing) { l.PhoneNumber = "sealed-with-old-key" })
	f.listings.UnreadablePhones = true

	edit := func(body map[string]interface{}) {
		t.Helper()
		w := serve(t, EditListing(f.env), request{
			method: http.MethodPut,
			target: "/api/listing/edit/" + seeded.ID.Hex(),
			body:   body,
			userID: ownerID,
			vars:   map[string]string{"id": seeded.ID.Hex()},
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	edit(map[string]interface{}{"name": "Renamed"})
	stored, ok := f.listings.Stored(seeded.ID)
	require.True(t, ok)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, "sealed-with-old-key", stored.PhoneNumber)

	edit(map[string]interface{}{"phoneNumber": "555-0199"})
	stored, _ = f.listings.Stored(seeded.ID)
	assert.Equal(t, "555-0199", stored.PhoneNumber)
}

func TestEditListingRejectsOtherOwners(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedListing(ownerID, nil)

	w := serve(t, EditListing(f.env), request{
		method: http.MethodPut,
		target: "/api/listing/edit/" + seeded.ID.Hex(),
		body:   map[string]interface{}{"name": "Hijacked"},
		userID: primitive.NewObjectID().Hex(),
		vars:   map[string]string{"id": seeded.ID.Hex()},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "You can only edit your own listings!", errorBody(t, w).Message)

	stored, err := f.listings.FindByID(context.Background(), seeded.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "Listing", stored.Name)
}

func TestEditListingNotFound(t *testing.T) {
	f := newFixture(t)

	for _, id := range []string{primitive.NewObjectID().Hex(), "not-an-id"} {
		w := serve(t, EditListing(f.env), request{
			method: http.MethodPut,
			target: "/api/listing/edit/" + id,
			body:   map[string]interface{}{"name": "x"},
			userID: ownerID,
			vars:   map[string]string{"id": id},
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Listing not found", errorBody(t, w).Message)
	}
}

func TestEditListingKeepsOfferInvariant(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedListing(ownerID, func(l *models.Listing) {
		l.Type = models.ListingTypeSale
		l.Offer = true
		l.RegularPrice = 100
		l.DiscountPrice = 90
	})

	w := serve(t, EditListing(f.env), request{
		method: http.MethodPut,
		target: "/api/listing/edit/" + seeded.ID.Hex(),
		body:   map[string]interface{}{"regularPrice": 80},
		userID: ownerID,
		vars:   map[string]string{"id": seeded.ID.Hex()},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteListing(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedListing(ownerID, nil)
	vars := map[string]string{"id": seeded.ID.Hex()}

	w := serve(t, DeleteListing(f.env), request{method: http.MethodDelete, userID: "64b7f0c2a1b2c3d4e5f60799", vars: vars, target: "/"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "You can only delete your own listings!", errorBody(t, w).Message)
	assert.Equal(t, 1, f.listings.Len())

	w = serve(t, DeleteListing(f.env), request{method: http.MethodDelete, userID: ownerID, vars: vars, target: "/"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.APIResponse
	decodeBody(t, w, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "Listing has been deleted", resp.Message)

	w = serve(t, GetListing(f.env), request{method: http.MethodGet, vars: vars, target: "/"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetListing(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedListing(ownerID, func(l *models.Listing) { l.Name = "Loft" })

	w := serve(t, GetListing(f.env), request{method: http.MethodGet, target: "/", vars: map[string]string{"id": seeded.ID.Hex()}})
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Listing
	decodeBody(t, w, &got)
	assert.Equal(t, "Loft", got.Name)

	w = serve(t, GetListing(f.env), request{method: http.MethodGet, target: "/", vars: map[string]string{"id": "zzz"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Listing not found", errorBody(t, w).Message)
}

func TestGetListingsStoreFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	f.listings.Err = fmt.Errorf("connection reset")

	w := serve(t, GetListings(f.env), request{method: http.MethodGet, target: "/api/listing/getListings"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := errorBody(t, w)
	assert.Equal(t, "Internal Server Error", resp.Message)
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func seedCatalog(f *fixture, n int) {
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		f.seedListing(ownerID, func(l *models.Listing) {
			l.Name = fmt.Sprintf("Home %d", i%7)
			l.Address = fmt.Sprintf("%d Elm St", i%5)
			l.Type = []string{models.ListingTypeSale, models.ListingTypeRent}[rng.Intn(2)]
			l.Offer = rng.Intn(2) == 0
			l.Parking = rng.Intn(2) == 0
			l.Furnished = rng.Intn(2) == 0
			l.Bedrooms = rng.Intn(4)
			l.Bathrooms = rng.Intn(3)
			l.RegularPrice = float64(1000 * (1 + rng.Intn(5)))
			// Every third listing shares a timestamp so the _id tiebreak matters.
			l.CreatedAt = base.Add(time.Duration(i/3) * time.Hour)
		})
	}
}

func getListings(t *testing.T, f *fixture, q url.Values) []models.Listing {
	t.Helper()
	w := serve(t, GetListings(f.env), request{method: http.MethodGet, target: "/api/listing/getListings?" + q.Encode()})
	require.Equal(t, http.StatusOK, w.Code)
	var got []models.Listing
	decodeBody(t, w, &got)
	return got
}

func TestGetListingsFiltersHold(t *testing.T) {
	f := newFixture(t)
	seedCatalog(f, 60)

	queries := []url.Values{
		{"type": {"sale"}, "offer": {"true"}},
		{"type": {"rent"}, "parking": {"true"}, "furnished": {"true"}},
		{"bedrooms": {"2"}, "limit": {"100"}},
		{"bathrooms": {"0"}, "type": {"all"}},
		{"searchTerm": {"home 3"}, "limit": {"50"}},
		{"searchTerm": {"2 ELM ST"}},
	}
	for _, q := range queries {
		params := query.Parse(q)
		got := getListings(t, f, q)
		assert.LessOrEqual(t, int64(len(got)), params.Limit)
		for _, l := range got {
			assert.True(t, storetest.Matches(params, l), "listing %+v does not satisfy %v", l, q)
		}
	}
}

func TestGetListingsFalseMeansEither(t *testing.T) {
	f := newFixture(t)
	seedCatalog(f, 30)

	absent := getListings(t, f, url.Values{"limit": {"100"}})
	explicitFalse := getListings(t, f, url.Values{"limit": {"100"}, "offer": {"false"}, "parking": {"false"}, "furnished": {"false"}})
	assert.Len(t, absent, 30)
	assert.Equal(t, absent, explicitFalse)
}

func TestGetListingsPagesAreDisjoint(t *testing.T) {
	f := newFixture(t)
	seedCatalog(f, 40)

	for _, order := range []string{"asc", "desc"} {
		seen := map[primitive.ObjectID]bool{}
		for start := 0; start < 40; start += 9 {
			page := getListings(t, f, url.Values{"startIndex": {fmt.Sprint(start)}, "order": {order}})
			for _, l := range page {
				assert.False(t, seen[l.ID], "listing %s appeared on two pages", l.ID.Hex())
				seen[l.ID] = true
			}
		}
		assert.Len(t, seen, 40)
	}
}

func TestGetListingsDefaults(t *testing.T) {
	f := newFixture(t)
	seedCatalog(f, 20)

	got := getListings(t, f, url.Values{"limit": {"-5"}, "startIndex": {"-3"}, "sort": {"password"}})
	require.Len(t, got, query.DefaultLimit)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].CreatedAt.After(got[i-1].CreatedAt), "default order is newest first")
	}
}

func TestGetListingsUsesCache(t *testing.T) {
	f := newFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f.env.Cache = cache.NewRedisListingCache(client, time.Minute, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	seedCatalog(f, 10)

	q := url.Values{"type": {"sale"}, "limit": {"100"}}
	first := getListings(t, f, q)
	second := getListings(t, f, url.Values{"limit": {"100"}, "order": {"desc"}, "type": {"sale"}})
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.listings.Finds)

	w := serve(t, CreateListing(f.env), request{method: http.MethodPost, target: "/api/listing/create", body: validListingBody(), userID: ownerID})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, mr.Keys())

	third := getListings(t, f, q)
	assert.Equal(t, 2, f.listings.Finds)
	assert.Len(t, third, len(first)+1)
}

func TestGetListingsCachesSealedPhones(t *testing.T) {
	f := newFixture(t)
	cipher, err := utils.NewFieldCipher("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f.env.Cache = cache.NewRedisListingCache(client, time.Minute, cipher, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.seedListing(ownerID, func(l *models.Listing) { l.PhoneNumber = "555-0100" })

	q := url.Values{"type": {"rent"}}
	first := getListings(t, f, q)
	require.Len(t, first, 1)
	assert.Equal(t, "555-0100", first[0].PhoneNumber)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	raw, err := mr.Get(keys[0])
	require.NoError(t, err)
	assert.NotContains(t, raw, "555-0100")

	second := getListings(t, f, q)
	assert.Equal(t, 1, f.listings.Finds)
	assert.Equal(t, first, second)
}

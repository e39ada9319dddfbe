package store

import (
	"context"
	"fmt"
	"time"

	"github.com/webprogramming/estate/backend/models"
	"github.com/webprogramming/estate/backend/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ListingStore persists listings. Ownership is checked by callers; the owner
// filter on writes only guards against a listing changing hands mid-request.
type ListingStore interface {
	Create(ctx context.Context, listing *models.Listing) error
	FindByID(ctx context.Context, id string) (*models.Listing, error)
	Update(ctx context.Context, listing *models.Listing, phoneChanged bool) error
	Delete(ctx context.Context, id, ownerID string) error
	Find(ctx context.Context, params query.Params) ([]models.Listing, error)
	FindByOwner(ctx context.Context, ownerID string) ([]models.Listing, error)
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
}

// PhoneCipher seals phone numbers at rest.
type PhoneCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(sealed string) (string, error)
}

type MongoListingStore struct {
	coll   *mongo.Collection
	phones PhoneCipher
	now    func() time.Time
}

// NewMongoListingStore returns a listing store. phones may be nil, in which
// case phone numbers are stored as given.
func NewMongoListingStore(db *mongo.Database, phones PhoneCipher) *MongoListingStore {
	return &MongoListingStore{coll: db.Collection(listingsCollection), phones: phones, now: time.Now}
}

func (s *MongoListingStore) Create(ctx context.Context, listing *models.Listing) error {
	now := s.now().UTC()
	if listing.ID.IsZero() {
		listing.ID = primitive.NewObjectID()
	}
	listing.CreatedAt = now
	listing.UpdatedAt = now

	doc := *listing
	phone, err := s.seal(listing.PhoneNumber)
	if err != nil {
		return err
	}
	doc.PhoneNumber = phone

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert listing: %w", translateError(err))
	}
	return nil
}

func (s *MongoListingStore) FindByID(ctx context.Context, id string) (*models.Listing, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var listing models.Listing
	if err := s.coll.FindOne(ctx, bson.M{"_id": objID}).Decode(&listing); err != nil {
		return nil, translateError(err)
	}
	s.open(&listing)
	return &listing, nil
}

// Update replaces every mutable field of listing. Id, owner and creation time
// are kept. The stored phone number is only rewritten when phoneChanged is set,
// so a value that could not be decrypted on read is never overwritten by accident.
func (s *MongoListingStore) Update(ctx context.Context, listing *models.Listing, phoneChanged bool) error {
	listing.UpdatedAt = s.now().UTC()
	set, err := s.updateFields(listing, phoneChanged)
	if err != nil {
		return err
	}

	filter := bson.M{"_id": listing.ID, "userRef": listing.UserRef}
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update listing %s: %w", listing.ID.Hex(), translateError(err))
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoListingStore) updateFields(listing *models.Listing, phoneChanged bool) (bson.M, error) {
	set := bson.M{
		"name":          listing.Name,
		"description":   listing.Description,
		"address":       listing.Address,
		"type":          listing.Type,
		"bedrooms":      listing.Bedrooms,
		"bathrooms":     listing.Bathrooms,
		"regularPrice":  listing.RegularPrice,
		"discountPrice": listing.DiscountPrice,
		"offer":         listing.Offer,
		"parking":       listing.Parking,
		"furnished":     listing.Furnished,
		"imageUrls":     listing.ImageURLs,
		"updatedAt":     listing.UpdatedAt,
	}
	if phoneChanged {
		phone, err := s.seal(listing.PhoneNumber)
		if err != nil {
			return nil, err
		}
		set["phoneNumber"] = phone
	}
	return set, nil
}

func (s *MongoListingStore) Delete(ctx context.Context, id, ownerID string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}

	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": objID, "userRef": ownerID})
	if err != nil {
		return fmt.Errorf("delete listing %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Find returns one page of listings matching every filter in params.
func (s *MongoListingStore) Find(ctx context.Context, params query.Params) ([]models.Listing, error) {
	return s.find(ctx, params.Filter(), params.FindOptions())
}

func (s *MongoListingStore) FindByOwner(ctx context.Context, ownerID string) ([]models.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	return s.find(ctx, bson.M{"userRef": ownerID}, opts)
}

func (s *MongoListingStore) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"userRef": ownerID})
	if err != nil {
		return 0, fmt.Errorf("delete listings of %s: %w", ownerID, err)
	}
	return res.DeletedCount, nil
}

func (s *MongoListingStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Listing, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find listings: %w", err)
	}
	defer cursor.Close(ctx)

	listings := []models.Listing{}
	if err := cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("decode listings: %w", err)
	}
	for i := range listings {
		s.open(&listings[i])
	}
	return listings, nil
}

func (s *MongoListingStore) seal(phone string) (string, error) {
	if s.phones == nil || phone == "" {
		return phone, nil
	}
	sealed, err := s.phones.Encrypt(phone)
	if err != nil {
		return "", fmt.Errorf("encrypt phone number: %w", err)
	}
	return sealed, nil
}

// open decrypts the phone number in place. Values that cannot be decrypted
// are blanked rather than leaked in sealed form.
func (s *MongoListingStore) open(listing *models.Listing) {
	if s.phones == nil || listing.PhoneNumber == "" {
		return
	}
	phone, err := s.phones.Decrypt(listing.PhoneNumber)
	if err != nil {
		listing.PhoneNumber = ""
		return
	}
	listing.PhoneNumber = phone
}

var _ ListingStore = (*MongoListingStore)(nil)

package models

import (
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ListingTypeSale = "sale"
	ListingTypeRent = "rent"
)

var textPolicy = bluemonday.StrictPolicy()

type Listing struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name          string             `bson:"name" json:"name"`
	Description   string             `bson:"description" json:"description"`
	Address       string             `bson:"address" json:"address"`
	PhoneNumber   string             `bson:"phoneNumber" json:"phoneNumber"`
	Type          string             `bson:"type" json:"type"`
	Bedrooms      int                `bson:"bedrooms" json:"bedrooms"`
	Bathrooms     int                `bson:"bathrooms" json:"bathrooms"`
	RegularPrice  float64            `bson:"regularPrice" json:"regularPrice"`
	DiscountPrice float64            `bson:"discountPrice" json:"discountPrice"`
	Offer         bool               `bson:"offer" json:"offer"`
	Parking       bool               `bson:"parking" json:"parking"`
	Furnished     bool               `bson:"furnished" json:"furnished"`
	ImageURLs     []string           `bson:"imageUrls" json:"imageUrls"`
	UserRef       string             `bson:"userRef" json:"userRef"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ListingInput is the client payload for create and edit. Absent fields keep
// the value already on the listing.
type ListingInput struct {
	Name          *string   `json:"name"`
	Description   *string   `json:"description"`
	Address       *string   `json:"address"`
	PhoneNumber   *string   `json:"phoneNumber"`
	Type          *string   `json:"type"`
	Bedrooms      *int      `json:"bedrooms"`
	Bathrooms     *int      `json:"bathrooms"`
	RegularPrice  *float64  `json:"regularPrice"`
	DiscountPrice *float64  `json:"discountPrice"`
	Offer         *bool     `json:"offer"`
	Parking       *bool     `json:"parking"`
	Furnished     *bool     `json:"furnished"`
	ImageURLs     *[]string `json:"imageUrls"`
}

// Apply copies every present field of in onto l. Identity and ownership are not part of the input.
func (in ListingInput) Apply(l *Listing) {
	if in.Name != nil {
		l.Name = *in.Name
	}
	if in.Description != nil {
		l.Description = *in.Description
	}
	if in.Address != nil {
		l.Address = *in.Address
	}
	if in.PhoneNumber != nil {
		l.PhoneNumber = *in.PhoneNumber
	}
	if in.Type != nil {
		l.Type = *in.Type
	}
	if in.Bedrooms != nil {
		l.Bedrooms = *in.Bedrooms
	}
	if in.Bathrooms != nil {
		l.Bathrooms = *in.Bathrooms
	}
	if in.RegularPrice != nil {
		l.RegularPrice = *in.RegularPrice
	}
	if in.DiscountPrice != nil {
		l.DiscountPrice = *in.DiscountPrice
	}
	if in.Offer != nil {
		l.Offer = *in.Offer
	}
	if in.Parking != nil {
		l.Parking = *in.Parking
	}
	if in.Furnished != nil {
		l.Furnished = *in.Furnished
	}
	if in.ImageURLs != nil {
		l.ImageURLs = append([]string(nil), (*in.ImageURLs)...)
	}
}

// Sanitize strips markup from the free-text fields and trims surrounding whitespace.
func (l *Listing) Sanitize() {
	l.Name = plainText(l.Name)
	l.Description = plainText(l.Description)
	l.Address = plainText(l.Address)
	l.PhoneNumber = strings.TrimSpace(l.PhoneNumber)
	l.Type = strings.ToLower(strings.TrimSpace(l.Type))
	if l.ImageURLs == nil {
		l.ImageURLs = []string{}
	}
}

// Validate enforces the listing schema, including that an offer on a sale
// listing must be discounted below the regular price.
func (l *Listing) Validate() *AppError {
	var missing []string
	if l.Name == "" {
		missing = append(missing, "name")
	}
	if l.Description == "" {
		missing = append(missing, "description")
	}
	if l.Address == "" {
		missing = append(missing, "address")
	}
	if len(missing) > 0 {
		return NewValidationError(strings.Join(missing, ", ") + " is required.")
	}

	if l.Type != ListingTypeSale && l.Type != ListingTypeRent {
		return NewValidationError("type must be either sale or rent.")
	}
	if l.Bedrooms < 0 || l.Bathrooms < 0 {
		return NewValidationError("bedrooms and bathrooms cannot be negative.")
	}
	if l.RegularPrice < 0 || l.DiscountPrice < 0 {
		return NewValidationError("prices cannot be negative.")
	}
	if l.Offer && l.Type == ListingTypeSale && l.DiscountPrice >= l.RegularPrice {
		return NewValidationError("Discount price must be lower than regular price.")
	}
	return nil
}

// plainText decodes entities before stripping tags so encoded markup is
// removed too. The result stays HTML-escaped.
func plainText(s string) string {
	return strings.TrimSpace(textPolicy.Sanitize(html.UnescapeString(s)))
}

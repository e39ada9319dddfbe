// Package query turns listing search parameters from the browse page into
// MongoDB filters and find options.
package query

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultLimit = 9
	MaxLimit     = 100
	DefaultSort  = "createdAt"
)

var sortableFields = map[string]bool{
	"createdAt":     true,
	"updatedAt":     true,
	"regularPrice":  true,
	"discountPrice": true,
	"bedrooms":      true,
	"bathrooms":     true,
	"name":          true,
}

// TriState is a boolean filter that may also match either value.
type TriState int

const (
	Any TriState = iota
	True
	False
)

// ParseTriState reads a boolean query parameter. Only "true" narrows the
// result; an absent value and "false" both mean either value.
func ParseTriState(v string) TriState {
	if strings.EqualFold(strings.TrimSpace(v), "true") {
		return True
	}
	return Any
}

func (s TriState) String() string {
	switch s {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "any"
	}
}

// Params is the normalized form of a listing search.
type Params struct {
	Type       string // sale, rent or empty for both
	Offer      TriState
	Parking    TriState
	Furnished  TriState
	Bedrooms   *int
	Bathrooms  *int
	SearchTerm string
	Sort       string
	Descending bool
	Limit      int64
	StartIndex int64
}

// Parse normalizes raw query parameters. Unknown or malformed values fall
// back to their defaults rather than failing the request.
func Parse(v url.Values) Params {
	p := Params{
		Offer:      ParseTriState(v.Get("offer")),
		Parking:    ParseTriState(v.Get("parking")),
		Furnished:  ParseTriState(v.Get("furnished")),
		Bedrooms:   parseCount(v.Get("bedrooms")),
		Bathrooms:  parseCount(v.Get("bathrooms")),
		SearchTerm: strings.TrimSpace(v.Get("searchTerm")),
		Sort:       DefaultSort,
		Descending: v.Get("order") != "asc",
		Limit:      DefaultLimit,
	}

	switch t := strings.ToLower(v.Get("type")); t {
	case "sale", "rent":
		p.Type = t
	}

	if s := v.Get("sort"); sortableFields[s] {
		p.Sort = s
	}

	if limit, err := strconv.ParseInt(v.Get("limit"), 10, 64); err == nil && limit > 0 {
		p.Limit = min(limit, MaxLimit)
	}
	if start, err := strconv.ParseInt(v.Get("startIndex"), 10, 64); err == nil && start > 0 {
		p.StartIndex = start
	}
	return p
}

func parseCount(v string) *int {
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// Filter builds the conjunctive MongoDB filter for p.
func (p Params) Filter() bson.M {
	filter := bson.M{}
	if p.Type != "" {
		filter["type"] = p.Type
	}
	addTriState(filter, "offer", p.Offer)
	addTriState(filter, "parking", p.Parking)
	addTriState(filter, "furnished", p.Furnished)
	if p.Bedrooms != nil {
		filter["bedrooms"] = *p.Bedrooms
	}
	if p.Bathrooms != nil {
		filter["bathrooms"] = *p.Bathrooms
	}
	if p.SearchTerm != "" {
		// Whole-value match, not substring: "Elm" does not find "12 Elm Street".
		pattern := primitive.Regex{Pattern: "^" + regexp.QuoteMeta(p.SearchTerm) + "$", Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"address": pattern},
		}
	}
	return filter
}

func addTriState(filter bson.M, field string, s TriState) {
	switch s {
	case True:
		filter[field] = true
	case False:
		filter[field] = false
	}
}

// SortOrder returns 1 or -1.
func (p Params) SortOrder() int {
	if p.Descending {
		return -1
	}
	return 1
}

// FindOptions applies sort and pagination. _id breaks ties so consecutive
// pages never overlap.
func (p Params) FindOptions() *options.FindOptions {
	order := p.SortOrder()
	return options.Find().
		SetSort(bson.D{{Key: p.Sort, Value: order}, {Key: "_id", Value: order}}).
		SetSkip(p.StartIndex).
		SetLimit(p.Limit)
}

// Values renders p back to a canonical query string, used as the cache identity
// of the search.
func (p Params) Values() url.Values {
	v := url.Values{}
	typ := p.Type
	if typ == "" {
		typ = "all"
	}
	v.Set("type", typ)
	v.Set("offer", p.Offer.String())
	v.Set("parking", p.Parking.String())
	v.Set("furnished", p.Furnished.String())
	if p.Bedrooms != nil {
		v.Set("bedrooms", strconv.Itoa(*p.Bedrooms))
	}
	if p.Bathrooms != nil {
		v.Set("bathrooms", strconv.Itoa(*p.Bathrooms))
	}
	if p.SearchTerm != "" {
		v.Set("searchTerm", strings.ToLower(p.SearchTerm))
	}
	v.Set("sort", p.Sort)
	if p.Descending {
		v.Set("order", "desc")
	} else {
		v.Set("order", "asc")
	}
	v.Set("limit", strconv.FormatInt(p.Limit, 10))
	v.Set("startIndex", strconv.FormatInt(p.StartIndex, 10))
	return v
}

package query

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func values(raw string) url.Values {
	v, err := url.ParseQuery(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func TestParseTriState(t *testing.T) {
	assert.Equal(t, True, ParseTriState("true"))
	assert.Equal(t, True, ParseTriState("TRUE"))
	assert.Equal(t, Any, ParseTriState(""))
	assert.Equal(t, Any, ParseTriState("false"), "explicit false is indistinguishable from unset")
	assert.Equal(t, Any, ParseTriState("yes"))
}

func TestParseDefaults(t *testing.T) {
	p := Parse(url.Values{})

	assert.Empty(t, p.Type)
	assert.Equal(t, Any, p.Offer)
	assert.Equal(t, Any, p.Parking)
	assert.Equal(t, Any, p.Furnished)
	assert.Nil(t, p.Bedrooms)
	assert.Nil(t, p.Bathrooms)
	assert.Equal(t, DefaultSort, p.Sort)
	assert.True(t, p.Descending)
	assert.EqualValues(t, DefaultLimit, p.Limit)
	assert.EqualValues(t, 0, p.StartIndex)
	assert.Equal(t, bson.M{}, p.Filter())
}

func TestParseNormalizesBadInput(t *testing.T) {
	p := Parse(values("type=all&sort=password&order=sideways&limit=-3&startIndex=-1&bedrooms=two&bathrooms=-2"))

	assert.Empty(t, p.Type)
	assert.Equal(t, DefaultSort, p.Sort, "unknown sort fields fall back to the default")
	assert.True(t, p.Descending)
	assert.EqualValues(t, DefaultLimit, p.Limit)
	assert.EqualValues(t, 0, p.StartIndex)
	assert.Nil(t, p.Bedrooms)
	assert.Nil(t, p.Bathrooms)

	assert.EqualValues(t, MaxLimit, Parse(values("limit=5000")).Limit)
	assert.Empty(t, Parse(values("type=villa")).Type)
}

func TestFilterSaleWithOffer(t *testing.T) {
	p := Parse(values("type=sale&offer=true"))

	assert.Equal(t, bson.M{"type": "sale", "offer": true}, p.Filter())
}

func TestFilterFalseMeansEither(t *testing.T) {
	p := Parse(values("offer=false&parking=false&furnished=true"))

	f := p.Filter()
	assert.NotContains(t, f, "offer")
	assert.NotContains(t, f, "parking")
	assert.Equal(t, true, f["furnished"])
}

func TestFilterExplicitFalseTriState(t *testing.T) {
	p := Params{Offer: False}
	assert.Equal(t, bson.M{"offer": false}, p.Filter())
}

func TestFilterRoomsExactMatch(t *testing.T) {
	p := Parse(values("bedrooms=3&bathrooms=0"))

	assert.Equal(t, bson.M{"bedrooms": 3, "bathrooms": 0}, p.Filter())
}

func TestFilterSearchTermIsAnchoredAndQuoted(t *testing.T) {
	p := Parse(values("searchTerm=" + url.QueryEscape(" 12 Elm St. (North) ")))

	f := p.Filter()
	or, ok := f["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, or, 2)

	want := primitive.Regex{Pattern: `^12 Elm St\. \(North\)$`, Options: "i"}
	assert.Equal(t, bson.M{"name": want}, or[0])
	assert.Equal(t, bson.M{"address": want}, or[1])
}

func TestFindOptions(t *testing.T) {
	p := Parse(values("sort=regularPrice&order=asc&limit=9&startIndex=9"))

	opts := p.FindOptions()
	require.NotNil(t, opts.Limit)
	require.NotNil(t, opts.Skip)
	assert.EqualValues(t, 9, *opts.Limit)
	assert.EqualValues(t, 9, *opts.Skip)
	assert.Equal(t, bson.D{{Key: "regularPrice", Value: 1}, {Key: "_id", Value: 1}}, opts.Sort)
}

func TestValuesIsCanonical(t *testing.T) {
	a := Parse(values("offer=false&type=all&searchTerm=Elm"))
	b := Parse(values("searchTerm=elm&limit=9"))

	assert.Equal(t, a.Values().Encode(), b.Values().Encode())
	assert.NotEqual(t, a.Values().Encode(), Parse(values("startIndex=9")).Values().Encode())
}

package extract

import (
	"testing"

	"souqlive/app/model"

	"github.com/stretchr/testify/assert"
)

func TestExtractFullQuery(t *testing.T) {
	patch := Extract("Looking for a 2 bedroom apartment in Kyrenia under £700")

	assert.Equal(t, model.FactTable{
		KeyBedrooms:     float64(2),
		KeyLocation:     "Kyrenia",
		KeyBudget:       float64(700),
		KeyPropertyType: "apartment",
	}, patch)
}

func TestExtractBudgetFormats(t *testing.T) {
	for _, tc := range []struct {
		text string
		want float64
	}{
		{"budget is £700", 700},
		{"up to $1,200 per month", 1200},
		{"around €950.50", 950.50},
		{"max 800 GBP", 800},
		{"no more than 650 pounds", 650},
		{"about 1.5k USD", 1500},
		{"under £2k", 2000},
	} {
		patch := Extract(tc.text)
		assert.Equal(t, tc.want, patch[KeyBudget], "text %q", tc.text)
	}
}

func TestExtractCounts(t *testing.T) {
	patch := Extract("we are 4 people and need 3 bedrooms")

	assert.Equal(t, float64(3), patch[KeyBedrooms])
	assert.Equal(t, float64(4), patch[KeyGuests])
}

func TestExtractLocation(t *testing.T) {
	for _, tc := range []struct {
		text string
		want string
	}{
		{"somewhere in Famagusta", "Famagusta"},
		{"a place near Nicosia City", "Nicosia City"},
		{"staying at Bellapais", "Bellapais"},
	} {
		patch := Extract(tc.text)
		assert.Equal(t, tc.want, patch[KeyLocation], "text %q", tc.text)
	}
}

func TestExtractNormalizesFlatToApartment(t *testing.T) {
	patch := Extract("a two bed flat would do")

	assert.Equal(t, "apartment", patch[KeyPropertyType])
}

func TestExtractNeverFailsOnJunk(t *testing.T) {
	for _, text := range []string{
		"",
		"   ",
		"£ under in at",
		"9999999999999999999999 bedrooms maybe",
		"a\x00b\xff",
		"in lowercase town",
	} {
		assert.NotPanics(t, func() {
			Extract(text)
		}, "text %q", text)
	}

	assert.Empty(t, Extract("hello there, how are you?"))
}

func TestExtractIsPure(t *testing.T) {
	text := "2 bedrooms in Kyrenia under £700"

	first := Extract(text)
	second := Extract(text)

	assert.Equal(t, first, second)
}

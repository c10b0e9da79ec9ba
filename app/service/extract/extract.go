package extract

import (
	"regexp"
	"strconv"
	"strings"

	"souqlive/app/model"
)

// Fact keys produced by the extractor.
const (
	KeyLocation     = "location"
	KeyBudget       = "budget"
	KeyBedrooms     = "bedrooms"
	KeyGuests       = "guests"
	KeyPropertyType = "property_type"
)

var (
	bedroomsRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s*[- ]?\s*bed(?:room)?s?\b`)
	guestsRe   = regexp.MustCompile(`(?i)\b(\d{1,3})\s*(?:guests?|people|persons?|adults?)\b`)

	symbolBudgetRe = regexp.MustCompile(`[£$€]\s*([\d,]+(?:\.\d+)?)\s*([kK])?`)
	wordBudgetRe   = regexp.MustCompile(`(?i)\b([\d,]+(?:\.\d+)?)\s*([kK])?\s*(gbp|usd|eur|pounds?|dollars?|euros?|quid)\b`)

	locationRe = regexp.MustCompile(`(?:\bin|\bnear|\bat|\baround)\s+((?:[A-Z][a-zA-Z]+)(?:\s+[A-Z][a-zA-Z]+)?)`)

	propertyTypeRe = regexp.MustCompile(`(?i)\b(apartment|flat|villa|house|studio|penthouse|bungalow)\b`)
)

// Extract pulls structured facts out of a free-text turn. It is a pure
// function: malformed or ambiguous input yields an empty patch, never an
// error.
func Extract(text string) model.FactTable {
	patch := model.FactTable{}

	if text == "" {
		return patch
	}

	// Numbers are normalized to float64, the same representation they
	// come back with after a snapshot JSON round trip.
	if m := bedroomsRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.ParseFloat(m[1], 64); err == nil {
			patch[KeyBedrooms] = n
		}
	}

	if m := guestsRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.ParseFloat(m[1], 64); err == nil {
			patch[KeyGuests] = n
		}
	}

	if amount, ok := extractBudget(text); ok {
		patch[KeyBudget] = amount
	}

	if m := locationRe.FindStringSubmatch(text); m != nil {
		patch[KeyLocation] = strings.TrimSpace(m[1])
	}

	if m := propertyTypeRe.FindStringSubmatch(text); m != nil {
		kind := strings.ToLower(m[1])
		if kind == "flat" {
			kind = "apartment"
		}
		patch[KeyPropertyType] = kind
	}

	return patch
}

func extractBudget(text string) (float64, bool) {
	m := symbolBudgetRe.FindStringSubmatch(text)
	if m == nil {
		m = wordBudgetRe.FindStringSubmatch(text)
	}
	if m == nil {
		return 0, false
	}

	raw := strings.ReplaceAll(m[1], ",", "")

	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}

	if len(m) > 2 && strings.EqualFold(m[2], "k") {
		amount *= 1000
	}

	return amount, true
}

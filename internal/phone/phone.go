// Package phone normalizes caller numbers and resolves them to directory contacts.
package phone

import (
	"strings"
	"unicode"

	"github.com/ttacon/libphonenumber"
)

// DefaultRegion is assumed for numbers reported without a country code.
const DefaultRegion = "US"

// Unknown is the placeholder stored when the provider withheld the caller's number.
const Unknown = "unknown"

// Carriers report withheld caller id with a handful of sentinel values.
var anonymousValues = map[string]bool{
	"":             true,
	Unknown:        true,
	"anonymous":    true,
	"restricted":   true,
	"private":      true,
	"blocked":      true,
	"+266696687":   true,
	"+86282452253": true,
	"+7378742833":  true,
	"+2562533":     true,
}

// IsAnonymous reports whether raw is a withheld or placeholder caller id.
func IsAnonymous(raw string) bool {
	return anonymousValues[strings.ToLower(strings.TrimSpace(raw))]
}

// Normalize returns E.164 when the number parses, otherwise its digits with a leading + kept.
// Anonymous values normalize to Unknown.
func Normalize(raw string) string {
	if IsAnonymous(raw) {
		return Unknown
	}
	if num, err := libphonenumber.Parse(raw, DefaultRegion); err == nil && libphonenumber.IsPossibleNumber(num) {
		return libphonenumber.Format(num, libphonenumber.E164)
	}
	return digitsOnly(raw)
}

// Variants lists the spellings a stored contact number may use, most canonical first.
// For +13105551234 that is +13105551234, 13105551234, 3105551234.
func Variants(raw string) []string {
	if IsAnonymous(raw) {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	add(Normalize(raw))
	if num, err := libphonenumber.Parse(raw, DefaultRegion); err == nil {
		national := libphonenumber.GetNationalSignificantNumber(num)
		cc := num.GetCountryCode()
		add(strings.TrimPrefix(libphonenumber.Format(num, libphonenumber.E164), "+"))
		add(national)
		if cc != 1 {
			add("0" + national)
		}
	}
	add(digitsOnly(raw))
	add(strings.TrimSpace(raw))
	return out
}

// Display formats a number for humans: national format at home, international abroad.
func Display(raw string) string {
	if IsAnonymous(raw) {
		return "Unknown caller"
	}
	num, err := libphonenumber.Parse(raw, DefaultRegion)
	if err != nil || !libphonenumber.IsPossibleNumber(num) {
		return strings.TrimSpace(raw)
	}
	if int(num.GetCountryCode()) == libphonenumber.GetCountryCodeForRegion(DefaultRegion) {
		return libphonenumber.Format(num, libphonenumber.NATIONAL)
	}
	return libphonenumber.Format(num, libphonenumber.INTERNATIONAL)
}

func digitsOnly(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		if unicode.IsDigit(r) || (i == 0 && r == '+') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

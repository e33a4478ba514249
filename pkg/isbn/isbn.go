package isbn

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// labelledRegex matches ISBNs introduced by an explicit "ISBN" label,
	// optionally qualified as ISBN-10/ISBN-13, followed by a digit/hyphen/space
	// group ending in a digit or X.
	labelledRegex = regexp.MustCompile(`(?i)ISBN(?:-1[03])?:?\s*([0-9][0-9 \-]{7,18}[0-9Xx])`)
	// bareRegex matches unlabelled ISBNs: plain 10-13 digit runs (optionally
	// with the 978/979 bookland prefix) or the usual hyphen/space separated
	// groupings, in both cases ending in a digit or X.
	bareRegex = regexp.MustCompile(`\b(?:97[89][- ])?[0-9]{1,5}[- ][0-9]{1,7}[- ][0-9]{1,7}[- ][0-9Xx]\b|\b[0-9]{9,12}[0-9Xx]\b`)
)

// ExtractCandidates finds ISBN-looking substrings in text. It applies both the
// labelled and bare patterns, cleans each match down to digits and X, and
// returns the union deduplicated in first-occurrence order. Candidates are not
// checksum-validated here; pair with IsValid.
func ExtractCandidates(text string) []string {
	var candidates []string
	seen := map[string]struct{}{}

	add := func(raw string) {
		cleaned := clean(raw)
		if len(cleaned) < 10 || len(cleaned) > 13 {
			return
		}
		if _, ok := seen[cleaned]; ok {
			return
		}
		seen[cleaned] = struct{}{}
		candidates = append(candidates, cleaned)
	}

	for _, m := range labelledRegex.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range bareRegex.FindAllString(text, -1) {
		add(m)
	}

	return candidates
}

// IsValid reports whether a cleaned candidate is a checksum-valid ISBN-10 or
// ISBN-13. Free text is full of coincidental digit runs, so the checksum is
// mandatory before a candidate is trusted.
func IsValid(candidate string) bool {
	switch len(candidate) {
	case 10:
		return ValidateISBN10(candidate)
	case 13:
		return ValidateISBN13(candidate)
	}
	return false
}

// Normalize removes hyphens, spaces, and common prefixes from an ISBN.
func Normalize(value string) string {
	value = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(value)), "ISBN:")
	value = strings.TrimPrefix(value, "ISBN")
	return clean(value)
}

// clean strips everything but digits and X, uppercasing as it goes.
func clean(value string) string {
	var result strings.Builder
	for _, r := range value {
		if unicode.IsDigit(r) || r == 'X' || r == 'x' {
			result.WriteRune(unicode.ToUpper(r))
		}
	}
	return result.String()
}

// ValidateISBN10 validates an ISBN-10 checksum.
// ISBN-10 uses modulo 11 with weights 10,9,8,7,6,5,4,3,2,1.
func ValidateISBN10(isbn string) bool {
	if len(isbn) != 10 {
		return false
	}

	var sum int
	for i, r := range isbn {
		var digit int
		if r == 'X' || r == 'x' {
			if i != 9 {
				return false // X only valid as last digit
			}
			digit = 10
		} else if unicode.IsDigit(r) {
			digit = int(r - '0')
		} else {
			return false
		}
		sum += digit * (10 - i)
	}
	return sum%11 == 0
}

// ValidateISBN13 validates an ISBN-13 checksum.
// ISBN-13 uses alternating weights of 1 and 3.
func ValidateISBN13(isbn string) bool {
	if len(isbn) != 13 {
		return false
	}

	var sum int
	for i, r := range isbn {
		if !unicode.IsDigit(r) {
			return false
		}
		digit := int(r - '0')
		if i%2 == 0 {
			sum += digit
		} else {
			sum += digit * 3
		}
	}
	return sum%10 == 0
}

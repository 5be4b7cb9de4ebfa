package delivery

import (
	"strconv"
	"strings"
)

// NormalizePostalCode trims surrounding whitespace and accepts exactly four
// ASCII digits.
func NormalizePostalCode(raw string) (string, bool) {
	code := strings.TrimSpace(raw)
	if len(code) != 4 {
		return "", false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return "", false
		}
	}
	return code, true
}

// Contains reports whether the numeric postal code falls inside the range.
// A bound that is not a whole number makes the range never match.
func (r Range) Contains(code int64) bool {
	from, ok := r.From.Integer()
	if !ok {
		return false
	}
	to, ok := r.To.Integer()
	if !ok {
		return false
	}
	return code >= from && code <= to
}

func inList(code string, list []Scalar) bool {
	for _, candidate := range list {
		if string(candidate) == code {
			return true
		}
	}
	return false
}

func inRanges(code string, ranges []Range) bool {
	n, err := strconv.ParseInt(code, 10, 64)
	if err != nil {
		return false
	}
	for _, r := range ranges {
		if r.Contains(n) {
			return true
		}
	}
	return false
}

// Matches reports whether a normalized postal code is covered by the rule,
// either through its explicit list or one of its ranges.
func (r ShippingRule) Matches(code string) bool {
	return inList(code, r.PostalCodes) || inRanges(code, r.Ranges)
}

// MatchShippingRule returns the first rule, in list order, that covers the
// normalized postal code.
func MatchShippingRule(code string, rules []ShippingRule) (*ShippingRule, bool) {
	for i := range rules {
		if rules[i].Matches(code) {
			return &rules[i], true
		}
	}
	return nil, false
}

// IsInstallationAvailable checks the installation zones, independently of the
// shipping rules.
func IsInstallationAvailable(code string, zones InstallationZones) bool {
	return inList(code, zones.EnabledPostalCodes) || inRanges(code, zones.EnabledRanges)
}

// Package expiry handles the MM/YY expiry printed on the card face.
package expiry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultProductYears maps a card product to its validity in years.
var DefaultProductYears = map[string]int{"credit": 3, "debit": 5}

// YearsForProduct returns validity years for product unless override > 0.
// Unknown products get five years.
func YearsForProduct(product string, override int) int {
	if override > 0 {
		return override
	}
	if y, ok := DefaultProductYears[strings.ToLower(product)]; ok {
		return y
	}
	return 5
}

// CardFace returns the MM/YY expiry of a card issued at issue and valid for
// years.
func CardFace(issue time.Time, years int) string {
	t := issue.UTC()
	return fmt.Sprintf("%02d/%02d", int(t.Month()), (t.Year()+years)%100)
}

// ParseCardFace accepts "MM/YY" or "MMYY" and returns the last instant of
// that month in UTC.
func ParseCardFace(in string) (time.Time, error) {
	s := strings.ReplaceAll(strings.TrimSpace(in), "/", "")
	if len(s) != 4 {
		return time.Time{}, fmt.Errorf("expiry must be MM/YY or MMYY")
	}
	for i := 0; i < 4; i++ {
		if s[i] < '0' || s[i] > '9' {
			return time.Time{}, fmt.Errorf("expiry must be digits")
		}
	}
	mm, _ := strconv.Atoi(s[:2])
	if mm < 1 || mm > 12 {
		return time.Time{}, fmt.Errorf("expiry month must be 01..12")
	}
	yy, _ := strconv.Atoi(s[2:])

	firstNext := time.Date(2000+yy, time.Month(mm), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstNext.Add(-time.Nanosecond), nil
}

// IsExpired reports whether at is strictly after the end of the card face
// month.
func IsExpired(face string, at time.Time) (bool, error) {
	end, err := ParseCardFace(face)
	if err != nil {
		return false, err
	}
	return at.UTC().After(end), nil
}

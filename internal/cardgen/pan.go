// Package cardgen normalizes, masks and generates card numbers.
package cardgen

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const panLen = 16

// GeneratePAN returns a 16 digit number starting with bin whose last digit
// is the Luhn check digit. A non-empty sequence overwrites the digits right
// before the check digit.
func GeneratePAN(bin, sequence string) (string, error) {
	if err := ValidateBIN(bin); err != nil {
		return "", err
	}

	fill := panLen - 1 - len(bin)
	seq := strings.TrimSpace(sequence)
	if seq != "" {
		if !IsDigits(seq) {
			return "", fmt.Errorf("sequence must be numeric")
		}
		if len(seq) > fill {
			return "", fmt.Errorf("sequence length %d exceeds %d", len(seq), fill)
		}
	}

	digits, err := randomDigits(fill)
	if err != nil {
		return "", fmt.Errorf("rand: %w", err)
	}
	b := []byte(digits)
	copy(b[fill-len(seq):], seq)

	body := bin + string(b)
	return body + luhnCheckDigit(body), nil
}

// GenerateUniquePAN retries GeneratePAN until exists reports the number as
// unused.
func GenerateUniquePAN(bin, sequence string, maxRetries int, exists func(string) (bool, error)) (string, error) {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	for i := 0; i <= maxRetries; i++ {
		pan, err := GeneratePAN(bin, sequence)
		if err != nil {
			return "", err
		}
		if exists == nil {
			return pan, nil
		}
		used, err := exists(pan)
		if err != nil {
			return "", fmt.Errorf("checking card number: %w", err)
		}
		if !used {
			return pan, nil
		}
	}
	return "", fmt.Errorf("no unused card number after %d retries", maxRetries)
}

// randomDigits uses rejection sampling so every digit is equally likely.
func randomDigits(count int) (string, error) {
	if count <= 0 {
		return "", nil
	}
	const threshold = 250 // 256 - 256%10
	var sb strings.Builder
	sb.Grow(count)
	buf := make([]byte, 64)
	for sb.Len() < count {
		n, err := rand.Read(buf)
		if err != nil {
			return "", err
		}
		for i := 0; i < n && sb.Len() < count; i++ {
			if buf[i] < threshold {
				sb.WriteByte('0' + buf[i]%10)
			}
		}
	}
	return sb.String(), nil
}

func luhnCheckDigit(body string) string {
	sum, dbl := 0, true
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if dbl {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		dbl = !dbl
	}
	return string('0' + byte((10-sum%10)%10))
}

// ValidatePAN checks a 13 to 19 digit number and its Luhn check digit.
// Separators are ignored.
func ValidatePAN(pan string) error {
	pan = NormalizePAN(pan)
	if pan == "" {
		return fmt.Errorf("card number is required")
	}
	if !IsDigits(pan) {
		return fmt.Errorf("card number must contain digits only")
	}
	if l := len(pan); l < 13 || l > 19 {
		return fmt.Errorf("card number length must be 13..19 digits (got %d)", l)
	}
	if pan[len(pan)-1] != luhnCheckDigit(pan[:len(pan)-1])[0] {
		return fmt.Errorf("invalid luhn check digit")
	}
	return nil
}

func ValidateBIN(bin string) error {
	if bin == "" {
		return fmt.Errorf("bin is required")
	}
	if !IsDigits(bin) {
		return fmt.Errorf("bin must contain digits only")
	}
	switch len(bin) {
	case 6, 8, 9:
		return nil
	default:
		return fmt.Errorf("bin must be 6, 8, or 9 digits")
	}
}

func IsDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func LastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// MaskPAN keeps the first six and last four digits of long numbers and only
// the last four of short ones.
func MaskPAN(pan string) string {
	cleaned := NormalizePAN(pan)
	n := len(cleaned)
	switch {
	case n == 0:
		return ""
	case n <= 4:
		return strings.Repeat("*", n)
	case n < 10:
		return strings.Repeat("*", n-4) + cleaned[n-4:]
	default:
		return cleaned[:6] + strings.Repeat("*", n-10) + cleaned[n-4:]
	}
}

// NormalizePAN strips spaces, tabs and dashes.
func NormalizePAN(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-':
			return -1
		default:
			return r
		}
	}, strings.TrimSpace(s))
}

// Group formats a number the way it is printed on the card face, in blocks
// of four separated by spaces: 1111222233334444 becomes 1111 2222 3333 4444.
func Group(pan string) string {
	pan = NormalizePAN(pan)
	var sb strings.Builder
	for i := 0; i < len(pan); i += 4 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		end := i + 4
		if end > len(pan) {
			end = len(pan)
		}
		sb.WriteString(pan[i:end])
	}
	return sb.String()
}

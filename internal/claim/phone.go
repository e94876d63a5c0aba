package claim

import (
	"strings"

	"github.com/kushalX13/CurbKey/internal/store"
)

const (
	minPhoneDigits = 8
	maxPhoneDigits = 16
)

// NormalizePhone strips common separators and keeps a leading plus.
func NormalizePhone(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	var b strings.Builder
	digits := 0
	for i, r := range trimmed {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", store.ErrInvalidPhone
		}
	}
	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return "", store.ErrInvalidPhone
	}
	return b.String(), nil
}

func validCode(code string) bool {
	if len(code) != store.ClaimCodeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

package store

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"
)

const (
	ClaimCodeLength   = 6
	ClaimCodeAttempts = 20
	DefaultClaimTTL   = 6 * time.Hour
	tokenBytes        = 16
)

// NewToken returns an opaque, URL-safe ticket token.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewClaimCode returns ClaimCodeLength random ASCII digits.
func NewClaimCode() (string, error) {
	max := big.NewInt(10)
	code := make([]byte, ClaimCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}

// MaskPhone keeps only the last four digits for staff views.
func MaskPhone(phone string) string {
	if phone == "" {
		return ""
	}
	if len(phone) < 4 {
		return "***"
	}
	return "***-***-" + phone[len(phone)-4:]
}

// MaskVehicle shows the last four characters of a plate behind bullets.
func MaskVehicle(carNumber string) string {
	runes := []rune(carNumber)
	if len(runes) < 4 {
		return ""
	}
	return "••••" + string(runes[len(runes)-4:])
}

func GuestPath(token string) string {
	return "/t/" + token
}

func ClaimExpired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && now.After(*expiresAt)
}

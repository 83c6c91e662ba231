package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	MinPasswordLen = 8
	// bcrypt only reads the first 72 bytes
	MaxPasswordLen = 72
)

// ErrWeakPassword is returned by ValidatePassword. The failed rules are
// joined to it for logs but callers should show users a generic message.
var ErrWeakPassword = errors.New("invalid password")

type passwordRule struct {
	reason string
	ok     func(password string) bool
}

var passwordRules = []passwordRule{
	{fmt.Sprintf("shorter than %d characters", MinPasswordLen), func(p string) bool { return len(p) >= MinPasswordLen }},
	{fmt.Sprintf("longer than %d bytes", MaxPasswordLen), func(p string) bool { return len(p) <= MaxPasswordLen }},
	{"no uppercase letter", containsRune(unicode.IsUpper)},
	{"no lowercase letter", containsRune(unicode.IsLower)},
	{"no digit", containsRune(unicode.IsDigit)},
	{"no symbol", containsRune(func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) })},
	{"too common", func(p string) bool { return !isCommonPassword(p) }},
}

func containsRune(pred func(rune) bool) func(string) bool {
	return func(s string) bool { return strings.IndexFunc(s, pred) >= 0 }
}

// commonPasswords are rejected after lowercasing and stripping a trailing
// run of digits and symbols, so "Password123!" counts as "password"
var commonPasswords = map[string]struct{}{
	"password": {}, "qwerty": {}, "abc": {}, "admin": {}, "letmein": {},
	"welcome": {}, "monkey": {}, "dragon": {}, "master": {}, "passw0rd": {},
	"shadow": {}, "sunshine": {}, "princess": {}, "football": {}, "trustno": {},
	"iloveyou": {}, "school": {}, "student": {}, "osnovci": {}, "": {},
}

func isCommonPassword(p string) bool {
	base := strings.TrimRightFunc(strings.ToLower(p), func(r rune) bool {
		return unicode.IsDigit(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	_, common := commonPasswords[base]
	return common
}

// ValidatePassword enforces the registration password policy
func ValidatePassword(password string) error {
	var failed []string
	for _, rule := range passwordRules {
		if !rule.ok(password) {
			failed = append(failed, rule.reason)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %s", ErrWeakPassword, strings.Join(failed, ", "))
	}
	return nil
}

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

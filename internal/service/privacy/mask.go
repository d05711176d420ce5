package privacy

import (
	"strings"
)

const (
	maskedIdentity = "***.***.***-**"
	maskedEmail    = "***@***.***"
)

// Anonymize keeps the leading 30% of the characters and stars the rest.
// Values of three characters or fewer are fully hidden.
func Anonymize(text string) string {
	if text == "" {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= 3 {
		return "***"
	}
	visible := len(runes) * 3 / 10
	return string(runes[:visible]) + strings.Repeat("*", len(runes)-visible)
}

// MaskIdentityNumber reveals only positions 9 to 11 of an 11 character
// national identity number.
func MaskIdentityNumber(v string) string {
	if len(v) != 11 {
		return maskedIdentity
	}
	return "***.***.*" + v[8:11] + "-**"
}

// MaskEmail keeps two characters of the user part, one of the domain name
// and the first extension label.
func MaskEmail(email string) string {
	user, domain, ok := strings.Cut(email, "@")
	if !ok {
		return maskedEmail
	}
	name, rest, _ := strings.Cut(domain, ".")
	ext, _, _ := strings.Cut(rest, ".")
	if ext == "" {
		ext = "***"
	}
	return prefix(user, 2) + "***@" + prefix(name, 1) + "***." + ext
}

// Mask keeps the first two characters of any free text value.
func Mask(text string) string {
	if text == "" {
		return ""
	}
	return prefix(text, 2) + "***"
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) < n {
		return string(r)
	}
	return string(r[:n])
}

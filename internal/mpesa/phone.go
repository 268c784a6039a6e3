package mpesa

import "strings"

// NormalizePhone converts a Kenyan subscriber number to the 2547XXXXXXXX form the gateway expects.
// Accepted inputs are 07XXXXXXXX, 7XXXXXXXX and 254XXXXXXXXX, with any non-digit characters ignored.
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		return "254" + digits[1:], nil
	case strings.HasPrefix(digits, "7") && len(digits) == 9:
		return "254" + digits, nil
	case strings.HasPrefix(digits, "254") && len(digits) == 12:
		return digits, nil
	}

	return "", ErrInvalidPhone
}

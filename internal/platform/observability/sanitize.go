package observability

import "unicode"

const defaultStringLimit = 256

// sanitizeString drops control characters and caps the length so request
// values cannot forge log lines.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}

	cleaned := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		cleaned = append(cleaned, r)
		if len(cleaned) == limit {
			break
		}
	}
	return string(cleaned)
}

func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeUserID truncates identifiers written to logs.
func SanitizeUserID(uid string) string {
	return sanitizeString(uid, 64)
}

// MaskPhone keeps the last three digits of a phone number.
func MaskPhone(phone string) string {
	digits := make([]rune, 0, len(phone))
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) <= 3 {
		return "***"
	}
	masked := make([]rune, len(digits))
	for i := range digits {
		if i < len(digits)-3 {
			masked[i] = '*'
			continue
		}
		masked[i] = digits[i]
	}
	return string(masked)
}

package logging

import "strings"

// SensitiveFields contains field names whose values must never reach logs
// or audit details in the clear.
var SensitiveFields = map[string]bool{
	"password":      true,
	"passwd":        true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"access_token":  true,
	"refresh_token": true,
	"authorization": true,
	"cookie":        true,
	"session_id":    true,
}

// MaskedValue is the string used to replace sensitive values.
const MaskedValue = "[REDACTED]"

// IsSensitiveField checks if a field name is sensitive.
func IsSensitiveField(fieldName string) bool {
	lowerField := strings.ToLower(fieldName)

	if SensitiveFields[lowerField] {
		return true
	}

	for sensitive := range SensitiveFields {
		if strings.Contains(lowerField, sensitive) {
			return true
		}
	}

	return false
}

// MaskEmail partially masks an email address.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	atIdx := strings.Index(email, "@")
	if atIdx <= 0 {
		return MaskedValue
	}

	local := email[:atIdx]
	domain := email[atIdx:]

	if len(local) <= 2 {
		return MaskedValue + domain
	}

	return local[:1] + "***" + local[len(local)-1:] + domain
}

// MaskUserID masks a user identifier for logging. Email-shaped identifiers
// keep their domain for correlation; opaque identifiers keep a one-character
// prefix.
func MaskUserID(id string) string {
	if id == "" {
		return ""
	}
	if strings.Contains(id, "@") {
		return MaskEmail(id)
	}
	if len(id) <= 3 {
		return MaskedValue
	}
	return id[:1] + "***" + id[len(id)-1:]
}

// SanitizeDetails returns a copy of an audit details map with values of
// sensitive top-level keys replaced. The input map is not modified.
func SanitizeDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}

	out := make(map[string]any, len(details))
	for k, v := range details {
		if IsSensitiveField(k) {
			out[k] = MaskedValue
			continue
		}
		out[k] = v
	}
	return out
}

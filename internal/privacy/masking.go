package privacy

import (
	"strings"

	"wabadash/internal/constants"
)

const redacted = "[REDACTED]"

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "5511987654321" -> "*********4321"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	if strings.HasPrefix(phone, "+") {
		return "+" + maskString(phone[1:], constants.DefaultPhoneMaskLength)
	}
	return maskString(phone, constants.DefaultPhoneMaskLength)
}

// MaskWamid masks a provider message id keeping its prefix and tail
// Example: "wamid.HBgMNTUxMTk4NzY1NDMyMRUCABIYFjNFQjA" -> "wamid.****************************YFjNFQjA"
func MaskWamid(wamid string) string {
	if wamid == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(wamid, "wamid."); ok {
		return "wamid." + maskString(rest, constants.DefaultMessageIDLength)
	}
	return maskString(wamid, constants.DefaultMessageIDLength)
}

// MaskName keeps the first letter of each word
// Example: "Maria Silva" -> "M**** S****"
func MaskName(name string) string {
	if name == "" {
		return ""
	}
	words := strings.Fields(name)
	for i, w := range words {
		runes := []rune(w)
		words[i] = string(runes[0]) + strings.Repeat("*", len(runes)-1)
	}
	return strings.Join(words, " ")
}

// MaskSecret reports only whether a secret is set
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return redacted
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies masking to common logging fields
func MaskSensitiveFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}

	masked := make(map[string]any, len(fields))
	for k, v := range fields {
		s, isString := v.(string)
		if !isString {
			masked[k] = v
			continue
		}

		switch k {
		case "phone", "phone_number", "from", "to", "wa_id", "recipient_id":
			masked[k] = MaskPhoneNumber(s)
		case "wamid", "context_wamid", "message_id":
			masked[k] = MaskWamid(s)
		case "client_name", "profile_name":
			masked[k] = MaskName(s)
		case "access_token", "webhook_secret", "verify_token", "authorization", "token":
			masked[k] = MaskSecret(s)
		default:
			masked[k] = v
		}
	}

	return masked
}

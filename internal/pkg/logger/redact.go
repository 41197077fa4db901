package logger

import "fmt"

// RedactPhone masks a phone number for safe logging, keeping the last two
// digits so adjacent log lines for the same caller remain correlatable.
// "+1 (555) 867-5309" → "***09"
func RedactPhone(phone string) string {
	digits := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			digits = append(digits, phone[i])
		}
	}
	if len(digits) < 2 {
		return "***"
	}
	return "***" + string(digits[len(digits)-2:])
}

// RedactText replaces caller-generated text with a length marker.
func RedactText(s string) string {
	return fmt.Sprintf("[redacted %d chars]", len(s))
}

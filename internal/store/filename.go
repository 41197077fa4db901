package store

import (
	"regexp"
	"strings"
)

// Fallback identity used when a recording's filename does not follow the
// FirstName_LastName_* convention. The pipeline records the evaluation
// anyway; attributing it is best-effort.
const (
	UnknownCounselorID   = "unknown"
	UnknownCounselorName = "Unknown Counselor"
)

var namePartRegex = regexp.MustCompile(`^[A-Za-z]+$`)

// CounselorFromFileName derives the counselor identity from the upload
// naming convention "FirstName_LastName_<anything>". "Jane_Doe_4412.wav"
// yields id "jane_doe" and name "Jane Doe". Anything that does not match
// falls back to the unknown identity rather than failing.
func CounselorFromFileName(fileName string) (id, name string) {
	base := fileName
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[:i]
	}

	parts := strings.Split(base, "_")
	if len(parts) < 3 || !namePartRegex.MatchString(parts[0]) || !namePartRegex.MatchString(parts[1]) {
		return UnknownCounselorID, UnknownCounselorName
	}

	first, last := parts[0], parts[1]
	id = strings.ToLower(first) + "_" + strings.ToLower(last)
	name = title(first) + " " + title(last)
	return id, name
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

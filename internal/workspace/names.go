package workspace

import (
	"regexp"
	"strings"
)

var (
	validName   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,127}$`)
	invalidRune = regexp.MustCompile(`[^A-Za-z0-9_]+`)
)

// ValidName reports whether name can be used as a dataset name.
func ValidName(name string) bool {
	return validName.MatchString(name)
}

// SanitizeName turns an arbitrary label (a file stem, a region name) into a
// valid dataset name.
func SanitizeName(name string) string {
	return sanitize(name, "dataset")
}

// SanitizeField turns a source attribute name into a column identifier.
func SanitizeField(name string) string {
	return sanitize(name, "field")
}

func sanitize(name, fallback string) string {
	s := invalidRune.ReplaceAllString(strings.TrimSpace(name), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return fallback
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "_" + s
	}
	if len(s) > 128 {
		s = s[:128]
	}
	return s
}

func tableName(name string) string {
	return quoteIdent("fc_" + name)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

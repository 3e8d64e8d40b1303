package constants

import "strings"

// AllowedExtensions holds the accepted upload extensions for contract analysis.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether a (possibly dotted, mixed-case) extension is
// accepted for upload.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}

// Severity tiers for persisted findings, derived from classifier confidence.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// SeverityForConfidence maps a classifier confidence onto a severity tier.
func SeverityForConfidence(confidence float32) string {
	switch {
	case confidence > 0.8:
		return SeverityHigh
	case confidence > 0.6:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

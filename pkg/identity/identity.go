// Package identity provides deterministic ID generation and the label/path
// sanitization rules shared by the ingestion pipeline and the retrieval tools.
package identity

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// namespace mirrors Python's uuid.NAMESPACE_OID, so that a given piece of
// normalized text always hashes to the same memory ID regardless of which
// implementation produced it.
var namespace = uuid.MustParse("6ba7b812-9dad-11d1-80b4-00c04fd430c8")

var nonWordRe = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// DeterministicID derives a stable UUID from text content so that repeated
// ingestion of the same normalized text is idempotent.
func DeterministicID(text string) uuid.UUID {
	normalized := strings.ToLower(strings.Join(strings.Fields(strings.TrimSpace(text)), " "))
	return uuid.NewSHA1(namespace, []byte(normalized))
}

// SanitizeLabel reduces a single taxonomy path segment to the character set
// ltree labels accept: letters, digits and underscore.
func SanitizeLabel(text string) string {
	cleaned := strings.ToLower(strings.Trim(nonWordRe.ReplaceAllString(text, "_"), "_"))
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}

// SanitizePath sanitizes every segment of a dotted (or slash-separated)
// category path, rewrites an attempted "user" root to "profile" and caps
// depth at 6 segments to keep the taxonomy tree shallow.
func SanitizePath(path string) string {
	replaced := strings.NewReplacer("/", ".", "\\", ".").Replace(path)
	segments := strings.Split(replaced, ".")

	sanitized := make([]string, 0, len(segments))
	for _, s := range segments {
		if strings.TrimSpace(s) == "" {
			continue
		}
		sanitized = append(sanitized, SanitizeLabel(s))
	}

	if len(sanitized) == 0 {
		return "reference.unknown"
	}
	if sanitized[0] == "user" {
		sanitized[0] = "profile"
	}
	if len(sanitized) > 6 {
		sanitized = sanitized[:6]
	}
	return strings.Join(sanitized, ".")
}

// VectorLiteral encodes an embedding as the textual array literal pgvector
// expects on the wire, e.g. "[0.1,0.2,0.3]".
func VectorLiteral(vec []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

package utils

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// MirrorOptions tunes EnsureMetadataCaseVariants.
type MirrorOptions struct {
	// SkipMirror excludes keys from mirroring when it returns true.
	SkipMirror func(key string) bool
	// MaxKeys caps the total key count. Mirror keys are evicted most-recent
	// first until the map fits; original keys are never evicted.
	MaxKeys int
}

// EnsureMetadataCaseVariants adds snake_case and camelCase forms for every key
// in metadata so consumers written against either convention can read the same
// payload. Existing keys are never overwritten: first write wins.
//
// The map is mutated in place and returned for convenience.
func EnsureMetadataCaseVariants(metadata map[string]interface{}, opts *MirrorOptions) map[string]interface{} {
	if metadata == nil {
		return nil
	}

	originals := make([]string, 0, len(metadata))
	for key := range metadata {
		originals = append(originals, key)
	}
	// Map iteration order is random; sorting keeps eviction deterministic.
	sort.Strings(originals)

	var added []string
	for _, key := range originals {
		value, ok := metadata[key]
		if !ok || value == nil {
			continue
		}
		if opts != nil && opts.SkipMirror != nil && opts.SkipMirror(key) {
			continue
		}

		for _, variant := range []string{ToSnakeCase(key), ToCamelCase(key)} {
			if variant == key {
				continue
			}
			if _, exists := metadata[variant]; exists {
				continue
			}
			metadata[variant] = value
			added = append(added, variant)
		}
	}

	if opts != nil && opts.MaxKeys > 0 {
		for len(metadata) > opts.MaxKeys && len(added) > 0 {
			last := added[len(added)-1]
			added = added[:len(added)-1]
			delete(metadata, last)
		}
	}

	return metadata
}

// MetadataValue probes the common naming-convention variants of key and
// returns the first present, non-nil value.
func MetadataValue(metadata map[string]interface{}, key string) (interface{}, bool) {
	if metadata == nil || key == "" {
		return nil, false
	}

	candidates := []string{
		key,
		ToSnakeCase(key),
		ToCamelCase(key),
		ToPascalCase(key),
		ToKebabCase(key),
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}

		if value, ok := metadata[candidate]; ok && value != nil {
			return value, true
		}
	}

	return nil, false
}

// MetadataString returns the value for key as a string, tolerating scalar
// values written under any naming convention. Missing keys and non-scalar
// values yield "".
func MetadataString(metadata map[string]interface{}, key string) string {
	value, ok := MetadataValue(metadata, key)
	if !ok {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case bool, int, int32, int64, float32, float64:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

// MetadataList returns the value for key as a string slice. Arrays are
// flattened element-wise; a plain string is split on commas.
func MetadataList(metadata map[string]interface{}, key string) []string {
	value, ok := MetadataValue(metadata, key)
	if !ok {
		return nil
	}

	switch v := value.(type) {
	case []string:
		return v
	case []interface{}:
		items := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				items = append(items, s)
			}
		}
		return items
	case string:
		parts := strings.Split(v, ",")
		items := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				items = append(items, trimmed)
			}
		}
		return items
	default:
		return nil
	}
}

// splitWords breaks a key into words on underscores, hyphens, spaces and
// lower-to-upper case boundaries.
func splitWords(key string) []string {
	var words []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	runes := []rune(key)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r) && i > 0 && !unicode.IsUpper(runes[i-1]):
			flush()
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return words
}

// ToSnakeCase converts a key of any supported convention to snake_case.
func ToSnakeCase(key string) string {
	words := splitWords(key)
	for i, word := range words {
		words[i] = strings.ToLower(word)
	}
	return strings.Join(words, "_")
}

// ToKebabCase converts a key of any supported convention to kebab-case.
func ToKebabCase(key string) string {
	words := splitWords(key)
	for i, word := range words {
		words[i] = strings.ToLower(word)
	}
	return strings.Join(words, "-")
}

// ToCamelCase converts a key of any supported convention to camelCase.
func ToCamelCase(key string) string {
	words := splitWords(key)
	var b strings.Builder
	for i, word := range words {
		if i == 0 {
			b.WriteString(strings.ToLower(word))
			continue
		}
		b.WriteString(capitalize(word))
	}
	return b.String()
}

// ToPascalCase converts a key of any supported convention to PascalCase.
func ToPascalCase(key string) string {
	words := splitWords(key)
	var b strings.Builder
	for _, word := range words {
		b.WriteString(capitalize(word))
	}
	return b.String()
}

func capitalize(word string) string {
	if word == "" {
		return ""
	}
	runes := []rune(strings.ToLower(word))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

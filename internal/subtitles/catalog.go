package subtitles

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoSubtitles is returned when a video offers no auto-generated tracks.
var ErrNoSubtitles = errors.New("no auto-generated subtitles found")

// LanguageNotFoundError is returned when a requested language matches no
// offered track in any form.
type LanguageNotFoundError struct {
	Language string
}

// Error names the missing language for user-facing messages.
func (e *LanguageNotFoundError) Error() string {
	return fmt.Sprintf("requested language %q not found", e.Language)
}

// Catalog maps offered track identifiers to platform metadata. Only the
// identifiers are consulted; metadata is carried through untouched.
type Catalog map[string]any

// Classification partitions a catalog's base languages into three buckets.
// A base language appears in exactly one bucket: original beats standard
// beats auto-translated.
type Classification struct {
	Original       []string `json:"original"`
	Standard       []string `json:"standard"`
	AutoTranslated []string `json:"autoTranslated"`
}

// IsEmpty reports whether no languages are offered in any bucket.
func (c Classification) IsEmpty() bool {
	return len(c.Original) == 0 && len(c.Standard) == 0 && len(c.AutoTranslated) == 0
}

// majorLanguages is the auto-selection priority order when no original
// track exists.
var majorLanguages = []string{
	"en", "es", "fr", "de", "it", "pt",
	"ru", "uk", "ja", "ko", "zh", "ar",
}

const origSuffix = "-orig"

// Classify groups catalog identifiers by track form. An empty catalog yields
// an empty classification, not an error: callers use it to report "no
// subtitles available".
func Classify(catalog Catalog) Classification {
	covered := make(map[string]bool)
	var original, standard, auto []string

	for _, id := range sortedKeys(catalog) {
		switch {
		case strings.HasSuffix(id, origSuffix):
			base := strings.TrimSuffix(id, origSuffix)
			original = append(original, base)
			covered[base] = true
		case !strings.Contains(id, "-"):
			standard = append(standard, id)
			covered[id] = true
		}
	}

	for _, id := range sortedKeys(catalog) {
		if !strings.Contains(id, "-") || strings.HasSuffix(id, origSuffix) {
			continue
		}
		base := id[:strings.Index(id, "-")]
		if !covered[base] {
			auto = append(auto, base)
			covered[base] = true
		}
	}

	return Classification{
		Original:       dedupeSorted(original),
		Standard:       dedupeSorted(standard),
		AutoTranslated: dedupeSorted(auto),
	}
}

// Select picks exactly one track identifier. With a preference it tries the
// original track, then the plain track, then auto-translations touching the
// preferred code (translations into it win). Without a preference it takes
// any original track, then the first major language offered, then any track.
// Identifiers are scanned in sorted order so ties resolve deterministically.
func Select(catalog Catalog, language string) (string, error) {
	if len(catalog) == 0 {
		return "", ErrNoSubtitles
	}

	keys := sortedKeys(catalog)
	if language != "" {
		if _, ok := catalog[language+origSuffix]; ok {
			return language + origSuffix, nil
		}
		if _, ok := catalog[language]; ok {
			return language, nil
		}

		var candidates, into []string
		for _, id := range keys {
			if !strings.Contains(id, "-") || strings.HasSuffix(id, origSuffix) {
				continue
			}
			parts := strings.Split(id, "-")
			if len(parts) != 2 || (parts[0] != language && parts[1] != language) {
				continue
			}
			candidates = append(candidates, id)
			if strings.HasSuffix(id, "-"+language) {
				into = append(into, id)
			}
		}
		if len(into) > 0 {
			return into[0], nil
		}
		if len(candidates) > 0 {
			return candidates[0], nil
		}

		return "", &LanguageNotFoundError{Language: language}
	}

	for _, id := range keys {
		if strings.HasSuffix(id, origSuffix) {
			return id, nil
		}
	}
	for _, major := range majorLanguages {
		if _, ok := catalog[major]; ok {
			return major, nil
		}
	}
	return keys[0], nil
}

// sortedKeys returns catalog identifiers in lexicographic order.
func sortedKeys(catalog Catalog) []string {
	keys := make([]string, 0, len(catalog))
	for id := range catalog {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	return keys
}

// dedupeSorted sorts language codes and removes adjacent duplicates.
func dedupeSorted(langs []string) []string {
	if len(langs) == 0 {
		return nil
	}

	sort.Strings(langs)
	out := langs[:1]
	for _, lang := range langs[1:] {
		if lang != out[len(out)-1] {
			out = append(out, lang)
		}
	}
	return out
}

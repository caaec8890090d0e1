package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys per section.
var knownKeys = map[string][]string{
	"api":       {"auth_wait", "base_url", "timeout", "upload_timeout", "user_agent"},
	"auth":      {"api_key", "sign_in_url", "token_url"},
	"roles":     {"user_a", "user_b"},
	"dashboard": {"partner_uid", "poll_interval"},
	"uploads":   {"extensions", "max_file_size", "parallel", "settle_delay", "skip_duplicates"},
	"logging":   {"log_format", "log_level"},
}

// knownSections is the sorted section list for suggestions. Sorted for
// deterministic output when two candidates have the same edit distance.
var knownSections = func() []string {
	sections := make([]string, 0, len(knownKeys))
	for s := range knownKeys {
		sections = append(sections, s)
	}

	slices.Sort(sections)

	return sections
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	// An unknown table is listed once for the table and once per key in it.
	seen := make(map[string]bool)

	for _, key := range md.Undecoded() {
		err := unknownKeyError(key)
		if err == nil || seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// unknownKeyError describes one undecoded key. A top-level key is either an
// unknown section or a setting placed outside any section.
func unknownKeyError(key toml.Key) error {
	if len(key) == 0 {
		return nil
	}

	section := key[0]

	keys, sectionKnown := knownKeys[section]
	if !sectionKnown {
		if len(key) == 1 {
			if owner := sectionOf(section); owner != "" {
				return fmt.Errorf("config key %q must be inside the [%s] section", section, owner)
			}
		}

		return withSuggestion(fmt.Sprintf("unknown config section %q", section), section, knownSections)
	}

	if len(key) < 2 {
		return nil
	}

	// Deeper keys under an already-reported unknown key add nothing.
	if len(key) > 2 && !slices.Contains(keys, key[1]) {
		return nil
	}

	return withSuggestion(fmt.Sprintf("unknown config key %q in [%s]", key[1], section), key[1], keys)
}

// sectionOf returns the section that owns a bare key name, or "".
func sectionOf(name string) string {
	for _, section := range knownSections {
		if slices.Contains(knownKeys[section], name) {
			return section
		}
	}

	return ""
}

func withSuggestion(msg, unknown string, known []string) error {
	if suggestion := closestMatch(unknown, known); suggestion != "" {
		return fmt.Errorf("%s: did you mean %q?", msg, suggestion)
	}

	return errors.New(msg)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization avoids allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// Package identity classifies opaque platform application identifiers
// (desktop AUMIDs, package ids, PWA launcher ids) into the music-service
// categories the poll source can filter on.
//
// Matching is heuristic and best-effort: identifiers drift across platform
// versions, so the rule set is data (overridable from the config file)
// rather than hard-coded logic, and unknown identifiers always fail
// closed.
package identity

import (
	"fmt"
	"strings"
)

// Category is a recognized music-service application category.
type Category string

const (
	CategorySpotify    Category = "spotify"
	CategoryAppleMusic Category = "applemusic"
	CategoryYTMusic    Category = "ytmusic"
)

// DefaultCategory is the filter applied until the user picks one.
const DefaultCategory = CategorySpotify

// Categories lists all known categories in classification order.
func Categories() []Category {
	return []Category{CategorySpotify, CategoryAppleMusic, CategoryYTMusic}
}

func (c Category) String() string { return string(c) }

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategorySpotify, CategoryAppleMusic, CategoryYTMusic:
		return true
	}
	return false
}

// ParseCategory parses a wire or config tag into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown app filter %q", s)
	}
	return c, nil
}

// Rule holds the substring heuristics for one category. An identifier
// matches if it contains any single token from Any, or every token of
// any one group in Pairs. Tokens are matched against the lower-cased
// identifier.
type Rule struct {
	Any   []string   `toml:"any"`
	Pairs [][]string `toml:"pairs"`
}

func (r Rule) matches(id string) bool {
	for _, tok := range r.Any {
		if tok != "" && strings.Contains(id, tok) {
			return true
		}
	}
	for _, group := range r.Pairs {
		if len(group) == 0 {
			continue
		}
		all := true
		for _, tok := range group {
			if tok == "" || !strings.Contains(id, tok) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// Ruleset maps categories to their matching rules.
type Ruleset map[Category]Rule

// DefaultRules returns the built-in rule set. The ytmusic pairs cover
// progressive-web-app launchers, where the brand token has to co-occur
// with a browser or extension token; the crx token is the known Chrome
// PWA id for YouTube Music.
func DefaultRules() Ruleset {
	return Ruleset{
		CategorySpotify: {
			Any: []string{"spotify"},
		},
		CategoryAppleMusic: {
			Any: []string{"applemusic", "music.apple", "apple.music", "appleinc"},
		},
		CategoryYTMusic: {
			Any: []string{
				"youtube-music",
				"youtubemusic",
				"ytmusic",
				"cinhimbnkkaeohfgghhklpknlkffjgod",
			},
			Pairs: [][]string{
				{"youtube", "crx"},
				{"youtube", "chrome"},
				{"youtube", "msedge"},
				{"youtube", "brave"},
			},
		},
	}
}

// Classify returns the category a raw identifier belongs to. Categories
// are tested in a fixed order so overlapping rule sets stay
// deterministic. Unknown identifiers return false.
func (rs Ruleset) Classify(sourceAppID string) (Category, bool) {
	id := strings.ToLower(strings.TrimSpace(sourceAppID))
	if id == "" {
		return "", false
	}
	for _, c := range Categories() {
		rule, ok := rs[c]
		if !ok {
			continue
		}
		if rule.matches(id) {
			return c, true
		}
	}
	return "", false
}

// Matches reports whether the raw identifier belongs to the selected
// category. Unknown categories and unknown identifiers fail closed.
func (rs Ruleset) Matches(sourceAppID string, selected Category) bool {
	rule, ok := rs[selected]
	if !ok {
		return false
	}
	id := strings.ToLower(strings.TrimSpace(sourceAppID))
	if id == "" {
		return false
	}
	return rule.matches(id)
}

// Merge overlays non-empty rules from o on top of rs, returning a new
// rule set. Used to apply config-file overrides onto the defaults.
func (rs Ruleset) Merge(o Ruleset) Ruleset {
	merged := make(Ruleset, len(rs))
	for c, rule := range rs {
		merged[c] = rule
	}
	for c, rule := range o {
		if len(rule.Any) == 0 && len(rule.Pairs) == 0 {
			continue
		}
		merged[c] = rule
	}
	return merged
}

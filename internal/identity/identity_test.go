package identity

import "testing"

// Representative raw identifiers per category, as produced by desktop
// media sessions and PWA launchers.
var representatives = map[Category][]string{
	CategorySpotify: {
		"Spotify.exe",
		"com.spotify.desktop",
		"SpotifyAB.SpotifyMusic_zpdnekdrzrea0!Spotify",
	},
	CategoryAppleMusic: {
		"AppleInc.AppleMusicWin_nzyj5cx40ttqa!App",
		"com.apple.Music",
		"AppleMusic",
	},
	CategoryYTMusic: {
		"com.github.th-ch.youtube-music",
		"Chrome._crx_cinhimbnkkaeohfgghhklpknlkffjgod",
		"msedge.youtube_music._pwa",
		"YTMusic.Desktop",
	},
}

func TestClassifyRepresentatives(t *testing.T) {
	rules := DefaultRules()

	for want, ids := range representatives {
		for _, id := range ids {
			got, ok := rules.Classify(id)
			if !ok {
				t.Errorf("Classify(%q) found no category, want %s", id, want)
				continue
			}
			if got != want {
				t.Errorf("Classify(%q) = %s, want %s", id, got, want)
			}
		}
	}
}

// No representative identifier may match a category other than its own.
func TestCategoriesAreDisjoint(t *testing.T) {
	rules := DefaultRules()

	for own, ids := range representatives {
		for _, id := range ids {
			for _, other := range Categories() {
				if other == own {
					continue
				}
				if rules.Matches(id, other) {
					t.Errorf("Matches(%q, %s) = true, identifier belongs to %s", id, other, own)
				}
			}
		}
	}
}

func TestMatchesFailsClosed(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		name     string
		id       string
		selected Category
	}{
		{"unknown identifier", "com.example.podcatcher", CategorySpotify},
		{"empty identifier", "", CategorySpotify},
		{"unknown category", "Spotify.exe", Category("winamp")},
		{"browser without brand token", "chrome.exe", CategoryYTMusic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rules.Matches(tt.id, tt.selected) {
				t.Errorf("Matches(%q, %s) = true, want fail closed", tt.id, tt.selected)
			}
		})
	}
}

func TestPairHeuristicNeedsCoOccurrence(t *testing.T) {
	rules := DefaultRules()

	// The brand token alone is not enough for the PWA heuristic...
	if rules.Matches("youtube", CategoryYTMusic) {
		t.Error("bare brand token should not match the PWA pair heuristic")
	}
	// ...but brand plus launcher token is.
	if !rules.Matches("chrome youtube pwa", CategoryYTMusic) {
		t.Error("brand plus launcher token should match")
	}
}

func TestParseCategory(t *testing.T) {
	if c, err := ParseCategory(" Spotify "); err != nil || c != CategorySpotify {
		t.Fatalf("ParseCategory: got (%v, %v)", c, err)
	}
	if _, err := ParseCategory("winamp"); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestMergeOverridesOnlyNonEmpty(t *testing.T) {
	base := DefaultRules()
	merged := base.Merge(Ruleset{
		CategorySpotify: {Any: []string{"spotify", "spot.test"}},
		CategoryYTMusic: {},
	})

	if !merged.Matches("spot.test.player", CategorySpotify) {
		t.Error("override rule should apply")
	}
	if !merged.Matches("com.github.th-ch.youtube-music", CategoryYTMusic) {
		t.Error("empty override must not clobber the default rule")
	}
}

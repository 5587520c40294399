package nowplaying

import (
	"encoding/json"
	"testing"
)

func playing(track, artist, album string) NowPlaying {
	return NowPlaying{
		IsPlaying: true,
		TrackName: track,
		Artists:   ArtistList{artist},
		Album:     album,
	}
}

func TestTrackKey(t *testing.T) {
	tests := []struct {
		name string
		d    NowPlaying
		want string
	}{
		{
			name: "not playing keys to empty",
			d:    NowPlaying{IsPlaying: false, TrackName: "Song X", Artists: ArtistList{"Artist Y"}},
			want: "",
		},
		{
			name: "single artist",
			d:    playing("Song X", "Artist Y", "Album Z"),
			want: "Song X||Artist Y||Album Z",
		},
		{
			name: "multiple artists joined in order",
			d: NowPlaying{
				IsPlaying: true,
				TrackName: "Song X",
				Artists:   ArtistList{"A", "B"},
				Album:     "Album Z",
			},
			want: "Song X||A, B||Album Z",
		},
		{
			name: "absent album defaults to empty",
			d:    playing("Song X", "Artist Y", ""),
			want: "Song X||Artist Y||",
		},
		{
			name: "case differences produce distinct keys",
			d:    playing("song x", "Artist Y", "Album Z"),
			want: "song x||Artist Y||Album Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrackKey(tt.d); got != tt.want {
				t.Errorf("TrackKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectorResetsOnNotPlaying(t *testing.T) {
	var det Detector

	track := playing("Song X", "Artist Y", "Album Z")

	changed, _ := det.Observe(track)
	if !changed {
		t.Fatal("first playing observation should register as a change")
	}

	changed, _ = det.Observe(track)
	if changed {
		t.Fatal("repeat of the same track should not register as a change")
	}

	// Pausing resets the key so resuming the same track fires again.
	changed, key := det.Observe(NotPlaying())
	if key != "" {
		t.Fatalf("not-playing observation should key to empty, got %q", key)
	}
	if !changed {
		t.Fatal("transition to not-playing should register as a change")
	}

	changed, _ = det.Observe(NotPlaying())
	if changed {
		t.Fatal("consecutive not-playing observations must never count as a change")
	}

	changed, _ = det.Observe(track)
	if !changed {
		t.Fatal("resume of the same track after a pause should register as a change")
	}
}

func TestDetectorDistinctTracks(t *testing.T) {
	var det Detector

	det.Observe(playing("Song X", "Artist Y", "Album Z"))
	changed, _ := det.Observe(playing("Song W", "Artist Y", "Album Z"))
	if !changed {
		t.Fatal("a different track should register as a change")
	}
}

func TestArtistListUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"bare string", `"Artist Y"`, []string{"Artist Y"}},
		{"list", `["A","B"]`, []string{"A", "B"}},
		{"empty list", `[]`, []string{}},
		{"null", `null`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ArtistList
			if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
				t.Fatalf("unmarshal %q: %v", tt.in, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestArtistListInsideRecord(t *testing.T) {
	raw := `{"isPlaying":true,"trackName":"Song X","artists":"Artist Y","album":"Album Z"}`

	var d NowPlaying
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatal(err)
	}
	if len(d.Artists) != 1 || d.Artists[0] != "Artist Y" {
		t.Fatalf("artists = %v, want single-element list", d.Artists)
	}
}

func TestEqual(t *testing.T) {
	a := playing("Song X", "Artist Y", "Album Z")
	b := a
	if !a.Equal(b) {
		t.Fatal("identical records should be equal")
	}

	b.ArtworkURL = "https://example.com/cover.jpg"
	if a.Equal(b) {
		t.Fatal("artwork difference should make records unequal")
	}

	if !NotPlaying().Equal(NotPlaying()) {
		t.Fatal("two not-playing records should be equal")
	}
}

package instagram

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptionForms(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{name: "object", raw: `{"caption": {"text": "hello", "pk": "9"}}`, expected: "hello"},
		{name: "string", raw: `{"caption": "plain"}`, expected: "plain"},
		{name: "null", raw: `{"caption": null}`, expected: ""},
		{name: "missing", raw: `{}`, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var post RawPost
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &post))
			assert.Equal(t, tt.expected, post.Caption.Text)
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Run("play count falls back to ig_play_count", func(t *testing.T) {
		post := RawPost{ID: "1", IGPlayCount: 42}.Normalize()
		assert.Equal(t, int64(42), post.PlayCount)

		post = RawPost{ID: "1", PlayCount: 7, IGPlayCount: 42}.Normalize()
		assert.Equal(t, int64(7), post.PlayCount)
	})

	t.Run("media type", func(t *testing.T) {
		assert.Equal(t, "Reel", RawPost{MediaType: 2}.Normalize().MediaType)
		assert.Equal(t, "Image", RawPost{MediaType: 1}.Normalize().MediaType)
		assert.Equal(t, "Image", RawPost{MediaType: 8}.Normalize().MediaType)
	})

	t.Run("thumbnail falls back to first candidate", func(t *testing.T) {
		raw := RawPost{ImageVersions2: ImageVersions{Candidates: []ImageCandidate{
			{URL: "https://cdn.example/large.jpg"},
			{URL: "https://cdn.example/small.jpg"},
		}}}
		assert.Equal(t, "https://cdn.example/large.jpg", raw.Normalize().ThumbnailURL)

		raw.ThumbnailURL = "https://cdn.example/thumb.jpg"
		assert.Equal(t, "https://cdn.example/thumb.jpg", raw.Normalize().ThumbnailURL)
	})

	t.Run("taken at", func(t *testing.T) {
		post := RawPost{TakenAt: 1767225600}.Normalize()
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), post.TakenAt)
		assert.True(t, RawPost{}.Normalize().TakenAt.IsZero())
	})

	t.Run("missing music info", func(t *testing.T) {
		var raw RawPost
		require.NoError(t, json.Unmarshal([]byte(`{"id": "1", "clips_metadata": {"music_info": null}}`), &raw))
		post := raw.Normalize()
		assert.Empty(t, post.SoundArtist)
		assert.Empty(t, post.SoundID)
	})
}

func TestProfilePictureURL(t *testing.T) {
	p := &Profile{ProfilePicURL: "small"}
	assert.Equal(t, "small", p.PictureURL())
	p.ProfilePicURLHD = "hd"
	assert.Equal(t, "hd", p.PictureURL())
}

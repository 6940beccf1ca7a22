package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescriptionText(t *testing.T) {
	assert.Equal(t, "body", DescriptionText("body", ""))
	assert.Equal(t, "#go", DescriptionText("", "#go"))
	assert.Equal(t, "body\n#go #shorts", DescriptionText("body", "#go #shorts"))
}

func TestVisibilitySelector(t *testing.T) {
	tests := map[string]string{
		"public":    "PUBLIC",
		"Private":   "PRIVATE",
		" unlisted": "UNLISTED",
		"":          "PUBLIC",
		"friends":   "PUBLIC",
	}
	for in, want := range tests {
		assert.Equal(t, "tp-yt-paper-radio-button[name='"+want+"']", visibilitySelector(in), in)
	}
}

func TestAudienceSelector(t *testing.T) {
	assert.Contains(t, audienceSelector(true), "VIDEO_MADE_FOR_KIDS_MADE_FOR_KIDS")
	assert.Contains(t, audienceSelector(false), "VIDEO_MADE_FOR_KIDS_NOT_MADE_FOR_KIDS")
}

func TestAlteredContentNeedsClick(t *testing.T) {
	tests := []struct {
		value   string
		checked bool
		want    bool
	}{
		{"yes", false, true},
		{"Yes", true, false},
		{"true", false, true},
		{"no", true, true},
		{"No", false, false},
		{"false", true, true},
		{"maybe", false, false},
		{"", true, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, alteredContentNeedsClick(tt.value, tt.checked), "%q checked=%v", tt.value, tt.checked)
	}
}

func TestHasClass(t *testing.T) {
	assert.True(t, hasClass("style-scope checked", "checked"))
	assert.False(t, hasClass("unchecked", "checked"))
	assert.False(t, hasClass("", "checked"))
}

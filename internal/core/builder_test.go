package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobBuilderMapsColumns(t *testing.T) {
	mapping := testMapping
	mapping.AlteredContent = "AI"
	mapping.MadeForKids = "Kids"
	b := JobBuilder{Mapping: mapping}
	account := Account{Name: "main", CookieFile: "cookies/main.json"}
	row := Row{Index: 4, Values: map[string]string{
		"Title":       "Sunset timelapse",
		"Description": "Shot on the pier",
		"Hashtags":    "#sunset #sea",
		"Tags":        "sunset, sea",
		"AI":          "  No ",
		"Kids":        " YES ",
	}}

	job, err := b.Build(row, account, "downloads/sunset.mp4")

	require.NoError(t, err)
	assert.Equal(t, account, job.Account)
	assert.Equal(t, "downloads/sunset.mp4", job.VideoPath)
	assert.Equal(t, "Sunset timelapse", job.Title)
	assert.Equal(t, "Shot on the pier", job.Description)
	assert.Equal(t, "#sunset #sea", job.Hashtags)
	assert.Equal(t, "sunset, sea", job.Tags)
	assert.Equal(t, DefaultVisibility, job.Visibility)
	require.NotNil(t, job.AlteredContent)
	assert.Equal(t, "No", *job.AlteredContent)
	assert.True(t, job.MadeForKids)
}

func TestJobBuilderOptionalColumns(t *testing.T) {
	row := Row{Index: 2, Values: map[string]string{"Title": "t", "AI": "   ", "Kids": "maybe"}}

	job, err := JobBuilder{Mapping: testMapping}.Build(row, Account{Name: "a"}, "v.mp4")
	require.NoError(t, err)
	assert.Nil(t, job.AlteredContent)
	assert.False(t, job.MadeForKids)
	assert.Empty(t, job.Description)

	mapping := testMapping
	mapping.AlteredContent = "AI"
	mapping.MadeForKids = "Kids"
	job, err = JobBuilder{Mapping: mapping}.Build(row, Account{Name: "a"}, "v.mp4")
	require.NoError(t, err)
	assert.Nil(t, job.AlteredContent)
	assert.False(t, job.MadeForKids)
}

func TestJobBuilderRejectsInvalidJobs(t *testing.T) {
	b := JobBuilder{Mapping: testMapping}
	tests := []struct {
		name   string
		values map[string]string
		path   string
	}{
		{"empty path", map[string]string{"Title": "ok"}, " "},
		{"long title", map[string]string{"Title": strings.Repeat("é", 101)}, "v.mp4"},
		{"long description", map[string]string{"Description": strings.Repeat("x", 5001)}, "v.mp4"},
		{"angle bracket in title", map[string]string{"Title": "a > b"}, "v.mp4"},
		{"angle bracket in description", map[string]string{"Description": "<script>"}, "v.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build(Row{Index: 2, Values: tt.values}, Account{Name: "a"}, tt.path)
			assert.ErrorIs(t, err, ErrInvalidJob)
		})
	}

	_, err := b.Build(Row{Index: 2, Values: map[string]string{"Title": strings.Repeat("é", 100)}}, Account{Name: "a"}, "v.mp4")
	assert.NoError(t, err)
}

package core

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultVisibility is used for every job built from a row.
const DefaultVisibility = "public"

const (
	maxTitleRunes       = 100
	maxDescriptionRunes = 5000
)

var truthyTokens = map[string]bool{"yes": true, "true": true, "1": true}

// ColumnMapping names the row columns that feed an upload.
type ColumnMapping struct {
	Title            string
	Description      string
	Hashtags         string
	Tags             string
	Filename         string
	DriveFileID      string
	DriveDownloadURL string
	Status           string
	YouTubeURL       string
	AlteredContent   string
	MadeForKids      string
}

// JobBuilder turns rows into upload jobs.
type JobBuilder struct {
	Mapping ColumnMapping
}

// Build maps row into an UploadJob for account and the staged video file.
func (b JobBuilder) Build(row Row, account Account, videoPath string) (UploadJob, error) {
	m := b.Mapping
	if strings.TrimSpace(videoPath) == "" {
		return UploadJob{}, fmt.Errorf("%w: empty video path", ErrInvalidJob)
	}
	job := UploadJob{
		Account:     account,
		VideoPath:   videoPath,
		Title:       row.Get(m.Title),
		Description: row.Get(m.Description),
		Tags:        row.Get(m.Tags),
		Hashtags:    row.Get(m.Hashtags),
		Visibility:  DefaultVisibility,
	}
	if m.AlteredContent != "" {
		if text := strings.TrimSpace(row.Get(m.AlteredContent)); text != "" {
			job.AlteredContent = &text
		}
	}
	if m.MadeForKids != "" {
		job.MadeForKids = truthyTokens[strings.ToLower(strings.TrimSpace(row.Get(m.MadeForKids)))]
	}
	if err := validateJob(job); err != nil {
		return UploadJob{}, err
	}
	return job, nil
}

func validateJob(job UploadJob) error {
	if n := utf8.RuneCountInString(job.Title); n > maxTitleRunes {
		return fmt.Errorf("%w: title has %d characters (max %d)", ErrInvalidJob, n, maxTitleRunes)
	}
	if n := utf8.RuneCountInString(job.Description); n > maxDescriptionRunes {
		return fmt.Errorf("%w: description has %d characters (max %d)", ErrInvalidJob, n, maxDescriptionRunes)
	}
	if strings.ContainsAny(job.Title, "<>") {
		return fmt.Errorf("%w: title must not contain angle brackets", ErrInvalidJob)
	}
	if strings.ContainsAny(job.Description, "<>") {
		return fmt.Errorf("%w: description must not contain angle brackets", ErrInvalidJob)
	}
	return nil
}

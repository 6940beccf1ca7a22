package core

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
}

func TestCommandUploaderReturnsLastLine(t *testing.T) {
	skipOnWindows(t)
	logDir := t.TempDir()
	dump := filepath.Join(t.TempDir(), "job.json")
	cmd := "cat > " + dump + "; echo uploading; echo https://youtu.be/abc123; echo"
	u := NewCommandUploader(cmd, 0, logDir, discardLogger())
	altered := "no"

	url, err := u.Upload(context.Background(), UploadJob{
		Account:        Account{Name: "main/1", CookieFile: "c.json"},
		VideoPath:      "v.mp4",
		Title:          "Title",
		Visibility:     DefaultVisibility,
		AlteredContent: &altered,
	})

	require.NoError(t, err)
	assert.Equal(t, "https://youtu.be/abc123", url)

	raw, err := os.ReadFile(dump)
	require.NoError(t, err)
	var job map[string]any
	require.NoError(t, json.Unmarshal(raw, &job))
	assert.Equal(t, "main/1", job["account"])
	assert.Equal(t, "v.mp4", job["video_path"])
	assert.Equal(t, "no", job["altered_content"])

	logs, err := filepath.Glob(filepath.Join(logDir, "upload-*-main_1.log"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestCommandUploaderErrors(t *testing.T) {
	skipOnWindows(t)
	tests := []struct {
		name    string
		command string
		want    string
	}{
		{"exit code", "echo 'login required' >&2; exit 3", "exited with code 3: login required"},
		{"no output", "true", errEmptyVideoURL.Error()},
		{"not a url", "echo done", `printed "done"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewCommandUploader(tt.command, 0, "", discardLogger())
			_, err := u.Upload(context.Background(), UploadJob{Account: Account{Name: "a"}})
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestCommandUploaderTimeout(t *testing.T) {
	skipOnWindows(t)
	u := NewCommandUploader("exec sleep 5", 100*time.Millisecond, "", discardLogger())

	for range 3 {
		started := time.Now()
		_, err := u.Upload(context.Background(), UploadJob{Account: Account{Name: "a"}})

		assert.ErrorContains(t, err, "timed out")
		assert.Less(t, time.Since(started), 4*time.Second)
	}
}

func TestCommandUploaderTimeoutSendsTerm(t *testing.T) {
	skipOnWindows(t)
	logDir := t.TempDir()
	cmd := `trap 'echo terminated >&2; exit 3' TERM; sleep 5 </dev/null >/dev/null 2>&1 & wait`
	u := NewCommandUploader(cmd, 200*time.Millisecond, logDir, discardLogger())

	started := time.Now()
	_, err := u.Upload(context.Background(), UploadJob{Account: Account{Name: "a"}})

	assert.ErrorContains(t, err, "timed out after 200ms")
	assert.Less(t, time.Since(started), terminationGrace)
	logs, err := filepath.Glob(filepath.Join(logDir, "*.log"))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	data, err := os.ReadFile(logs[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "terminated")
}

func TestCommandUploaderParentCancel(t *testing.T) {
	skipOnWindows(t)
	u := NewCommandUploader("exec sleep 5", time.Minute, "", discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := u.Upload(ctx, UploadJob{Account: Account{Name: "a"}})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotContains(t, err.Error(), "timed out after")
}

func TestCommandUploaderEnvironment(t *testing.T) {
	skipOnWindows(t)
	u := NewCommandUploader(`cat >/dev/null; echo "https://youtu.be/$YTU_ACCOUNT"`, 0, "", discardLogger())

	url, err := u.Upload(context.Background(), UploadJob{Account: Account{Name: "second"}})

	require.NoError(t, err)
	assert.Equal(t, "https://youtu.be/second", url)
}

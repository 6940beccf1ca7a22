package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytuploader/internal/config"
	"ytuploader/internal/core"
	"ytuploader/internal/store"
)

const testConfig = `
accounts:
  - name: main
google:
  service_account_file: sa.json
  spreadsheet_id: sheet-1
  worksheet_name: Videos
sheet_mapping:
  title: Title
  description: Description
  hashtags: Hashtags
  tags: Tags
  filename: Filename
schedule:
  times: ["09:00", "18:00"]
  timezone: Asia/Tokyo
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("YTU_MODE", config.ModeHTTP)
	t.Setenv("YTU_STATE_DIR", t.TempDir())
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestScheduleCommand(t *testing.T) {
	path := writeConfig(t, testConfig)

	out, err := execute(t, "schedule", "--config", path, "--from", "2026-01-10T01:00:00Z", "--days", "2")

	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Timezone: Asia/Tokyo (fixed order)", lines[0])
	assert.Equal(t, "Sat 2026-01-10 18:00 JST", lines[1])
	assert.Equal(t, "Sun 2026-01-11 09:00 JST", lines[2])
	assert.Equal(t, "Sun 2026-01-11 18:00 JST", lines[3])
	assert.Equal(t, "Housekeeping: Sun 2026-01-11 00:15 JST", lines[4])
}

func TestScheduleCommandRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, strings.Replace(testConfig, `"18:00"`, `"18:75"`, 1))

	_, err := execute(t, "schedule", "--config", path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "ytuploaderd "+Version)
	assert.Contains(t, out, "Go Version:")
}

type idleRows struct{}

func (idleRows) FetchPending(context.Context) (*core.Row, error) { return nil, nil }
func (idleRows) UpdateStatus(context.Context, core.Row, core.RowStatus, string) error {
	return nil
}

type idleUploader struct{}

func (idleUploader) Upload(context.Context, core.UploadJob) (string, error) { return "", nil }

func newTestApp(t *testing.T, appCfg *config.AppConfig) *app {
	t.Helper()
	st, err := store.Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	controller, err := core.NewController(idleRows{}, idleUploader{}, appCfg.CoreAccounts(), appCfg.ControllerConfig(), logger)
	require.NoError(t, err)
	return &app{cfg: &config.Config{}, appCfg: appCfg, logger: logger, store: st, controller: controller}
}

func parseTestConfig(t *testing.T, dir string) *config.AppConfig {
	t.Helper()
	appCfg, err := config.ParseApp([]byte(testConfig), dir)
	require.NoError(t, err)
	return appCfg
}

func TestHousekeepingTasks(t *testing.T) {
	dir := t.TempDir()
	appCfg := parseTestConfig(t, dir)
	appCfg.Cleanup.KeepRuns = 1
	a := newTestApp(t, appCfg)
	ctx := context.Background()

	old := time.Now().Add(-72 * time.Hour)
	require.NoError(t, os.MkdirAll(appCfg.Drive.StagingDir, 0o755))
	partial := filepath.Join(appCfg.Drive.StagingDir, "clip.mp4.part")
	require.NoError(t, os.WriteFile(partial, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(partial, old, old))
	require.NoError(t, os.MkdirAll(appCfg.Cleanup.LogDirectory, 0o755))
	staleLog := filepath.Join(appCfg.Cleanup.LogDirectory, "upload-old.log")
	require.NoError(t, os.WriteFile(staleLog, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(staleLog, old, old))
	for i, id := range []string{"r1", "r2"} {
		created := time.Date(2026, 1, 10, i, 0, 0, 0, time.UTC)
		require.NoError(t, a.store.InsertRun(ctx, &core.Run{ID: id, Status: core.RunStatusDone, StartedAt: created, CreatedAt: created}))
	}

	tasks := a.housekeepingTasks()
	require.Len(t, tasks, 3)
	for _, task := range tasks {
		require.NoError(t, task.Run(ctx), task.Name)
	}

	assert.NoFileExists(t, partial)
	assert.NoFileExists(t, staleLog)
	runs, err := a.store.ListRuns(ctx, store.RunFilter{Limit: -1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r2", runs[0].ID)
}

func TestReportAbandoned(t *testing.T) {
	a := newTestApp(t, parseTestConfig(t, t.TempDir()))
	ctx := context.Background()
	started := time.Now().Add(-time.Hour).UTC()
	require.NoError(t, a.store.InsertRun(ctx, &core.Run{ID: "stuck", RowIndex: 7, Status: core.RunStatusProcessing, StartedAt: started}))

	a.reportAbandoned(ctx)

	run, err := a.store.GetRun(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusAbandoned, run.Status)
}

func TestNotifierPrefersEnvironmentBarkURL(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()
	a := newTestApp(t, parseTestConfig(t, t.TempDir()))
	a.appCfg.Notify.BarkURL = "http://127.0.0.1:1/unreachable"

	a.cfg.Notification.Bark = config.BarkConfig{URL: srv.URL + "/key", Enabled: true}
	require.NoError(t, a.notifier().Send(context.Background(), "Upload done", "row 2"))
	assert.Equal(t, int32(1), hits.Load())

	a.cfg.Notification.Bark.Enabled = false
	require.NoError(t, a.notifier().Send(context.Background(), "Upload done", "row 3"))
	assert.Equal(t, int32(1), hits.Load())
}

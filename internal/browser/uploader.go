// Package browser uploads videos through YouTube Studio in headless Chrome.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"ytuploader/internal/core"
)

const (
	studioURL = "https://studio.youtube.com"

	selCreate         = `ytcp-icon-button#create-icon`
	selUploadMenuItem = `tp-yt-paper-item[role='menuitem']`
	selFileInput      = `input[type='file']`
	selTitle          = `ytcp-social-suggestion-input[textarea] #textarea`
	selDescription    = `ytcp-mention-textbox[textarea] #textarea`
	selMoreOptions    = `ytcp-button#toggle-button`
	selTags           = `ytcp-free-text-chip-bar[chips] #chips-input`
	selAudience       = `[name='VIDEO_MADE_FOR_KIDS']`
	selAltered        = `ytcp-form-checkbox[name='HAS_ALTERED_CONTENT'] tp-yt-paper-checkbox`
	selNext           = `#next-button`
	selDone           = `ytcp-button#done-button`
	selVideoLink      = `a.ytcp-video-info`

	wizardSteps     = 3
	optionalTimeout = 20 * time.Second
)

var errNoVideoURL = errors.New("failed to determine uploaded video URL")

// Options configures Chrome.
type Options struct {
	ChromePath string
	Headless   bool
	UserAgent  string
	// Timeout bounds one complete upload attempt.
	Timeout time.Duration
}

// Uploader implements core.Uploader with chromedp.
type Uploader struct {
	opts     Options
	sessions *SessionStore
	logger   *slog.Logger
}

// New creates a browser uploader.
func New(opts Options, sessions *SessionStore, logger *slog.Logger) *Uploader {
	return &Uploader{opts: opts, sessions: sessions, logger: logger}
}

var _ core.Uploader = (*Uploader)(nil)

// Upload drives the Studio upload wizard once and returns the video URL.
// Each call starts a fresh browser so a failed attempt leaves no state.
func (u *Uploader) Upload(ctx context.Context, job core.UploadJob) (string, error) {
	videoPath, err := filepath.Abs(job.VideoPath)
	if err != nil {
		return "", fmt.Errorf("resolve video path: %w", err)
	}
	cookies, err := u.sessions.Load(job.Account)
	if err != nil {
		return "", err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, u.allocatorOptions()...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			u.logger.Debug("chrome: "+fmt.Sprintf(format, args...), "account", job.Account.Name)
		}),
	)
	defer cancelBrowser()
	runCtx := browserCtx
	if u.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(browserCtx, u.opts.Timeout)
		defer cancel()
	}

	u.logger.Info("opening youtube studio", "account", job.Account.Name)
	var href string
	var ok bool
	tasks := chromedp.Tasks{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if len(cookies) == 0 {
				return nil
			}
			return network.SetCookies(cookies).Do(ctx)
		}),
		chromedp.Navigate(studioURL),
		chromedp.WaitVisible(selCreate, chromedp.ByQuery),
		chromedp.Click(selCreate, chromedp.ByQuery),
		chromedp.Click(selUploadMenuItem, chromedp.ByQuery),
		chromedp.SetUploadFiles(selFileInput, []string{videoPath}, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			u.logger.Info("uploading video file", "path", videoPath)
			return nil
		}),
		chromedp.WaitVisible(selTitle, chromedp.ByQuery),
		replaceText(selTitle, job.Title),
		replaceText(selDescription, DescriptionText(job.Description, job.Hashtags)),
		u.setTags(job.Tags),
		u.setAudience(job.MadeForKids),
		u.setAlteredContent(job.AlteredContent),
		u.nextSteps(),
		chromedp.Click(visibilitySelector(job.Visibility), chromedp.ByQuery),
		chromedp.Click(selDone, chromedp.ByQuery),
		chromedp.WaitVisible(selVideoLink, chromedp.ByQuery),
		chromedp.AttributeValue(selVideoLink, "href", &href, &ok, chromedp.ByQuery),
	}
	if err := chromedp.Run(runCtx, tasks); err != nil {
		return "", fmt.Errorf("studio upload: %w", err)
	}
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return "", errNoVideoURL
	}
	u.logger.Info("upload finished", "account", job.Account.Name, "url", href)
	u.refreshSession(runCtx, job.Account)
	return href, nil
}

func (u *Uploader) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", u.opts.Headless),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("lang", "en"),
		chromedp.WindowSize(1280, 1024),
	)
	if u.opts.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(u.opts.ChromePath))
	}
	if u.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(u.opts.UserAgent))
	}
	return opts
}

// refreshSession stores the cookies Chrome ended with so sessions stay
// valid between uploads. Failures only cost a later re-login.
func (u *Uploader) refreshSession(ctx context.Context, account core.Account) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithUrls([]string{studioURL, "https://www.youtube.com"}).Do(ctx)
		return err
	}))
	if err != nil {
		u.logger.Warn("could not read session cookies", "account", account.Name, "err", err)
		return
	}
	if err := u.sessions.Save(account, cookies); err != nil {
		u.logger.Warn("could not save session cookies", "account", account.Name, "err", err)
	}
}

func (u *Uploader) setTags(tags string) chromedp.Action {
	if strings.TrimSpace(tags) == "" {
		return chromedp.Tasks{}
	}
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := withTimeout(ctx, chromedp.Click(selMoreOptions, chromedp.ByQuery)); err != nil {
			u.logger.Debug("could not expand more options", "err", err)
		}
		if err := withTimeout(ctx, chromedp.SendKeys(selTags, tags, chromedp.ByQuery)); err != nil {
			u.logger.Warn("failed to set tags", "err", err)
		}
		return nil
	})
}

func (u *Uploader) setAudience(madeForKids bool) chromedp.Action {
	sel := selAudience + " " + audienceSelector(madeForKids)
	return chromedp.Tasks{
		chromedp.WaitReady(selAudience, chromedp.ByQuery),
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery),
	}
}

func (u *Uploader) setAlteredContent(value *string) chromedp.Action {
	if value == nil {
		return chromedp.Tasks{}
	}
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var class string
		var ok bool
		if err := withTimeout(ctx, chromedp.AttributeValue(selAltered, "class", &class, &ok, chromedp.ByQuery)); err != nil {
			u.logger.Warn("could not find altered content section", "err", err)
			return nil
		}
		checked := hasClass(class, "checked")
		if !alteredContentNeedsClick(*value, checked) {
			return nil
		}
		if err := withTimeout(ctx, chromedp.Click(selAltered, chromedp.ByQuery)); err != nil {
			u.logger.Warn("could not toggle altered content", "err", err)
		}
		return nil
	})
}

func (u *Uploader) nextSteps() chromedp.Action {
	var tasks chromedp.Tasks
	for i := 0; i < wizardSteps; i++ {
		tasks = append(tasks,
			chromedp.Click(selNext, chromedp.ByQuery),
			chromedp.Sleep(time.Second),
		)
	}
	return tasks
}

// replaceText clears a contenteditable field and types text into it.
func replaceText(sel, text string) chromedp.Action {
	return chromedp.Tasks{
		chromedp.Evaluate(fmt.Sprintf(`document.querySelector(%q).innerText = ""`, sel), nil),
		chromedp.SendKeys(sel, text, chromedp.ByQuery),
	}
}

func withTimeout(ctx context.Context, action chromedp.Action) error {
	tctx, cancel := context.WithTimeout(ctx, optionalTimeout)
	defer cancel()
	return action.Do(tctx)
}

// DescriptionText appends hashtags to the description on a new line.
func DescriptionText(description, hashtags string) string {
	switch {
	case hashtags == "":
		return description
	case description == "":
		return hashtags
	default:
		return description + "\n" + hashtags
	}
}

func audienceSelector(madeForKids bool) string {
	if madeForKids {
		return `tp-yt-paper-radio-button[name='VIDEO_MADE_FOR_KIDS_MADE_FOR_KIDS']`
	}
	return `tp-yt-paper-radio-button[name='VIDEO_MADE_FOR_KIDS_NOT_MADE_FOR_KIDS']`
}

func visibilitySelector(visibility string) string {
	choice := "PUBLIC"
	switch strings.ToLower(strings.TrimSpace(visibility)) {
	case "private":
		choice = "PRIVATE"
	case "unlisted":
		choice = "UNLISTED"
	}
	return fmt.Sprintf(`tp-yt-paper-radio-button[name='%s']`, choice)
}

// alteredContentNeedsClick reports whether the checkbox must be toggled to
// match the row's answer. Unrecognized answers leave it alone.
func alteredContentNeedsClick(value string, checked bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true":
		return !checked
	case "no", "false":
		return checked
	default:
		return false
	}
}

func hasClass(classAttr, name string) bool {
	for _, c := range strings.Fields(classAttr) {
		if c == name {
			return true
		}
	}
	return false
}

// Package drive downloads remote videos into the staging directory.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"ytuploader/internal/core"
)

// DefaultDriveEndpoint serves public Drive file downloads.
const DefaultDriveEndpoint = "https://drive.google.com/uc?export=download"

const chunkSize = 1 << 20

var (
	// ErrBadReference is returned when a BlobRef sets both or neither field.
	ErrBadReference = errors.New("exactly one of file id or url must be set")
	// ErrHTMLResponse is returned when Drive answers with a page instead of
	// the file, usually because the file is not shared.
	ErrHTMLResponse = errors.New("server returned an HTML page instead of the file")
)

// Fetcher implements core.BlobFetcher for HTTP(S) links, Google Drive file
// ids and s3:// URLs.
type Fetcher struct {
	client        *http.Client
	driveEndpoint string
	limiter       *rate.Limiter
	s3            s3Getter
	logger        *slog.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client. It should keep a cookie jar for
// Drive confirmation tokens.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithRateLimit caps download throughput. Zero disables the cap.
func WithRateLimit(bytesPerSecond int64) Option {
	return func(f *Fetcher) {
		if bytesPerSecond <= 0 {
			f.limiter = nil
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), chunkSize)
	}
}

// WithS3 enables s3:// references.
func WithS3(client s3Getter) Option {
	return func(f *Fetcher) { f.s3 = client }
}

// WithDriveEndpoint overrides the Drive download endpoint.
func WithDriveEndpoint(endpoint string) Option {
	return func(f *Fetcher) { f.driveEndpoint = endpoint }
}

// New builds a fetcher. timeout bounds the wait for response headers; the
// body itself may take longer.
func New(timeout time.Duration, logger *slog.Logger, opts ...Option) *Fetcher {
	jar, _ := cookiejar.New(nil)
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	f := &Fetcher{
		client:        &http.Client{Transport: transport, Jar: jar},
		driveEndpoint: DefaultDriveEndpoint,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var _ core.BlobFetcher = (*Fetcher)(nil)

// Fetch downloads ref to destination and returns the written path.
func (f *Fetcher) Fetch(ctx context.Context, ref core.BlobRef, destination string) (string, error) {
	if (ref.URL == "") == (ref.FileID == "") {
		return "", ErrBadReference
	}
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	var err error
	switch {
	case strings.HasPrefix(ref.URL, "s3://"):
		err = f.fetchS3(ctx, ref.URL, destination)
	case ref.URL != "":
		f.logger.Info("downloading video from direct link", "url", ref.URL)
		err = f.fetchURL(ctx, ref.URL, destination)
	default:
		f.logger.Info("downloading video from drive", "file_id", ref.FileID)
		err = f.fetchDriveFile(ctx, ref.FileID, destination)
	}
	if err != nil {
		return "", err
	}
	return destination, nil
}

func (f *Fetcher) fetchURL(ctx context.Context, rawURL, destination string) error {
	resp, err := f.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return f.save(ctx, resp.Body, destination)
}

func (f *Fetcher) fetchDriveFile(ctx context.Context, fileID, destination string) error {
	u, err := url.Parse(f.driveEndpoint)
	if err != nil {
		return fmt.Errorf("parse drive endpoint: %w", err)
	}
	q := u.Query()
	q.Set("id", fileID)
	u.RawQuery = q.Encode()

	resp, err := f.get(ctx, u.String())
	if err != nil {
		return err
	}
	if token := confirmToken(resp.Cookies()); token != "" {
		resp.Body.Close()
		q.Set("confirm", token)
		u.RawQuery = q.Encode()
		if resp, err = f.get(ctx, u.String()); err != nil {
			return err
		}
	} else if isHTML(resp) {
		next, err := confirmFormURL(resp.Body, u)
		resp.Body.Close()
		if err != nil {
			return err
		}
		if resp, err = f.get(ctx, next); err != nil {
			return err
		}
	}
	defer resp.Body.Close()
	if isHTML(resp) {
		return fmt.Errorf("drive file %s: %w", fileID, ErrHTMLResponse)
	}
	return f.save(ctx, resp.Body, destination)
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("download %s: unexpected status %s", redact(req.URL), resp.Status)
	}
	return resp, nil
}

// confirmToken returns the value of Drive's download_warning cookie.
func confirmToken(cookies []*http.Cookie) string {
	for _, c := range cookies {
		if strings.HasPrefix(c.Name, "download_warning") {
			return c.Value
		}
	}
	return ""
}

// confirmFormURL extracts the download link from Drive's virus scan warning
// page, which carries the confirmation as hidden form fields.
func confirmFormURL(body io.Reader, base *url.URL) (string, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("parse drive page: %w", err)
	}
	form := doc.Find("form#download-form").First()
	if form.Length() == 0 {
		return "", ErrHTMLResponse
	}
	action, _ := form.Attr("action")
	target, err := base.Parse(action)
	if err != nil {
		return "", fmt.Errorf("parse form action: %w", err)
	}
	q := target.Query()
	form.Find("input[type=hidden]").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		value, _ := s.Attr("value")
		q.Set(name, value)
	})
	target.RawQuery = q.Encode()
	return target.String(), nil
}

func isHTML(resp *http.Response) bool {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && mt == "text/html"
}

// save streams body into destination through a temporary file so a partial
// download never looks like a finished video.
func (f *Fetcher) save(ctx context.Context, body io.Reader, destination string) error {
	tmp := destination + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	started := time.Now()
	written, copyErr := f.copy(ctx, out, body)
	closeErr := out.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", destination, err)
	}
	if err := os.Rename(tmp, destination); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("move download into place: %w", err)
	}
	f.logger.Info("download complete", "path", destination, "size", humanize.Bytes(uint64(written)), "took", time.Since(started).Round(time.Millisecond))
	return nil
}

func (f *Fetcher) copy(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, chunkSize)
	var total int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if f.limiter != nil {
				if err := f.limiter.WaitN(ctx, n); err != nil {
					return total, err
				}
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return total, err
			}
			total += int64(n)
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, readErr
		}
	}
}

func redact(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	return c.String()
}

/**
 * @description
 * Downloader for the official K-file (results) and B-file (programs) archives.
 * Fetches the daily .lzh, optionally mirrors it to S3, extracts the text file
 * and returns its local path. Existing extractions are reused.
 *
 * @dependencies
 * - github.com/go-resty/resty/v2
 * - backend/internal/lzh
 */

package archive

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kyotei-project/backend/internal/config"
	"github.com/kyotei-project/backend/internal/errs"
	"github.com/kyotei-project/backend/internal/logger"
	"github.com/kyotei-project/backend/internal/lzh"
	"github.com/kyotei-project/backend/internal/models"
)

// Kind selects the archive family.
type Kind string

const (
	KindResults  Kind = "K"
	KindPrograms Kind = "B"
)

// Mirror receives a copy of every downloaded archive.
type Mirror interface {
	Put(ctx context.Context, key string, body []byte) error
}

// Downloader fetches and extracts daily archives.
type Downloader struct {
	client  *resty.Client
	baseURL string
	dataDir string
	mirror  Mirror
}

// NewDownloader builds a downloader. mirror may be nil.
func NewDownloader(cfg *config.Config, mirror Mirror) *Downloader {
	client := resty.New().
		SetTimeout(60*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(2*time.Second).
		SetRetryMaxWaitTime(10*time.Second).
		SetHeader("User-Agent", cfg.Scraper.UserAgent)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= http.StatusInternalServerError
	})

	return &Downloader{
		client:  client,
		baseURL: cfg.Import.ArchiveBaseURL,
		dataDir: cfg.Import.DataDir,
		mirror:  mirror,
	}
}

// URL returns the archive location, e.g. <base>/K/202507/k250705.lzh.
func (d *Downloader) URL(kind Kind, date models.Date) string {
	t := date.Time()
	return fmt.Sprintf("%s/%s/%s/%s%s.lzh",
		d.baseURL, kind, t.Format("200601"), strings.ToLower(string(kind)), t.Format("060102"))
}

// TextName is the name of the extracted file, e.g. K250705.TXT.
func TextName(kind Kind, date models.Date) string {
	return fmt.Sprintf("%s%s.TXT", kind, date.Time().Format("060102"))
}

// Fetch downloads and extracts the archive for date, returning the text path.
// A missing archive yields errs.ErrUpstreamAbsent; a text entry named for another
// day yields errs.ErrParseMalformed.
func (d *Downloader) Fetch(ctx context.Context, kind Kind, date models.Date) (string, error) {
	dir := filepath.Join(d.dataDir, string(kind), date.Time().Format("200601"))
	textPath := filepath.Join(dir, TextName(kind, date))
	if info, err := os.Stat(textPath); err == nil && info.Size() > 0 {
		return textPath, nil
	}

	url := d.URL(kind, date)
	resp, err := d.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("%w: GET %s: %v", errs.ErrUpstreamUnavailable, url, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", errs.ErrUpstreamAbsent, url)
	case resp.StatusCode() < 200 || resp.StatusCode() >= 300:
		return "", fmt.Errorf("%w: GET %s returned %d", errs.ErrUpstreamUnavailable, url, resp.StatusCode())
	}
	body := resp.Body()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	archiveName := filepath.Base(url)
	if err := os.WriteFile(filepath.Join(dir, archiveName), body, 0o644); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}

	if d.mirror != nil {
		key := fmt.Sprintf("%s/%s/%s", kind, date.Time().Format("200601"), archiveName)
		if err := d.mirror.Put(ctx, key, body); err != nil {
			logger.Warn("archive mirror upload failed for %s: %v", key, err)
		}
	}

	files, err := lzh.Decode(body)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", archiveName, err)
	}
	want := TextName(kind, date)
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f.Name), ".txt") {
			if name := filepath.Base(f.Name); !strings.EqualFold(name, want) {
				return "", fmt.Errorf("%w: %s holds %s, want %s", errs.ErrParseMalformed, archiveName, name, want)
			}
			tmp := textPath + ".tmp"
			if err := os.WriteFile(tmp, f.Data, 0o644); err != nil {
				return "", fmt.Errorf("write extracted file: %w", err)
			}
			if err := os.Rename(tmp, textPath); err != nil {
				return "", fmt.Errorf("rename extracted file: %w", err)
			}
			return textPath, nil
		}
	}
	return "", fmt.Errorf("%w: %s holds no text file", errs.ErrParseMalformed, archiveName)
}

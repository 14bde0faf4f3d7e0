package archive

import (
	"context"
	"encoding/binary"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/kyotei-project/backend/internal/config"
	"github.com/kyotei-project/backend/internal/errs"
)

func storedArchive(name string, body []byte) []byte {
	var crc uint16
	for _, b := range body {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	total := 24 + len(name)
	h := make([]byte, total)
	h[0] = byte(total - 2)
	copy(h[2:7], "-lh0-")
	binary.LittleEndian.PutUint32(h[7:], uint32(len(body)))
	binary.LittleEndian.PutUint32(h[11:], uint32(len(body)))
	h[21] = byte(len(name))
	copy(h[22:], name)
	binary.LittleEndian.PutUint16(h[22+len(name):], crc)
	var sum byte
	for _, c := range h[2:] {
		sum += c
	}
	h[1] = sum
	out := append(h, body...)
	return append(out, 0)
}

type recordingMirror struct{ keys []string }

func (m *recordingMirror) Put(_ context.Context, key string, _ []byte) error {
	m.keys = append(m.keys, key)
	return nil
}

func newTestDownloader(t *testing.T, baseURL string, mirror Mirror) *Downloader {
	t.Helper()
	cfg := &config.Config{
		Import:  config.ImportConfig{ArchiveBaseURL: baseURL, DataDir: t.TempDir()},
		Scraper: config.ScraperConfig{UserAgent: "test"},
	}
	d := NewDownloader(cfg, mirror)
	d.client.SetRetryCount(0)
	return d
}

func TestFetchExtractsAndCaches(t *testing.T) {
	var hits int32
	body := []byte("STARTK\r\nFINALK\r\n")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/K/202507/k250705.lzh" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(storedArchive("K250705.TXT", body))
	}))
	defer srv.Close()

	mirror := &recordingMirror{}
	d := newTestDownloader(t, srv.URL, mirror)

	path, err := d.Fetch(context.Background(), KindResults, "2025-07-05")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != string(body) {
		t.Fatalf("unexpected extraction %q, %v", got, err)
	}

	if _, err := d.Fetch(context.Background(), KindResults, "2025-07-05"); err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected cached extraction to skip download, got %d hits", hits)
	}
	if len(mirror.keys) != 1 || mirror.keys[0] != "K/202507/k250705.lzh" {
		t.Fatalf("unexpected mirror keys %v", mirror.keys)
	}
}

func TestFetchRejectsEntryForAnotherDay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(storedArchive("k250704.txt", []byte("STARTK\r\nFINALK\r\n")))
	}))
	defer srv.Close()

	d := newTestDownloader(t, srv.URL, nil)
	_, err := d.Fetch(context.Background(), KindResults, "2025-07-05")
	if !errors.Is(err, errs.ErrParseMalformed) {
		t.Fatalf("expected malformed archive, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(d.dataDir, "K", "202507", "K250705.TXT")); !os.IsNotExist(statErr) {
		t.Fatalf("mismatched entry must not be extracted under the requested date")
	}
}

func TestFetchMissingArchive(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := newTestDownloader(t, srv.URL, nil)
	_, err := d.Fetch(context.Background(), KindPrograms, "2025-07-05")
	if !errors.Is(err, errs.ErrUpstreamAbsent) {
		t.Fatalf("expected upstream absent, got %v", err)
	}
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := newTestDownloader(t, srv.URL, nil)
	_, err := d.Fetch(context.Background(), KindPrograms, "2025-07-05")
	if !errors.Is(err, errs.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}

func TestURLLayout(t *testing.T) {
	d := &Downloader{baseURL: "https://example.test/od2"}
	if got := d.URL(KindPrograms, "2024-12-31"); got != "https://example.test/od2/B/202412/b241231.lzh" {
		t.Fatalf("unexpected url %s", got)
	}
}

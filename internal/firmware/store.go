package firmware

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rackops/imdcfg/internal/logging"
)

const (
	// DefaultDownloadTimeout bounds a whole firmware download.
	DefaultDownloadTimeout = 120 * time.Second

	// userAgent is sent because the vendor site refuses unknown clients.
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/51.0.2704.103 Safari/537.36"
)

// ErrNotFound is returned by Locate when neither the archive nor the
// extracted image is on disk.
var ErrNotFound = errors.New("firmware file not found")

// ProgressFunc returns the writer download progress is copied to once the
// size is known (0 when the server does not say). A returned writer with a
// Finish method has it called when the download ends.
type ProgressFunc func(total int64) io.Writer

// Store is the local firmware directory. Archives are kept as downloaded
// and extracted next to themselves:
//
//	<Dir>/<filename>                          downloaded archive
//	<Dir>/<bare_filename>/<firmware_filename> extracted image
type Store struct {
	Dir        string
	HTTPClient *http.Client
	Timeout    time.Duration
	Progress   ProgressFunc
}

// NewStore returns a store rooted at dir.
func NewStore(dir string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	return &Store{
		Dir:        dir,
		HTTPClient: &http.Client{},
		Timeout:    timeout,
	}
}

// ArchivePath is where the downloaded archive for info is kept.
func (s *Store) ArchivePath(info URLInfo) string {
	return filepath.Join(s.Dir, info.Filename)
}

// ImagePath is where the extracted firmware image for info is expected.
func (s *Store) ImagePath(info URLInfo) string {
	return filepath.Join(s.Dir, info.BareFilename, info.FirmwareFilename)
}

// Status describes what is already on disk for a firmware URL.
type Status struct {
	ArchivePath string
	ImagePath   string
	HaveArchive bool
	HaveImage   bool
}

// Locate reports which of the archive and the image exist.
func (s *Store) Locate(info URLInfo) Status {
	st := Status{ArchivePath: s.ArchivePath(info), ImagePath: s.ImagePath(info)}
	st.HaveArchive = isFile(st.ArchivePath)
	st.HaveImage = isFile(st.ImagePath)
	return st
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// Download fetches info.URL into the archive path. The file only appears
// once it is complete.
func (s *Store) Download(ctx context.Context, info URLInfo) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download firmware: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download firmware: HTTP %d", resp.StatusCode)
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create firmware directory: %w", err)
	}
	dest := s.ArchivePath(info)
	tmp, err := os.CreateTemp(s.Dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create download file: %w", err)
	}
	tmpPath := tmp.Name()

	var body io.Reader = resp.Body
	var progress io.Writer
	if s.Progress != nil {
		progress = s.Progress(resp.ContentLength)
		body = io.TeeReader(resp.Body, progress)
	}

	start := time.Now()
	n, copyErr := io.Copy(tmp, body)
	if f, ok := progress.(interface{ Finish() }); ok {
		f.Finish()
	}
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		if copyErr == nil {
			copyErr = closeErr
		}
		return "", fmt.Errorf("failed to download firmware: %w", copyErr)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to save firmware archive: %w", err)
	}

	logging.Info("firmware downloaded",
		zap.String("url", info.URL),
		zap.String("path", dest),
		zap.Int64("bytes", n),
		zap.Duration("elapsed", time.Since(start)),
	)
	return dest, nil
}

// Extract unpacks the archive for info into the store and returns the path
// of the firmware image. When the archive does not use the expected layout
// the image is searched for by name.
func (s *Store) Extract(info URLInfo) (string, error) {
	if err := Unzip(s.ArchivePath(info), s.Dir); err != nil {
		return "", err
	}

	want := s.ImagePath(info)
	if isFile(want) {
		return want, nil
	}

	var found string
	walkErr := filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == info.FirmwareFilename {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return "", fmt.Errorf("failed to search for firmware image: %w", walkErr)
	}
	if found == "" {
		return "", fmt.Errorf("%w: %s is not in %s", ErrNotFound, info.FirmwareFilename, info.Filename)
	}
	return found, nil
}

// Unzip extracts the zip archive at src into dir. Entries that would land
// outside dir are rejected.
func Unzip(src, dir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open firmware archive: %w", err)
	}
	defer func() { _ = r.Close() }()

	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	for _, f := range r.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("firmware archive entry %q escapes the target directory", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

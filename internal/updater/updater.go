// Package updater replaces the installed autoplay files with the latest
// published release. A release is a zip archive attached to a GitHub
// release; the installed version is kept in a small JSON file next to the
// binaries.
package updater

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	version "github.com/hashicorp/go-version"
	"github.com/spf13/afero"

	"github.com/jz315/autoplay/internal/logger"
)

// OldSuffix marks files displaced by an update. They are removed by Cleanup
// once the new binaries are running.
const OldSuffix = ".autoplay-old"

const (
	maxReleaseBytes = 1 << 20
	maxArchiveBytes = 512 << 20
)

// ErrNoAssets is returned when the latest release has nothing to download
var ErrNoAssets = errors.New("release has no assets")

// Release is the latest published release
type Release struct {
	Tag       string
	AssetName string
	AssetURL  string
}

type releaseDoc struct {
	TagName string         `json:"tag_name"`
	Assets  []releaseAsset `json:"assets"`
}

type releaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

type versionDoc struct {
	Version string `json:"version"`
}

// Config configures an Updater
type Config struct {
	// ReleaseURL returns the latest release document
	ReleaseURL string
	// InstallDir receives the extracted archive
	InstallDir string
	// VersionFile records the installed version; relative paths are taken
	// from InstallDir
	VersionFile string
	// Fallback is the installed version when VersionFile does not exist yet
	Fallback string
	// Timeout bounds the release lookup; the download has no deadline
	Timeout time.Duration

	HTTPClient *http.Client
	Fs         afero.Fs
	Logger     logger.Logger
}

// Updater checks for, downloads and applies releases
type Updater struct {
	cfg    Config
	fs     afero.Fs
	client *http.Client
	logger logger.Logger
}

// New creates an updater. Fs defaults to the OS filesystem.
func New(cfg Config) (*Updater, error) {
	if cfg.ReleaseURL == "" {
		return nil, fmt.Errorf("release URL is required")
	}
	if cfg.InstallDir == "" {
		return nil, fmt.Errorf("install directory is required")
	}
	if cfg.VersionFile == "" {
		cfg.VersionFile = "version.json"
	}
	if !filepath.IsAbs(cfg.VersionFile) {
		cfg.VersionFile = filepath.Join(cfg.InstallDir, cfg.VersionFile)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	return &Updater{
		cfg:    cfg,
		fs:     cfg.Fs,
		client: cfg.HTTPClient,
		logger: cfg.Logger.WithComponent(logger.ComponentUpdater),
	}, nil
}

// Latest fetches the latest release document
func (u *Updater) Latest(ctx context.Context) (Release, error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.cfg.ReleaseURL, nil)
	if err != nil {
		return Release{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "autoplay-updater")

	resp, err := u.client.Do(req)
	if err != nil {
		return Release{}, fmt.Errorf("release lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Release{}, fmt.Errorf("release lookup: unexpected status %s", resp.Status)
	}

	var doc releaseDoc
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReleaseBytes)).Decode(&doc); err != nil {
		return Release{}, fmt.Errorf("failed to decode release: %w", err)
	}
	if doc.TagName == "" {
		return Release{}, fmt.Errorf("release has no tag")
	}
	if len(doc.Assets) == 0 {
		return Release{}, ErrNoAssets
	}

	asset := doc.Assets[pickAsset(doc)]
	u.logger.Info("Fetched latest release", "tag", doc.TagName, "asset", asset.Name)
	return Release{Tag: doc.TagName, AssetName: asset.Name, AssetURL: asset.BrowserDownloadURL}, nil
}

// pickAsset returns the index of the asset built for this platform, else the
// first zip, else 0
func pickAsset(doc releaseDoc) int {
	firstZip := -1
	for i, a := range doc.Assets {
		name := strings.ToLower(a.Name)
		if strings.Contains(name, runtime.GOOS) && strings.Contains(name, runtime.GOARCH) {
			return i
		}
		if firstZip < 0 && strings.HasSuffix(name, ".zip") {
			firstZip = i
		}
	}
	if firstZip >= 0 {
		return firstZip
	}
	return 0
}

// Installed returns the recorded version, or the fallback when none is recorded
func (u *Updater) Installed() (string, error) {
	data, err := afero.ReadFile(u.fs, u.cfg.VersionFile)
	if errors.Is(err, fs.ErrNotExist) {
		return u.cfg.Fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read version file: %w", err)
	}

	var doc versionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("failed to decode version file %s: %w", u.cfg.VersionFile, err)
	}
	return doc.Version, nil
}

// Record writes v to the version file
func (u *Updater) Record(v string) error {
	data, err := json.Marshal(versionDoc{Version: v})
	if err != nil {
		return err
	}
	if err := u.fs.MkdirAll(filepath.Dir(u.cfg.VersionFile), 0o755); err != nil {
		return err
	}
	if err := afero.WriteFile(u.fs, u.cfg.VersionFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write version file: %w", err)
	}
	return nil
}

// Newer reports whether latest is a higher version than installed. An
// unparsable installed version (such as "dev") is always outdated.
func Newer(latest, installed string) (bool, error) {
	lv, err := version.NewVersion(latest)
	if err != nil {
		return false, fmt.Errorf("invalid release version %q: %w", latest, err)
	}
	iv, err := version.NewVersion(installed)
	if err != nil {
		return true, nil
	}
	return lv.GreaterThan(iv), nil
}

// CheckResult describes the outcome of comparing versions
type CheckResult struct {
	Installed string
	Latest    Release
	Available bool
}

// Check looks up the latest release and compares it to the installed version
func (u *Updater) Check(ctx context.Context) (CheckResult, error) {
	installed, err := u.Installed()
	if err != nil {
		return CheckResult{}, err
	}
	rel, err := u.Latest(ctx)
	if err != nil {
		return CheckResult{}, err
	}
	newer, err := Newer(rel.Tag, installed)
	if err != nil {
		return CheckResult{}, err
	}
	return CheckResult{Installed: installed, Latest: rel, Available: newer}, nil
}

// Download stores the asset at url in a temporary file and returns its path.
// The caller removes the file.
func (u *Updater) Download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", "autoplay-updater")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("download: unexpected status %s", resp.Status)
	}

	f, err := afero.TempFile(u.fs, "", "autoplay-update-*.zip")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(resp.Body, maxArchiveBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > maxArchiveBytes {
		err = fmt.Errorf("archive larger than %d bytes", maxArchiveBytes)
	}
	if err != nil {
		_ = u.fs.Remove(f.Name())
		return "", fmt.Errorf("download: %w", err)
	}

	u.logger.Info("Downloaded release", "url", url, "bytes", n)
	return f.Name(), nil
}

// Apply extracts the zip archive at path into the install directory and
// returns the files it wrote. An existing file is renamed aside before its
// replacement is written, so a running binary can be replaced.
func (u *Updater) Apply(path string) ([]string, error) {
	f, err := u.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("invalid archive: %w", err)
	}

	// Reject the whole archive before touching anything
	for _, zf := range zr.File {
		if !filepath.IsLocal(filepath.FromSlash(zf.Name)) {
			return nil, fmt.Errorf("archive entry %q escapes the install directory", zf.Name)
		}
	}

	var written []string
	for _, zf := range zr.File {
		target := filepath.Join(u.cfg.InstallDir, filepath.FromSlash(zf.Name))
		if zf.FileInfo().IsDir() {
			if err := u.fs.MkdirAll(target, 0o755); err != nil {
				return written, err
			}
			continue
		}
		if err := u.extract(zf, target); err != nil {
			return written, fmt.Errorf("failed to extract %s: %w", zf.Name, err)
		}
		written = append(written, target)
	}

	u.logger.Info("Applied release", "dir", u.cfg.InstallDir, "files", len(written))
	return written, nil
}

func (u *Updater) extract(zf *zip.File, target string) error {
	if err := u.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if _, err := u.fs.Stat(target); err == nil {
		old := target + OldSuffix
		_ = u.fs.Remove(old)
		if err := u.fs.Rename(target, old); err != nil {
			return fmt.Errorf("failed to move %s aside: %w", target, err)
		}
	}

	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := zf.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := u.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, io.LimitReader(rc, maxArchiveBytes)); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Cleanup removes files displaced by an earlier update. Files still in use
// (a running binary on Windows) are left for the next run.
func (u *Updater) Cleanup() (int, error) {
	removed := 0
	err := afero.Walk(u.fs, u.cfg.InstallDir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, OldSuffix) {
			return nil
		}
		if err := u.fs.Remove(path); err != nil {
			u.logger.Debug("Leaving displaced file", "path", path, "error", err)
			return nil
		}
		removed++
		return nil
	})
	return removed, err
}

// Result is the outcome of Update
type Result struct {
	From    string
	To      string
	Files   []string
	Applied bool
}

// Update installs the latest release when it is newer than the installed one
func (u *Updater) Update(ctx context.Context) (Result, error) {
	chk, err := u.Check(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{From: chk.Installed, To: chk.Latest.Tag}
	if !chk.Available {
		u.logger.Info("No update available", "installed", chk.Installed, "latest", chk.Latest.Tag)
		return res, nil
	}

	u.logger.Info("Update available, downloading", "installed", chk.Installed, "latest", chk.Latest.Tag)
	archive, err := u.Download(ctx, chk.Latest.AssetURL)
	if err != nil {
		return res, err
	}
	defer u.fs.Remove(archive)

	files, err := u.Apply(archive)
	res.Files = files
	if err != nil {
		return res, err
	}
	if err := u.Record(chk.Latest.Tag); err != nil {
		return res, err
	}
	res.Applied = true
	return res, nil
}

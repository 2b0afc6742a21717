package training

import (
	"archive/zip"
	"errors"
	"fmt"
	"github.com/sirupsen/logrus"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const ManifestName = "data.yaml"

var (
	ErrArchiveNotFound  = errors.New("dataset archive not found")
	ErrManifestNotFound = errors.New("dataset manifest " + ManifestName + " not found")
	ErrUnsafeEntry      = errors.New("archive entry escapes extract directory")
)

// ScratchDir is the default extraction directory. Notebook environments keep
// datasets under /content.
func ScratchDir(zipPath string) string {
	if strings.Contains(zipPath, "/content") {
		return "/content/dataset_extract"
	}
	return "./dataset_extract"
}

// Unzip extracts the dataset archive into extractDir and returns the path of
// its manifest.
func Unzip(log *logrus.Logger, zipPath, extractDir string) (string, error) {
	if _, err := os.Stat(zipPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrArchiveNotFound, zipPath)
		}
		return "", fmt.Errorf("stat archive %s: %w", zipPath, err)
	}

	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", fmt.Errorf("create extract dir: %w", err)
	}

	log.Infof("Extracting dataset from %s", zipPath)
	if err := extract(zipPath, extractDir); err != nil {
		return "", err
	}

	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return "", err
	}
	contents := make([]string, 0, len(entries))
	for _, e := range entries {
		contents = append(contents, e.Name())
	}
	log.WithField("contents", contents).Infof("Dataset extracted to %s", extractDir)

	manifest, err := FindManifest(extractDir)
	if err != nil {
		return "", err
	}

	log.Infof("Manifest found at %s", manifest)
	return manifest, nil
}

// FindManifest walks root top-down: the files of a directory are checked
// before any of its subdirectories, entries in lexical order.
func FindManifest(root string) (string, error) {
	found, err := findManifest(root)
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("%w in %s", ErrManifestNotFound, root)
	}
	return found, nil
}

func findManifest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	for _, e := range entries {
		if !e.IsDir() && e.Name() == ManifestName {
			return filepath.Join(dir, e.Name()), nil
		}
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		found, err := findManifest(filepath.Join(dir, e.Name()))
		if err != nil || found != "" {
			return found, err
		}
	}
	return "", nil
}

func extract(zipPath, extractDir string) error {
	r, err := zip.OpenReader(zipPath)
	if errors.Is(err, zip.ErrInsecurePath) {
		r.Close()
		return fmt.Errorf("%w: %v", ErrUnsafeEntry, err)
	}
	if err != nil {
		return fmt.Errorf("open archive %s: %w", zipPath, err)
	}
	defer r.Close()

	root, err := filepath.Abs(extractDir)
	if err != nil {
		return err
	}

	for _, f := range r.File {
		target := filepath.Join(root, f.Name)
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("%w: %s", ErrUnsafeEntry, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

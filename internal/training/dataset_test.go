package training

import (
	"archive/zip"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func writeZip(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.zip")
	f, err := os.Create(path)
	require.NoError(t, err)

	w := zip.NewWriter(f)
	for name, content := range files {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("names: [house]\n"), 0o644))
}

func TestScratchDir(t *testing.T) {
	assert.Equal(t, "/content/dataset_extract", ScratchDir("/content/drive/MyDrive/casas.zip"))
	assert.Equal(t, "./dataset_extract", ScratchDir("datasets/casas.zip"))
}

func TestUnzip(t *testing.T) {
	zipPath := writeZip(t, map[string]string{
		"casas/data.yaml":              "names: [house]\n",
		"casas/train/images/a.jpg":     "jpeg",
		"casas/train/labels/a.txt":     "0 0.5 0.5 0.1 0.1",
	})
	extractDir := filepath.Join(t.TempDir(), "extract")

	manifest, err := Unzip(quietLogger(), zipPath, extractDir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(extractDir, "casas", "data.yaml"), manifest)
	assert.FileExists(t, filepath.Join(extractDir, "casas", "train", "images", "a.jpg"))
}

func TestUnzipMissingArchive(t *testing.T) {
	_, err := Unzip(quietLogger(), filepath.Join(t.TempDir(), "missing.zip"), t.TempDir())
	assert.ErrorIs(t, err, ErrArchiveNotFound)
}

func TestUnzipWithoutManifest(t *testing.T) {
	zipPath := writeZip(t, map[string]string{"images/a.jpg": "jpeg"})

	_, err := Unzip(quietLogger(), zipPath, filepath.Join(t.TempDir(), "extract"))
	assert.ErrorIs(t, err, ErrManifestNotFound)
}

func TestUnzipRejectsTraversal(t *testing.T) {
	zipPath := writeZip(t, map[string]string{"../escape.txt": "boom"})
	extractDir := filepath.Join(t.TempDir(), "extract")

	_, err := Unzip(quietLogger(), zipPath, extractDir)
	assert.ErrorIs(t, err, ErrUnsafeEntry)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(extractDir), "escape.txt"))
}

func TestFindManifestTopDown(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a", "deep", "data.yaml"))
	touch(t, filepath.Join(root, "b", "data.yaml"))

	found, err := FindManifest(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "deep", "data.yaml"), found)

	touch(t, filepath.Join(root, "data.yaml"))
	found, err = FindManifest(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "data.yaml"), found)
}

func TestFindManifestFilesBeforeSubdirectories(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "set", "data.yaml"))
	touch(t, filepath.Join(root, "set", "aa", "data.yaml"))

	found, err := FindManifest(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "set", "data.yaml"), found)
}

func TestFindManifestNone(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "dataset.yaml"))

	_, err := FindManifest(root)
	assert.ErrorIs(t, err, ErrManifestNotFound)
}

package backup

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestampFromKeyRoundTrips(t *testing.T) {
	now := time.Date(2026, 7, 29, 3, 0, 0, 0, time.UTC)
	key := "tao-treasury-backup-" + now.Format("2006-01-02-150405") + ".tar.gz"
	ts, err := parseTimestampFromKey(key, "tao-treasury-backup-")
	require.NoError(t, err)
	assert.True(t, ts.Equal(now))
}

func TestParseTimestampFromKeyRejectsUnrelatedKey(t *testing.T) {
	_, err := parseTimestampFromKey("not-a-backup.txt", "tao-treasury-backup-")
	assert.Error(t, err)
}

func TestChecksumFileIsStableAndPrefixed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello treasury"), 0o644))

	c1, err := checksumFile(path)
	require.NoError(t, err)
	c2, err := checksumFile(path)
	require.NoError(t, err)

	assert.Equal(t, c1, c2)
	assert.Contains(t, c1, "sha256:")
}

func TestCreateArchiveContainsAllFiles(t *testing.T) {
	dir := t.TempDir()
	fileA := filepath.Join(dir, "a.txt")
	fileB := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(fileA, []byte("aaa"), 0o644))
	require.NoError(t, os.WriteFile(fileB, []byte("bbbb"), 0o644))

	archivePath := filepath.Join(dir, "out.tar.gz")
	require.NoError(t, createArchive(archivePath, map[string]string{
		"a.txt": fileA,
		"b.txt": fileB,
	}))

	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	seen := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		seen[hdr.Name] = string(content)
	}

	assert.Equal(t, "aaa", seen["a.txt"])
	assert.Equal(t, "bbbb", seen["b.txt"])
}

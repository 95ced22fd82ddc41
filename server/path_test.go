package server

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/messages"
)

func TestSplitExt(t *testing.T) {
	tests := []struct{ in, base, ext string }{
		{"a.txt", "a", ".txt"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{"README", "README", ""},
		{".bashrc", ".bashrc", ""},
		{"..hidden", "..hidden", ""},
		{"file.", "file", "."},
	}
	for _, tt := range tests {
		base, ext := splitExt(tt.in)
		assert.Equal(t, tt.base, base, tt.in)
		assert.Equal(t, tt.ext, ext, tt.in)
	}
}

func TestCreateDestinationCollisions(t *testing.T) {
	dir := t.TempDir()

	var names []string
	for i := 0; i < 3; i++ {
		f, path, err := createDestination(dir, "a.txt")
		require.NoError(t, err)
		f.Close()
		names = append(names, filepath.Base(path))
	}
	assert.Equal(t, []string{"a.txt", "a_1.txt", "a_2.txt"}, names)

	f, path, err := createDestination(dir, ".profile")
	require.NoError(t, err)
	f.Close()
	f, path2, err := createDestination(dir, ".profile")
	require.NoError(t, err)
	f.Close()
	assert.Equal(t, ".profile", filepath.Base(path))
	assert.Equal(t, ".profile_1", filepath.Base(path2))
}

func TestCreateDestinationConcurrent(t *testing.T) {
	dir := t.TempDir()
	const workers = 16

	var wg sync.WaitGroup
	paths := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, path, err := createDestination(dir, "same.bin")
			if !assert.NoError(t, err) {
				return
			}
			f.Close()
			paths <- path
		}()
	}
	wg.Wait()
	close(paths)

	seen := map[string]bool{}
	for p := range paths {
		assert.False(t, seen[p], "path %s handed out twice", p)
		seen[p] = true
	}
	assert.Len(t, seen, workers)
}

func TestCreateDestinationRejectsEscapes(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "save")
	require.NoError(t, os.Mkdir(dir, 0o755))

	for _, name := range []string{"../evil.txt", "a/../../evil.txt", "..", ".", "/"} {
		_, _, err := createDestination(dir, name)
		var perr *messages.ProtocolError
		require.True(t, errors.As(err, &perr), "%q: expected ProtocolError, got %v", name, err)
		assert.ErrorIs(t, err, ErrPathEscapes, name)
	}

	_, err := os.Stat(filepath.Join(parent, "evil.txt"))
	assert.True(t, os.IsNotExist(err), "no file may be created outside the save directory")
}

func TestCreateDestinationMissingParent(t *testing.T) {
	_, _, err := createDestination(t.TempDir(), "no/such/dir.txt")
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr), "expected IOError, got %v", err)
	assert.Equal(t, "create", ioErr.Op)
}

func TestCreateDestinationRejectsSymlinkEscape(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "save")
	outside := filepath.Join(parent, "outside")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.Mkdir(outside, 0o755))
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link")))

	_, _, err := createDestination(dir, "link/pwned.txt")
	var perr *messages.ProtocolError
	require.True(t, errors.As(err, &perr), "expected ProtocolError, got %v", err)
	assert.ErrorIs(t, err, ErrPathEscapes)

	_, err = os.Stat(filepath.Join(outside, "pwned.txt"))
	assert.True(t, os.IsNotExist(err), "no file may be created through a link leaving the save directory")
}

func TestCreateDestinationFollowsInnerSymlink(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(dir, "sub"), filepath.Join(dir, "alias")))

	f, path, err := createDestination(dir, "alias/a.txt")
	require.NoError(t, err)
	f.Close()

	root, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sub", "a.txt"), path)
}

func TestCreateDestinationSymlinkedSaveDir(t *testing.T) {
	parent := t.TempDir()
	target := filepath.Join(parent, "real")
	require.NoError(t, os.Mkdir(target, 0o755))
	link := filepath.Join(parent, "save")
	require.NoError(t, os.Symlink(target, link))

	f, path, err := createDestination(link, "a.txt")
	require.NoError(t, err)
	f.Close()
	assert.FileExists(t, filepath.Join(target, "a.txt"))
	assert.Equal(t, "a.txt", filepath.Base(path))
}

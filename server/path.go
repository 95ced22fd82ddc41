package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gitlab.lrz.de/protocol-design-sose-2022-team-0/tcpft/messages"
)

// maxCandidates bounds the "_<n>" suffix search.
const maxCandidates = 10000

// createDestination creates a new file for name inside saveDir and returns it
// opened for writing. When name is taken, "<base>_<n><ext>" is tried with
// n = 1, 2, ... . Every candidate is created with O_EXCL so two concurrent
// transfers can never end up with the same file.
func createDestination(saveDir string, name string) (*os.File, string, error) {
	path, err := securePath(saveDir, name)
	if err != nil {
		return nil, "", err
	}

	dir := filepath.Dir(path)
	base, ext := splitExt(filepath.Base(path))

	candidate := path
	for n := 1; n <= maxCandidates; n++ {
		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", &IOError{Op: "create", Path: candidate, Err: err}
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, n, ext))
	}
	return nil, "", &IOError{Op: "create", Path: path, Err: fmt.Errorf("no free name after %d attempts", maxCandidates)}
}

// securePath joins saveDir and name and makes sure the result is a path
// strictly below saveDir. Symlinks in saveDir and in the parent directory of
// the result are resolved first, so a link inside saveDir cannot point the
// write somewhere else.
func securePath(saveDir string, name string) (string, error) {
	root, err := filepath.Abs(saveDir)
	if err != nil {
		return "", &IOError{Op: "resolve", Path: saveDir, Err: err}
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	path := filepath.Join(root, name)
	if !within(root, path, false) {
		return "", escapes(name)
	}

	// a missing parent is left to the create, which fails with an IOError
	parent, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		return path, nil
	}
	if !within(root, parent, true) {
		return "", escapes(name)
	}
	return filepath.Join(parent, filepath.Base(path)), nil
}

// within reports whether path lies below root. allowRoot accepts root itself.
func within(root, path string, allowRoot bool) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return allowRoot
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func escapes(name string) error {
	return &messages.ProtocolError{Reason: fmt.Sprintf("file name %q is not allowed", name), Err: ErrPathEscapes}
}

// splitExt splits "archive.tar.gz" into "archive.tar" and ".gz". A leading
// dot does not start an extension, ".bashrc" has none.
func splitExt(name string) (string, string) {
	ext := filepath.Ext(name)
	if ext == name || strings.Trim(name[:len(name)-len(ext)], ".") == "" {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}

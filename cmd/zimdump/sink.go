package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// sink writes extracted entries beneath a destination directory. All writes
// go through an os.Root, so a hostile entry path can never escape the
// destination. Files land under <dest>/<namespace>/<url>.
//
// Content is written to a temp file in the target directory and renamed
// into place, so partially written files are never visible at the final
// path. A sink is safe for concurrent use.
type sink struct {
	root      *os.Root
	overwrite bool
}

func newSink(destDir string, overwrite bool) (*sink, error) {
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return nil, fmt.Errorf("create destination %s: %w", destDir, err)
	}
	root, err := os.OpenRoot(destDir)
	if err != nil {
		return nil, fmt.Errorf("open destination root %s: %w", destDir, err)
	}
	return &sink{root: root, overwrite: overwrite}, nil
}

func (s *sink) Close() error {
	return s.root.Close()
}

// entryPath maps an entry to a slash path under the destination. ok is
// false for paths that cannot be represented on a filesystem, such as URLs
// with ".." elements or an empty URL.
func entryPath(ns byte, url string) (string, bool) {
	p := string(ns) + "/" + url
	if !fs.ValidPath(p) {
		return "", false
	}
	return p, true
}

// errSkipped reports a path left in place because it already exists.
var errSkipped = errors.New("destination exists")

// writeFile writes data to rel, creating parent directories as needed.
func (s *sink) writeFile(rel string, data []byte) error {
	osRel := filepath.FromSlash(rel)
	if !s.overwrite {
		if _, err := s.root.Lstat(osRel); err == nil {
			return errSkipped
		}
	}
	if err := s.root.MkdirAll(filepath.Dir(osRel), 0o750); err != nil {
		return fmt.Errorf("create directory for %s: %w", rel, err)
	}

	temp, tempRel, err := s.createTemp(filepath.Dir(osRel))
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", rel, err)
	}
	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()           //nolint:errcheck // best-effort cleanup
		_ = s.root.Remove(tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := temp.Close(); err != nil {
		_ = s.root.Remove(tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file for %s: %w", rel, err)
	}
	if err := s.root.Rename(tempRel, osRel); err != nil {
		_ = s.root.Remove(tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", rel, err)
	}
	return nil
}

// writeSymlink materializes a redirect as a relative symlink from rel to
// targetRel, both slash paths under the destination.
func (s *sink) writeSymlink(rel, targetRel string) error {
	osRel := filepath.FromSlash(rel)
	target, err := filepath.Rel(filepath.Dir(osRel), filepath.FromSlash(targetRel))
	if err != nil {
		return fmt.Errorf("relative link %s -> %s: %w", rel, targetRel, err)
	}
	if err := s.root.MkdirAll(filepath.Dir(osRel), 0o750); err != nil {
		return fmt.Errorf("create directory for %s: %w", rel, err)
	}
	if _, err := s.root.Lstat(osRel); err == nil {
		if !s.overwrite {
			return errSkipped
		}
		if err := s.root.Remove(osRel); err != nil {
			return fmt.Errorf("replace %s: %w", rel, err)
		}
	}
	if err := s.root.Symlink(target, osRel); err != nil {
		return fmt.Errorf("symlink %s -> %s: %w", rel, target, err)
	}
	return nil
}

// createTemp opens an exclusive temp file in dir for a later rename.
func (s *sink) createTemp(dir string) (*os.File, string, error) {
	const attempts = 10
	for range attempts {
		suffix, err := randomSuffix()
		if err != nil {
			return nil, "", err
		}
		rel := filepath.Join(dir, ".zimdump-"+suffix)
		f, err := s.root.OpenFile(rel, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return f, rel, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", errors.New("create temp file: exhausted retries")
}

func randomSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

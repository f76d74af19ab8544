package functions

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zip"
)

// Fixed timestamp for archive entries, so that unchanged sources produce byte-identical archives
// and therefore identical digests.
var epoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// zipFunction packages src, a directory or a single file, into the archive at dst.
func zipFunction(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	var files []string
	base := filepath.Dir(src)
	if info.IsDir() {
		base = src
		err = filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		files = []string{src}
	}
	sort.Strings(files)

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	archive := zip.NewWriter(out)
	for _, path := range files {
		if err := addFile(archive, base, path); err != nil {
			return err
		}
	}

	if err := archive.Close(); err != nil {
		return err
	}
	return out.Close()
}

func addFile(archive *zip.Writer, base, path string) error {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	header := &zip.FileHeader{
		Name:     filepath.ToSlash(rel),
		Method:   zip.Deflate,
		Modified: epoch,
	}
	header.SetMode(info.Mode().Perm())

	w, err := archive.CreateHeader(header)
	if err != nil {
		return err
	}

	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	_, err = io.Copy(w, in)
	return err
}

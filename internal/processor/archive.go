package processor

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"mediaforge/internal/joberror"
	"mediaforge/internal/models"
)

// ArchiveCompress writes every input into a new zip at outputPath. Files are
// stored under their base name; directories are added recursively under their
// own base name. A partial archive is removed on failure.
func ArchiveCompress(ctx context.Context, inputs []string, outputPath string) (err error) {
	if len(inputs) == 0 {
		return joberror.New(models.KindInvalidRequest, "archive compress", "no input files")
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return joberror.IO("create archive", err)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(outputPath)
		}
	}()

	zw := zip.NewWriter(out)
	seen := make(map[string]string)
	self, _ := filepath.Abs(outputPath)

	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := os.Stat(input)
		if err != nil {
			return joberror.IO("archive compress", err)
		}
		if info.IsDir() {
			err = addDirectory(ctx, zw, input, self, seen)
		} else {
			err = addFile(zw, input, filepath.Base(input), info, seen)
		}
		if err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return joberror.IO("finish archive", err)
	}
	if err := out.Close(); err != nil {
		return joberror.IO("close archive", err)
	}
	return nil
}

func addDirectory(ctx context.Context, zw *zip.Writer, dir, self string, seen map[string]string) error {
	root := filepath.Dir(filepath.Clean(dir))
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return joberror.IO("archive compress", walkErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return joberror.IO("archive compress", err)
		}
		name := filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return joberror.IO("archive compress", err)
		}
		switch {
		case d.IsDir():
			header, err := zip.FileInfoHeader(info)
			if err != nil {
				return joberror.IO("archive compress", err)
			}
			header.Name = name + "/"
			if _, err := zw.CreateHeader(header); err != nil {
				return joberror.IO("archive compress", err)
			}
			return nil
		case info.Mode().IsRegular():
			if abs, _ := filepath.Abs(p); abs == self {
				return nil
			}
			return addFile(zw, p, name, info, seen)
		default:
			// Symlinks and devices are not archived.
			return nil
		}
	})
}

func addFile(zw *zip.Writer, src, name string, info fs.FileInfo, seen map[string]string) error {
	if prev, dup := seen[name]; dup {
		return joberror.New(models.KindInvalidRequest, "archive compress",
			fmt.Sprintf("%s and %s would both be stored as %s", prev, src, name))
	}
	seen[name] = src

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return joberror.IO("archive compress", err)
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return joberror.IO("archive compress", err)
	}
	f, err := os.Open(src)
	if err != nil {
		return joberror.IO("archive compress", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return joberror.IO(fmt.Sprintf("archive %s", src), err)
	}
	return nil
}

// ArchiveExtract unpacks archivePath into dir. Entries that would land outside
// dir, or on top of the archive itself, are rejected before anything is
// written. Entries are unpacked into a hidden sibling directory first and
// moved into dir only once every entry has been read, so a failure leaves dir
// untouched.
func ArchiveExtract(ctx context.Context, archivePath, dir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return joberror.IO("open archive", err)
		}
		return joberror.Wrap(models.KindToolExecutionFailed, "open archive", err)
	}
	defer r.Close()

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return joberror.IO("open archive", err)
	}
	for _, f := range r.File {
		target, err := entryTarget(dir, f.Name)
		if err != nil {
			return err
		}
		if st, err := os.Stat(target); err == nil && os.SameFile(st, archiveInfo) {
			return joberror.New(models.KindToolExecutionFailed, "archive extract",
				fmt.Sprintf("entry %q would overwrite the archive", f.Name))
		}
	}

	parent := filepath.Dir(filepath.Clean(dir))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return joberror.IO("create extract directory", err)
	}
	staging, err := os.MkdirTemp(parent, ".mediaforge-extract-")
	if err != nil {
		return joberror.IO("create extract directory", err)
	}
	defer os.RemoveAll(staging)

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := entryTarget(staging, f.Name)
		if err != nil {
			return err
		}
		if err := extractEntry(f, target); err != nil {
			return err
		}
	}
	return publishDir(staging, dir)
}

// publishDir moves the staged tree to dir. A missing dir is a single rename;
// an existing one receives the staged entries, replacing files of the same name.
func publishDir(staging, dir string) error {
	if _, err := os.Lstat(dir); os.IsNotExist(err) {
		if err := os.Rename(staging, dir); err != nil {
			return joberror.IO("archive extract", err)
		}
		return nil
	}

	err := filepath.WalkDir(staging, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(staging, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dir, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return os.Rename(p, target)
	})
	if err != nil {
		return joberror.IO("archive extract", err)
	}
	return nil
}

func entryTarget(dir, name string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") || filepath.VolumeName(cleaned) != "" {
		return "", joberror.New(models.KindToolExecutionFailed, "archive extract",
			fmt.Sprintf("entry %q escapes the target directory", name))
	}
	return filepath.Join(dir, filepath.FromSlash(cleaned)), nil
}

func extractEntry(f *zip.File, target string) error {
	mode := f.Mode()
	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return joberror.IO("archive extract", err)
		}
		return nil
	}
	if !mode.IsRegular() {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return joberror.IO("archive extract", err)
	}

	rc, err := f.Open()
	if err != nil {
		return joberror.Wrap(models.KindToolExecutionFailed, fmt.Sprintf("read entry %s", f.Name), err)
	}
	defer rc.Close()

	perm := mode.Perm()
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return joberror.IO("archive extract", err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return joberror.Wrap(models.KindToolExecutionFailed, fmt.Sprintf("extract %s", f.Name), err)
	}
	if err := out.Close(); err != nil {
		return joberror.IO("archive extract", err)
	}
	return nil
}

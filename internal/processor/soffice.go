package processor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"mediaforge/internal/joberror"
	"mediaforge/internal/models"
)

// Soffice converts documents with a headless LibreOffice. Every call gets its
// own profile directory so conversions can run concurrently.
type Soffice struct {
	Bin    string
	TmpDir string
}

func NewSoffice(bin, tmpDir string) *Soffice {
	return &Soffice{Bin: bin, TmpDir: tmpDir}
}

func (s *Soffice) ConvertToPDF(ctx context.Context, data []byte, ext string) ([]byte, error) {
	work, err := os.MkdirTemp(s.TmpDir, ".mediaforge-soffice-*")
	if err != nil {
		return nil, joberror.IO("soffice workspace", err)
	}
	defer os.RemoveAll(work)

	input := filepath.Join(work, "document."+ext)
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return nil, joberror.IO("soffice workspace", err)
	}

	profile := "file://" + filepath.ToSlash(filepath.Join(work, "profile"))
	_, err = runCommand(ctx, s.Bin,
		"-env:UserInstallation="+profile,
		"--headless",
		"--norestore",
		"--convert-to", "pdf",
		"--outdir", work,
		input,
	)
	if err != nil {
		return nil, err
	}

	out, err := os.ReadFile(filepath.Join(work, "document.pdf"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, joberror.New(models.KindToolExecutionFailed, "soffice",
				fmt.Sprintf("no pdf produced for .%s input", ext))
		}
		return nil, joberror.IO("soffice output", err)
	}
	return out, nil
}

package processor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"mediaforge/internal/codec"
)

// writeTool writes a shell stub that records its arguments, one per line,
// before running body.
func writeTool(t *testing.T, name, body string) (bin, argsFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	dir := t.TempDir()
	bin = filepath.Join(dir, name)
	argsFile = filepath.Join(dir, name+".args")
	script := fmt.Sprintf("#!/bin/sh\nprintf '%%s\\n' \"$@\" > %q\n%s\n", argsFile, body)
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("write %s stub: %v", name, err)
	}
	return bin, argsFile
}

// writeLastArg is a stub body that writes size bytes to the final argument.
func writeLastArg(size int) string {
	return fmt.Sprintf("for last; do :; done\nhead -c %d /dev/zero > \"$last\"", size)
}

func readArgs(t *testing.T, argsFile string) []string {
	t.Helper()
	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read recorded args: %v", err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func hasSeq(args []string, seq ...string) bool {
	for i := 0; i+len(seq) <= len(args); i++ {
		match := true
		for j, s := range seq {
			if args[i+j] != s {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create png: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
}

// stdCodec is a pure Go codec for tests. It reports a fixed DPI.
type stdCodec struct {
	dpi     float64
	encodes []codec.EncodeOptions
}

func (c *stdCodec) Encode(ctx context.Context, in, out string, opts codec.EncodeOptions) error {
	c.encodes = append(c.encodes, opts)
	f, err := os.Open(in)
	if err != nil {
		return err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return err
	}
	dst, err := os.Create(out)
	if err != nil {
		return err
	}
	defer dst.Close()
	switch opts.Format {
	case codec.FormatPNG:
		return png.Encode(dst, img)
	case codec.FormatJPEG:
		q := opts.Quality
		if q == 0 {
			q = jpeg.DefaultQuality
		}
		return jpeg.Encode(dst, img, &jpeg.Options{Quality: q})
	default:
		return errors.New("stdCodec: unsupported format " + opts.Format.CodecName())
	}
}

func (c *stdCodec) Metadata(ctx context.Context, path string) (codec.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return codec.Metadata{}, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return codec.Metadata{}, err
	}
	return codec.Metadata{Width: cfg.Width, Height: cfg.Height, DPI: c.dpi}, nil
}

type fakeConverter struct {
	gotExt  string
	gotData []byte
	err     error
}

func (f *fakeConverter) ConvertToPDF(ctx context.Context, data []byte, ext string) ([]byte, error) {
	f.gotExt = ext
	f.gotData = data
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.4\n%fake\n"), nil
}

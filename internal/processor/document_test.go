package processor

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediaforge/internal/codec"
)

// writeInterlacedPNG writes a 1x1 RGB PNG with Adam7 interlacing. For a
// single pixel only the first pass carries data.
func writeInterlacedPNG(t *testing.T, path string) {
	t.Helper()
	chunk := func(buf *bytes.Buffer, typ string, data []byte) {
		binary.Write(buf, binary.BigEndian, uint32(len(data)))
		body := append([]byte(typ), data...)
		buf.Write(body)
		binary.Write(buf, binary.BigEndian, crc32.ChecksumIEEE(body))
	}

	var idat bytes.Buffer
	zw := zlib.NewWriter(&idat)
	zw.Write([]byte{0, 200, 40, 90})
	zw.Close()

	var file bytes.Buffer
	file.WriteString("\x89PNG\r\n\x1a\n")
	// width 1, height 1, depth 8, truecolor, deflate, adaptive filter, Adam7
	chunk(&file, "IHDR", []byte{0, 0, 0, 1, 0, 0, 0, 1, 8, 2, 0, 0, 1})
	chunk(&file, "IDAT", idat.Bytes())
	chunk(&file, "IEND", nil)
	if err := os.WriteFile(path, file.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPageSize(t *testing.T) {
	cases := []struct {
		meta codec.Metadata
		w, h float64
	}{
		{codec.Metadata{Width: 100, Height: 50}, 100, 50},
		{codec.Metadata{Width: 300, Height: 600, DPI: 300}, 72, 144},
		{codec.Metadata{Width: 144, Height: 144, DPI: 144}, 72, 72},
	}
	for _, tc := range cases {
		w, h := pageSize(tc.meta)
		if math.Abs(w-tc.w) > 1e-9 || math.Abs(h-tc.h) > 1e-9 {
			t.Fatalf("pageSize(%+v) = %v x %v, want %v x %v", tc.meta, w, h, tc.w, tc.h)
		}
	}
}

func TestToPDFFromPNG(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "scan.png")
	writePNG(t, in, 40, 20)
	out := filepath.Join(dir, "scan_converted.pdf")

	c := &stdCodec{}
	if err := ToPDF(context.Background(), c, nil, in, out); err != nil {
		t.Fatalf("ToPDF: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF: %q", data[:min(len(data), 16)])
	}
	if !bytes.Contains(data, []byte("/MediaBox [0 0 40.00 20.00]")) {
		t.Fatal("expected page sized to the image at 72 dpi")
	}
	if len(c.encodes) != 0 {
		t.Fatal("png input must not be rasterized")
	}
}

func TestToPDFFromInterlacedPNG(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "interlaced.png")
	writeInterlacedPNG(t, in)
	if interlaced, err := pngInterlaced(in); err != nil || !interlaced {
		t.Fatalf("fixture must be interlaced: %v, %v", interlaced, err)
	}
	out := filepath.Join(dir, "interlaced_converted.pdf")

	c := &stdCodec{}
	if err := ToPDF(context.Background(), c, nil, in, out); err != nil {
		t.Fatalf("ToPDF: %v", err)
	}
	if len(c.encodes) != 1 || c.encodes[0].Format != codec.FormatPNG {
		t.Fatalf("interlaced png must be re-encoded once as png, got %+v", c.encodes)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read pdf: %v", err)
	}
	if !bytes.Contains(data, []byte("/MediaBox [0 0 1.00 1.00]")) {
		t.Fatal("expected a 1x1 point page")
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".mediaforge-") {
			t.Fatalf("temporary png left behind: %s", e.Name())
		}
	}
}

func TestToPDFRasterizesGIFAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "anim.gif")
	pal := image.NewPaletted(image.Rect(0, 0, 10, 10), []color.Color{color.Black, color.White})
	f, err := os.Create(in)
	if err != nil {
		t.Fatalf("create gif: %v", err)
	}
	if err := gif.Encode(f, pal, nil); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	f.Close()

	outDir := t.TempDir()
	out := filepath.Join(outDir, "anim_converted.pdf")
	c := &stdCodec{}
	if err := ToPDF(context.Background(), c, nil, in, out); err != nil {
		t.Fatalf("ToPDF: %v", err)
	}
	if len(c.encodes) != 1 || c.encodes[0].Format != codec.FormatPNG {
		t.Fatalf("expected one png rasterization, got %+v", c.encodes)
	}
	entries, _ := os.ReadDir(outDir)
	if len(entries) != 1 || entries[0].Name() != "anim_converted.pdf" {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestToPDFTextIsEscaped(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(in, []byte("<b>bold</b> & more"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	conv := &fakeConverter{}
	out := filepath.Join(dir, "notes_converted.pdf")
	if err := ToPDF(context.Background(), nil, conv, in, out); err != nil {
		t.Fatalf("ToPDF: %v", err)
	}
	if conv.gotExt != "html" {
		t.Fatalf("expected html conversion, got %q", conv.gotExt)
	}
	page := string(conv.gotData)
	if !strings.Contains(page, "&lt;b&gt;bold&lt;/b&gt; &amp; more") || strings.Contains(page, "<b>") {
		t.Fatalf("text not escaped: %s", page)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected output: %v", err)
	}
}

func TestToPDFSubCategoryErrorsAreDistinct(t *testing.T) {
	dir := t.TempDir()
	conv := &fakeConverter{err: errors.New("soffice crashed")}
	cases := map[string]string{
		"report.docx": "office document to pdf",
		"page.html":   "html to pdf",
		"notes.txt":   "text to pdf",
	}
	for name, prefix := range cases {
		in := filepath.Join(dir, name)
		if err := os.WriteFile(in, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		err := ToPDF(context.Background(), nil, conv, in, filepath.Join(dir, "out.pdf"))
		if err == nil || !strings.HasPrefix(err.Error(), prefix) {
			t.Fatalf("%s: expected %q prefix, got %v", name, prefix, err)
		}
		if conv.gotExt != strings.TrimPrefix(filepath.Ext(name), ".") && name != "notes.txt" {
			t.Fatalf("%s: converter got ext %q", name, conv.gotExt)
		}
	}
}

func TestToPDFRejectsUnsupported(t *testing.T) {
	err := ToPDF(context.Background(), nil, nil, "movie.mp4", "movie_converted.pdf")
	if err == nil {
		t.Fatal("expected unsupported format")
	}
}

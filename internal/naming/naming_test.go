package naming

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOutputPath(t *testing.T) {
	cases := []struct {
		input, outDir, suffix, ext string
		want                       string
	}{
		{"/media/photo.png", "", SuffixConverted, "jpg", "/media/photo_converted.jpg"},
		{"/media/clip.mov", "/out", SuffixMuted, "mp4", "/out/clip_muted.mp4"},
		{"/media/clip.mp4", "", SuffixSlim, ".mp4", "/media/clip_slim.mp4"},
		{"/media/my.song.flac", "", SuffixConverted, "mp3", "/media/my.song_converted.mp3"},
		{"/media/art.png", "", SuffixHD, "png", "/media/art_hd.png"},
	}
	for _, tc := range cases {
		got := OutputPath(tc.input, tc.outDir, tc.suffix, tc.ext)
		if got != filepath.FromSlash(tc.want) {
			t.Fatalf("OutputPath(%q) = %q, want %q", tc.input, got, tc.want)
		}
		if got == tc.input {
			t.Fatalf("output must never equal input: %q", got)
		}
	}
}

func TestArchivePath(t *testing.T) {
	if got := ArchivePath([]string{"/data/report.txt"}, ""); got != filepath.FromSlash("/data/report_archive.zip") {
		t.Fatalf("unexpected single archive path: %q", got)
	}
	if got := ArchivePath([]string{"/data/a.txt", "/data/b.txt"}, "/out"); got != filepath.FromSlash("/out/archive.zip") {
		t.Fatalf("unexpected multi archive path: %q", got)
	}
	if got := ArchivePath(nil, "/out"); got != "" {
		t.Fatalf("expected empty path for no inputs, got %q", got)
	}
	got := ArchivePath([]string{"/out/archive.zip", "/data/b.txt"}, "/out")
	if got == filepath.FromSlash("/out/archive.zip") {
		t.Fatal("archive must not overwrite one of its inputs")
	}
}

func TestArchivePathKeepsDottedDirectoryName(t *testing.T) {
	root := t.TempDir()
	album := filepath.Join(root, "my.photos")
	if err := os.Mkdir(album, 0o755); err != nil {
		t.Fatal(err)
	}
	if got := ArchivePath([]string{album + string(filepath.Separator)}, ""); got != filepath.Join(root, "my.photos_archive.zip") {
		t.Fatalf("unexpected directory archive path: %q", got)
	}

	file := filepath.Join(root, "my.photos.tar")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := ArchivePath([]string{file}, ""); got != filepath.Join(root, "my.photos_archive.zip") {
		t.Fatalf("unexpected file archive path: %q", got)
	}
}

func TestExtractDir(t *testing.T) {
	if got := ExtractDir("/data/bundle.zip", ""); got != filepath.FromSlash("/data/bundle") {
		t.Fatalf("unexpected extract dir: %q", got)
	}
	if got := ExtractDir("/data/bundle.zip", "/dest"); got != "/dest" {
		t.Fatalf("expected explicit dir, got %q", got)
	}
}

func TestTempPathIsUnique(t *testing.T) {
	dir := t.TempDir()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		p := TempPath(dir, "png")
		if seen[p] {
			t.Fatalf("duplicate temp path %q", p)
		}
		seen[p] = true
		if !strings.HasSuffix(p, ".png") || filepath.Dir(p) != dir {
			t.Fatalf("unexpected temp path %q", p)
		}
	}
}

func TestEnsureDirIsIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	for i := 0; i < 2; i++ {
		if err := EnsureDir(dir); err != nil {
			t.Fatalf("EnsureDir: %v", err)
		}
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected directory to exist: %v", err)
	}
}

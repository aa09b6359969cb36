package processor

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"

	"mediaforge/internal/classify"
	"mediaforge/internal/codec"
	"mediaforge/internal/joberror"
	"mediaforge/internal/models"
	"mediaforge/internal/naming"
)

// DocumentConverter turns an office or HTML document into PDF bytes. ext is
// the source extension without the dot.
type DocumentConverter interface {
	ConvertToPDF(ctx context.Context, data []byte, ext string) ([]byte, error)
}

const defaultDPI = 72

var textPage = template.Must(template.New("text").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<style>
body { font-family: "Microsoft YaHei", Arial, sans-serif; padding: 40px; line-height: 1.6; white-space: pre-wrap; }
</style>
</head>
<body>{{.}}</body>
</html>
`))

// ToPDF converts an image, office document, HTML page or text file to PDF.
func ToPDF(ctx context.Context, c codec.Codec, docs DocumentConverter, inputPath, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	kind, err := classify.Document(inputPath)
	if err != nil {
		return err
	}

	switch kind {
	case classify.DocImage:
		if err := imageToPDF(ctx, c, inputPath, outputPath); err != nil {
			return fmt.Errorf("image to pdf: %w", err)
		}
	case classify.DocOffice:
		if err := convertDocument(ctx, docs, inputPath, outputPath); err != nil {
			return fmt.Errorf("office document to pdf: %w", err)
		}
	case classify.DocHTML:
		if err := convertDocument(ctx, docs, inputPath, outputPath); err != nil {
			return fmt.Errorf("html to pdf: %w", err)
		}
	case classify.DocText:
		if err := textToPDF(ctx, docs, inputPath, outputPath); err != nil {
			return fmt.Errorf("text to pdf: %w", err)
		}
	}
	return nil
}

// imageToPDF writes a single page sized to the image at its own density.
// Formats the PDF writer cannot embed are rasterized to a temporary PNG first.
func imageToPDF(ctx context.Context, c codec.Codec, inputPath, outputPath string) error {
	src := inputPath
	imageType := "PNG"

	rasterize := true
	switch classify.Ext(inputPath) {
	case "jpg", "jpeg":
		imageType = "JPG"
		rasterize = false
	case "png":
		interlaced, err := pngInterlaced(inputPath)
		if err != nil {
			return err
		}
		rasterize = interlaced
	}
	if rasterize {
		tmp := naming.TempPath(filepath.Dir(outputPath), "png")
		defer os.Remove(tmp)
		if err := c.Encode(ctx, inputPath, tmp, codec.EncodeOptions{Format: codec.FormatPNG}); err != nil {
			return fmt.Errorf("rasterize: %w", err)
		}
		src = tmp
	}

	meta, err := c.Metadata(ctx, src)
	if err != nil {
		return err
	}
	if meta.Width <= 0 || meta.Height <= 0 {
		return joberror.New(models.KindToolExecutionFailed, "image to pdf", "image has no pixel dimensions")
	}
	w, h := pageSize(meta)

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	pdf.ImageOptions(src, 0, 0, w, h, false, fpdf.ImageOptions{ImageType: imageType}, 0, "")

	if err := pdf.OutputFileAndClose(outputPath); err != nil {
		os.Remove(outputPath)
		return joberror.Wrap(models.KindToolExecutionFailed, "write pdf", err)
	}
	return nil
}

// pngInterlaced reports whether the PNG uses Adam7 interlacing, which the PDF
// writer cannot embed. The flag is the last byte of the IHDR chunk.
func pngInterlaced(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, joberror.IO("read image", err)
	}
	defer f.Close()

	var head [29]byte
	if _, err := io.ReadFull(f, head[:]); err != nil {
		return false, joberror.Wrap(models.KindToolExecutionFailed, "read png header", err)
	}
	if !bytes.Equal(head[:8], pngSignature) || string(head[12:16]) != "IHDR" {
		return false, joberror.New(models.KindToolExecutionFailed, "read png header", "not a PNG file")
	}
	return head[28] == 1, nil
}

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// pageSize converts pixels to points: px * 72 / dpi.
func pageSize(meta codec.Metadata) (float64, float64) {
	dpi := meta.DPI
	if dpi <= 0 {
		dpi = defaultDPI
	}
	return float64(meta.Width) * 72 / dpi, float64(meta.Height) * 72 / dpi
}

func convertDocument(ctx context.Context, docs DocumentConverter, inputPath, outputPath string) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return joberror.IO("read document", err)
	}
	return writeConverted(ctx, docs, data, classify.Ext(inputPath), outputPath)
}

func textToPDF(ctx context.Context, docs DocumentConverter, inputPath, outputPath string) error {
	text, err := os.ReadFile(inputPath)
	if err != nil {
		return joberror.IO("read text", err)
	}
	var page bytes.Buffer
	if err := textPage.Execute(&page, string(text)); err != nil {
		return joberror.Wrap(models.KindToolExecutionFailed, "render text page", err)
	}
	return writeConverted(ctx, docs, page.Bytes(), "html", outputPath)
}

func writeConverted(ctx context.Context, docs DocumentConverter, data []byte, ext, outputPath string) error {
	if docs == nil {
		return joberror.New(models.KindToolMissing, "document convert", "no document converter configured")
	}
	pdfBytes, err := docs.ConvertToPDF(ctx, data, ext)
	if err != nil {
		return err
	}
	if len(pdfBytes) == 0 {
		return joberror.New(models.KindToolExecutionFailed, "document convert", "converter returned an empty document")
	}
	if err := os.WriteFile(outputPath, pdfBytes, 0o644); err != nil {
		return joberror.IO("write pdf", err)
	}
	return nil
}

// Package upload turns user-supplied supporting documents into plain text
// for the extraction prompt.
package upload

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docforge/internal/config"
	"github.com/sells-group/docforge/internal/model"
)

// ErrUnsupported is returned for file types that cannot be read.
var ErrUnsupported = eris.New("upload: unsupported file type")

// ErrNoText is reported for files that yield no text, such as scanned PDFs.
var ErrNoText = eris.New("upload: no text extracted")

// PDFExtractor extracts text content from PDF files.
type PDFExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// File is one uploaded document.
type File struct {
	Name string
	Data []byte
}

// Reader extracts text from uploaded files by extension.
type Reader struct {
	pdf     PDFExtractor
	timeout time.Duration
}

// NewReader creates a Reader using pdftotext for PDFs.
func NewReader(cfg config.OCRConfig) *Reader {
	return &Reader{
		pdf:     NewPoppler(cfg.PdfToTextPath),
		timeout: time.Duration(cfg.TimeoutSecs) * time.Second,
	}
}

// NewReaderWith creates a Reader with a custom PDF extractor.
func NewReaderWith(pdf PDFExtractor, timeout time.Duration) *Reader {
	return &Reader{pdf: pdf, timeout: timeout}
}

// Read extracts the text of one file. The result is labeled with the file's
// base name.
func (r *Reader) Read(ctx context.Context, f File) (model.Source, error) {
	label := filepath.Base(f.Name)
	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(f.Name)) {
	case ".pdf":
		text, err = r.readPDF(ctx, f.Data)
	case ".txt", ".md", ".csv":
		text, err = readPlain(f.Data)
	case ".html", ".htm":
		text, err = readHTML(f.Data)
	default:
		return model.Source{}, eris.Wrapf(ErrUnsupported, "%s", label)
	}
	if err != nil {
		return model.Source{}, eris.Wrapf(err, "upload: read %s", label)
	}
	return model.Source{Label: label, Text: strings.TrimSpace(text)}, nil
}

// ReadAll extracts every file. Unreadable files and files without text are
// logged and reported in the returned errors; the rest are still returned.
func (r *Reader) ReadAll(ctx context.Context, files []File) ([]model.Source, []error) {
	var (
		sources []model.Source
		errs    []error
	)
	for _, f := range files {
		src, err := r.Read(ctx, f)
		if err != nil {
			zap.L().Warn("upload: skipping file", zap.String("file", f.Name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if src.Text == "" {
			zap.L().Warn("upload: no text extracted", zap.String("file", f.Name))
			errs = append(errs, eris.Wrapf(ErrNoText, "%s", src.Label))
			continue
		}
		sources = append(sources, src)
	}
	return sources, errs
}

func (r *Reader) readPDF(ctx context.Context, data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "docforge-*.pdf")
	if err != nil {
		return "", eris.Wrap(err, "create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		_ = tmp.Close()
		return "", eris.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		return "", eris.Wrap(err, "close temp file")
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.pdf.ExtractText(ctx, tmp.Name())
}

func readPlain(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", eris.New("text is not valid UTF-8")
	}
	return string(data), nil
}

// readHTML returns the visible text of an HTML document, one line per block.
func readHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", eris.Wrap(err, "parse html")
	}
	doc.Find("script, style, noscript").Remove()

	var lines []string
	for _, line := range strings.Split(doc.Find("body").Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

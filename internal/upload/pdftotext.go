package upload

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// Poppler runs poppler's pdftotext in layout mode.
type Poppler struct {
	bin string
}

// NewPoppler returns a Poppler that runs bin, or "pdftotext" from PATH.
func NewPoppler(bin string) *Poppler {
	if bin == "" {
		bin = "pdftotext"
	}
	return &Poppler{bin: bin}
}

// ExtractText converts the PDF at pdfPath. Page breaks become blank lines and
// trailing padding from the layout columns is dropped.
func (p *Poppler) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.bin, "-layout", "-enc", "UTF-8", pdfPath, "-")
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "upload: %s %s: %s", p.bin, pdfPath, strings.TrimSpace(stderr.String()))
	}

	pages := strings.Split(stdout.String(), "\f")
	for i, page := range pages {
		lines := strings.Split(page, "\n")
		for j, l := range lines {
			lines[j] = strings.TrimRight(l, " \t")
		}
		pages[i] = strings.Trim(strings.Join(lines, "\n"), "\n")
	}
	return strings.Join(nonEmpty(pages), "\n\n"), nil
}

func nonEmpty(ss []string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

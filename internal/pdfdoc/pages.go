package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrInvalid marks a file that is not a structurally valid PDF.
var ErrInvalid = errors.New("invalid pdf")

var disableConfigOnce sync.Once

func pdfcpuConfig() *model.Configuration {
	disableConfigOnce.Do(api.DisableConfigDir)
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// PageCount returns the number of pages of the PDF at path.
func PageCount(path string) (int, error) {
	disableConfigOnce.Do(api.DisableConfigDir)
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("page count %s: %w", filepath.Base(path), err)
	}
	return n, nil
}

// ExtractPages copies pages [from, to] (1-based, inclusive) of in into out
// without materialising the remaining pages.
func ExtractPages(in, out string, from, to int) error {
	if from < 1 || to < from {
		return fmt.Errorf("extract pages: invalid range %d-%d", from, to)
	}
	selection := fmt.Sprintf("%d-%d", from, to)
	if from == to {
		selection = fmt.Sprintf("%d", from)
	}
	if err := api.TrimFile(in, out, []string{selection}, pdfcpuConfig()); err != nil {
		return fmt.Errorf("extract pages %s from %s: %w", selection, filepath.Base(in), err)
	}
	return nil
}

// Validate checks the header, the object graph, the page count and the
// presence of a content stream on the first page.
func Validate(path string) error {
	head := make([]byte, 1024)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	n, _ := f.Read(head)
	_ = f.Close()
	if !bytes.Contains(head[:n], []byte("%PDF-")) {
		return fmt.Errorf("%w: missing %%PDF header", ErrInvalid)
	}

	if err := api.ValidateFile(path, pdfcpuConfig()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	pages, err := PageCount(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if pages == 0 {
		return fmt.Errorf("%w: no pages", ErrInvalid)
	}
	if err := firstPageHasContent(path); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ValidateBytes writes data to a temp file and validates it.
func ValidateBytes(data []byte, dir string) error {
	tmp, err := os.CreateTemp(dir, "validate-*.pdf")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return Validate(tmp.Name())
}

func firstPageHasContent(path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read first page: %v", r)
		}
	}()
	f, reader, err := pdf.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if reader.NumPage() == 0 {
		return errors.New("no pages")
	}
	page := reader.Page(1)
	if page.V.IsNull() {
		return errors.New("first page missing")
	}
	if page.V.Key("Contents").IsNull() {
		return errors.New("first page has no content stream")
	}
	return nil
}

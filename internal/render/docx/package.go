package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// DocumentPart is the main body part.
const DocumentPart = "word/document.xml"

// Package is an opened .docx whose parts can be replaced before re-zipping.
type Package struct {
	files    []*zip.File
	replaced map[string][]byte
}

// Open reads a .docx from memory.
func Open(data []byte) (*Package, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	return &Package{files: r.File, replaced: map[string][]byte{}}, nil
}

// Read returns the raw content of a part.
func (p *Package) Read(name string) ([]byte, error) {
	if b, ok := p.replaced[name]; ok {
		return b, nil
	}
	for _, f := range p.files {
		if normalizeZipName(f.Name) == name {
			return readZipFile(f)
		}
	}
	return nil, fmt.Errorf("docx part %s not found", name)
}

// Document parses word/document.xml.
func (p *Package) Document() (*Part, error) {
	raw, err := p.Read(DocumentPart)
	if err != nil {
		return nil, err
	}
	return ParsePart(raw)
}

// SetPart replaces a part with an encoded Part.
func (p *Package) SetPart(name string, part *Part) error {
	b, err := part.Bytes()
	if err != nil {
		return err
	}
	p.replaced[name] = b
	return nil
}

// Bytes re-zips the package.
func (p *Package) Bytes() ([]byte, error) {
	var out bytes.Buffer
	w := zip.NewWriter(&out)
	for _, f := range p.files {
		name := normalizeZipName(f.Name)
		content, ok := p.replaced[name]
		if !ok {
			var err error
			if content, err = readZipFile(f); err != nil {
				return nil, err
			}
		}
		header := f.FileHeader
		header.Name = name
		dst, err := w.CreateHeader(&header)
		if err != nil {
			return nil, err
		}
		if _, err := dst.Write(content); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func normalizeZipName(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}

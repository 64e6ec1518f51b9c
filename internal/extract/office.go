package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// zipMagic is the leading bytes of every OOXML container.
var zipMagic = []byte{0x50, 0x4B, 0x03, 0x04}

// maxOfficePartBytes caps how much of a single archive part is read.
const maxOfficePartBytes = 32 * 1024 * 1024

// OfficeExtractor handles the zip+XML office formats: docx, pptx and
// xlsx.
type OfficeExtractor struct{}

// Name implements Extractor.
func (e *OfficeExtractor) Name() string { return "office" }

// CanHandle implements Extractor.
func (e *OfficeExtractor) CanHandle(path string, head []byte) bool {
	if !hasExt(path, "docx", "pptx", "xlsx") {
		return false
	}
	if len(head) >= len(zipMagic) && !bytes.HasPrefix(head, zipMagic) {
		return false
	}
	return true
}

// Extract implements Extractor.
func (e *OfficeExtractor) Extract(ctx context.Context, path string) (*ExtractedContent, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: not a valid archive: %v", ErrUnsupported, err)
	}
	defer func() { _ = reader.Close() }()

	switch normalizedExt(path) {
	case "docx":
		return e.extractDocx(ctx, &reader.Reader)
	case "pptx":
		return e.extractPptx(ctx, &reader.Reader)
	case "xlsx":
		return e.extractXlsx(ctx, &reader.Reader)
	}
	return nil, ErrUnsupported
}

// extractDocx pulls paragraph text from word/document.xml and the
// title from docProps/core.xml.
func (e *OfficeExtractor) extractDocx(ctx context.Context, r *zip.Reader) (*ExtractedContent, error) {
	body, err := readArchivePart(r, "word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("%w: missing document body: %v", ErrUnsupported, err)
	}

	var text strings.Builder
	decoder := xml.NewDecoder(bytes.NewReader(body))
	inText := false
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed document xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		}
	}

	content := &ExtractedContent{
		Text:     strings.TrimSpace(text.String()),
		Metadata: map[string]string{"format": "docx"},
	}
	if title := e.coreTitle(r); title != "" {
		content.Title = title
	}
	return content, nil
}

// extractPptx concatenates the a:t runs of every slide in order.
func (e *OfficeExtractor) extractPptx(ctx context.Context, r *zip.Reader) (*ExtractedContent, error) {
	var slides []string
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			slides = append(slides, f.Name)
		}
	}
	if len(slides) == 0 {
		return nil, fmt.Errorf("%w: no slides", ErrUnsupported)
	}
	sort.Strings(slides)

	var text strings.Builder
	for _, name := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, err := readArchivePart(r, name)
		if err != nil {
			continue
		}
		runs, err := collectElementText(body, "t")
		if err != nil {
			return nil, fmt.Errorf("malformed slide xml %s: %w", name, err)
		}
		if len(runs) > 0 {
			text.WriteString(strings.Join(runs, " "))
			text.WriteString("\n")
		}
	}

	return &ExtractedContent{
		Text:     strings.TrimSpace(text.String()),
		Metadata: map[string]string{"format": "pptx", "slides": fmt.Sprintf("%d", len(slides))},
	}, nil
}

// extractXlsx pulls the shared string table plus inline sheet strings.
func (e *OfficeExtractor) extractXlsx(ctx context.Context, r *zip.Reader) (*ExtractedContent, error) {
	var text strings.Builder

	if body, err := readArchivePart(r, "xl/sharedStrings.xml"); err == nil {
		runs, err := collectElementText(body, "t")
		if err != nil {
			return nil, fmt.Errorf("malformed shared strings: %w", err)
		}
		for _, run := range runs {
			text.WriteString(run)
			text.WriteString("\n")
		}
	}

	// Inline strings live in the worksheets themselves (<is><t>).
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !strings.HasPrefix(f.Name, "xl/worksheets/") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		body, err := readArchivePart(r, f.Name)
		if err != nil {
			continue
		}
		runs, err := collectInlineStrings(body)
		if err != nil {
			continue
		}
		for _, run := range runs {
			text.WriteString(run)
			text.WriteString("\n")
		}
	}

	return &ExtractedContent{
		Text:     strings.TrimSpace(text.String()),
		Metadata: map[string]string{"format": "xlsx"},
	}, nil
}

// coreTitle reads dc:title from docProps/core.xml, empty when absent.
func (e *OfficeExtractor) coreTitle(r *zip.Reader) string {
	body, err := readArchivePart(r, "docProps/core.xml")
	if err != nil {
		return ""
	}
	runs, err := collectElementText(body, "title")
	if err != nil || len(runs) == 0 {
		return ""
	}
	return strings.TrimSpace(runs[0])
}

// readArchivePart reads one named part of the archive, size-capped.
func readArchivePart(r *zip.Reader, name string) ([]byte, error) {
	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer func() { _ = rc.Close() }()
		return io.ReadAll(io.LimitReader(rc, maxOfficePartBytes))
	}
	return nil, fmt.Errorf("part not found: %s", name)
}

// collectElementText returns the character data of every element with
// the given local name, namespace-agnostic.
func collectElementText(body []byte, local string) ([]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	var runs []string
	depth := 0
	var current strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == local {
				depth++
			}
		case xml.EndElement:
			if t.Name.Local == local && depth > 0 {
				depth--
				if depth == 0 {
					runs = append(runs, current.String())
					current.Reset()
				}
			}
		case xml.CharData:
			if depth > 0 {
				current.Write(t)
			}
		}
	}
	return runs, nil
}

// collectInlineStrings returns the t runs nested under is elements of
// a worksheet.
func collectInlineStrings(body []byte) ([]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	var runs []string
	inInline := false
	inText := false
	var current strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "is":
				inInline = true
			case "t":
				if inInline {
					inText = true
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "is":
				inInline = false
			case "t":
				if inText {
					runs = append(runs, current.String())
					current.Reset()
					inText = false
				}
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return runs, nil
}

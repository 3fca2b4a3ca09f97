package httpapi

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

var ErrUnsupportedFormat = errors.New("unsupported manuscript format")

// extractRawText converts an uploaded manuscript into plain UTF-8 text.
// Text-like formats pass through with control characters stripped; docx is
// unpacked and flattened paragraph by paragraph.
func extractRawText(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".md", ".tex":
		return sanitizeText(string(data)), nil
	case ".docx":
		return extractDocx(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// sanitizeText drops control characters other than newline and tab, and
// replaces invalid UTF-8 bytes so downstream prompts stay well-formed.
func sanitizeText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r == '\r':
			// dropped: CRLF collapses to LF
		case r < 0x20 || r == 0x7f:
			// drop
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

var (
	docxParaClose = regexp.MustCompile(`</w:p>`)
	docxTabTag    = regexp.MustCompile(`<w:tab[^>]*/>`)
	docxBreakTag  = regexp.MustCompile(`<w:br[^>]*/>`)
	docxAnyTag    = regexp.MustCompile(`<[^>]+>`)
)

// extractDocx pulls word/document.xml out of the OOXML zip and strips the
// markup, preserving paragraph boundaries as blank lines.
func extractDocx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}
	var doc []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		doc, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml: %w", err)
		}
		break
	}
	if doc == nil {
		return "", errors.New("docx missing word/document.xml")
	}

	xml := string(doc)
	xml = docxParaClose.ReplaceAllString(xml, "\n\n")
	xml = docxTabTag.ReplaceAllString(xml, "\t")
	xml = docxBreakTag.ReplaceAllString(xml, "\n")
	xml = docxAnyTag.ReplaceAllString(xml, "")
	xml = unescapeXMLEntities(xml)

	// Collapse runs of blank lines left behind by empty paragraphs.
	lines := strings.Split(xml, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.TrimSpace(trimmed) == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, trimmed)
		blank = false
	}
	return sanitizeText(strings.Join(out, "\n")), nil
}

func unescapeXMLEntities(s string) string {
	r := strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
		"&amp;", "&",
	)
	return r.Replace(s)
}

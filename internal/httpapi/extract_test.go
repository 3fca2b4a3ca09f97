package httpapi

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestExtractPlainTextFormats(t *testing.T) {
	for _, name := range []string{"paper.txt", "paper.md", "paper.tex", "PAPER.TXT"} {
		got, err := extractRawText(name, []byte("Title\n\nbody text"))
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if got != "Title\n\nbody text" {
			t.Errorf("%s: got %q", name, got)
		}
	}
}

func TestExtractUnsupportedFormat(t *testing.T) {
	_, err := extractRawText("paper.pdf", []byte("%PDF"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v", err)
	}
}

func TestSanitizeText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"a\r\nb", "a\nb"},
		{"a\x00b\x07c", "abc"},
		{"keep\ttabs\nand newlines", "keep\ttabs\nand newlines"},
		{"  padded  ", "padded"},
	}
	for _, c := range cases {
		if got := sanitizeText(c.in); got != c.want {
			t.Errorf("sanitizeText(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fw, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(documentXML)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractDocx(t *testing.T) {
	xml := `<?xml version="1.0"?><w:document><w:body>` +
		`<w:p><w:r><w:t>My Paper</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>First paragraph with &amp; entity.</w:t></w:r></w:p>` +
		`<w:p></w:p>` +
		`<w:p><w:r><w:t>Second</w:t></w:r><w:tab/><w:r><w:t>paragraph.</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	got, err := extractRawText("paper.docx", buildDocx(t, xml))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	for _, want := range []string{"My Paper", "First paragraph with & entity.", "Second\tparagraph."} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	// Paragraphs are separated by blank lines.
	if !strings.Contains(got, "My Paper\n\n") {
		t.Errorf("paragraph boundary missing:\n%q", got)
	}
}

func TestExtractDocxMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fw, _ := zw.Create("word/other.xml")
	fw.Write([]byte("<w:document/>"))
	zw.Close()

	if _, err := extractRawText("paper.docx", buf.Bytes()); err == nil {
		t.Fatal("expected error for docx without document.xml")
	}
}

func TestExtractDocxNotAZip(t *testing.T) {
	if _, err := extractRawText("paper.docx", []byte("not a zip")); err == nil {
		t.Fatal("expected archive error")
	}
}

func TestUploadExt(t *testing.T) {
	cases := map[string]string{
		"a.md":     ".md",
		"a.TEX":    ".tex",
		"a.txt":    ".txt",
		"a.docx":   ".txt",
		"noext":    ".txt",
		"a.docx.x": ".txt",
	}
	for in, want := range cases {
		if got := uploadExt(in); got != want {
			t.Errorf("uploadExt(%q) = %q, want %q", in, got, want)
		}
	}
}

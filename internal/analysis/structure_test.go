package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestFallbackStructureBasicManuscript(t *testing.T) {
	raw := "My Paper\n\nAbstract\nWe study X.\n\nIntroduction\nPara one about the problem.\n\nPara two about the approach.\n\nResults\nWe found Y.\n"
	d := FallbackStructure(raw)

	if d.Title != "My Paper" {
		t.Fatalf("title = %q", d.Title)
	}
	if d.Abstract != "We study X." {
		t.Fatalf("abstract = %q", d.Abstract)
	}
	if len(d.Sections) != 2 {
		t.Fatalf("sections = %+v", d.Sections)
	}
	if d.Sections[0].Name != "Introduction" || len(d.Sections[0].Paragraphs) != 2 {
		t.Fatalf("introduction = %+v", d.Sections[0])
	}
	if d.Sections[1].Name != "Results" || d.Sections[1].Paragraphs[0] != "We found Y." {
		t.Fatalf("results = %+v", d.Sections[1])
	}
}

func TestFallbackStructureInlineAbstract(t *testing.T) {
	raw := "Title Line\n\nAbstract: We measured Z in the field.\n\nMethods\nSamples were collected."
	d := FallbackStructure(raw)
	if d.Abstract != "We measured Z in the field." {
		t.Fatalf("abstract = %q", d.Abstract)
	}
}

func TestFallbackStructureTotality(t *testing.T) {
	for _, raw := range []string{"", "   \n\n  ", "single line only"} {
		d := FallbackStructure(raw)
		if d.Title == "" {
			t.Errorf("input %q: empty title", raw)
		}
		if len(d.Sections) == 0 {
			t.Errorf("input %q: no sections", raw)
			continue
		}
		if d.ParagraphCount() == 0 {
			t.Errorf("input %q: no paragraphs", raw)
		}
		for _, s := range d.Sections {
			for _, p := range s.Paragraphs {
				if strings.TrimSpace(p) == "" {
					t.Errorf("input %q: empty paragraph in %q", raw, s.Name)
				}
			}
		}
	}
}

func TestFallbackStructureNoHeadings(t *testing.T) {
	raw := "A Study\n\nfirst paragraph of prose here.\n\nsecond paragraph of prose here."
	d := FallbackStructure(raw)
	if len(d.Sections) != 1 || d.Sections[0].Name != "Content" {
		t.Fatalf("sections = %+v", d.Sections)
	}
	if len(d.Sections[0].Paragraphs) != 2 {
		t.Fatalf("paragraphs = %+v", d.Sections[0].Paragraphs)
	}
}

func TestIsHeading(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"Introduction", true},
		{"METHODS AND DATA", true},
		{"2. Experimental Setup", true},
		{"IV. Evaluation", true},
		{"Discussion:", true},
		{"plain lowercase prose sentence", false},
		{"", false},
		{strings.Repeat("X", 100), false},
	}
	for _, c := range cases {
		if got := isHeading(c.line); got != c.want {
			t.Errorf("isHeading(%q) = %v, want %v", c.line, got, c.want)
		}
	}
}

func TestHeadingNameStripsNumbering(t *testing.T) {
	if got := headingName("3. Results and Analysis"); got != "Results and Analysis" {
		t.Fatalf("headingName = %q", got)
	}
}

func TestExtractPrefersOracle(t *testing.T) {
	caller := &fakeCaller{responses: []string{
		`{"title":"Oracle Title","abstract":" padded ","sections":[{"name":"Intro","paragraphs":["p1"," p2 "]}]}`,
	}}
	e := NewStructureExtractor(caller)
	d := e.Extract(context.Background(), "ignored raw text")
	if d.Title != "Oracle Title" || d.Abstract != "padded" {
		t.Fatalf("structure = %+v", d)
	}
	if len(d.Sections) != 1 || d.Sections[0].Paragraphs[1] != "p2" {
		t.Fatalf("sections = %+v", d.Sections)
	}
}

func TestExtractFallsBackOnOracleFailure(t *testing.T) {
	caller := &fakeCaller{errs: []error{
		errors.New("status code: 400"),
	}}
	e := NewStructureExtractor(caller)
	d := e.Extract(context.Background(), "Fallback Title\n\nIntroduction\nbody paragraph here.")
	if d.Title != "Fallback Title" {
		t.Fatalf("expected heuristic structure, got %+v", d)
	}
}

func TestExtractFallsBackOnInvalidStructure(t *testing.T) {
	// Parseable JSON that fails structural validation on both attempts.
	caller := &fakeCaller{responses: []string{
		`{"title":"","sections":[]}`,
		`{"title":"","sections":[]}`,
	}}
	e := NewStructureExtractor(caller)
	d := e.Extract(context.Background(), "Heuristic Title\n\nsome body text here.")
	if d.Title != "Heuristic Title" {
		t.Fatalf("expected heuristic structure, got %+v", d)
	}
}

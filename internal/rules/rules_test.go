package rules

import (
	"strings"
	"testing"
)

func TestLoadEmbeddedCatalogs(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Paragraph) != 5 {
		t.Fatalf("expected 5 paragraph rules, got %d", len(c.Paragraph))
	}
	if len(c.Document) != 7 {
		t.Fatalf("expected 7 document rules, got %d", len(c.Document))
	}
	for _, r := range append(append([]Rule{}, c.Paragraph...), c.Document...) {
		if r.ID == "" || r.Title == "" || r.FullText == "" {
			t.Errorf("rule %d has empty fields: %+v", r.OriginalRuleNumber, r)
		}
		if len(r.Checkpoints) == 0 {
			t.Errorf("rule %q has no checkpoints", r.ID)
		}
	}
}

func TestTitleForKnownAndUnknown(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := c.TitleFor(4); got == "" {
		t.Fatal("expected a title for rule 4")
	}
	if got := c.TitleFor(99); got != "" {
		t.Fatalf("expected empty title for unknown rule, got %q", got)
	}
}

func TestTagFormat(t *testing.T) {
	if got := Tag(6); got != "rule 6" {
		t.Fatalf("Tag(6) = %q", got)
	}
}

func TestChecklistBlockEnumeratesCheckpoints(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	block := ChecklistBlock(c.Paragraph)
	for _, r := range c.Paragraph {
		if !strings.Contains(block, r.Title) {
			t.Errorf("block missing rule title %q", r.Title)
		}
	}
	// Checkpoint lines are numbered rule.checkpoint.
	if !strings.Contains(block, "4.1 ") {
		t.Error("block missing checkpoint numbering for rule 4")
	}
}

func TestNewCatalogRejectsDuplicateNumbers(t *testing.T) {
	r := Rule{ID: "a", OriginalRuleNumber: 1, Title: "t", FullText: "f",
		Checkpoints: []Checkpoint{{Description: "d"}}}
	dup := r
	dup.ID = "b"
	if _, err := newCatalog([]Rule{r, dup}, nil); err == nil {
		t.Fatal("expected duplicate rule number error")
	}
}

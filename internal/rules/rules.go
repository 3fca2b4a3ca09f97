// Package rules loads the two fixed scientific-writing rule catalogs
// (paragraph-scope and document-scope) used to ground evaluator prompts
// and to resolve rule-number tags back to human-readable titles.
package rules

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

//go:embed data/paragraph_rules.json data/document_rules.json
var catalogFS embed.FS

// Checkpoint is a single concrete evaluation criterion belonging to a rule.
type Checkpoint struct {
	Description string `json:"description"`
}

// Rule is one externally curated scientific-writing rule. Immutable after load.
type Rule struct {
	ID                 string       `json:"id"`
	OriginalRuleNumber int          `json:"original_rule_number"`
	Title              string       `json:"title"`
	FullText           string       `json:"full_text"`
	Checkpoints        []Checkpoint `json:"checkpoints"`
}

type catalogFile struct {
	Rules []Rule `json:"rules"`
}

// Catalog holds both rule sets. It is loaded once at process start and is
// read-only thereafter; every component that needs rules receives it by
// reference.
type Catalog struct {
	Paragraph []Rule
	Document  []Rule

	byNumber map[int]Rule
}

// Load reads the embedded catalogs.
func Load() (*Catalog, error) {
	para, err := readCatalog(catalogFS, "data/paragraph_rules.json")
	if err != nil {
		return nil, fmt.Errorf("paragraph catalog: %w", err)
	}
	doc, err := readCatalog(catalogFS, "data/document_rules.json")
	if err != nil {
		return nil, fmt.Errorf("document catalog: %w", err)
	}
	return newCatalog(para, doc)
}

// LoadFiles reads external catalog files, for deployments that override the
// embedded rule sets.
func LoadFiles(paragraphPath, documentPath string) (*Catalog, error) {
	para, err := readCatalogFile(paragraphPath)
	if err != nil {
		return nil, fmt.Errorf("paragraph catalog: %w", err)
	}
	doc, err := readCatalogFile(documentPath)
	if err != nil {
		return nil, fmt.Errorf("document catalog: %w", err)
	}
	return newCatalog(para, doc)
}

func newCatalog(para, doc []Rule) (*Catalog, error) {
	c := &Catalog{Paragraph: para, Document: doc, byNumber: map[int]Rule{}}
	for _, r := range append(append([]Rule{}, para...), doc...) {
		if strings.TrimSpace(r.ID) == "" {
			return nil, fmt.Errorf("rule %d has empty id", r.OriginalRuleNumber)
		}
		if len(r.Checkpoints) == 0 {
			return nil, fmt.Errorf("rule %q has no checkpoints", r.ID)
		}
		if _, dup := c.byNumber[r.OriginalRuleNumber]; dup {
			return nil, fmt.Errorf("duplicate original rule number %d", r.OriginalRuleNumber)
		}
		c.byNumber[r.OriginalRuleNumber] = r
	}
	return c, nil
}

func readCatalog(fsys embed.FS, name string) ([]Rule, error) {
	blob, err := fsys.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return decodeCatalog(blob)
}

func readCatalogFile(path string) ([]Rule, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeCatalog(blob)
}

func decodeCatalog(blob []byte) ([]Rule, error) {
	var f catalogFile
	if err := json.Unmarshal(blob, &f); err != nil {
		return nil, err
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("catalog contains no rules")
	}
	return f.Rules, nil
}

// TitleFor resolves an original rule number to its title for display.
// Returns the empty string for unknown numbers; rule tags are traceability
// only and never drive control flow.
func (c *Catalog) TitleFor(originalRuleNumber int) string {
	return c.byNumber[originalRuleNumber].Title
}

// Tag builds the canonical "rule N" tag for an original rule number.
func Tag(originalRuleNumber int) string {
	return fmt.Sprintf("rule %d", originalRuleNumber)
}

// ChecklistBlock renders a rule set as an enumerated prompt block, one line
// per checkpoint, grouped under the owning rule.
func ChecklistBlock(set []Rule) string {
	var b strings.Builder
	for _, r := range set {
		fmt.Fprintf(&b, "Rule %d (%s): %s\n", r.OriginalRuleNumber, r.Title, r.FullText)
		for i, cp := range r.Checkpoints {
			fmt.Fprintf(&b, "  %d.%d %s\n", r.OriginalRuleNumber, i+1, cp.Description)
		}
	}
	return b.String()
}

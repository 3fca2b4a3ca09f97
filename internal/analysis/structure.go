package analysis

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
)

const structureSchemaPrompt = `Required JSON schema:
{
  "title": "string (the manuscript title)",
  "abstract": "string (the abstract text, empty if none)",
  "sections": [
    {"name": "string (section heading)", "paragraphs": ["string (one paragraph of body text, verbatim)"]}
  ]
}`

// StructureExtractor turns raw manuscript text into a DocumentStructure.
// Extraction is total: any oracle failure, malformed reply, or structurally
// invalid reply falls through to the deterministic heuristic, so downstream
// stages can always rely on a valid structure.
type StructureExtractor struct {
	exec *Executor
}

// NewStructureExtractor builds an extractor. caller may be nil, in which case
// only the heuristic path runs.
func NewStructureExtractor(caller Caller) *StructureExtractor {
	e := &StructureExtractor{}
	if caller != nil {
		e.exec = NewExecutor(caller)
	}
	return e
}

// Extract never fails. The oracle is tried first; the fallback guarantees a
// structurally valid, if imprecise, result.
func (e *StructureExtractor) Extract(ctx context.Context, rawText string) DocumentStructure {
	if e.exec != nil {
		prompt := fmt.Sprintf(
			"Extract the structural model of this scientific manuscript: title, abstract, and the ordered sections with their ordered paragraphs. Reproduce paragraph text verbatim; do not summarize.\n\n%s\n\nManuscript text:\n%s",
			structureSchemaPrompt,
			rawText,
		)
		var out DocumentStructure
		_, err := e.exec.Run(ctx, "structure", prompt, &out, func() error { return validateStructure(out) })
		if err == nil {
			return normalizeStructure(out)
		}
		log.Printf("structure extraction via oracle failed, using heuristic: %v", err)
	}
	return FallbackStructure(rawText)
}

func validateStructure(d DocumentStructure) error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("title is empty")
	}
	if len(d.Sections) == 0 {
		return fmt.Errorf("no sections")
	}
	for _, s := range d.Sections {
		if len(s.Paragraphs) == 0 {
			return fmt.Errorf("section %q has no paragraphs", s.Name)
		}
		for _, p := range s.Paragraphs {
			if strings.TrimSpace(p) == "" {
				return fmt.Errorf("section %q contains an empty paragraph", s.Name)
			}
		}
	}
	return nil
}

func normalizeStructure(d DocumentStructure) DocumentStructure {
	out := DocumentStructure{
		Title:    strings.TrimSpace(d.Title),
		Abstract: strings.TrimSpace(d.Abstract),
	}
	for _, s := range d.Sections {
		sec := Section{Name: strings.TrimSpace(s.Name)}
		if sec.Name == "" {
			sec.Name = "Content"
		}
		for _, p := range s.Paragraphs {
			if t := strings.TrimSpace(p); t != "" {
				sec.Paragraphs = append(sec.Paragraphs, t)
			}
		}
		if len(sec.Paragraphs) > 0 {
			out.Sections = append(out.Sections, sec)
		}
	}
	return out
}

// canonicalSections is the closed set of headings the heuristic recognizes
// even when they are not typeset as headings.
var canonicalSections = map[string]bool{
	"introduction":          true,
	"background":            true,
	"related work":          true,
	"methods":               true,
	"materials and methods": true,
	"methodology":           true,
	"results":               true,
	"discussion":            true,
	"conclusion":            true,
	"conclusions":           true,
	"acknowledgments":       true,
	"acknowledgements":      true,
	"references":            true,
}

var numberedHeading = regexp.MustCompile(`^(\d+(\.\d+)*\.?|[IVXLC]+\.)\s+\S`)

func isHeading(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" || len(t) > 80 {
		return false
	}
	if canonicalSections[strings.ToLower(strings.TrimSuffix(t, ":"))] {
		return true
	}
	if numberedHeading.MatchString(t) {
		return true
	}
	// ALL-CAPS line: has letters, none of them lowercase.
	hasLetter := false
	for _, r := range t {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}

func headingName(line string) string {
	t := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ":"))
	if m := numberedHeading.FindString(t); m != "" {
		t = strings.TrimSpace(strings.TrimPrefix(t, strings.Fields(m)[0]))
	}
	return t
}

func isAbstractHeading(line string) bool {
	t := strings.ToLower(strings.TrimSpace(line))
	return t == "abstract" || t == "abstract:" || strings.HasPrefix(t, "abstract")
}

// FallbackStructure is the deterministic heuristic: first non-empty line is
// the title, an "abstract" line starts the abstract (which runs to the next
// heading), and the remaining text is segmented into sections at heading
// boundaries with blank-line paragraph breaks. With no headings at all, a
// single synthetic "Content" section holds everything.
func FallbackStructure(rawText string) DocumentStructure {
	lines := strings.Split(strings.ReplaceAll(rawText, "\r\n", "\n"), "\n")

	var d DocumentStructure
	i := 0
	for ; i < len(lines); i++ {
		if t := strings.TrimSpace(lines[i]); t != "" {
			d.Title = t
			i++
			break
		}
	}
	if d.Title == "" {
		d.Title = "Untitled Manuscript"
	}

	// Abstract scan: a line equal to or starting with "abstract" opens the
	// abstract, which collects lines until the next heading.
	body := lines[min(i, len(lines)):]
	var rest []string
	for j := 0; j < len(body); j++ {
		if isAbstractHeading(body[j]) {
			inline := strings.TrimSpace(trimAbstractPrefix(body[j]))
			var abs []string
			if inline != "" {
				abs = append(abs, inline)
			}
			k := j + 1
			for ; k < len(body); k++ {
				if isHeading(body[k]) {
					break
				}
				if t := strings.TrimSpace(body[k]); t != "" {
					abs = append(abs, t)
				}
			}
			d.Abstract = strings.Join(abs, " ")
			rest = append(append([]string{}, body[:j]...), body[k:]...)
			break
		}
	}
	if rest == nil {
		rest = body
	}

	current := Section{}
	flushParagraphs := func(block []string) {
		if len(block) == 0 {
			return
		}
		current.Paragraphs = append(current.Paragraphs, strings.Join(block, " "))
	}
	var block []string
	flushSection := func() {
		flushParagraphs(block)
		block = nil
		if len(current.Paragraphs) > 0 {
			name := current.Name
			if name == "" {
				name = "Content"
			}
			d.Sections = append(d.Sections, Section{Name: name, Paragraphs: current.Paragraphs})
		}
		current = Section{}
	}

	for _, line := range rest {
		t := strings.TrimSpace(line)
		switch {
		case t == "":
			flushParagraphs(block)
			block = nil
		case isHeading(t):
			flushSection()
			current.Name = headingName(t)
		default:
			block = append(block, t)
		}
	}
	flushSection()

	// Totality guarantee: at least one section with one paragraph.
	if len(d.Sections) == 0 {
		p := strings.TrimSpace(d.Abstract)
		if p == "" {
			p = d.Title
		}
		d.Sections = []Section{{Name: "Content", Paragraphs: []string{p}}}
	}
	return d
}

func trimAbstractPrefix(line string) string {
	t := strings.TrimSpace(line)
	for _, p := range []string{"Abstract:", "ABSTRACT:", "abstract:", "Abstract", "ABSTRACT", "abstract"} {
		if strings.HasPrefix(t, p) {
			return strings.TrimSpace(strings.TrimPrefix(t, p))
		}
	}
	return t
}

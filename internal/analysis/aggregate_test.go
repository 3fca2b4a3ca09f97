package analysis

import (
	"strings"
	"testing"
)

func fullAssessment(score int) DocumentAssessment {
	a := DocumentAssessment{}
	for _, key := range RequiredCriteria {
		a[key] = CriterionResult{Score: score, Assessment: "fine", Recommendation: "none"}
	}
	return a
}

func TestAggregateFillsMissingEvaluations(t *testing.T) {
	d := structureOf(2)
	res := Aggregate(d, Evaluation{}, nil, DocumentReview{}, "")

	if res.Title != "T" {
		t.Fatalf("title = %q", res.Title)
	}
	if len(res.Sections) != 1 || len(res.Sections[0].Paragraphs) != 2 {
		t.Fatalf("sections = %+v", res.Sections)
	}
	for _, p := range res.Sections[0].Paragraphs {
		if p.Text == "" {
			t.Error("filled evaluation lost the paragraph text")
		}
		if p.Summary != "Not evaluated." {
			t.Errorf("summary = %q", p.Summary)
		}
		if !p.Flags.AllTrue() {
			t.Error("unevaluated paragraph must not claim failures")
		}
		if p.Issues == nil {
			t.Error("issues must be non-nil")
		}
	}
	if res.DocumentAssessment == nil || res.MajorIssues == nil || res.OverallRecommendations == nil {
		t.Fatal("typed defaults must be non-nil")
	}
}

func TestAggregateRepairsFalseFlagWithoutIssue(t *testing.T) {
	d := structureOf(1)
	sections := []SectionResult{{
		Name: "A",
		Paragraphs: []Evaluation{{
			Text:    "paragraph text",
			Summary: "weak opening",
			Flags:   RuleFlags{CCCStructure: false, SentenceQuality: true, TopicContinuity: true, TerminologyConsistency: true, StructuralParallelism: true},
		}},
	}}
	res := Aggregate(d, Evaluation{}, sections, DocumentReview{}, "")

	p := res.Sections[0].Paragraphs[0]
	if p.Flags.CCCStructure {
		t.Fatal("flag should remain false")
	}
	if len(p.Issues) != 1 {
		t.Fatalf("expected one synthesized issue, got %+v", p.Issues)
	}
	is := p.Issues[0]
	if is.RuleTag != "rule 4" || is.Severity != SeverityMinor {
		t.Fatalf("synthesized issue = %+v", is)
	}
	if !strings.Contains(is.Issue, "rule 4") {
		t.Fatalf("issue text must carry the rule tag: %q", is.Issue)
	}
}

func TestAggregateForcesFlagFalseForTaggedIssue(t *testing.T) {
	d := structureOf(1)
	sections := []SectionResult{{
		Name: "A",
		Paragraphs: []Evaluation{{
			Text:    "paragraph text",
			Summary: "inconsistent naming",
			Flags:   allTrueFlags(),
			Issues: []Issue{{
				Issue:    "switches between 'subject' and 'participant'",
				Severity: SeverityMajor,
				RuleTag:  "rule 2",
			}},
		}},
	}}
	res := Aggregate(d, Evaluation{}, sections, DocumentReview{}, "")

	if res.Sections[0].Paragraphs[0].Flags.TerminologyConsistency {
		t.Fatal("rule 2 issue must force the terminology flag false")
	}
}

func TestAggregateTagsUntaggedIssuesAsSentenceQuality(t *testing.T) {
	d := structureOf(1)
	sections := []SectionResult{{
		Name: "A",
		Paragraphs: []Evaluation{{
			Text:    "paragraph text",
			Summary: "verbose",
			Flags:   allTrueFlags(),
			Issues:  []Issue{{Issue: "run-on sentences", Severity: SeverityMinor}},
		}},
	}}
	res := Aggregate(d, Evaluation{}, sections, DocumentReview{}, "")

	p := res.Sections[0].Paragraphs[0]
	if p.Issues[0].RuleTag != "rule 3" {
		t.Fatalf("untagged issue tag = %q", p.Issues[0].RuleTag)
	}
	if p.Flags.SentenceQuality {
		t.Fatal("attributed issue must flip its flag")
	}
}

func TestAggregateReattributesUnknownRuleTags(t *testing.T) {
	d := structureOf(1)
	sections := []SectionResult{{
		Name: "A",
		Paragraphs: []Evaluation{{
			Text:    "paragraph text",
			Summary: "verbose",
			Flags:   allTrueFlags(),
			Issues:  []Issue{{Issue: "rule 99: something", Severity: SeverityMinor, RuleTag: "rule 99"}},
		}},
	}}
	res := Aggregate(d, Evaluation{}, sections, DocumentReview{}, "")

	p := res.Sections[0].Paragraphs[0]
	if p.Issues[0].RuleTag != "rule 3" {
		t.Fatalf("unknown rule tag rewritten to %q", p.Issues[0].RuleTag)
	}
	if p.Flags.SentenceQuality {
		t.Fatal("re-attributed issue must flip its flag")
	}
	if p.Flags.AllTrue() && len(p.Issues) > 0 {
		t.Fatal("all flags true with issues present")
	}
}

func TestAggregateRecomputesStatistics(t *testing.T) {
	d := structureOf(2)
	sections := []SectionResult{{
		Name: "A",
		Paragraphs: []Evaluation{
			{
				Text: "paragraph text", Summary: "s", Flags: allTrueFlags(),
				Issues: []Issue{
					{Issue: "a", Severity: SeverityCritical, RuleTag: "rule 3"},
					{Issue: "b", Severity: SeverityMinor, RuleTag: "rule 5"},
				},
			},
			{Text: "paragraph text", Summary: "s", Flags: allTrueFlags()},
		},
	}}
	review := DocumentReview{
		Assessment:  fullAssessment(6),
		MajorIssues: []Issue{{Issue: "doc", Severity: SeverityMajor}},
	}
	abstract := Evaluation{
		Text: "abs", Summary: "s", Flags: allTrueFlags(),
		Issues: []Issue{{Issue: "abs issue", Severity: SeverityMajor, RuleTag: "rule 3"}},
	}
	res := Aggregate(d, abstract, sections, review, "")

	want := Statistics{Critical: 1, Major: 2, Minor: 1}
	if res.Statistics != want {
		t.Fatalf("statistics = %+v, want %+v", res.Statistics, want)
	}
}

func TestAggregatePrioritizedOrdering(t *testing.T) {
	d := structureOf(2)
	sections := []SectionResult{{
		Name: "A",
		Paragraphs: []Evaluation{
			{
				Text: "first paragraph text", Summary: "s", Flags: allTrueFlags(),
				Issues: []Issue{{Issue: "minor thing", Severity: SeverityMinor, RuleTag: "rule 3"}},
			},
			{
				Text: "second paragraph text", Summary: "s", Flags: allTrueFlags(),
				Issues: []Issue{{Issue: "critical thing", Severity: SeverityCritical, RuleTag: "rule 4"}},
			},
		},
	}}
	review := DocumentReview{
		Assessment:  fullAssessment(5),
		MajorIssues: []Issue{{Issue: "doc-level", Severity: SeverityMajor}},
	}
	res := Aggregate(d, Evaluation{}, sections, review, "")

	got := res.PrioritizedIssues
	if len(got) != 3 {
		t.Fatalf("prioritized = %+v", got)
	}
	if got[0].Severity != SeverityCritical || got[1].Severity != SeverityMajor || got[2].Severity != SeverityMinor {
		t.Fatalf("ordering = %v %v %v", got[0].Severity, got[1].Severity, got[2].Severity)
	}
	if got[1].Location != "document" {
		t.Fatalf("document issue location = %q", got[1].Location)
	}
	if !strings.Contains(got[0].Location, "A: paragraph 2") {
		t.Fatalf("paragraph issue location = %q", got[0].Location)
	}
}

func TestAggregateKeepsAbstractNotPresentSummary(t *testing.T) {
	d := structureOf(1)
	abstract := Evaluation{Flags: allTrueFlags(), Summary: "No abstract present."}
	res := Aggregate(d, abstract, nil, DocumentReview{}, "")
	if res.Abstract.Summary != "No abstract present." {
		t.Fatalf("abstract summary = %q", res.Abstract.Summary)
	}
	if !res.Abstract.Flags.AllTrue() {
		t.Fatal("missing abstract must not claim paragraph-rule failures")
	}
}

func TestParagraphLocationFormat(t *testing.T) {
	loc := ParagraphLocation("Methods", 1, "This paragraph describes the sampling protocol in detail.")
	if !strings.HasPrefix(loc, "Methods: paragraph 2 (starts: ") {
		t.Fatalf("location = %q", loc)
	}
}

func TestParseRuleTag(t *testing.T) {
	if parseRuleTag("rule 6") != 6 {
		t.Fatal("parseRuleTag failed on valid tag")
	}
	if parseRuleTag("nonsense") != 0 {
		t.Fatal("parseRuleTag must return 0 for unknown tags")
	}
}

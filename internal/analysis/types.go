package analysis

const (
	// MaxManuscriptChars caps the analyzable text; longer input is rejected
	// at intake, never silently truncated into the pipeline.
	MaxManuscriptChars = 100000
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityMajor, SeverityMinor:
		return true
	}
	return false
}

// order returns a sort key, lower sorts first.
func (s Severity) order() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityMajor:
		return 1
	case SeverityMinor:
		return 2
	default:
		return 3
	}
}

// Issue is a single piece of feedback. RuleTag, when present, is a
// "rule N" reference kept purely for traceability and display.
type Issue struct {
	Issue          string   `json:"issue"`
	Severity       Severity `json:"severity"`
	Recommendation string   `json:"recommendation"`
	Location       string   `json:"location,omitempty"`
	RuleTag        string   `json:"ruleTag,omitempty"`
}

// RuleFlags are the five boolean paragraph-rule compliance flags.
type RuleFlags struct {
	CCCStructure           bool `json:"cccStructure"`
	SentenceQuality        bool `json:"sentenceQuality"`
	TopicContinuity        bool `json:"topicContinuity"`
	TerminologyConsistency bool `json:"terminologyConsistency"`
	StructuralParallelism  bool `json:"structuralParallelism"`
}

func allTrueFlags() RuleFlags {
	return RuleFlags{
		CCCStructure:           true,
		SentenceQuality:        true,
		TopicContinuity:        true,
		TerminologyConsistency: true,
		StructuralParallelism:  true,
	}
}

// AllTrue reports whether every flag passed.
func (f RuleFlags) AllTrue() bool {
	return f.CCCStructure && f.SentenceQuality && f.TopicContinuity &&
		f.TerminologyConsistency && f.StructuralParallelism
}

// FlagNames lists the flags in canonical (display) order.
var FlagNames = []string{
	"cccStructure",
	"sentenceQuality",
	"topicContinuity",
	"terminologyConsistency",
	"structuralParallelism",
}

// flagRuleNumbers maps each flag to the paragraph rule it enforces,
// for tagging synthesized issues.
var flagRuleNumbers = map[string]int{
	"cccStructure":           4,
	"sentenceQuality":        3,
	"topicContinuity":        5,
	"terminologyConsistency": 2,
	"structuralParallelism":  6,
}

// Get returns the named flag's value; unknown names report true so they
// never trigger invariant repair.
func (f RuleFlags) Get(name string) bool {
	switch name {
	case "cccStructure":
		return f.CCCStructure
	case "sentenceQuality":
		return f.SentenceQuality
	case "topicContinuity":
		return f.TopicContinuity
	case "terminologyConsistency":
		return f.TerminologyConsistency
	case "structuralParallelism":
		return f.StructuralParallelism
	}
	return true
}

func (f *RuleFlags) set(name string, v bool) {
	switch name {
	case "cccStructure":
		f.CCCStructure = v
	case "sentenceQuality":
		f.SentenceQuality = v
	case "topicContinuity":
		f.TopicContinuity = v
	case "terminologyConsistency":
		f.TerminologyConsistency = v
	case "structuralParallelism":
		f.StructuralParallelism = v
	}
}

// Evaluation is the per-unit (abstract or paragraph) verdict. Invariant after
// aggregation: any false flag has at least one attributable issue, and an
// empty issue list implies all flags are true.
type Evaluation struct {
	Text    string    `json:"text"`
	Summary string    `json:"summary"`
	Flags   RuleFlags `json:"flags"`
	Issues  []Issue   `json:"issues"`
}

// Section is one structural section of the manuscript in source order.
type Section struct {
	Name       string   `json:"name"`
	Paragraphs []string `json:"paragraphs"`
}

// DocumentStructure is the structural model of the manuscript. Created by the
// structure extractor and immutable thereafter. Every paragraph is non-empty
// after trimming; no paragraph belongs to more than one section.
type DocumentStructure struct {
	Title    string    `json:"title"`
	Abstract string    `json:"abstract"`
	Sections []Section `json:"sections"`
}

// ParagraphCount returns the total paragraphs across all sections.
func (d DocumentStructure) ParagraphCount() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Paragraphs)
	}
	return n
}

// CriterionResult scores one document-level criterion.
type CriterionResult struct {
	Score          int    `json:"score"`
	Assessment     string `json:"assessment"`
	Recommendation string `json:"recommendation"`
}

// DocumentAssessment maps the seven fixed criteria to their results. A
// complete assessment contains every key in RequiredCriteria.
type DocumentAssessment map[string]CriterionResult

// RequiredCriteria are the seven assessment keys, in display order.
var RequiredCriteria = []string{
	"titleQuality",
	"abstractCompleteness",
	"introductionStructure",
	"resultsOrganization",
	"discussionQuality",
	"messageFocus",
	"topicOrganization",
}

// criterionLabels are the human-readable names used by the report renderer.
var criterionLabels = map[string]string{
	"titleQuality":          "Title quality",
	"abstractCompleteness":  "Abstract completeness",
	"introductionStructure": "Introduction structure",
	"resultsOrganization":   "Results organization",
	"discussionQuality":     "Discussion quality",
	"messageFocus":          "Message focus",
	"topicOrganization":     "Topic organization",
}

// DocumentReview carries the whole-document evaluator output before
// aggregation.
type DocumentReview struct {
	Assessment             DocumentAssessment `json:"documentAssessment"`
	MajorIssues            []Issue            `json:"majorIssues"`
	OverallRecommendations []string           `json:"overallRecommendations"`
}

// SectionResult pairs a section with its per-paragraph evaluations,
// positionally aligned with the structural section.
type SectionResult struct {
	Name       string       `json:"name"`
	Paragraphs []Evaluation `json:"paragraphs"`
}

// Statistics are derived severity counts. They are recomputed by the
// aggregator from the issues actually present; self-reported counts from the
// oracle are discarded.
type Statistics struct {
	Critical int `json:"critical"`
	Major    int `json:"major"`
	Minor    int `json:"minor"`
}

// AnalysisResult is the single typed output of one submission. Constructed
// once by the aggregator and never mutated; a failed or partial analysis
// still yields a fully-typed result with AnalysisError set.
type AnalysisResult struct {
	Title                  string             `json:"title"`
	Abstract               Evaluation         `json:"abstract"`
	DocumentAssessment     DocumentAssessment `json:"documentAssessment"`
	MajorIssues            []Issue            `json:"majorIssues"`
	PrioritizedIssues      []Issue            `json:"prioritizedIssues"`
	OverallRecommendations []string           `json:"overallRecommendations"`
	Statistics             Statistics         `json:"statistics"`
	Sections               []SectionResult    `json:"sections"`
	AnalysisError          string             `json:"analysisError,omitempty"`
}

// Package schema defines all canonical data types shared by the planner, the
// coverage ledger, the label engine and the skim report output format.
package schema

import "time"

// UnitKind names the addressable unit a document is measured in.
type UnitKind string

const (
	UnitLine  UnitKind = "line"
	UnitPage  UnitKind = "page"
	UnitBlock UnitKind = "block"
)

// Purpose records why a range was placed in a sample plan.
type Purpose string

const (
	PurposeBeginning    Purpose = "BEGINNING"
	PurposeQuarter      Purpose = "QUARTER"
	PurposeHalf         Purpose = "HALF"
	PurposeThreeQuarter Purpose = "THREE_QUARTER"
	PurposeEnd          Purpose = "END"
	PurposePeriodic     Purpose = "PERIODIC"
	// PurposeRequested marks ranges the caller asked for by number.
	PurposeRequested Purpose = "REQUESTED"
)

// CoverageStatus is the examination status of a coverage segment.
type CoverageStatus string

const (
	StatusExamined CoverageStatus = "EXAMINED"
	StatusSampled  CoverageStatus = "SAMPLED"
	StatusNotRead  CoverageStatus = "NOT_READ"
	// StatusPending marks planned ranges that have not been executed yet.
	StatusPending CoverageStatus = "PENDING"
)

// Label is the provenance label attached to every reported finding.
type Label string

const (
	LabelVerified Label = "VERIFIED"
	LabelSampled  Label = "SAMPLED"
	LabelInferred Label = "INFERRED"
	LabelUnknown  Label = "UNKNOWN"
)

// LimitationKind classifies an entry in the report's limitations list.
type LimitationKind string

const (
	LimitSizeEstimated    LimitationKind = "SIZE_ESTIMATED"
	LimitExtractionFailed LimitationKind = "EXTRACTION_FAILED"
	LimitPartialRead      LimitationKind = "PARTIAL_READ"
	LimitNotRead          LimitationKind = "NOT_READ"
	LimitFindingRejected  LimitationKind = "FINDING_REJECTED"
	LimitIncomplete       LimitationKind = "INCOMPLETE_BY_DESIGN"
)

// PlannedRange is one entry of a sample plan.
type PlannedRange struct {
	Range   Range   `json:"range"`
	Purpose Purpose `json:"purpose"`
}

// SamplePlan is the ordered, immutable set of ranges a session will read.
type SamplePlan struct {
	Locator string         `json:"locator"`
	Units   UnitKind       `json:"units"`
	Total   int            `json:"total"`
	Profile string         `json:"profile,omitempty"`
	Ranges  []PlannedRange `json:"ranges"`
	// Whole is set when the document is small enough to be read entirely.
	Whole bool `json:"whole,omitempty"`
	// SizeEstimated is set when the size probe failed and Total is an
	// assumed value rather than a measurement.
	SizeEstimated bool `json:"size_estimated,omitempty"`
	// Clipped is set when the source stopped reading the document before
	// its end; Total then counts only what was fetched.
	Clipped bool `json:"clipped,omitempty"`
}

// PlannedUnits returns the number of units covered by the plan.
func (p SamplePlan) PlannedUnits() int {
	n := 0
	for _, r := range p.Ranges {
		n += r.Range.Len()
	}
	return n
}

// Segment is a range tagged with exactly one coverage status.
type Segment struct {
	Range  Range          `json:"range"`
	Status CoverageStatus `json:"status"`
}

// UnitText is the extracted text of a single unit.
type UnitText struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Content is what an extraction collaborator returns for one range.
type Content struct {
	Range Range      `json:"range"`
	Units []UnitText `json:"units"`
	// Truncated is set when the collaborator stopped short of the range
	// because of its output ceiling. Units holds a contiguous prefix of the
	// range.
	Truncated bool `json:"truncated,omitempty"`
	// Partial is set when the last returned unit was itself cut to fit the
	// ceiling.
	Partial bool `json:"partial,omitempty"`
}

// Chars returns the total character count of the content.
func (c Content) Chars() int {
	n := 0
	for _, u := range c.Units {
		n += len([]rune(u.Text))
	}
	return n
}

// Heading is an entry returned by an optional structure collaborator.
type Heading struct {
	Unit  int    `json:"unit"`
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Candidate is an unvalidated finding proposed by a summarizer. It becomes a
// labeled finding only after the label engine accepts it.
type Candidate struct {
	Label    Label  `json:"label"`
	Content  string `json:"content"`
	Excerpt  string `json:"excerpt,omitempty"`
	Basis    string `json:"basis,omitempty"`
	Evidence *Range `json:"evidence,omitempty"`
}

// Sample is an executed range together with the text observed in it.
type Sample struct {
	Range   Range          `json:"range"`
	Purpose Purpose        `json:"purpose"`
	Status  CoverageStatus `json:"status"`
	Partial bool           `json:"partial,omitempty"`
	Units   []UnitText     `json:"units"`
}

// SummaryInput is everything a summarizer may look at. It carries only
// observed text; unread units are visible solely through the coverage map.
type SummaryInput struct {
	Locator     string    `json:"locator"`
	Units       UnitKind  `json:"units"`
	Total       int       `json:"total"`
	CoverageMap []Segment `json:"coverage_map"`
	Samples     []Sample  `json:"samples"`
	Headings    []Heading `json:"headings,omitempty"`
}

// Limitation is one statement in the report's limitations list.
type Limitation struct {
	Kind    LimitationKind `json:"kind"`
	Range   *Range         `json:"range,omitempty"`
	Message string         `json:"message"`
}

// Report is the top-level output document.
type Report struct {
	Tool        string       `json:"tool"`
	Version     string       `json:"version"`
	SessionID   string       `json:"session_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	Source      Source       `json:"source"`
	Summary     Summary      `json:"summary"`
	Findings    Findings     `json:"findings"`
	CoverageMap []Segment    `json:"coverage_map"`
	Limitations []Limitation `json:"limitations"`
	Elided      Elision      `json:"elided"`
	Budget      BudgetUsage  `json:"budget"`
}

// Source describes the document that was skimmed.
type Source struct {
	Locator       string   `json:"locator"`
	Units         UnitKind `json:"units"`
	Total         int      `json:"total"`
	SizeEstimated bool     `json:"size_estimated"`
	Clipped       bool     `json:"clipped,omitempty"`
	Profile       string   `json:"profile,omitempty"`
}

// Summary holds the computed coverage figures.
type Summary struct {
	CoveragePercent float64 `json:"coverage_percent"`
	ExaminedUnits   int     `json:"examined_units"`
	SampledUnits    int     `json:"sampled_units"`
	NotReadUnits    int     `json:"not_read_units"`
	PlannedRanges   int     `json:"planned_ranges"`
	FailedRanges    int     `json:"failed_ranges"`
	CharsRead       int     `json:"chars_read"`
}

// Findings groups reported findings by label.
type Findings struct {
	Verified []ReportFinding `json:"verified"`
	Sampled  []ReportFinding `json:"sampled"`
	Inferred []ReportFinding `json:"inferred"`
	Unknown  []ReportFinding `json:"unknown"`
}

// Count returns the number of findings across all labels.
func (f Findings) Count() int {
	return len(f.Verified) + len(f.Sampled) + len(f.Inferred) + len(f.Unknown)
}

// ReportFinding is the serialized form of a labeled finding.
type ReportFinding struct {
	Label      Label  `json:"label"`
	Content    string `json:"content"`
	Excerpt    string `json:"excerpt,omitempty"`
	Basis      string `json:"basis,omitempty"`
	Evidence   *Range `json:"evidence,omitempty"`
	Compressed bool   `json:"compressed,omitempty"`
}

// Elision states how many findings and limitations were left out because the
// budget could not hold them.
type Elision struct {
	Findings    int           `json:"findings"`
	ByLabel     map[Label]int `json:"by_label,omitempty"`
	Limitations int           `json:"limitations"`
	Note        string        `json:"note,omitempty"`
}

// BudgetUsage records word-unit consumption of the report.
type BudgetUsage struct {
	Used    int `json:"used"`
	Total   int `json:"total"`
	StepCap int `json:"step_cap"`
}

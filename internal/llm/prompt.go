package llm

import (
	"fmt"
	"strings"

	"github.com/dshills/skim/internal/schema"
)

// buildSystemPrompt assembles the LLM system prompt.
func buildSystemPrompt(addendum string) string {
	var sb strings.Builder

	sb.WriteString("You are skim, a bounded-budget document reader. You were shown only the " +
		"SAMPLED UNITS listed in the user message; the rest of the document was not read.\n\n")

	sb.WriteString("Output ONLY valid JSON conforming to the schema below. " +
		"No prose, no markdown, no explanation outside the JSON.\n\n")

	sb.WriteString("Every finding carries exactly one label:\n" +
		"  VERIFIED: a direct quote. \"excerpt\" must be copied verbatim from the units named in " +
		"\"evidence\", and evidence spans at most 3 units.\n" +
		"  SAMPLED: a statement about the text of the units in \"evidence\"; every unit must be one you were shown.\n" +
		"  INFERRED: a conclusion that goes beyond the text. State the reasoning in \"basis\". " +
		"Evidence is optional and must be shown units.\n" +
		"  UNKNOWN: an explicit statement that a range was not read. Evidence must be a NOT_READ range.\n\n")

	sb.WriteString("Never describe the content of units you were not shown. " +
		"Never claim the document was read in full. " +
		"Findings that break these rules are discarded and reported as rejected.\n\n")

	if addendum != "" {
		sb.WriteString(addendum)
		sb.WriteString("\n\n")
	}

	sb.WriteString(outputSchema)
	return sb.String()
}

// outputSchema is the JSON shape shown to the LLM.
const outputSchema = `Output schema (JSON only):
{
  "findings": [
    {
      "label": "VERIFIED|SAMPLED|INFERRED|UNKNOWN",
      "content": "one-sentence finding",
      "excerpt": "verbatim quote (VERIFIED only)",
      "basis": "reasoning (INFERRED only)",
      "evidence": {"start": 12, "end": 14}
    }
  ]
}
`

// buildUserPrompt renders the document header, the coverage map, observed
// headings and the sampled units with their indexes.
func buildUserPrompt(in schema.SummaryInput) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "DOCUMENT: %s\nUNITS: %d %ss\n", in.Locator, in.Total, in.Units)

	sb.WriteString("\nCOVERAGE MAP:\n")
	for _, seg := range in.CoverageMap {
		fmt.Fprintf(&sb, "  %s %s\n", seg.Range, seg.Status)
	}

	if len(in.Headings) > 0 {
		sb.WriteString("\nHEADINGS SEEN:\n")
		for _, h := range in.Headings {
			fmt.Fprintf(&sb, "  %s %d (level %d): %s\n", in.Units, h.Unit, h.Level, h.Text)
		}
	}

	sb.WriteString("\nSAMPLED UNITS:\n")
	for _, s := range in.Samples {
		fmt.Fprintf(&sb, "--- %ss %s (%s, %s", in.Units, s.Range, s.Purpose, s.Status)
		if s.Partial {
			sb.WriteString(", partial")
		}
		sb.WriteString(") ---\n")
		for _, u := range s.Units {
			fmt.Fprintf(&sb, "[%d] %s\n", u.Index, u.Text)
		}
	}

	sb.WriteString("\nProduce the JSON findings now.")
	return sb.String()
}

// buildRepairPrompt constructs the repair message. It includes the original
// user prompt and the previous invalid response so the LLM has full context.
func buildRepairPrompt(originalUserPrompt, previousResponse string, errs []ValidationError) string {
	var sb strings.Builder
	sb.WriteString(originalUserPrompt)
	sb.WriteString("\n\nYour previous response was:\n")
	sb.WriteString(previousResponse)
	sb.WriteString("\n\nThat response was invalid. Errors:\n")
	for _, e := range errs {
		fmt.Fprintf(&sb, "  - %s\n", e.Error())
	}
	sb.WriteString("\nPlease output only the corrected JSON conforming to the schema. Do not repeat the error.")
	return sb.String()
}

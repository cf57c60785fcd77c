package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dshills/skim/internal/schema"
)

// ValidationError records a single validation failure on an LLM response.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// findingsSchema is the JSON Schema every reply must satisfy. Label rules
// beyond shape (observed evidence, exact excerpts) are enforced later by the
// label engine.
const findingsSchema = `{
  "type": "object",
  "required": ["findings"],
  "properties": {
    "findings": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["label", "content"],
        "properties": {
          "label": {"enum": ["VERIFIED", "SAMPLED", "INFERRED", "UNKNOWN"]},
          "content": {"type": "string", "minLength": 1},
          "excerpt": {"type": "string"},
          "basis": {"type": "string"},
          "evidence": {
            "type": "object",
            "required": ["start", "end"],
            "properties": {
              "start": {"type": "integer", "minimum": 1},
              "end": {"type": "integer", "minimum": 1}
            }
          }
        }
      }
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("findings.json", strings.NewReader(findingsSchema)); err != nil {
		return nil, fmt.Errorf("llm: load findings schema: %w", err)
	}
	sch, err := compiler.Compile("findings.json")
	if err != nil {
		return nil, fmt.Errorf("llm: compile findings schema: %w", err)
	}
	return sch, nil
})

type response struct {
	Findings []schema.Candidate `json:"findings"`
}

// needsRepair returns true when validation errors include a parse or
// schema failure that requires a retry.
func needsRepair(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Field == "json_parse" || e.Field == "schema" {
			return true
		}
	}
	return false
}

// fenceRe matches a markdown code fence block (``` or ~~~) with an optional
// language tag and captures the content between the fences.
var fenceRe = regexp.MustCompile("(?s)^(?:`{3}|~{3})[^\\n]*\\n(.*?)(?:`{3}|~{3})\\s*$")

// openFenceRe matches only an opening fence line (no closing fence required).
// Used to strip orphaned opening fences from truncated responses.
var openFenceRe = regexp.MustCompile("^(?:`{3}|~{3})[^\\n]*\\n")

// stripMarkdownFences removes leading/trailing markdown code fences that LLMs
// sometimes wrap around JSON output (e.g., "```json\n...\n```").
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if loc := openFenceRe.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[loc[1]:])
	}
	return s
}

// invalidJSONEscapeRe matches a backslash followed by any character that is
// not a valid JSON string escape character ("\/bfnrtu).
var invalidJSONEscapeRe = regexp.MustCompile(`\\([^"\\/bfnrtu])`)

// fixInvalidJSONEscapes replaces invalid JSON escape sequences in s with their
// correctly double-escaped equivalents.
func fixInvalidJSONEscapes(s string) string {
	return invalidJSONEscapeRe.ReplaceAllString(s, `\\$1`)
}

// ValidateResponse parses the raw reply and checks it against the findings
// schema. Parse and schema failures are fatal and return no candidates.
// Evidence ranges outside [1,total] are reported but kept: the label engine
// rejects them and records the rejection as a limitation.
func ValidateResponse(raw string, total int) ([]schema.Candidate, []ValidationError) {
	raw = stripMarkdownFences(raw)

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		fixed := fixInvalidJSONEscapes(raw)
		if err2 := json.Unmarshal([]byte(fixed), &doc); err2 != nil {
			return nil, []ValidationError{{Field: "json_parse", Message: err.Error()}}
		}
		raw = fixed
	}

	sch, err := compiledSchema()
	if err != nil {
		return nil, []ValidationError{{Field: "schema", Message: err.Error()}}
	}
	if err := sch.Validate(doc); err != nil {
		return nil, []ValidationError{{Field: "schema", Message: err.Error()}}
	}

	var resp response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, []ValidationError{{Field: "json_parse", Message: err.Error()}}
	}

	var errs []ValidationError
	for i, c := range resp.Findings {
		if c.Evidence == nil {
			continue
		}
		if !c.Evidence.Within(total) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("findings[%d].evidence", i),
				Message: fmt.Sprintf("range %s lies outside [1,%d]", c.Evidence, total),
			})
		}
	}
	if resp.Findings == nil {
		resp.Findings = []schema.Candidate{}
	}
	return resp.Findings, errs
}

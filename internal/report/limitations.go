package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/skim/internal/schema"
)

// kindOrder is the order limitations appear in a report. The first entry of
// the ordered list is the mandatory one.
var kindOrder = map[schema.LimitationKind]int{
	schema.LimitSizeEstimated:    0,
	schema.LimitExtractionFailed: 1,
	schema.LimitPartialRead:      2,
	schema.LimitNotRead:          3,
	schema.LimitFindingRejected:  4,
	schema.LimitIncomplete:       5,
}

// maxListedGaps bounds how many unread ranges the NOT_READ statement names.
const maxListedGaps = 5

// Limitations returns the full ordered limitations list: the run's own
// entries, a size-estimate warning, one aggregate statement for unread
// units, and a standing disclosure that is always present.
func Limitations(in Input, s schema.Summary) []schema.Limitation {
	out := append([]schema.Limitation(nil), in.Limitations...)

	switch {
	case in.Source.Clipped:
		out = append(out, schema.Limitation{
			Kind: schema.LimitSizeEstimated,
			Message: fmt.Sprintf("the document was cut off at the download limit; only its first %d %ss were fetched and anything beyond them is unknown",
				in.Source.Total, in.Source.Units),
		})
	case in.Source.SizeEstimated:
		out = append(out, schema.Limitation{
			Kind: schema.LimitSizeEstimated,
			Message: fmt.Sprintf("the document size could not be measured; %d %ss were assumed and anything beyond them is unknown",
				in.Source.Total, in.Source.Units),
		})
	}

	var gaps []string
	segments := 0
	for _, seg := range in.CoverageMap {
		if seg.Status != schema.StatusNotRead && seg.Status != schema.StatusPending {
			continue
		}
		segments++
		if len(gaps) < maxListedGaps {
			gaps = append(gaps, seg.Range.String())
		}
	}
	if segments > 0 {
		list := strings.Join(gaps, ", ")
		if segments > maxListedGaps {
			list += fmt.Sprintf(" and %d more", segments-maxListedGaps)
		}
		out = append(out, schema.Limitation{
			Kind: schema.LimitNotRead,
			Message: fmt.Sprintf("%d of %d %ss in %d range(s) were not read: %s",
				s.NotReadUnits, in.Source.Total, in.Source.Units, segments, list),
		})
	}

	disclosure := "findings are drawn from sampled ranges only; the document was not read in full and completeness is not claimed"
	if s.NotReadUnits == 0 {
		disclosure = "every unit was read, but findings are a bounded selection and completeness is not claimed"
	}
	out = append(out, schema.Limitation{Kind: schema.LimitIncomplete, Message: disclosure})

	sort.SliceStable(out, func(i, j int) bool {
		return kindOrder[out[i].Kind] < kindOrder[out[j].Kind]
	})
	return out
}

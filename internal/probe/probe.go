// Package probe measures the total unit count of a document.
package probe

import (
	"context"
	"errors"
	"fmt"
)

// ErrSizeUnavailable means the collaborator could not report a unit count.
// Callers degrade to a conservative plan rather than abort.
var ErrSizeUnavailable = errors.New("probe: size unavailable")

// Measurer reports the number of addressable units in a document.
type Measurer interface {
	Measure(ctx context.Context, locator string) (int, error)
}

// Measure asks m for the unit count of locator. Any collaborator failure,
// and any negative count, is reported as ErrSizeUnavailable. A count of zero
// is returned as is; an empty document is the caller's to reject.
func Measure(ctx context.Context, m Measurer, locator string) (int, error) {
	n, err := m.Measure(ctx, locator)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrSizeUnavailable, locator, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s: negative unit count %d", ErrSizeUnavailable, locator, n)
	}
	return n, nil
}

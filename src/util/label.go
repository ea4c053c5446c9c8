// label.go provides a thread safe way of generating fresh labels and
// temporary variable names for the lowering engine.

package util

import (
	"fmt"

	"go.uber.org/atomic"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Labeler mints fresh assembly labels and temporary names. The
// counters are monotone for the lifetime of the Labeler, so every name
// it hands out is unique over one compilation. A Labeler is owned by
// the lowering context rather than being process global, which keeps
// repeated compilations in one process deterministic.
type Labeler struct {
	labels atomic.Int32 // Next numeric suffix for branch labels.
	temps  atomic.Int32 // Next numeric suffix for temporaries.
}

// ---------------------
// ----- Constants -----
// ---------------------

const labelPrefix = "_L"
const tempPrefix = "_tmp"

// ---------------------
// ----- functions -----
// ---------------------

// NewLabeler returns a Labeler with both counters at zero.
func NewLabeler() *Labeler {
	return &Labeler{}
}

// NextLabel returns a fresh branch label.
func (l *Labeler) NextLabel() string {
	return fmt.Sprintf("%s%d", labelPrefix, l.labels.Inc()-1)
}

// NextTemp returns a fresh temporary variable name.
func (l *Labeler) NextTemp() string {
	return fmt.Sprintf("%s%d", tempPrefix, l.temps.Inc()-1)
}

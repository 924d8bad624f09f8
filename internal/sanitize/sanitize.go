// Package sanitize strips executable markup from user-supplied text
// before it is relayed to room peers or stored.
package sanitize

import (
	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer wraps a bluemonday policy. Policies are safe for
// concurrent use, so one Sanitizer serves the whole process.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// New returns a text-only sanitizer: every tag is removed and the
// contents of script/style elements are dropped entirely.
func New() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean returns s with all markup removed or escaped. A message like
// "<script>x</script>hi" comes back as "hi".
func (s *Sanitizer) Clean(input string) string {
	return s.policy.Sanitize(input)
}

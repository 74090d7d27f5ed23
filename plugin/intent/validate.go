package intent

import (
	"fmt"
	"strings"
)

// ShadowConflict describes a pattern that can never fire because an earlier,
// more generic pattern always matches first.
type ShadowConflict struct {
	EarlierIndex    int
	EarlierKeyword  string
	ShadowedIndex   int
	ShadowedKeyword string
}

func (c ShadowConflict) String() string {
	return fmt.Sprintf("pattern[%d] keyword %q shadows pattern[%d] keyword %q",
		c.EarlierIndex, c.EarlierKeyword, c.ShadowedIndex, c.ShadowedKeyword)
}

// ValidatePatterns checks the table for shadowing: a later keyword is
// unreachable when an earlier keyword is a substring of it (any input
// containing the later keyword necessarily contains the earlier one, so the
// earlier pattern always wins). Manually curated ordering makes this an easy
// mistake to introduce, so the table is rejected at construction time.
func ValidatePatterns(patterns []Pattern) error {
	var conflicts []ShadowConflict
	for later := 1; later < len(patterns); later++ {
		for _, lk := range patterns[later].Keywords {
			for earlier := 0; earlier < later; earlier++ {
				if patterns[earlier].Category == patterns[later].Category &&
					patterns[earlier].Action == patterns[later].Action {
					continue
				}
				for _, ek := range patterns[earlier].Keywords {
					if strings.Contains(lk, ek) {
						conflicts = append(conflicts, ShadowConflict{
							EarlierIndex:    earlier,
							EarlierKeyword:  ek,
							ShadowedIndex:   later,
							ShadowedKeyword: lk,
						})
					}
				}
			}
		}
	}
	if len(conflicts) == 0 {
		return nil
	}

	msgs := make([]string, len(conflicts))
	for i, c := range conflicts {
		msgs[i] = c.String()
	}
	return fmt.Errorf("pattern table has %d shadowed keyword(s): %s",
		len(conflicts), strings.Join(msgs, "; "))
}

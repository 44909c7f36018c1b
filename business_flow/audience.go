package businessflow

import (
	"github.com/amirphl/wedding-automations/models"
)

// ResolveAudience returns the recipients of roster selected by filter.
// With an attendance predicate only exact matches are kept, so recipients without an
// answer are excluded from both branches. Without a predicate the whole roster is returned.
func ResolveAudience(roster []*models.Recipient, filter models.TargetAudienceFilter) []*models.Recipient {
	out := make([]*models.Recipient, 0, len(roster))
	for _, r := range roster {
		if r == nil {
			continue
		}
		if filter.Attendance != nil {
			if r.Attendance == nil || *r.Attendance != *filter.Attendance {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

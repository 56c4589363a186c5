package healthcheck

import "context"

var severity = map[string]int{
	StatusOK:      0,
	StatusUnknown: 1,
	StatusWarn:    2,
	StatusError:   3,
}

// Collect runs every checker in order and returns all results together with
// the most severe status among them. No checks at all is reported as ok.
func Collect(ctx context.Context, checkers ...Checker) ([]CheckResult, string) {
	results := make([]CheckResult, 0, len(checkers))
	overall := StatusOK
	for _, c := range checkers {
		if c == nil {
			continue
		}
		for _, item := range c.ListChecks(ctx) {
			if item.Status == "" {
				item.Status = StatusUnknown
			}
			if severity[item.Status] > severity[overall] {
				overall = item.Status
			}
			results = append(results, item)
		}
	}
	return results, overall
}

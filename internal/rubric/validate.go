package rubric

import (
	"fmt"
	"strings"

	"GradePipeline/internal/domain"
)

// Validate rejects rubrics that cannot be graded against and returns
// warnings for suspicious but usable ones.
func Validate(r domain.Rubric) ([]string, error) {
	if len(r) == 0 {
		return nil, fmt.Errorf("%w: rubric has no criteria", domain.ErrConfiguration)
	}

	var warnings []string
	seen := make(map[string]bool, len(r))
	for i, item := range r {
		name := strings.TrimSpace(item.Criterion)
		if name == "" {
			return nil, fmt.Errorf("%w: rubric item %d has no criterion name", domain.ErrConfiguration, i)
		}
		if seen[item.Criterion] {
			return nil, fmt.Errorf("%w: criterion %q appears twice", domain.ErrConfiguration, item.Criterion)
		}
		seen[item.Criterion] = true

		if item.MaxPoints < 0 {
			return nil, fmt.Errorf("%w: criterion %q has negative max points", domain.ErrConfiguration, item.Criterion)
		}
		if item.MaxPoints < 1 {
			warnings = append(warnings, fmt.Sprintf("criterion %q has less than 1 max point (%g)", item.Criterion, item.MaxPoints))
		}
	}

	return warnings, nil
}

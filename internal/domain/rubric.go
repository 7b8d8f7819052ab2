package domain

// Rating is one scoring band of a rubric criterion.
type Rating struct {
	Description     string  `yaml:"description" json:"description"`
	Points          float64 `yaml:"points" json:"points"`
	LongDescription string  `yaml:"longDescription" json:"long_description"`
}

// RubricItem is a single criterion with its maximum points.
type RubricItem struct {
	ID          string   `yaml:"id" json:"id"`
	Criterion   string   `yaml:"criterion" json:"criterion"`
	MaxPoints   float64  `yaml:"maxPoints" json:"max_points"`
	Description string   `yaml:"description" json:"description"`
	Ratings     []Rating `yaml:"ratings" json:"ratings,omitempty"`
}

// Rubric is the ordered list of criteria fetched for an assignment.
type Rubric []RubricItem

// Criteria returns criterion names in rubric order.
func (r Rubric) Criteria() []string {
	names := make([]string, len(r))
	for i, item := range r {
		names[i] = item.Criterion
	}
	return names
}

// Item looks a criterion up by exact name.
func (r Rubric) Item(criterion string) (RubricItem, bool) {
	for _, item := range r {
		if item.Criterion == criterion {
			return item, true
		}
	}
	return RubricItem{}, false
}

// TotalPoints is the maximum achievable score.
func (r Rubric) TotalPoints() float64 {
	var total float64
	for _, item := range r {
		total += item.MaxPoints
	}
	return total
}

// Package anonymize maps LMS submitter identifiers to stable pseudonymous
// labels so that no real identifier reaches a remote model.
package anonymize

import (
	"fmt"
	"sort"

	"GradePipeline/internal/domain"
)

// Placeholder is returned for identifiers that are not part of the mapping.
const Placeholder = "user???"

const labelFormat = "user%03d"

// Mapping is an immutable bijection between real ids and labels.
type Mapping struct {
	forward map[string]string
	reverse map[string]string
	order   []string
}

// Build sorts the distinct ids and labels them user001, user002, ...
// The same id set always produces the same mapping.
func Build(ids []string) (Mapping, error) {
	unique := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}

	sorted := make([]string, 0, len(unique))
	for id := range unique {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	forward := make(map[string]string, len(sorted))
	for i, id := range sorted {
		forward[id] = fmt.Sprintf(labelFormat, i+1)
	}

	if err := Audit(forward); err != nil {
		return Mapping{}, err
	}

	reverse := make(map[string]string, len(forward))
	for id, label := range forward {
		reverse[label] = id
	}

	return Mapping{forward: forward, reverse: reverse, order: sorted}, nil
}

// Audit verifies a forward mapping is injective and has no empty labels.
func Audit(forward map[string]string) error {
	seen := make(map[string]string, len(forward))
	for id, label := range forward {
		if label == "" {
			return fmt.Errorf("%w: empty label for submitter", domain.ErrIntegrity)
		}
		if other, ok := seen[label]; ok && other != id {
			return fmt.Errorf("%w: label %s assigned twice", domain.ErrIntegrity, label)
		}
		seen[label] = id
	}
	return nil
}

// Lookup returns the label for id or Placeholder when id is unknown.
func (m Mapping) Lookup(id string) string {
	if label, ok := m.forward[id]; ok {
		return label
	}
	return Placeholder
}

// Reverse resolves a label back to the real identifier.
func (m Mapping) Reverse(label string) (string, bool) {
	id, ok := m.reverse[label]
	return id, ok
}

// Len is the number of mapped submitters.
func (m Mapping) Len() int {
	return len(m.forward)
}

// Labels lists labels in id order.
func (m Mapping) Labels() []string {
	out := make([]string, len(m.order))
	for i, id := range m.order {
		out[i] = m.forward[id]
	}
	return out
}

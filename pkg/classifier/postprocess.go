package classifier

import (
	"github.com/menta2k/landmark-classifier/pkg/engine"
	"github.com/menta2k/landmark-classifier/pkg/types"
)

// flatten concatenates all groups' categories in engine order and keeps the
// first category seen for every name.
func flatten(groups []engine.Classifications) []types.Classification {
	out := make([]types.Classification, 0)
	seen := map[string]struct{}{}
	for _, group := range groups {
		for _, c := range group.Categories {
			name := c.Name()
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, types.Classification{Name: name, Score: c.Score})
		}
	}
	return out
}

// Package router resolves task types to ordered model candidate lists.
//
// Routing is policy-table lookup over the immutable catalog: each task type
// maps to a candidate chain ordered free -> budget -> premium. An explicit
// preferred model bypasses the policy entirely, which callers use to keep
// sensitive payloads away from free, request-logged models.
package router

import (
	"fmt"

	"github.com/unite-hub/synthex-gateway/internal/catalog"
	"github.com/unite-hub/synthex-gateway/pkg/models"
)

// Router produces candidate lists from the catalog snapshot. It holds no
// mutable state and is safe for concurrent use.
type Router struct {
	catalog *catalog.Catalog
}

// New creates a Router over the given catalog.
func New(c *catalog.Catalog) *Router {
	return &Router{catalog: c}
}

// Resolve returns the ordered model profiles to attempt for a task.
//
// When preferredModel is non-empty it must name a known profile, and the
// result is exactly that single profile regardless of the task's configured
// route. Otherwise the task's route is resolved in priority order.
func (r *Router) Resolve(task models.TaskType, preferredModel string) ([]models.ModelProfile, error) {
	if preferredModel != "" {
		p, ok := r.catalog.Profile(preferredModel)
		if !ok {
			return nil, fmt.Errorf("router: preferred model %q: %w", preferredModel, models.ErrUnknownModel)
		}
		return []models.ModelProfile{p}, nil
	}

	ids, ok := r.catalog.Route(task)
	if !ok {
		return nil, fmt.Errorf("router: %q: %w", task, models.ErrUnknownTaskType)
	}

	candidates := make([]models.ModelProfile, 0, len(ids))
	for _, id := range ids {
		p, ok := r.catalog.Profile(id)
		if !ok {
			// Catalog validation guarantees resolvability; hitting this means
			// the snapshot was built without New().
			return nil, fmt.Errorf("router: route %q references %q: %w", task, id, models.ErrUnknownModel)
		}
		candidates = append(candidates, p)
	}
	return candidates, nil
}

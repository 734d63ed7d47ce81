// Package tools is the tool registry and metadata store (spec.md C2). It is
// the single source of truth for whether a tool may be selected for a given
// plan type. Grounded on runtime/agent/tools/tools.go and enums.go, but
// simplified away from that file's Goa-codegen-specific fields (Service,
// Toolset, IsAgentTool, ServerDataSpec, ConfirmationSpec belong to a DSL
// this repo does not carry) down to the exact field list spec.md §4.2 names.
package tools

import (
	"fmt"
	"sort"
	"sync"
)

// Category constrains which plan types may select a tool.
type Category string

const (
	CategoryResearch Category = "research"
	CategoryAction   Category = "action"
	CategoryBoth     Category = "both"
)

// ObservationPolicy controls whether the tool's outcome is appended to the
// observation history (spec.md §4.5).
type ObservationPolicy string

const (
	ObservationOnTrigger ObservationPolicy = "on_trigger"
	ObservationOnSuccess ObservationPolicy = "on_success"
	ObservationNever     ObservationPolicy = "never"
)

// Metadata is the full per-plan-type policy descriptor for one tool,
// matching spec.md §4.2's field list exactly.
type Metadata struct {
	Name                Ident
	Description         string
	Version             string
	InputSchema         []byte
	OutputSchema        []byte
	Category            Category
	MaxRetries          int
	TimeoutSeconds      int
	Idempotent          bool
	RequiredPermissions []string
	Tags                []string
	AllowedModes        []string
	ObservationPolicy   ObservationPolicy
}

// Ident is the tool's globally unique name.
type Ident = string

// admits reports whether planType may select this tool's category.
func (m Metadata) admits(planType string) bool {
	switch m.Category {
	case CategoryBoth:
		return true
	case CategoryResearch:
		return planType == "research"
	case CategoryAction:
		return planType == "action"
	default:
		return false
	}
}

// Registry is the single source of truth for tool metadata and plan-type
// gating (spec.md §4.2).
type Registry struct {
	mu    sync.RWMutex
	tools map[Ident]Metadata
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[Ident]Metadata)}
}

// Register adds or replaces a tool's metadata. Returns an error if Name is
// empty or Category is not one of research/action/both.
func (r *Registry) Register(m Metadata) error {
	if m.Name == "" {
		return fmt.Errorf("tools: name is required")
	}
	switch m.Category {
	case CategoryResearch, CategoryAction, CategoryBoth:
	default:
		return fmt.Errorf("tools: %s: invalid category %q", m.Name, m.Category)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[m.Name] = m
	return nil
}

// Lookup returns the registered metadata for name.
func (r *Registry) Lookup(name Ident) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.tools[name]
	return m, ok
}

// GetCatalogForPlanType returns the descriptor list a planner of the given
// plan type may see, deduplicated by name, in a stable order sorted by name.
func (r *Registry) GetCatalogForPlanType(planType string) []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.tools))
	for _, m := range r.tools {
		if m.admits(planType) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ValidateToolForPlanType reports true iff name is registered and its
// category permits use under planType. This is the sole gate the agent loop
// (C9 step 8) consults before invoking a tool.
func (r *Registry) ValidateToolForPlanType(name Ident, planType string) bool {
	m, ok := r.Lookup(name)
	if !ok {
		return false
	}
	return m.admits(planType)
}

package toolruntime

import "sync"

// Stage names a side-effect hook point a tool crosses mid-execution
// (spec.md §4.3): creating a query/step/visualization, or flagging that a
// widget needs to be created. "block.completed" is stream-only and carries
// no handler (it is observed by the block projector, not a tool hook).
const (
	StageDataModelTypeDetermined = "data_model_type_determined"
	StageColumnAdded             = "column_added"
	StageSeriesConfigured        = "series_configured"
	StageWidgetCreationNeeded    = "widget_creation_needed"
)

// StageHandler reacts to one stage crossing, receiving whatever payload the
// tool attached (e.g. the determined data model type, the column spec).
type StageHandler func(data any)

// StageDispatcher routes progress-stage hooks to registered handlers,
// guaranteeing each (toolExecutionID, stage) pair fires its handler at most
// once even if the tool emits the stage event more than once — handlers
// like "create the query row" must be idempotent per spec.md §4.3.
type StageDispatcher struct {
	toolExecutionID string

	mu       sync.Mutex
	handlers map[string]StageHandler
	fired    map[string]bool
}

// NewStageDispatcher constructs a dispatcher scoped to one tool execution.
func NewStageDispatcher(toolExecutionID string) *StageDispatcher {
	return &StageDispatcher{toolExecutionID: toolExecutionID, handlers: make(map[string]StageHandler), fired: make(map[string]bool)}
}

// On registers handler for stage, replacing any previous registration.
func (d *StageDispatcher) On(stage string, handler StageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[stage] = handler
}

// Dispatch invokes the handler registered for stage exactly once per
// dispatcher instance; subsequent calls for the same stage are no-ops.
func (d *StageDispatcher) Dispatch(stage string, data any) {
	d.mu.Lock()
	if d.fired[stage] {
		d.mu.Unlock()
		return
	}
	handler, ok := d.handlers[stage]
	d.fired[stage] = true
	d.mu.Unlock()
	if ok && handler != nil {
		handler(data)
	}
}

package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultHookPriority is used when a registration does not set one. Lower
// priorities run first.
const DefaultHookPriority = 10

type HookKind string

const (
	HookKindAction HookKind = "action"
	HookKindFilter HookKind = "filter"
)

type ActionFunc func(ctx context.Context, args ...any) error

type FilterFunc func(ctx context.Context, value any, args ...any) (any, error)

// HookHandle identifies a single registration. The zero handle identifies
// nothing and removing it is a no-op.
type HookHandle struct {
	kind HookKind
	name string
	id   uint64
}

func (h HookHandle) Kind() HookKind { return h.kind }

func (h HookHandle) Name() string { return h.name }

func (h HookHandle) IsZero() bool { return h.id == 0 }

type HookRegistration struct {
	Name     string
	Label    string
	Priority int
	Sequence uint64
	Handle   HookHandle
}

type HookOption func(*hookOptions)

type hookOptions struct {
	priority int
	label    string
}

func WithPriority(priority int) HookOption {
	return func(o *hookOptions) {
		o.priority = priority
	}
}

// WithLabel names the callback in logs and introspection output.
func WithLabel(label string) HookOption {
	return func(o *hookOptions) {
		o.label = strings.TrimSpace(label)
	}
}

type actionEntry struct {
	HookRegistration
	fn ActionFunc
}

type filterEntry struct {
	HookRegistration
	fn FilterFunc
}

// HookRegistry holds named actions and filters. Callbacks for a name run in
// ascending priority; equal priorities run in registration order.
type HookRegistry struct {
	mu              sync.RWMutex
	seq             uint64
	actions         map[string][]actionEntry
	filters         map[string][]filterEntry
	defaultPriority int
	logger          Logger
	metrics         MetricsRecorder
}

type HookRegistryOption func(*HookRegistry)

func WithHookLogger(logger Logger) HookRegistryOption {
	return func(r *HookRegistry) {
		r.logger = logger
	}
}

func WithHookMetrics(recorder MetricsRecorder) HookRegistryOption {
	return func(r *HookRegistry) {
		r.metrics = recorder
	}
}

func WithDefaultHookPriority(priority int) HookRegistryOption {
	return func(r *HookRegistry) {
		r.defaultPriority = priority
	}
}

func NewHookRegistry(opts ...HookRegistryOption) *HookRegistry {
	r := &HookRegistry{
		actions:         map[string][]actionEntry{},
		filters:         map[string][]filterEntry{},
		defaultPriority: DefaultHookPriority,
		metrics:         NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r
}

func (r *HookRegistry) AddAction(name string, fn ActionFunc, opts ...HookOption) HookHandle {
	name = strings.TrimSpace(name)
	if r == nil || name == "" || fn == nil {
		return HookHandle{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	reg := r.newRegistrationLocked(HookKindAction, name, fn, opts)
	list := r.actions[name]
	idx := sort.Search(len(list), func(i int) bool { return list[i].Priority > reg.Priority })
	list = append(list, actionEntry{})
	copy(list[idx+1:], list[idx:])
	list[idx] = actionEntry{HookRegistration: reg, fn: fn}
	r.actions[name] = list
	return reg.Handle
}

func (r *HookRegistry) AddFilter(name string, fn FilterFunc, opts ...HookOption) HookHandle {
	name = strings.TrimSpace(name)
	if r == nil || name == "" || fn == nil {
		return HookHandle{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	reg := r.newRegistrationLocked(HookKindFilter, name, fn, opts)
	list := r.filters[name]
	idx := sort.Search(len(list), func(i int) bool { return list[i].Priority > reg.Priority })
	list = append(list, filterEntry{})
	copy(list[idx+1:], list[idx:])
	list[idx] = filterEntry{HookRegistration: reg, fn: fn}
	r.filters[name] = list
	return reg.Handle
}

func (r *HookRegistry) newRegistrationLocked(kind HookKind, name string, fn any, opts []HookOption) HookRegistration {
	options := hookOptions{priority: r.defaultPriority}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&options)
	}
	label := options.label
	if label == "" {
		label = callbackLabel(fn)
	}
	r.seq++
	return HookRegistration{
		Name:     name,
		Label:    label,
		Priority: options.priority,
		Sequence: r.seq,
		Handle:   HookHandle{kind: kind, name: name, id: r.seq},
	}
}

// RemoveAction removes the registration identified by handle and reports
// whether anything was removed.
func (r *HookRegistry) RemoveAction(handle HookHandle) bool {
	if r == nil || handle.IsZero() || handle.kind != HookKindAction {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.actions[handle.name]
	for i, entry := range list {
		if entry.Handle.id != handle.id {
			continue
		}
		next := make([]actionEntry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(r.actions, handle.name)
		} else {
			r.actions[handle.name] = next
		}
		return true
	}
	return false
}

func (r *HookRegistry) RemoveFilter(handle HookHandle) bool {
	if r == nil || handle.IsZero() || handle.kind != HookKindFilter {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.filters[handle.name]
	for i, entry := range list {
		if entry.Handle.id != handle.id {
			continue
		}
		next := make([]filterEntry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(r.filters, handle.name)
		} else {
			r.filters[handle.name] = next
		}
		return true
	}
	return false
}

func (r *HookRegistry) RemoveAllActions(name string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actions, strings.TrimSpace(name))
}

func (r *HookRegistry) RemoveAllFilters(name string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.filters, strings.TrimSpace(name))
}

func (r *HookRegistry) HasAction(name string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions[strings.TrimSpace(name)]) > 0
}

func (r *HookRegistry) HasFilter(name string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.filters[strings.TrimSpace(name)]) > 0
}

// DoAction runs every action registered under name. A failing or panicking
// callback is logged and the remaining callbacks still run. The returned error
// joins all callback failures and never implies the caller should roll back.
func (r *HookRegistry) DoAction(ctx context.Context, name string, args ...any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	name = strings.TrimSpace(name)
	entries := r.actionSnapshot(name)
	if len(entries) == 0 {
		return nil
	}
	recordCounter(ctx, r.metrics, "hooks.action.total", 1, map[string]string{"hook": name})

	var hookErr error
	for _, entry := range entries {
		startedAt := time.Now()
		if err := invokeAction(ctx, entry.fn, args); err != nil {
			hookErr = errors.Join(hookErr, fmt.Errorf("core: action %q callback %q failed: %w", name, entry.Label, err))
			r.callbackFailed(ctx, HookKindAction, entry.HookRegistration, err, startedAt)
		}
	}
	return hookErr
}

// ApplyFilters threads value through every filter registered under name and
// returns the result. A failing filter leaves the value unchanged for its step.
func (r *HookRegistry) ApplyFilters(ctx context.Context, name string, value any, args ...any) any {
	if ctx == nil {
		ctx = context.Background()
	}
	name = strings.TrimSpace(name)
	entries := r.filterSnapshot(name)
	for _, entry := range entries {
		startedAt := time.Now()
		next, err := invokeFilter(ctx, entry.fn, value, args)
		if err != nil {
			r.callbackFailed(ctx, HookKindFilter, entry.HookRegistration, err, startedAt)
			continue
		}
		value = next
	}
	return value
}

func (r *HookRegistry) Actions() map[string][]HookRegistration {
	if r == nil {
		return map[string][]HookRegistration{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]HookRegistration, len(r.actions))
	for name, list := range r.actions {
		regs := make([]HookRegistration, 0, len(list))
		for _, entry := range list {
			regs = append(regs, entry.HookRegistration)
		}
		out[name] = regs
	}
	return out
}

func (r *HookRegistry) Filters() map[string][]HookRegistration {
	if r == nil {
		return map[string][]HookRegistration{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]HookRegistration, len(r.filters))
	for name, list := range r.filters {
		regs := make([]HookRegistration, 0, len(list))
		for _, entry := range list {
			regs = append(regs, entry.HookRegistration)
		}
		out[name] = regs
	}
	return out
}

func (r *HookRegistry) actionSnapshot(name string) []actionEntry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.actions[name]
	if len(list) == 0 {
		return nil
	}
	out := make([]actionEntry, len(list))
	copy(out, list)
	return out
}

func (r *HookRegistry) filterSnapshot(name string) []filterEntry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.filters[name]
	if len(list) == 0 {
		return nil
	}
	out := make([]filterEntry, len(list))
	copy(out, list)
	return out
}

func (r *HookRegistry) callbackFailed(ctx context.Context, kind HookKind, reg HookRegistration, err error, startedAt time.Time) {
	recordCounter(ctx, r.metrics, "hooks.callback.failure", 1, map[string]string{
		"hook": reg.Name,
		"kind": string(kind),
	})
	logWithLevel(ctx, r.logger, "error", "hook callback failed", map[string]any{
		"hook":        reg.Name,
		"kind":        string(kind),
		"callback":    reg.Label,
		"priority":    reg.Priority,
		"duration_ms": time.Since(startedAt).Milliseconds(),
		"error":       err.Error(),
	})
}

func invokeAction(ctx context.Context, fn ActionFunc, args []any) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return fn(ctx, args...)
}

func invokeFilter(ctx context.Context, fn FilterFunc, value any, args []any) (out any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			out = nil
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return fn(ctx, value, args...)
}

func callbackLabel(fn any) string {
	if fn == nil {
		return "unknown"
	}
	value := reflect.ValueOf(fn)
	if value.Kind() != reflect.Func {
		return fmt.Sprintf("%T", fn)
	}
	if f := runtime.FuncForPC(value.Pointer()); f != nil {
		return f.Name()
	}
	return "anonymous"
}

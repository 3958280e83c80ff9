package core

import (
	"context"
	"fmt"
)

// Action binds an action name to a payload type so callers and subscribers
// agree on the argument contract at compile time.
type Action[T any] struct {
	Name string
}

func NewAction[T any](name string) Action[T] {
	return Action[T]{Name: name}
}

func (a Action[T]) Add(registry *HookRegistry, fn func(ctx context.Context, payload T) error, opts ...HookOption) HookHandle {
	if registry == nil || fn == nil {
		return HookHandle{}
	}
	name := a.Name
	return registry.AddAction(name, func(ctx context.Context, args ...any) error {
		payload, err := typedArgument[T](name, args)
		if err != nil {
			return err
		}
		return fn(ctx, payload)
	}, withDefaultLabel(fn, opts)...)
}

func (a Action[T]) Do(ctx context.Context, registry *HookRegistry, payload T) error {
	if registry == nil {
		return nil
	}
	return registry.DoAction(ctx, a.Name, payload)
}

// Filter binds a filter name to the type of the value it threads.
type Filter[T any] struct {
	Name string
}

func NewFilter[T any](name string) Filter[T] {
	return Filter[T]{Name: name}
}

func (f Filter[T]) Add(registry *HookRegistry, fn func(ctx context.Context, value T) (T, error), opts ...HookOption) HookHandle {
	if registry == nil || fn == nil {
		return HookHandle{}
	}
	name := f.Name
	return registry.AddFilter(name, func(ctx context.Context, value any, _ ...any) (any, error) {
		typed, ok := value.(T)
		if !ok && value != nil {
			var zero T
			return nil, fmt.Errorf("core: filter %q expected %T value, got %T", name, zero, value)
		}
		return fn(ctx, typed)
	}, withDefaultLabel(fn, opts)...)
}

// Apply runs the filter chain. A chain result of the wrong type (possible when
// untyped filters share the name) falls back to the input value.
func (f Filter[T]) Apply(ctx context.Context, registry *HookRegistry, value T) T {
	if registry == nil {
		return value
	}
	out := registry.ApplyFilters(ctx, f.Name, value)
	typed, ok := out.(T)
	if !ok {
		return value
	}
	return typed
}

func typedArgument[T any](name string, args []any) (T, error) {
	var zero T
	if len(args) == 0 {
		return zero, fmt.Errorf("core: action %q expected %T argument, got none", name, zero)
	}
	if args[0] == nil {
		return zero, nil
	}
	typed, ok := args[0].(T)
	if !ok {
		if ptr, isPtr := args[0].(*T); isPtr && ptr != nil {
			return *ptr, nil
		}
		return zero, fmt.Errorf("core: action %q expected %T argument, got %T", name, zero, args[0])
	}
	return typed, nil
}

func withDefaultLabel(fn any, opts []HookOption) []HookOption {
	out := make([]HookOption, 0, len(opts)+1)
	out = append(out, WithLabel(callbackLabel(fn)))
	return append(out, opts...)
}

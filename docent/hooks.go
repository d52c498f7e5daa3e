package docent

import (
	"context"
	"fmt"
	"reflect"
)

// HookPoint names a lifecycle stage hooks can attach to.
type HookPoint string

const (
	HookPreValidate HookPoint = "pre_validate"
	HookPreSave     HookPoint = "pre_save"
	HookPostSave    HookPoint = "post_save"
	HookPreDelete   HookPoint = "pre_delete"
	HookPostDelete  HookPoint = "post_delete"
	HookPostUpdate  HookPoint = "post_update"
)

// HookFunc is one lifecycle hook. The entity argument is the *T being
// persisted; returning an error aborts the operation (post-stage hook
// errors surface to the caller, but the store write has already
// happened).
type HookFunc func(ctx context.Context, entity any) error

type namedHook struct {
	name string
	fn   HookFunc
}

// HookRegistry holds the ordered hooks of one collection. Hooks run in
// registration order within each point. Registering a name twice
// replaces the function but keeps the original position, which is how an
// entity overrides a hook inherited from an embedded mixin.
type HookRegistry struct {
	hooks map[HookPoint][]namedHook
}

func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[HookPoint][]namedHook)}
}

// Register attaches fn under name at the given point.
func (r *HookRegistry) Register(point HookPoint, name string, fn HookFunc) {
	chain := r.hooks[point]
	for i := range chain {
		if chain[i].name == name {
			chain[i].fn = fn
			return
		}
	}
	r.hooks[point] = append(chain, namedHook{name: name, fn: fn})
}

// run executes the chain at point, stopping at the first error.
func (r *HookRegistry) run(ctx context.Context, point HookPoint, entity any) error {
	for _, h := range r.hooks[point] {
		if err := h.fn(ctx, entity); err != nil {
			return fmt.Errorf("%w: hook %s/%s: %v", Err, point, h.name, err)
		}
	}
	return nil
}

// HookProvider lets an entity or mixin contribute lifecycle hooks.
// RegisterHooks is called once per collection on a throwaway instance;
// register closures that operate on the entity passed to the hook, not
// on the receiver.
type HookProvider interface {
	RegisterHooks(r *HookRegistry)
}

// RegisterHook adapts a typed hook function. It panics when a hook fires
// with an unexpected entity type, which indicates a registration placed
// on the wrong collection.
func RegisterHook[T any](r *HookRegistry, point HookPoint, name string, fn func(ctx context.Context, entity *T) error) {
	r.Register(point, name, func(ctx context.Context, entity any) error {
		typed, ok := entity.(*T)
		if !ok {
			panic(fmt.Sprintf("docent: hook %s/%s registered for %T, got %T",
				point, name, (*T)(nil), entity))
		}
		return fn(ctx, typed)
	})
}

var hookProviderType = reflect.TypeOf((*HookProvider)(nil)).Elem()

// collectHooks builds a collection's registry from the entity type's
// declarations. Embedded structs contribute first, depth-first in field
// order, and the outer type last, so an entity sees its mixins' hooks
// already in place and can override them by name.
func collectHooks(t reflect.Type) *HookRegistry {
	r := NewHookRegistry()
	seen := make(map[reflect.Type]bool)
	registerTypeHooks(t, r, seen)
	return r
}

func registerTypeHooks(t reflect.Type, r *HookRegistry, seen map[reflect.Type]bool) {
	if t.Kind() != reflect.Struct || seen[t] {
		return
	}
	seen[t] = true

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			registerTypeHooks(field.Type, r, seen)
		}
	}

	if reflect.PointerTo(t).Implements(hookProviderType) {
		provider := reflect.New(t).Interface().(HookProvider)
		provider.RegisterHooks(r)
	}
}

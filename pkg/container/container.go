// Package container wires the CLI's shared dependency spine (config ->
// logger -> layout -> store -> journal) through constructor injection.
// Bindings are keyed by the constructor's return type; no codegen, no
// external framework.
package container

import (
	"fmt"
	"reflect"
	"sync"
)

var errType = reflect.TypeOf((*error)(nil)).Elem()

type binding struct {
	ctor      reflect.Value
	singleton bool
	built     bool
	value     reflect.Value
}

// Container resolves values by calling registered constructors, building
// their parameters recursively from other bindings. Singleton bindings are
// constructed once and cached.
type Container struct {
	mu       sync.Mutex
	bindings map[reflect.Type]*binding
}

func New() *Container {
	return &Container{bindings: make(map[reflect.Type]*binding)}
}

// Provide registers a constructor. The first return value determines the
// bound type; an optional trailing error aborts resolution when non-nil.
func (c *Container) Provide(ctor interface{}, singleton bool) error {
	fn := reflect.ValueOf(ctor)
	if fn.Kind() != reflect.Func {
		return fmt.Errorf("container: Provide wants a constructor func, got %T", ctor)
	}
	t := fn.Type()
	switch t.NumOut() {
	case 1:
	case 2:
		if t.Out(1) != errType {
			return fmt.Errorf("container: constructor for %v must return (T, error)", t.Out(0))
		}
	default:
		return fmt.Errorf("container: constructor must return (T) or (T, error)")
	}
	bound := t.Out(0)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.bindings[bound]; dup {
		return fmt.Errorf("container: duplicate binding for %v", bound)
	}
	c.bindings[bound] = &binding{ctor: fn, singleton: singleton}
	return nil
}

// Resolve builds the value for the type target points at and stores it
// there: var db *store.Store; c.Resolve(&db). Interface targets accept any
// binding whose concrete type satisfies them.
func (c *Container) Resolve(target interface{}) error {
	ptr := reflect.ValueOf(target)
	if ptr.Kind() != reflect.Ptr || ptr.IsNil() {
		return fmt.Errorf("container: Resolve wants a non-nil pointer")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, err := c.build(ptr.Elem().Type(), nil)
	if err != nil {
		return err
	}
	ptr.Elem().Set(v)
	return nil
}

// build walks constructor parameters depth-first. path holds the types on
// the current chain so cycles fail with the chain in the message instead of
// recursing forever.
func (c *Container) build(t reflect.Type, path []reflect.Type) (reflect.Value, error) {
	b := c.bindings[t]
	if b == nil && t.Kind() == reflect.Interface {
		for bt, cand := range c.bindings {
			if bt.Implements(t) {
				b = cand
				break
			}
		}
	}
	if b == nil {
		return reflect.Value{}, fmt.Errorf("container: nothing provides %v", t)
	}
	if b.built {
		return b.value, nil
	}
	for _, onPath := range path {
		if onPath == t {
			return reflect.Value{}, fmt.Errorf("container: dependency cycle at %v (chain %v)", t, path)
		}
	}
	path = append(path, t)

	ft := b.ctor.Type()
	args := make([]reflect.Value, ft.NumIn())
	for i := range args {
		dep, err := c.build(ft.In(i), path)
		if err != nil {
			return reflect.Value{}, err
		}
		args[i] = dep
	}
	outs := b.ctor.Call(args)
	if len(outs) == 2 && !outs[1].IsNil() {
		return reflect.Value{}, outs[1].Interface().(error)
	}
	if b.singleton {
		b.built = true
		b.value = outs[0]
	}
	return outs[0], nil
}

package qute

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
)

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// Builder assembles a Router in stages, following the teacher's functional-
// option chaining idiom (one With* call per facet, applied to an
// accumulator) generalized to a state-carrying generic accumulator per
// §4.7. Routes registered with Add are bound to the builder's current
// state value once the layer closes, either by a later WithState call or
// by Build.
//
// WithState cannot be a method on Builder[S]: Go does not allow a method
// to introduce a type parameter beyond its receiver's, and WithState must
// produce a Builder parameterized on the NEW state's type. It is instead
// a package-level generic function taking the builder explicitly, the
// idiomatic workaround for this limitation.
type Builder[S any] struct {
	log   *slog.Logger
	state S

	closed []*route
	open   []*route
}

// NewRouter starts a router builder whose initial layer has state type
// struct{}; routes added before any WithState call receive no meaningful
// state.
func NewRouter() *Builder[struct{}] {
	return &Builder[struct{}]{}
}

// WithLogger attaches the logger used for unmatched-topic and dispatch-
// error logging, defaulting to slog.Default() when unset.
func (b *Builder[S]) WithLogger(log *slog.Logger) *Builder[S] {
	b.log = log
	return b
}

// Add registers handler under pattern, to be bound to the builder's
// current open layer's state once that layer closes. handler must be a
// function whose first parameter is context.Context, whose remaining
// parameters each implement the extractor capability, and which returns
// either nothing or error.
func (b *Builder[S]) Add(pattern string, handler any) *Builder[S] {
	r, err := compileRoute(pattern, handler)
	if err != nil {
		panic(fmt.Sprintf("qute: invalid route %q: %v", pattern, err))
	}
	b.open = append(b.open, r)
	return b
}

// closeLayer binds every route added since the last layer boundary to the
// builder's current state value and moves them into closed.
func (b *Builder[S]) closeLayer() {
	bound := reflect.ValueOf(b.state)
	for _, r := range b.open {
		r.handler.state = bound
		b.closed = append(b.closed, r)
	}
	b.open = nil
}

// Build closes the current (possibly still-stateless) layer and returns a
// ready Router.
func (b *Builder[S]) Build() *Router {
	b.closeLayer()
	return newRouter(b.closed, b.log)
}

// WithState closes b's current layer - binding every route added so far
// to b's current state value - and begins a new layer whose routes will
// be bound to value instead.
func WithState[S, T any](b *Builder[S], value T) *Builder[T] {
	b.closeLayer()
	return &Builder[T]{
		log:    b.log,
		state:  value,
		closed: b.closed,
	}
}

// compileRoute validates handler's shape via reflection and builds the
// extractor list for its declared parameters.
func compileRoute(pattern string, handler any) (*route, error) {
	fn := reflect.ValueOf(handler)
	t := fn.Type()

	if t.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a function, got %s", t.Kind())
	}
	if t.NumIn() == 0 || t.In(0) != ctxType {
		return nil, fmt.Errorf("handler's first parameter must be context.Context")
	}
	switch t.NumOut() {
	case 0:
	case 1:
		if !t.Out(0).Implements(errType) {
			return nil, fmt.Errorf("handler's single return value must be error")
		}
	default:
		return nil, fmt.Errorf("handler must return nothing or a single error")
	}

	extractors := make([]extractor, t.NumIn()-1)
	for i := 1; i < t.NumIn(); i++ {
		paramType := t.In(i)
		if !paramType.Implements(extractorType) {
			return nil, fmt.Errorf("parameter %d (%s) does not implement the extractor capability", i, paramType)
		}
		extractors[i-1] = reflect.New(paramType).Elem().Interface().(extractor)
	}

	return &route{
		pattern:  pattern,
		segments: compilePattern(pattern),
		handler: erasedHandler{
			extractors: extractors,
			fn:         fn,
		},
	}, nil
}

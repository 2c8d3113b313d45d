package qute

import (
	"context"
	"fmt"
	"reflect"

	"github.com/mladedav/qute/internal/packets"
)

// erasedHandler is the type-erased form of a registered route handler: a
// state value bound at WithState/Build time, the list of extractors
// needed to reconstruct each of the handler's declared arguments (beyond
// its mandatory leading context.Context), and the handler function itself
// as a reflect.Value so it can be invoked with arbitrary arity. Grounded
// on no direct precedent in the corpus - built from scratch per §4.7 -
// the reflect.Value.Call dispatch mirrors the "runtime arg-pack" design
// called out explicitly in the spec's own design notes.
type erasedHandler struct {
	state      reflect.Value
	extractors []extractor
	fn         reflect.Value
}

// call reconstructs each argument via its extractor and invokes fn. An
// extraction failure is fatal to this call only (wrapped in
// ErrExtractorRejection, logged by the caller) and never reaches the
// handler. A handler panic is recovered here so it cannot propagate into
// the dispatch goroutine and corrupt the connection.
func (h erasedHandler) call(ctx context.Context, p *packets.PublishPacket, client ClientState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	args := make([]reflect.Value, len(h.extractors)+1)
	args[0] = reflect.ValueOf(ctx)

	for i, ex := range h.extractors {
		v, exErr := ex.extract(ctx, p, h.state, client)
		if exErr != nil {
			return fmt.Errorf("argument %d: %w", i+1, exErr)
		}
		args[i+1] = reflect.ValueOf(v)
	}

	out := h.fn.Call(args)
	if len(out) == 0 {
		return nil
	}
	if out[0].IsNil() {
		return nil
	}
	return out[0].Interface().(error)
}

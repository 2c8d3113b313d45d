package qute

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mladedav/qute/internal/packets"
)

func TestHandlerCallExtractsBuiltinArguments(t *testing.T) {
	var gotTopic Topic
	var gotPayload Payload
	var gotQoS QoS

	b := NewRouter().Add("x", func(ctx context.Context, topic Topic, payload Payload, qos QoS) error {
		gotTopic, gotPayload, gotQoS = topic, payload, qos
		return nil
	})
	rt := b.Build()

	rt.dispatch(context.Background(), &packets.PublishPacket{Topic: "x", Payload: []byte("hi"), QoS: 1})

	assert.Equal(t, Topic("x"), gotTopic)
	assert.Equal(t, "hi", string(gotPayload))
	assert.Equal(t, QoS(1), gotQoS)
}

type order struct {
	ID string `json:"id"`
}

func TestHandlerCallJsonExtractor(t *testing.T) {
	var got order

	b := NewRouter().Add("orders", func(ctx context.Context, body Json[order]) error {
		got = body.Value
		return nil
	})
	rt := b.Build()

	payload, _ := json.Marshal(order{ID: "42"})
	rt.dispatch(context.Background(), &packets.PublishPacket{Topic: "orders", Payload: payload})

	assert.Equal(t, "42", got.ID)
}

func TestHandlerCallJsonExtractorRejectsMalformedPayload(t *testing.T) {
	called := false

	b := NewRouter().Add("orders", func(ctx context.Context, body Json[order]) error {
		called = true
		return nil
	})
	rt := b.Build()

	rt.dispatch(context.Background(), &packets.PublishPacket{Topic: "orders", Payload: []byte("not json")})

	assert.False(t, called, "handler must not run when the JSON payload is malformed")
}

type appState struct {
	prefix string
}

func TestHandlerCallStateIdentity(t *testing.T) {
	var got string

	bound := WithState(NewRouter(), appState{prefix: "bound"})
	bound.Add("health", func(ctx context.Context, s State[appState]) error {
		got = s.Value.prefix
		return nil
	})
	rt := bound.Build()

	rt.dispatch(context.Background(), &packets.PublishPacket{Topic: "health"})

	assert.Equal(t, "bound", got)
}

type outerState struct {
	inner string
}

func (o outerState) FromState() (string, error) {
	return o.inner, nil
}

func TestHandlerCallStateFromStateConversion(t *testing.T) {
	var got string

	bound := WithState(NewRouter(), outerState{inner: "converted"})
	bound.Add("health", func(ctx context.Context, s State[string]) error {
		got = s.Value
		return nil
	})
	rt := bound.Build()

	rt.dispatch(context.Background(), &packets.PublishPacket{Topic: "health"})

	assert.Equal(t, "converted", got)
}

func TestHandlerCallPropagatesHandlerError(t *testing.T) {
	want := errors.New("handler failed")

	e := erasedHandler{
		fn: reflect.ValueOf(func(ctx context.Context) error { return want }),
	}

	err := e.call(context.Background(), &packets.PublishPacket{}, ClientState{})
	assert.ErrorIs(t, err, want)
}

func TestHandlerCallRecoversPanic(t *testing.T) {
	e := erasedHandler{
		fn: reflect.ValueOf(func(ctx context.Context) error { panic("boom") }),
	}

	err := e.call(context.Background(), &packets.PublishPacket{}, ClientState{})
	require.Error(t, err, "panic inside a handler must surface as an error, not crash the dispatcher")
}

func TestCompileRouteRejectsNonFunction(t *testing.T) {
	b := NewRouter()
	defer func() {
		assert.NotNil(t, recover(), "Add() did not panic for a non-function handler")
	}()
	b.Add("x", "not a function")
}

func TestCompileRouteRejectsMissingContext(t *testing.T) {
	b := NewRouter()
	defer func() {
		assert.NotNil(t, recover(), "Add() did not panic for a handler without context.Context")
	}()
	b.Add("x", func(topic Topic) error { return nil })
}

func TestCompileRouteRejectsNonExtractorArgument(t *testing.T) {
	b := NewRouter()
	defer func() {
		assert.NotNil(t, recover(), "Add() did not panic for a parameter that is not an extractor")
	}()
	b.Add("x", func(ctx context.Context, n int) error { return nil })
}

func TestWithStateLayersAreIndependent(t *testing.T) {
	var firstState, secondState string

	b := NewRouter()
	b2 := WithState(b, "first")
	b2.Add("a", func(ctx context.Context, s State[string]) error {
		firstState = s.Value
		return nil
	})
	b3 := WithState(b2, "second")
	b3.Add("b", func(ctx context.Context, s State[string]) error {
		secondState = s.Value
		return nil
	})
	rt := b3.Build()

	rt.dispatch(context.Background(), &packets.PublishPacket{Topic: "a"})
	rt.dispatch(context.Background(), &packets.PublishPacket{Topic: "b"})

	assert.Equal(t, "first", firstState)
	assert.Equal(t, "second", secondState)
}

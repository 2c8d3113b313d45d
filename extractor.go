package qute

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mladedav/qute/internal/packets"
)

// ClientState bundles the cloneable Publisher/Subscriber handles made
// available to a handler's extractors, bound to the same packet router
// the inbound message itself arrived through.
type ClientState struct {
	Publisher  Publisher
	Subscriber Subscriber
}

// extractor synthesizes one reflect-callable handler argument from the
// inbound publish, the route's bound state, and the client state. Each
// built-in argument type below (Topic, QoS, Payload, Publish, Json[T],
// State[T], Publisher, Subscriber) implements this on itself: its zero
// value is only ever used as a method receiver, never inspected, so the
// router can discover the right extractor purely by checking whether a
// handler's declared parameter type implements this interface.
type extractor interface {
	extract(ctx context.Context, p *packets.PublishPacket, state reflect.Value, client ClientState) (any, error)
}

var extractorType = reflect.TypeOf((*extractor)(nil)).Elem()

// Publish is an extractor argument yielding a clone of the inbound
// message, built from the wire PublishPacket by messageFromPublish.
type Publish struct {
	Msg *Message
}

func (Publish) extract(_ context.Context, p *packets.PublishPacket, _ reflect.Value, _ ClientState) (any, error) {
	return Publish{Msg: messageFromPublish(p)}, nil
}

// Topic is an extractor argument yielding the publish's topic string.
type Topic string

func (Topic) extract(_ context.Context, p *packets.PublishPacket, _ reflect.Value, _ ClientState) (any, error) {
	return Topic(p.Topic), nil
}

// Payload is an extractor argument yielding the publish's raw payload.
type Payload []byte

func (Payload) extract(_ context.Context, p *packets.PublishPacket, _ reflect.Value, _ ClientState) (any, error) {
	return Payload(p.Payload), nil
}

func (QoS) extract(_ context.Context, p *packets.PublishPacket, _ reflect.Value, _ ClientState) (any, error) {
	return QoS(p.QoS), nil
}

// Json is an extractor argument that deserializes the publish's payload
// as JSON into T. A malformed payload rejects the call with
// ErrExtractorRejection rather than panicking the handler.
type Json[T any] struct {
	Value T
}

func (Json[T]) extract(_ context.Context, p *packets.PublishPacket, _ reflect.Value, _ ClientState) (any, error) {
	var v T
	if err := json.Unmarshal(p.Payload, &v); err != nil {
		return nil, fmt.Errorf("%w: payload is not valid JSON for %T: %v", ErrExtractorRejection, v, err)
	}
	return Json[T]{Value: v}, nil
}

// FromState lets a handler ask for a narrower or differently-shaped state
// than the one a route was bound to under WithState: implement this on
// the outer state type S the route is bound to, returning the T a handler
// asks for as State[T].
// The identity conversion (requesting State[S] itself) always succeeds
// without this capability.
type FromState[T any] interface {
	FromState() (T, error)
}

// State is an extractor argument yielding the route's bound state, or a
// value derived from it via FromState[T].
type State[T any] struct {
	Value T
}

func (State[T]) extract(_ context.Context, _ *packets.PublishPacket, state reflect.Value, _ ClientState) (any, error) {
	outer := state.Interface()

	if t, ok := outer.(T); ok {
		return State[T]{Value: t}, nil
	}
	if conv, ok := outer.(FromState[T]); ok {
		v, err := conv.FromState()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExtractorRejection, err)
		}
		return State[T]{Value: v}, nil
	}

	var zero T
	return nil, fmt.Errorf("%w: state %T has no conversion to %T", ErrExtractorRejection, outer, zero)
}

func (Publisher) extract(_ context.Context, _ *packets.PublishPacket, _ reflect.Value, client ClientState) (any, error) {
	return client.Publisher, nil
}

func (Subscriber) extract(_ context.Context, _ *packets.PublishPacket, _ reflect.Value, client ClientState) (any, error) {
	return client.Subscriber, nil
}

// messageFromPublish converts a wire PUBLISH packet to the public Message
// type, mirroring the conversion the teacher's handlePublish performed
// inline before invoking a MessageHandler.
func messageFromPublish(p *packets.PublishPacket) *Message {
	return &Message{
		Topic:      p.Topic,
		Payload:    p.Payload,
		QoS:        QoS(p.QoS),
		Retained:   p.Retain,
		Duplicate:  p.Dup,
		Properties: toPublicProperties(p.Properties),
	}
}

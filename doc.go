// Package qute is an MQTT v5.0 client library built around a handler
// router instead of a single message callback.
//
// A connection is split into four independent trackers (sent-publish,
// received-publish, subscribe, connect), each guarded by its own mutex,
// and a Packet Router that dispatches every inbound and outbound packet
// to the tracker that owns it. Handlers are registered on a Topic Router
// using a local pattern syntax distinct from MQTT's own wildcards:
// ":name" captures a single topic segment, and a trailing "*name" catches
// every remaining segment. Patterns are rewritten to MQTT topic filters
// (":name" -> "+", trailing "*name" -> "#") for the single SUBSCRIBE the
// client issues on connect.
//
// # Quick start
//
//	router := qute.NewRouter().
//	    Add("sensors/:room/temperature", func(ctx context.Context, t qute.Topic, p qute.Payload) error {
//	        fmt.Printf("%s: %s\n", t, p)
//	        return nil
//	    }).
//	    Build()
//
//	client, err := qute.NewClientBuilder("tcp://localhost:1883",
//	    qute.WithClientID("my-client"),
//	).Build(context.Background(), router)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Shutdown(context.Background())
//
//	token := client.Publish(context.Background(), "sensors/kitchen/temperature", qute.AtLeastOnce, []byte("22.5"))
//	if err := token.Wait(context.Background()); err != nil {
//	    log.Printf("publish failed: %v", err)
//	}
//
// # Handlers and extractors
//
// A handler is any function whose first parameter is context.Context and
// whose remaining parameters are each an extractor argument type: Topic,
// QoS, Payload, Publish, Json[T], State[T], Publisher, or Subscriber.
// Router.Add inspects the handler's signature via reflection and builds
// the matching extractor for each parameter, so handlers of any arity
// register without per-arity boilerplate.
//
// Routes can be grouped under shared state with WithState, which closes
// the current layer (binding its routes to whatever state applied so
// far) and opens a new one:
//
//	b := qute.NewRouter().Add("health", healthHandler)
//	b2 := qute.WithState(b, myAppState{})
//	router := b2.Add("orders/:id", orderHandler).Build()
//
// # Transports
//
// NewClientBuilder accepts tcp://, tls://, ssl://, mqtt://, mqtts://,
// ws://, and wss:// addresses, plus a custom dialer via WithDialer.
//
// # Scope
//
// This library implements the CONNECT/PUBLISH/SUBSCRIBE/UNSUBSCRIBE/
// PINGREQ/AUTH/DISCONNECT core of MQTT v5.0 for a single connection per
// Client. It does not persist session state across restarts, does not
// reconnect automatically, and does not speak MQTT v3.1.1 - the broker is
// assumed to already be running and reachable; building one is out of
// scope.
package qute

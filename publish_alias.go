package qute

// WithAlias enables topic alias optimization for this publish.
//
// Only applicable when WithTopicAliasMaximum() is set and the server
// advertised a non-zero TopicAliasMaximum in CONNACK.
// Topic aliases allow the client to send a short alias ID instead of the
// full topic name, reducing bandwidth usage for frequently published topics.
//
// On the first publish to a topic with WithAlias():
//   - Sends full topic name + assigns an alias ID
//   - Subsequent publishes automatically use the alias (sends empty topic)
//
// The library automatically manages alias allocation and tracking.
// If the alias limit is reached, gracefully falls back to sending the full topic.
//
// Example:
//
//	client, _ := qute.NewClientBuilder("tcp://localhost:1883",
//	    qute.WithTopicAliasMaximum(100)).Build(ctx, router)
//
//	// First publish - sends full topic + assigns alias
//	client.Publish(ctx, "sensors/building-a/floor-3/room-42/temperature", qute.AtMostOnce, data,
//	    qute.WithAlias())
//
//	// Subsequent publishes - automatically uses alias (saves ~50 bytes)
//	client.Publish(ctx, "sensors/building-a/floor-3/room-42/temperature", qute.AtMostOnce, data,
//	    qute.WithAlias())
func WithAlias() PublishOption {
	return func(o *PublishOptions) {
		o.UseAlias = true
	}
}

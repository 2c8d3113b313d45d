package qute

import (
	"log/slog"
	"sync"

	"github.com/mladedav/qute/internal/packets"
)

// topicAliasState tracks outbound topic alias assignments for one connection.
// Kept as its own mutex-guarded type rather than fields directly on Client so
// that alias bookkeeping, like the trackers, is independently lockable.
type topicAliasState struct {
	mu      sync.Mutex
	aliases map[string]uint16
	next    uint16
	max     uint16
	log     *slog.Logger
}

func newTopicAliasState(max uint16, log *slog.Logger) *topicAliasState {
	return &topicAliasState{
		aliases: make(map[string]uint16),
		next:    1,
		max:     max,
		log:     log,
	}
}

// apply applies topic alias optimization to an outbound publish packet.
//
// On first publish to a topic, it assigns a new alias ID and sends both the
// topic and the alias. On subsequent publishes to the same topic it sends an
// empty topic and relies on the previously assigned alias. If the alias
// limit has been reached it gracefully falls back to sending the full topic.
func (t *topicAliasState) apply(pkt *packets.PublishPacket) {
	if t == nil || t.max == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if aliasID, exists := t.aliases[pkt.Topic]; exists {
		ensureProperties(pkt)
		pkt.Properties.TopicAlias = aliasID
		pkt.Properties.Presence |= packets.PresTopicAlias
		pkt.Topic = ""
		t.log.Debug("using topic alias", "alias_id", aliasID)
		return
	}

	if t.next > t.max {
		t.log.Debug("topic alias limit reached, sending full topic", "limit", t.max)
		return
	}

	aliasID := t.next
	t.next++
	t.aliases[pkt.Topic] = aliasID

	ensureProperties(pkt)
	pkt.Properties.TopicAlias = aliasID
	pkt.Properties.Presence |= packets.PresTopicAlias
	t.log.Debug("assigned new topic alias", "topic", pkt.Topic, "alias_id", aliasID, "total_aliases", len(t.aliases))
}

// reset clears all alias assignments, used when a fresh connection is established.
func (t *topicAliasState) reset() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aliases = make(map[string]uint16)
	t.next = 1
}

func ensureProperties(pkt *packets.PublishPacket) {
	if pkt.Properties == nil {
		pkt.Properties = &packets.Properties{}
	}
}

// inboundAliasState resolves topic aliases on received PUBLISH packets back
// to their full topic name, per MQTT v5 §3.3.2.3.4.
type inboundAliasState struct {
	mu      sync.Mutex
	aliases map[uint16]string
}

func newInboundAliasState() *inboundAliasState {
	return &inboundAliasState{aliases: make(map[uint16]string)}
}

// resolve mutates pkt.Topic in place when the publish carries a topic alias
// instead of (or in addition to) a literal topic, per the v5 alias rules.
// Returns an error if the server used an alias without ever establishing it.
func (s *inboundAliasState) resolve(pkt *packets.PublishPacket) error {
	if pkt.Properties == nil || pkt.Properties.Presence&packets.PresTopicAlias == 0 {
		return nil
	}
	alias := pkt.Properties.TopicAlias

	s.mu.Lock()
	defer s.mu.Unlock()

	if pkt.Topic != "" {
		s.aliases[alias] = pkt.Topic
		return nil
	}

	topic, ok := s.aliases[alias]
	if !ok {
		return &MqttError{ReasonCode: ReasonCodeProtocolError, Message: "topic alias used before being established"}
	}
	pkt.Topic = topic
	return nil
}

func (s *inboundAliasState) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases = make(map[uint16]string)
}

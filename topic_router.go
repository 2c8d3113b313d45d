package qute

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mladedav/qute/internal/packets"
)

// segmentKind distinguishes the three kinds of pattern segment a route
// can be made of.
type segmentKind int

const (
	segLiteral segmentKind = iota
	segCapture             // :name
	segCatchAll            // *name, only legal as the final segment
)

type patternSegment struct {
	kind segmentKind
	text string // literal text, or the captured name for capture/catch-all
}

// route is one registered (pattern, erased-handler) entry. Grounded on
// §4.6's pattern syntax; patterns are always matched with a leading "/"
// prepended to both the pattern and the topic, so a top-level literal and
// a top-level capture at depth 0 are distinguished the same way any other
// depth is.
type route struct {
	pattern  string
	segments []patternSegment
	handler  erasedHandler
}

// compilePattern splits a pattern of the form "a/:b/*c" into segments.
// The pattern is prefixed with "/" before splitting per §4.6's
// registration rule.
func compilePattern(pattern string) []patternSegment {
	full := "/" + strings.TrimPrefix(pattern, "/")
	parts := strings.Split(full, "/")[1:] // drop the leading empty element from "/"

	segments := make([]patternSegment, 0, len(parts))
	for i, part := range parts {
		switch {
		case strings.HasPrefix(part, "*") && i == len(parts)-1:
			segments = append(segments, patternSegment{kind: segCatchAll, text: strings.TrimPrefix(part, "*")})
		case strings.HasPrefix(part, ":"):
			segments = append(segments, patternSegment{kind: segCapture, text: strings.TrimPrefix(part, ":")})
		default:
			segments = append(segments, patternSegment{kind: segLiteral, text: part})
		}
	}
	return segments
}

// filter rewrites the pattern into a valid MQTT v5 topic filter:
// ":name" becomes "+" in every segment, and a trailing "*name" becomes
// "#".
func (r *route) filter() string {
	parts := make([]string, len(r.segments))
	for i, seg := range r.segments {
		switch seg.kind {
		case segCatchAll:
			parts[i] = "#"
		case segCapture:
			parts[i] = "+"
		default:
			parts[i] = seg.text
		}
	}
	return strings.Join(parts, "/")
}

// match ranks how specific a match was, so that among several routes
// matching the same topic the router picks the most specific: literal
// segments outrank captures, which outrank a catch-all. Returns ok=false
// if the topic does not match this route at all.
func (r *route) match(topicParts []string) (params map[string]string, literalWeight, captureWeight int, ok bool) {
	params = make(map[string]string)

	for i, seg := range r.segments {
		switch seg.kind {
		case segCatchAll:
			if i > len(topicParts) {
				return nil, 0, 0, false
			}
			params[seg.text] = strings.Join(topicParts[i:], "/")
			return params, literalWeight, captureWeight, true

		default:
			if i >= len(topicParts) {
				return nil, 0, 0, false
			}
			if seg.kind == segLiteral {
				if topicParts[i] != seg.text {
					return nil, 0, 0, false
				}
				literalWeight++
			} else {
				params[seg.text] = topicParts[i]
				captureWeight++
			}
		}
	}

	// No catch-all: segment counts must match exactly.
	if len(r.segments) != len(topicParts) {
		return nil, 0, 0, false
	}
	return params, literalWeight, captureWeight, true
}

// Router stores compiled (pattern, handler) routes and dispatches inbound
// PUBLISH packets to the best match. Grounded on the teacher's
// subscriptionEntry/matchTopic pairing in topic.go and client.go's
// subscription table, replacing MQTT's native +/# matching syntax with
// the spec's own :name/*name local pattern language.
type Router struct {
	log    *slog.Logger
	client ClientState

	routes []*route
}

func newRouter(routes []*route, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{log: log, routes: routes}
}

// bindClientState attaches the Publisher/Subscriber handles the Client
// Facade hands to extractors during dispatch. Called once, when the
// Client wires its Router to its own packet router.
func (rt *Router) bindClientState(client ClientState) {
	rt.client = client
}

// filters returns the MQTT topic filters every registered route rewrites
// to, for the single SUBSCRIBE issued on connect per §4.6.
func (rt *Router) filters() []string {
	seen := make(map[string]struct{}, len(rt.routes))
	var out []string
	for _, r := range rt.routes {
		f := r.filter()
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// bestMatch finds the most specific route matching topic, per §4.6's
// "longest literal prefix wins, then capture over catch-all" rule.
func (rt *Router) bestMatch(topic string) (*route, map[string]string) {
	topicParts := strings.Split(topic, "/")

	var best *route
	var bestParams map[string]string
	bestLiteral, bestCapture := -1, -1

	for _, r := range rt.routes {
		params, literalWeight, captureWeight, ok := r.match(topicParts)
		if !ok {
			continue
		}
		if literalWeight > bestLiteral || (literalWeight == bestLiteral && captureWeight > bestCapture) {
			best, bestParams = r, params
			bestLiteral, bestCapture = literalWeight, captureWeight
		}
	}
	return best, bestParams
}

// dispatch implements publishDispatcher: it resolves the best-matching
// route and invokes its handler, logging (and dropping) unmatched
// publishes rather than treating them as an error.
func (rt *Router) dispatch(ctx context.Context, p *packets.PublishPacket) {
	r, _ := rt.bestMatch(p.Topic)
	if r == nil {
		rt.log.Debug("no route matched topic, dropping publish", "topic", p.Topic)
		return
	}

	if err := r.handler.call(ctx, p, rt.client); err != nil {
		rt.log.Error("handler call failed", "topic", p.Topic, "pattern", r.pattern, "error", err)
	}
}

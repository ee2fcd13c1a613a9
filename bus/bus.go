// bus.go
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// -----------------------------------------------------------------------------
// Tokens + Topics
// -----------------------------------------------------------------------------

// Token is a single element in a topic path. Any comparable value works;
// in practice tokens are strings or small ints.
type Token = any

// Topic is a sequence of tokens.
type Topic []Token

// Wildcard tokens (string-typed, MQTT-style).
const (
	WildOne = "+" // matches exactly one level
	WildAny = "#" // matches zero or more trailing levels
)

// T builds a Topic and panics early if a token is not comparable.
func T(tokens ...Token) Topic {
	probe := map[Token]struct{}{}
	for _, tok := range tokens {
		probe[tok] = struct{}{} // panics for non-comparable tokens
	}
	return Topic(tokens)
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	bus   *Bus
	conn  *Connection // owning connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

type node struct {
	children map[Token]*node
	subs     []*Subscription
	retained *Message
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu     sync.RWMutex
	root   *node
	qLen   int
	nextID uint32 // reply-topic sequence
}

// NewBus creates a new bus with the given subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8 // safe default
	}
	return &Bus{
		root: &node{},
		qLen: queueLen,
	}
}

// NewMessage builds a message for this bus.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// addSubscription inserts a subscription into the trie and delivers any
// retained messages its (possibly wildcarded) topic matches.
func (b *Bus) addSubscription(topic Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range topic {
		if n.children == nil {
			n.children = make(map[Token]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}

	n.subs = append(n.subs, sub)

	var retained []*Message
	collectRetained(b.root, topic, 0, &retained)
	for _, msg := range retained {
		select {
		case sub.ch <- msg:
		default:
		}
	}
}

// collectRetained gathers retained messages under n matching pattern[i:].
func collectRetained(n *node, pattern Topic, i int, out *[]*Message) {
	if n == nil {
		return
	}
	if i == len(pattern) {
		if n.retained != nil {
			*out = append(*out, n.retained)
		}
		return
	}
	switch pattern[i] {
	case Token(WildAny):
		// Matches this node and everything below it.
		collectSubtree(n, out)
	case Token(WildOne):
		for _, child := range n.children {
			collectRetained(child, pattern, i+1, out)
		}
	default:
		if n.children == nil {
			return
		}
		collectRetained(n.children[pattern[i]], pattern, i+1, out)
	}
}

func collectSubtree(n *node, out *[]*Message) {
	if n.retained != nil {
		*out = append(*out, n.retained)
	}
	for _, child := range n.children {
		collectSubtree(child, out)
	}
}

// Publish delivers a message to all subscribers whose topic matches,
// including wildcard subscriptions, and stores it when retained.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var matched []*Subscription
	matchSubs(b.root, msg.Topic, 0, &matched)

	for _, sub := range matched {
		select {
		case sub.ch <- msg:
		default:
			// drop oldest if queue full
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- msg:
			default:
			}
		}
	}

	if !msg.Retained {
		return
	}

	// Store or clear the retained message at the concrete topic node.
	n := b.root
	for _, tok := range msg.Topic {
		if n.children == nil {
			n.children = make(map[Token]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	if msg.Payload == nil {
		n.retained = nil
	} else {
		n.retained = msg
	}
}

// matchSubs walks the subscription trie against a concrete topic,
// branching into exact, "+" and "#" children.
func matchSubs(n *node, topic Topic, depth int, out *[]*Subscription) {
	if n == nil {
		return
	}
	if n.children != nil {
		if hash := n.children[Token(WildAny)]; hash != nil {
			// "#" matches zero or more remaining levels.
			*out = append(*out, hash.subs...)
		}
	}
	if depth == len(topic) {
		*out = append(*out, n.subs...)
		return
	}
	if n.children == nil {
		return
	}
	matchSubs(n.children[topic[depth]], topic, depth+1, out)
	matchSubs(n.children[Token(WildOne)], topic, depth+1, out)
}

// unsubscribe removes a subscription from the trie.
func (b *Bus) unsubscribe(topic Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	var stack []*node
	for _, t := range topic {
		if n.children == nil {
			return
		}
		child, ok := n.children[t]
		if !ok {
			return
		}
		stack = append(stack, n)
		n = child
	}

	// Remove subscription.
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}

	// Prune empty nodes.
	for i := len(topic) - 1; i >= 0; i-- {
		parent := stack[i]
		key := topic[i]
		child := parent.children[key]
		if len(child.subs) == 0 && len(child.children) == 0 && child.retained == nil {
			delete(parent.children, key)
		} else {
			break
		}
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	subs []*Subscription
	mu   sync.Mutex
	id   string
}

// NewConnection creates a new connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{
		bus: b,
		id:  id,
	}
}

// NewMessage builds a message for the connection's bus.
func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) {
	c.bus.Publish(msg)
}

// Subscribe registers a subscription owned by this connection.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		bus:   c.bus,
		conn:  c,
	}
	c.bus.addSubscription(topic, sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription owned by this connection.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub.topic, sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect closes all subscriptions and clears them.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub.topic, sub)
		close(sub.ch)
	}
}

// -----------------------------------------------------------------------------
// Request–Reply
// -----------------------------------------------------------------------------

// Request publishes msg with a fresh ReplyTo topic and returns a
// subscription on that topic. The caller must Unsubscribe it.
func (c *Connection) Request(msg *Message) *Subscription {
	seq := atomic.AddUint32(&c.bus.nextID, 1)
	msg.ReplyTo = Topic{"reply", c.id, int(seq)}
	sub := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return sub
}

// Reply answers a request on its ReplyTo topic. No-op without one.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if len(req.ReplyTo) == 0 {
		return
	}
	c.Publish(&Message{Topic: req.ReplyTo, Payload: payload, Retained: retained})
}

// ErrClosed reports a reply channel closed before a reply arrived.
var ErrClosed = errors.New("bus: subscription closed")

// RequestWait publishes a request and blocks for the first reply or ctx.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case reply, ok := <-sub.ch:
		if !ok {
			return nil, ErrClosed
		}
		return reply, nil
	}
}

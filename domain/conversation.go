package domain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"marketchat/errors"
	"marketchat/moderation"
)

// Side selects which endpoint of a message a visibility edit applies to.
type Side int

const (
	SenderSide Side = iota
	ReceiverSide
)

// LineMark replaces line breaks when a multi-line file is sent as a single
// message.
const LineMark = '¶'

// Conversation is the ordered message history between one seller, optionally
// scoped to one of its stores, and one customer. An empty store name means
// the conversation is not scoped to any store.
//
// All history mutation goes through the conversation's own lock, so two
// connections appending at the same instant serialize here.
type Conversation struct {
	seller   *Participant
	customer *Participant
	store    string

	mu           sync.Mutex
	disappearing bool
	messages     []*Message
}

// NewConversation builds an empty conversation. Identity dedup is the
// conversation store's concern; use its GetOrCreate rather than calling
// this directly.
func NewConversation(seller, customer *Participant, store string, disappearing bool) *Conversation {
	return &Conversation{
		seller:       seller,
		customer:     customer,
		store:        store,
		disappearing: disappearing,
	}
}

func (c *Conversation) Seller() *Participant   { return c.seller }
func (c *Conversation) Customer() *Participant { return c.customer }
func (c *Conversation) Store() string          { return c.store }

func (c *Conversation) Disappearing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disappearing
}

func (c *Conversation) SetDisappearing(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disappearing = v
}

// SameIdentity reports whether the other conversation addresses the same
// (seller, customer, store) triple. The disappearing flag is not part of
// the identity.
func (c *Conversation) SameIdentity(o *Conversation) bool {
	if o == nil {
		return false
	}
	return c.seller.Email() == o.seller.Email() &&
		c.customer.Email() == o.customer.Email() &&
		c.store == o.store
}

// Messages returns a snapshot of the history in append order.
func (c *Conversation) Messages() []*Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Message(nil), c.messages...)
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// OtherParticipant returns the opposite endpoint, or nil if p is not part
// of this conversation.
func (c *Conversation) OtherParticipant(p *Participant) *Participant {
	switch {
	case p == nil:
		return nil
	case p.Email() == c.seller.Email():
		return c.customer
	case p.Email() == c.customer.Email():
		return c.seller
	default:
		return nil
	}
}

// Append adds a message to the history, or silently does nothing when the
// message does not belong here:
//   - a declared parent naming a different (seller, customer, store) triple;
//   - a receiver that has blocked the sender;
//   - an equal message already stored at the same timestamp (duplicate
//     submission).
//
// Timestamps already taken are skipped by bumping the new message forward
// one millisecond at a time, which also keeps submission order between
// same-instant sends.
func (c *Conversation) Append(m *Message) {
	if p := m.Parent(); p != nil && !c.SameIdentity(p) {
		return
	}

	receiver := c.seller
	if m.ReceiverEmail == c.customer.Email() {
		receiver = c.customer
	}
	sender := c.OtherParticipant(receiver)

	if receiver.HasBlocked(sender.Email()) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing := c.messageAtLocked(m.SentAt); existing != nil && existing.Equal(m) {
		return
	}
	for c.messageAtLocked(m.SentAt) != nil {
		m.SentAt++
	}
	c.messages = append(c.messages, m)
	if m.Parent() == nil {
		m.SetParent(c)
	}
}

// MessageAt returns the last message in append order stored at the given
// timestamp, or nil.
func (c *Conversation) MessageAt(sentAt int64) *Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messageAtLocked(sentAt)
}

func (c *Conversation) messageAtLocked(sentAt int64) *Message {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].SentAt == sentAt {
			return c.messages[i]
		}
	}
	return nil
}

// SetContent edits a message in place. The caller is expected to have
// verified the editor's identity already.
func (c *Conversation) SetContent(m *Message, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m.Content = content
}

// SetVisibility flips one side's view flag, the soft-delete primitive.
func (c *Conversation) SetVisibility(m *Message, side Side, visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if side == SenderSide {
		m.CanSenderView = visible
	} else {
		m.CanReceiverView = visible
	}
}

// VisibleContent projects the message content through the viewer's blocked
// phrase replacements. The stored content is left untouched.
func (c *Conversation) VisibleContent(m *Message, viewer *Participant) string {
	if viewer == nil {
		return m.Content
	}
	return moderation.NewFilter(viewer.BlockedPhrases()).Apply(m.Content)
}

// MessagesSentBy counts history entries sent by the given participant.
func (c *Conversation) MessagesSentBy(p *Participant) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.messages {
		if m.SenderEmail == p.Email() {
			n++
		}
	}
	return n
}

// SendFromFile sends the contents of an uploaded text file as one message
// from the given endpoint, collapsing line breaks to the line mark. Binary
// payloads are rejected.
func (c *Conversation) SendFromFile(sender *Participant, contents string) error {
	receiver := c.OtherParticipant(sender)
	if receiver == nil {
		return errors.ErrInvalidPair
	}
	if mt := mimetype.Detect([]byte(contents)); !strings.HasPrefix(mt.String(), "text/") {
		return fmt.Errorf("%w: detected %s", errors.ErrNotText, mt.String())
	}
	normalized := strings.ReplaceAll(contents, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	content := strings.ReplaceAll(strings.TrimRight(normalized, "\n"), "\n", string(LineMark))
	c.Append(NewMessage(sender.Email(), receiver.Email(), content))
	return nil
}

// ExportCSV renders the conversation as CSV from one participant's point of
// view: soft-deleted messages are dropped and content goes through the
// viewer's phrase replacements. Commas in fields are escaped with a
// backslash, matching the export consumed by the desktop client.
func (c *Conversation) ExportCSV(viewer *Participant) (string, error) {
	other := c.OtherParticipant(viewer)
	if other == nil {
		return "", errors.ErrInvalidPair
	}

	var sb strings.Builder
	sb.WriteString("userEmail,otherUserEmail,senderName,timestamp,messageContents\n")
	for _, m := range c.Messages() {
		visible := (m.ReceiverEmail == viewer.Email() && m.CanReceiverView) ||
			(m.SenderEmail == viewer.Email() && m.CanSenderView)
		if !visible {
			continue
		}
		senderName := other.Name()
		if m.SenderEmail == viewer.Email() {
			senderName = viewer.Name()
		}
		fmt.Fprintf(&sb, "%s,%s,%s,%d,%s\n",
			escapeCSV(viewer.Email()), escapeCSV(other.Email()),
			escapeCSV(senderName), m.SentAt, escapeCSV(c.VisibleContent(m, viewer)))
	}
	return sb.String(), nil
}

func escapeCSV(s string) string {
	return strings.ReplaceAll(s, ",", "\\,")
}

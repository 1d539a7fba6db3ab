package domain

import "time"

// Message is one entry in a conversation history. The send timestamp in
// milliseconds doubles as a quasi-identifier: within a conversation no two
// messages share one (see Conversation.Append). The two view flags implement
// soft per-side deletion; the stored content is never removed.
type Message struct {
	SenderEmail     string
	ReceiverEmail   string
	CanSenderView   bool
	CanReceiverView bool
	Content         string
	SentAt          int64 // milliseconds since epoch

	parent *Conversation
}

// NewMessage builds a message stamped with the current time, visible to
// both sides.
func NewMessage(senderEmail, receiverEmail, content string) *Message {
	return RestoredMessage(senderEmail, receiverEmail, true, true, content, time.Now().UnixMilli())
}

// RestoredMessage rebuilds a message with explicit flags and timestamp, as
// read back from persistence or received over the wire.
func RestoredMessage(senderEmail, receiverEmail string, canSenderView, canReceiverView bool, content string, sentAt int64) *Message {
	return &Message{
		SenderEmail:     senderEmail,
		ReceiverEmail:   receiverEmail,
		CanSenderView:   canSenderView,
		CanReceiverView: canReceiverView,
		Content:         content,
		SentAt:          sentAt,
	}
}

// Parent returns the conversation this message belongs to, or nil if it has
// not been appended anywhere yet.
func (m *Message) Parent() *Conversation { return m.parent }

// SetParent declares the conversation this message is destined for. Append
// ignores messages whose declared parent names a different conversation.
func (m *Message) SetParent(c *Conversation) { m.parent = c }

// Equal compares every field except the parent reference. Used for the
// duplicate-submission check on append.
func (m *Message) Equal(o *Message) bool {
	if o == nil {
		return false
	}
	return m.SenderEmail == o.SenderEmail &&
		m.ReceiverEmail == o.ReceiverEmail &&
		m.CanSenderView == o.CanSenderView &&
		m.CanReceiverView == o.CanReceiverView &&
		m.Content == o.Content &&
		m.SentAt == o.SentAt
}

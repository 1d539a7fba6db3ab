package protocol

import "marketchat/domain"

// UserRecordFrom snapshots a participant for the wire.
func UserRecordFrom(p *domain.Participant) UserRecord {
	return UserRecord{
		Email:          p.Email(),
		Name:           p.Name(),
		Role:           p.Role().String(),
		Stores:         p.Stores(),
		BlockedEmails:  p.BlockedEmails(),
		InvisibleTo:    p.InvisibleTo(),
		BlockedPhrases: p.BlockedPhrases(),
	}
}

// ConversationRecordFrom snapshots a conversation, history included.
func ConversationRecordFrom(c *domain.Conversation) ConversationRecord {
	messages := c.Messages()
	out := ConversationRecord{
		SellerEmail:   c.Seller().Email(),
		CustomerEmail: c.Customer().Email(),
		Store:         c.Store(),
		Disappearing:  c.Disappearing(),
		Messages:      make([]MessageRecord, 0, len(messages)),
	}
	for _, m := range messages {
		out.Messages = append(out.Messages, MessageRecordFrom(m))
	}
	return out
}

// IdentityRecordFrom snapshots only the conversation identity, for use as a
// message's parent reference.
func IdentityRecordFrom(c *domain.Conversation) *ConversationRecord {
	if c == nil {
		return nil
	}
	return &ConversationRecord{
		SellerEmail:   c.Seller().Email(),
		CustomerEmail: c.Customer().Email(),
		Store:         c.Store(),
		Disappearing:  c.Disappearing(),
	}
}

// MessageRecordFrom snapshots one message, carrying its parent identity
// when it has been appended to a conversation.
func MessageRecordFrom(m *domain.Message) MessageRecord {
	return MessageRecord{
		SenderEmail:     m.SenderEmail,
		ReceiverEmail:   m.ReceiverEmail,
		CanSenderView:   m.CanSenderView,
		CanReceiverView: m.CanReceiverView,
		Content:         m.Content,
		SentAt:          m.SentAt,
		Parent:          IdentityRecordFrom(m.Parent()),
	}
}

// ToDomainMessage rebuilds a detached message from its record. The parent,
// if any, must be resolved against the live store by the caller.
func (r MessageRecord) ToDomainMessage() *domain.Message {
	return domain.RestoredMessage(r.SenderEmail, r.ReceiverEmail, r.CanSenderView, r.CanReceiverView, r.Content, r.SentAt)
}

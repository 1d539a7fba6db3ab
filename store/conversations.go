package store

import (
	"sync"

	"github.com/samber/lo"

	"marketchat/domain"
	"marketchat/errors"
)

// ConversationStore holds every live conversation in creation order. At most
// one conversation object exists per (seller, customer, store) triple; the
// coarse lock here guards the list, while each conversation guards its own
// history.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations []*domain.Conversation
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{}
}

// GetOrCreate returns the live conversation for the identity triple,
// creating an empty one if none exists. Repeated calls with the same triple
// return the same object, so message history appended through one reference
// is visible through every other.
func (cs *ConversationStore) GetOrCreate(seller, customer *domain.Participant, storeName string, disappearing bool) *domain.Conversation {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, c := range cs.conversations {
		if c.Seller().Email() == seller.Email() &&
			c.Customer().Email() == customer.Email() &&
			c.Store() == storeName {
			return c
		}
	}
	c := domain.NewConversation(seller, customer, storeName, disappearing)
	cs.conversations = append(cs.conversations, c)
	return c
}

// splitPair orders an arbitrary participant pair into (seller, customer),
// failing unless it is exactly one of each.
func splitPair(a, b *domain.Participant) (seller, customer *domain.Participant, err error) {
	switch {
	case a == nil || b == nil:
		return nil, nil, errors.ErrUnknownUser
	case a.Role() == domain.RoleSeller && b.Role() == domain.RoleCustomer:
		return a, b, nil
	case a.Role() == domain.RoleCustomer && b.Role() == domain.RoleSeller:
		return b, a, nil
	default:
		return nil, nil, errors.ErrInvalidPair
	}
}

// FindByPair returns the first conversation between the pair regardless of
// store, or nil when the pair has never talked.
func (cs *ConversationStore) FindByPair(a, b *domain.Participant) (*domain.Conversation, error) {
	seller, customer, err := splitPair(a, b)
	if err != nil {
		return nil, err
	}
	for _, c := range cs.ConversationsFor(customer) {
		if c.Seller().Email() == seller.Email() {
			return c, nil
		}
	}
	return nil, nil
}

// FindByPairAndStore narrows FindByPair to one store scope. The empty store
// name is a real scope: it matches only conversations created without one.
func (cs *ConversationStore) FindByPairAndStore(a, b *domain.Participant, storeName string) (*domain.Conversation, error) {
	seller, customer, err := splitPair(a, b)
	if err != nil {
		return nil, err
	}
	for _, c := range cs.ConversationsFor(customer) {
		if c.Seller().Email() == seller.Email() && c.Store() == storeName {
			return c, nil
		}
	}
	return nil, nil
}

// ConversationsFor returns the conversations where the participant is an
// endpoint on its own side, in creation order.
func (cs *ConversationStore) ConversationsFor(p *domain.Participant) []*domain.Conversation {
	if p == nil {
		return nil
	}
	return lo.Filter(cs.All(), func(c *domain.Conversation, _ int) bool {
		if p.Role() == domain.RoleSeller {
			return c.Seller().Email() == p.Email()
		}
		return c.Customer().Email() == p.Email()
	})
}

// Resolve maps a conversation reference received over the wire or loaded
// from disk onto the canonical live object, matching identity plus the
// disappearing flag. Returns nil when no such conversation exists.
func (cs *ConversationStore) Resolve(sellerEmail, customerEmail, storeName string, disappearing bool) *domain.Conversation {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	for _, c := range cs.conversations {
		if c.Seller().Email() == sellerEmail &&
			c.Customer().Email() == customerEmail &&
			c.Store() == storeName &&
			c.Disappearing() == disappearing {
			return c
		}
	}
	return nil
}

// All returns a snapshot of the conversation list in creation order.
func (cs *ConversationStore) All() []*domain.Conversation {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return append([]*domain.Conversation(nil), cs.conversations...)
}

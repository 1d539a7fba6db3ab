// Package server accepts connections and runs the per-connection request
// loop that turns wire requests into store operations.
package server

import (
	"bufio"
	"io"
	"log/slog"

	"marketchat/auth"
	"marketchat/domain"
	"marketchat/observability"
	"marketchat/protocol"
	"marketchat/store"
)

// Dispatcher runs the request loop for one connection. Handlers are thin
// adapters over the directory and conversation store; every business rule
// lives below this layer.
type Dispatcher struct {
	directory     *store.Directory
	conversations *store.ConversationStore
	log           *slog.Logger
	monitor       *observability.Monitor

	// requestExit is called when a peer sends the Exit opcode; the owner
	// flushes state and closes the listener.
	requestExit func()
}

func NewDispatcher(directory *store.Directory, conversations *store.ConversationStore, log *slog.Logger, monitor *observability.Monitor, requestExit func()) *Dispatcher {
	return &Dispatcher{
		directory:     directory,
		conversations: conversations,
		log:           log,
		monitor:       monitor,
		requestExit:   requestExit,
	}
}

// Serve reads requests until the peer disconnects or the stream breaks.
// It reports whether the connection ended gracefully (an explicit
// Disconnect or Exit) as opposed to a transport error, which the caller
// answers with a state flush.
func (d *Dispatcher) Serve(rw io.ReadWriter) (graceful bool) {
	r := bufio.NewReader(rw)

	for {
		op, received, err := protocol.ReadRequestHead(r)
		if err != nil {
			if err != io.EOF {
				d.log.Warn("connection ended", "error", err)
			}
			return false
		}

		switch op {
		case protocol.OpDisconnect:
			d.log.Debug("peer disconnected")
			return true
		case protocol.OpExit:
			d.log.Info("exit requested")
			d.requestExit()
			return true
		}

		if !op.Valid() {
			d.log.Warn("unknown opcode", "opcode", byte(op), "received", received)
			if !d.drain(r, received) {
				return false
			}
			continue
		}

		declared := op.Arity()
		if received < declared {
			// The missing arguments were never sent; answer with the
			// placeholder and discard only what actually arrived.
			d.log.Warn("operation under-sent",
				"operation", op.String(), "declared", declared, "received", received)
			if err := protocol.WriteValue(rw, protocol.Null()); err != nil {
				d.log.Warn("writing response", "error", err)
				return false
			}
			if !d.drain(r, received) {
				return false
			}
			continue
		}

		args := make([]protocol.Value, declared)
		decodeFailed := false
		for i := range args {
			if args[i], err = protocol.ReadValue(r); err != nil {
				d.log.Warn("decoding argument", "operation", op.String(), "error", err)
				decodeFailed = true
				break
			}
		}
		if decodeFailed {
			return false
		}

		if received > declared {
			d.log.Warn("operation over-sent",
				"operation", op.String(), "declared", declared, "received", received)
		}

		if d.monitor != nil {
			d.monitor.RequestServed()
		}
		resp, respond := d.execute(op, args)
		if respond {
			if err := protocol.WriteValue(rw, resp); err != nil {
				d.log.Warn("writing response", "error", err)
				return false
			}
		}

		// Surplus objects must still leave the stream to keep framing
		// aligned for the next request.
		if !d.drain(r, received-declared) {
			return false
		}
	}
}

// drain reads and discards n values, reporting false when the stream broke.
func (d *Dispatcher) drain(r io.Reader, n int) bool {
	for i := 0; i < n; i++ {
		if _, err := protocol.ReadValue(r); err != nil {
			d.log.Warn("draining surplus argument", "error", err)
			return false
		}
	}
	return true
}

// execute runs one decoded request. The bool reports whether a response
// value should be written; only the free-text Message operation stays
// silent.
func (d *Dispatcher) execute(op protocol.Opcode, args []protocol.Value) (protocol.Value, bool) {
	switch op {
	case protocol.OpMessage:
		if text, err := args[0].AsString(); err == nil {
			d.log.Info("client message", "text", text)
		}
		return protocol.Value{}, false
	case protocol.OpGetUser:
		return d.doGetUser(args), true
	case protocol.OpUserExists:
		return d.doUserExists(args), true
	case protocol.OpAllStoresAsString:
		return protocol.String(d.directory.AllStoresAsString()), true
	case protocol.OpGetAllSellers:
		return protocol.UserList(userRecords(d.directory.AllSellers())), true
	case protocol.OpGetAllCustomers:
		return protocol.UserList(userRecords(d.directory.AllCustomers())), true
	case protocol.OpGetSellerFromStore:
		return d.doGetSellerFromStore(args), true
	case protocol.OpListCustomers:
		return protocol.String(d.directory.ListCustomers()), true
	case protocol.OpGetConversationsWithUser:
		return d.doGetConversationsWithUser(args), true
	case protocol.OpSetMessageContent:
		return d.doSetMessageContent(args), true
	case protocol.OpAddMessageToConversation:
		return d.doAddMessageToConversation(args), true
	case protocol.OpUserBlocksUser:
		return d.doUserBlocksUser(args), true
	case protocol.OpUserInvisibleToUser:
		return d.doUserInvisibleToUser(args), true
	case protocol.OpGetConversationWithUsers:
		return d.doGetConversationWithUsers(args), true
	case protocol.OpCreateCustomer:
		return d.doCreateCustomer(args), true
	case protocol.OpCreateSeller:
		return d.doCreateSeller(args), true
	case protocol.OpCreateMessage:
		return d.doCreateMessage(args), true
	case protocol.OpCreateConversation:
		return d.doCreateConversation(args), true
	case protocol.OpSellerAddStore:
		return d.doSellerAddStore(args), true
	case protocol.OpGetConversationWithUsersWithStore:
		return d.doGetConversationWithUsersWithStore(args), true
	case protocol.OpSendMessageFromFile:
		return d.doSendMessageFromFile(args), true
	case protocol.OpSetUserName:
		return d.doSetUserName(args), true
	case protocol.OpSetUserPass:
		return d.doSetUserPass(args), true
	case protocol.OpDeleteUserAccount:
		return d.doDeleteUserAccount(args), true
	}
	return protocol.Null(), true
}

func userRecords(ps []*domain.Participant) []protocol.UserRecord {
	out := make([]protocol.UserRecord, 0, len(ps))
	for _, p := range ps {
		out = append(out, protocol.UserRecordFrom(p))
	}
	return out
}

// lookupRef resolves a wire user reference to the live participant.
func (d *Dispatcher) lookupRef(v protocol.Value) *domain.Participant {
	rec, err := v.AsUser()
	if err != nil {
		d.log.Warn("bad user argument", "error", err)
		return nil
	}
	return d.directory.Lookup(rec.Email)
}

// resolveRef resolves a wire conversation reference to the live object.
func (d *Dispatcher) resolveRef(v protocol.Value) *domain.Conversation {
	rec, err := v.AsConversation()
	if err != nil {
		d.log.Warn("bad conversation argument", "error", err)
		return nil
	}
	return d.conversations.Resolve(rec.SellerEmail, rec.CustomerEmail, rec.Store, rec.Disappearing)
}

func (d *Dispatcher) doGetUser(args []protocol.Value) protocol.Value {
	email, err := args[0].AsString()
	if err != nil {
		return protocol.Null()
	}
	p := d.directory.Lookup(email)
	if p == nil {
		return protocol.Null()
	}
	return protocol.User(protocol.UserRecordFrom(p))
}

func (d *Dispatcher) doUserExists(args []protocol.Value) protocol.Value {
	email, err := args[0].AsString()
	if err != nil {
		return protocol.Null()
	}
	return protocol.Bool(d.directory.Exists(email))
}

func (d *Dispatcher) doGetSellerFromStore(args []protocol.Value) protocol.Value {
	storeName, err := args[0].AsString()
	if err != nil {
		return protocol.Null()
	}
	s := d.directory.SellerFromStore(storeName)
	if s == nil {
		return protocol.Null()
	}
	return protocol.User(protocol.UserRecordFrom(s))
}

func (d *Dispatcher) doGetConversationsWithUser(args []protocol.Value) protocol.Value {
	p := d.lookupRef(args[0])
	if p == nil {
		return protocol.Null()
	}
	convos := d.conversations.ConversationsFor(p)
	records := make([]protocol.ConversationRecord, 0, len(convos))
	for _, c := range convos {
		records = append(records, protocol.ConversationRecordFrom(c))
	}
	return protocol.ConversationList(records)
}

func (d *Dispatcher) doSetMessageContent(args []protocol.Value) protocol.Value {
	rec, err := args[0].AsMessage()
	if err != nil || rec.Parent == nil {
		d.log.Warn("set content without resolvable message")
		return protocol.Null()
	}
	content, err := args[1].AsString()
	if err != nil {
		return protocol.Null()
	}
	c := d.conversations.Resolve(rec.Parent.SellerEmail, rec.Parent.CustomerEmail, rec.Parent.Store, rec.Parent.Disappearing)
	if c == nil {
		return protocol.Null()
	}
	m := c.MessageAt(rec.SentAt)
	if m == nil {
		d.log.Warn("no message at timestamp", "sentAt", rec.SentAt)
		return protocol.Null()
	}
	c.SetContent(m, content)
	out := protocol.MessageRecordFrom(m)
	return protocol.Message(out)
}

func (d *Dispatcher) doAddMessageToConversation(args []protocol.Value) protocol.Value {
	c := d.resolveRef(args[0])
	if c == nil {
		return protocol.Null()
	}
	rec, err := args[1].AsMessage()
	if err != nil {
		return protocol.Null()
	}
	m := rec.ToDomainMessage()
	if rec.Parent != nil {
		parent := d.conversations.Resolve(rec.Parent.SellerEmail, rec.Parent.CustomerEmail, rec.Parent.Store, rec.Parent.Disappearing)
		if parent == nil {
			// Declared parent does not exist here; the append must not
			// land in a different conversation.
			return protocol.Conversation(protocol.ConversationRecordFrom(c))
		}
		m.SetParent(parent)
	}
	c.Append(m)
	return protocol.Conversation(protocol.ConversationRecordFrom(c))
}

func (d *Dispatcher) doUserBlocksUser(args []protocol.Value) protocol.Value {
	actor := d.lookupRef(args[0])
	target, err := args[1].AsUser()
	if actor == nil || err != nil {
		return protocol.Null()
	}
	if !actor.HasBlocked(target.Email) {
		actor.BlockPeer(target.Email)
	}
	return protocol.User(protocol.UserRecordFrom(actor))
}

func (d *Dispatcher) doUserInvisibleToUser(args []protocol.Value) protocol.Value {
	actor := d.lookupRef(args[0])
	target, err := args[1].AsUser()
	if actor == nil || err != nil {
		return protocol.Null()
	}
	if !actor.IsInvisibleTo(target.Email) {
		actor.HideFromPeer(target.Email)
	}
	return protocol.User(protocol.UserRecordFrom(actor))
}

func (d *Dispatcher) doGetConversationWithUsers(args []protocol.Value) protocol.Value {
	a, b := d.lookupRef(args[0]), d.lookupRef(args[1])
	c, err := d.conversations.FindByPair(a, b)
	if err != nil {
		d.log.Warn("conversation lookup", "error", err)
		return protocol.Null()
	}
	if c == nil {
		return protocol.Null()
	}
	return protocol.Conversation(protocol.ConversationRecordFrom(c))
}

func (d *Dispatcher) doCreateCustomer(args []protocol.Value) protocol.Value {
	name, err1 := args[0].AsString()
	email, err2 := args[1].AsString()
	password, err3 := args[2].AsString()
	phrases, err4 := args[3].AsStringMap()
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return protocol.Null()
	}
	p, err := d.directory.Register(domain.RoleCustomer, name, email, password, phrases)
	if err != nil {
		d.log.Warn("customer registration rejected", "email", email, "error", err)
		return protocol.Null()
	}
	return protocol.User(protocol.UserRecordFrom(p))
}

func (d *Dispatcher) doCreateSeller(args []protocol.Value) protocol.Value {
	name, err1 := args[0].AsString()
	email, err2 := args[1].AsString()
	password, err3 := args[2].AsString()
	phrases, err4 := args[3].AsStringMap()
	stores, err5 := args[4].AsStringList()
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return protocol.Null()
	}
	p, err := d.directory.Register(domain.RoleSeller, name, email, password, phrases, stores...)
	if err != nil {
		d.log.Warn("seller registration rejected", "email", email, "error", err)
		return protocol.Null()
	}
	return protocol.User(protocol.UserRecordFrom(p))
}

func (d *Dispatcher) doCreateMessage(args []protocol.Value) protocol.Value {
	sender, err1 := args[0].AsString()
	receiver, err2 := args[1].AsString()
	canSenderView, err3 := args[2].AsBool()
	canReceiverView, err4 := args[3].AsBool()
	content, err5 := args[4].AsString()
	sentAt, err6 := args[5].AsInt64()
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil {
		return protocol.Null()
	}
	m := domain.RestoredMessage(sender, receiver, canSenderView, canReceiverView, content, sentAt)
	if parent := d.resolveRef(args[6]); parent != nil {
		m.SetParent(parent)
	}
	return protocol.Message(protocol.MessageRecordFrom(m))
}

func (d *Dispatcher) doCreateConversation(args []protocol.Value) protocol.Value {
	sellerRec, err1 := args[0].AsUser()
	storeName, err2 := args[1].AsString()
	customerRec, err3 := args[2].AsUser()
	disappearing, err4 := args[3].AsBool()
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return protocol.Null()
	}
	seller := d.directory.Lookup(sellerRec.Email)
	customer := d.directory.Lookup(customerRec.Email)
	if seller == nil || customer == nil ||
		seller.Role() != domain.RoleSeller || customer.Role() != domain.RoleCustomer {
		d.log.Warn("conversation creation rejected",
			"seller", sellerRec.Email, "customer", customerRec.Email)
		return protocol.Null()
	}
	c := d.conversations.GetOrCreate(seller, customer, storeName, disappearing)
	return protocol.Conversation(protocol.ConversationRecordFrom(c))
}

func (d *Dispatcher) doSellerAddStore(args []protocol.Value) protocol.Value {
	seller := d.lookupRef(args[0])
	storeName, err := args[1].AsString()
	if seller == nil || seller.Role() != domain.RoleSeller || err != nil {
		return protocol.Null()
	}
	seller.AddStore(storeName)
	return protocol.User(protocol.UserRecordFrom(seller))
}

func (d *Dispatcher) doGetConversationWithUsersWithStore(args []protocol.Value) protocol.Value {
	a, b := d.lookupRef(args[0]), d.lookupRef(args[1])
	storeName, errStore := args[2].AsString()
	if errStore != nil {
		return protocol.Null()
	}
	c, err := d.conversations.FindByPairAndStore(a, b, storeName)
	if err != nil {
		d.log.Warn("conversation lookup", "error", err)
		return protocol.Null()
	}
	if c == nil {
		return protocol.Null()
	}
	return protocol.Conversation(protocol.ConversationRecordFrom(c))
}

func (d *Dispatcher) doSendMessageFromFile(args []protocol.Value) protocol.Value {
	rec, err := args[0].AsConversation()
	if err != nil {
		return protocol.Null()
	}
	c := d.conversations.Resolve(rec.SellerEmail, rec.CustomerEmail, rec.Store, rec.Disappearing)
	sender := d.lookupRef(args[1])
	contents, errContents := args[2].AsString()
	if c == nil || sender == nil || errContents != nil {
		d.log.Warn("send from file rejected", "seller", rec.SellerEmail, "customer", rec.CustomerEmail)
		return protocol.Null()
	}
	if err := c.SendFromFile(sender, contents); err != nil {
		d.log.Warn("send from file rejected", "error", err)
		return protocol.Null()
	}
	return protocol.Conversation(protocol.ConversationRecordFrom(c))
}

func (d *Dispatcher) doSetUserName(args []protocol.Value) protocol.Value {
	p := d.lookupRef(args[0])
	name, err := args[1].AsString()
	if p == nil || err != nil {
		return protocol.Null()
	}
	p.SetName(name)
	return protocol.User(protocol.UserRecordFrom(p))
}

func (d *Dispatcher) doSetUserPass(args []protocol.Value) protocol.Value {
	p := d.lookupRef(args[0])
	password, err := args[1].AsString()
	if p == nil || err != nil {
		return protocol.Null()
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		d.log.Error("hashing new password", "error", err)
		return protocol.Null()
	}
	p.SetPasswordHash(hash)
	return protocol.User(protocol.UserRecordFrom(p))
}

func (d *Dispatcher) doDeleteUserAccount(args []protocol.Value) protocol.Value {
	rec, err := args[0].AsUser()
	if err == nil {
		d.directory.Remove(rec.Email)
	}
	return protocol.Null()
}

package server

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketchat/client"
	"marketchat/protocol"
	"marketchat/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSession wires a dispatcher to one end of an in-memory pipe and
// returns a client on the other end.
type testSession struct {
	directory     *store.Directory
	conversations *store.ConversationStore
	client        *client.Client
	clientConn    net.Conn
	exited        chan struct{}
	done          chan bool // dispatcher's graceful flag
}

func newTestSession(t *testing.T) *testSession {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	s := &testSession{
		directory:     store.NewDirectory(),
		conversations: store.NewConversationStore(),
		client:        client.NewClient(clientConn),
		clientConn:    clientConn,
		exited:        make(chan struct{}, 1),
		done:          make(chan bool, 1),
	}
	d := NewDispatcher(s.directory, s.conversations, discardLogger(), nil,
		func() { s.exited <- struct{}{} })
	go func() { s.done <- d.Serve(serverConn) }()
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})
	return s
}

func (s *testSession) registerCustomer(t *testing.T, name, email string) protocol.UserRecord {
	t.Helper()
	v, err := s.client.Do(protocol.OpCreateCustomer,
		protocol.String(name), protocol.String(email), protocol.String("secret"), protocol.StringMap(nil))
	require.NoError(t, err)
	rec, err := v.AsUser()
	require.NoError(t, err)
	return rec
}

func (s *testSession) registerSeller(t *testing.T, name, email string, stores ...string) protocol.UserRecord {
	t.Helper()
	v, err := s.client.Do(protocol.OpCreateSeller,
		protocol.String(name), protocol.String(email), protocol.String("secret"),
		protocol.StringMap(nil), protocol.StringList(stores))
	require.NoError(t, err)
	rec, err := v.AsUser()
	require.NoError(t, err)
	return rec
}

func TestDispatcher_Registration(t *testing.T) {
	req := require.New(t)
	s := newTestSession(t)

	customer := s.registerCustomer(t, "Camille", "camille@mail.fr")
	req.Equal("CUSTOMER", customer.Role)

	seller := s.registerSeller(t, "Sylvie", "sylvie@shop.fr", "Boulangerie")
	req.Equal([]string{"Boulangerie"}, seller.Stores)

	t.Run("duplicate email answers null", func(t *testing.T) {
		v, err := s.client.Do(protocol.OpCreateCustomer,
			protocol.String("Clone"), protocol.String("camille@mail.fr"),
			protocol.String("secret"), protocol.StringMap(nil))
		req.NoError(err)
		req.True(v.IsNull())
	})

	t.Run("registration is visible behind the wire", func(t *testing.T) {
		req.True(s.directory.Exists("camille@mail.fr"))

		v, err := s.client.Do(protocol.OpUserExists, protocol.String("camille@mail.fr"))
		req.NoError(err)
		exists, err := v.AsBool()
		req.NoError(err)
		req.True(exists)

		v, err = s.client.Do(protocol.OpGetUser, protocol.String("sylvie@shop.fr"))
		req.NoError(err)
		rec, err := v.AsUser()
		req.NoError(err)
		req.Equal("Sylvie", rec.Name)
	})

	t.Run("unknown user answers null", func(t *testing.T) {
		v, err := s.client.Do(protocol.OpGetUser, protocol.String("inconnu@mail.fr"))
		req.NoError(err)
		req.True(v.IsNull())
	})
}

func TestDispatcher_Listings(t *testing.T) {
	req := require.New(t)
	s := newTestSession(t)
	s.registerSeller(t, "Sylvie", "sylvie@shop.fr", "Boulangerie", "Fromagerie")
	s.registerCustomer(t, "Camille", "camille@mail.fr")

	v, err := s.client.Do(protocol.OpAllStoresAsString)
	req.NoError(err)
	stores, err := v.AsString()
	req.NoError(err)
	req.Equal("Boulangerie\nFromagerie", stores)

	v, err = s.client.Do(protocol.OpListCustomers)
	req.NoError(err)
	listing, err := v.AsString()
	req.NoError(err)
	req.Equal("camille@mail.fr : Camille", listing)

	v, err = s.client.Do(protocol.OpGetSellerFromStore, protocol.String("Fromagerie"))
	req.NoError(err)
	rec, err := v.AsUser()
	req.NoError(err)
	req.Equal("sylvie@shop.fr", rec.Email)

	v, err = s.client.Do(protocol.OpGetAllSellers)
	req.NoError(err)
	req.Equal(protocol.KindUserList, v.Kind)
	req.Len(v.Users, 1)

	v, err = s.client.Do(protocol.OpGetAllCustomers)
	req.NoError(err)
	req.Len(v.Users, 1)
}

func TestDispatcher_ConversationFlow(t *testing.T) {
	req := require.New(t)
	s := newTestSession(t)
	seller := s.registerSeller(t, "Sylvie", "sylvie@shop.fr", "Boulangerie")
	customer := s.registerCustomer(t, "Camille", "camille@mail.fr")

	v, err := s.client.Do(protocol.OpCreateConversation,
		protocol.User(seller), protocol.String("Boulangerie"), protocol.User(customer), protocol.Bool(false))
	req.NoError(err)
	convo, err := v.AsConversation()
	req.NoError(err)
	req.Equal("Boulangerie", convo.Store)

	t.Run("create message then append it", func(t *testing.T) {
		v, err := s.client.Do(protocol.OpCreateMessage,
			protocol.String("camille@mail.fr"), protocol.String("sylvie@shop.fr"),
			protocol.Bool(true), protocol.Bool(true),
			protocol.String("bonjour"), protocol.Int64(1000),
			protocol.Conversation(convo))
		req.NoError(err)
		msg, err := v.AsMessage()
		req.NoError(err)
		req.NotNil(msg.Parent)

		v, err = s.client.Do(protocol.OpAddMessageToConversation,
			protocol.Conversation(convo), protocol.Message(msg))
		req.NoError(err)
		updated, err := v.AsConversation()
		req.NoError(err)
		req.Len(updated.Messages, 1)
		req.Equal("bonjour", updated.Messages[0].Content)
	})

	t.Run("lookups find the same conversation", func(t *testing.T) {
		v, err := s.client.Do(protocol.OpGetConversationWithUsers,
			protocol.User(customer), protocol.User(seller))
		req.NoError(err)
		found, err := v.AsConversation()
		req.NoError(err)
		req.Len(found.Messages, 1)

		v, err = s.client.Do(protocol.OpGetConversationWithUsersWithStore,
			protocol.User(customer), protocol.User(seller), protocol.String("Boulangerie"))
		req.NoError(err)
		req.Equal(protocol.KindConversation, v.Kind)

		v, err = s.client.Do(protocol.OpGetConversationsWithUser, protocol.User(customer))
		req.NoError(err)
		req.Equal(protocol.KindConversationList, v.Kind)
		req.Len(v.Conversations, 1)
	})

	t.Run("edit message content by timestamp", func(t *testing.T) {
		live := s.conversations.Resolve("sylvie@shop.fr", "camille@mail.fr", "Boulangerie", false)
		req.NotNil(live)
		ref := protocol.MessageRecordFrom(live.MessageAt(1000))

		v, err := s.client.Do(protocol.OpSetMessageContent,
			protocol.Message(ref), protocol.String("bonsoir"))
		req.NoError(err)
		edited, err := v.AsMessage()
		req.NoError(err)
		req.Equal("bonsoir", edited.Content)
		req.Equal("bonsoir", live.MessageAt(1000).Content)
	})

	t.Run("send text file contents", func(t *testing.T) {
		v, err := s.client.Do(protocol.OpSendMessageFromFile,
			protocol.Conversation(convo), protocol.User(customer),
			protocol.String("ligne une\nligne deux\n"))
		req.NoError(err)
		updated, err := v.AsConversation()
		req.NoError(err)
		req.Equal("ligne une¶ligne deux", updated.Messages[len(updated.Messages)-1].Content)
	})

	t.Run("mismatched conversation reference answers null", func(t *testing.T) {
		ghost := convo
		ghost.Store = "Inexistant"
		v, err := s.client.Do(protocol.OpAddMessageToConversation,
			protocol.Conversation(ghost), protocol.Message(protocol.MessageRecord{SentAt: 1}))
		req.NoError(err)
		req.True(v.IsNull())
	})
}

func TestDispatcher_AccountManagement(t *testing.T) {
	req := require.New(t)
	s := newTestSession(t)
	seller := s.registerSeller(t, "Sylvie", "sylvie@shop.fr")
	customer := s.registerCustomer(t, "Camille", "camille@mail.fr")

	t.Run("block and hide", func(t *testing.T) {
		v, err := s.client.Do(protocol.OpUserBlocksUser, protocol.User(customer), protocol.User(seller))
		req.NoError(err)
		rec, err := v.AsUser()
		req.NoError(err)
		req.Equal([]string{"sylvie@shop.fr"}, rec.BlockedEmails)

		v, err = s.client.Do(protocol.OpUserInvisibleToUser, protocol.User(customer), protocol.User(seller))
		req.NoError(err)
		rec, err = v.AsUser()
		req.NoError(err)
		req.Equal([]string{"sylvie@shop.fr"}, rec.InvisibleTo)
	})

	t.Run("seller gains a store", func(t *testing.T) {
		v, err := s.client.Do(protocol.OpSellerAddStore, protocol.User(seller), protocol.String("Cave"))
		req.NoError(err)
		rec, err := v.AsUser()
		req.NoError(err)
		req.Contains(rec.Stores, "Cave")

		// A customer has no stores to add to.
		v, err = s.client.Do(protocol.OpSellerAddStore, protocol.User(customer), protocol.String("Cave"))
		req.NoError(err)
		req.True(v.IsNull())
	})

	t.Run("rename and change password", func(t *testing.T) {
		v, err := s.client.Do(protocol.OpSetUserName, protocol.User(customer), protocol.String("Camille D."))
		req.NoError(err)
		rec, err := v.AsUser()
		req.NoError(err)
		req.Equal("Camille D.", rec.Name)

		v, err = s.client.Do(protocol.OpSetUserPass, protocol.User(customer), protocol.String("nouveau"))
		req.NoError(err)
		req.Equal(protocol.KindUser, v.Kind)
		req.True(s.directory.Authenticate("camille@mail.fr", "nouveau"))
		req.False(s.directory.Authenticate("camille@mail.fr", "secret"))
	})

	t.Run("delete account", func(t *testing.T) {
		v, err := s.client.Do(protocol.OpDeleteUserAccount, protocol.User(customer))
		req.NoError(err)
		req.True(v.IsNull())
		req.False(s.directory.Exists("camille@mail.fr"))
	})
}

func TestDispatcher_ArityMismatch(t *testing.T) {
	req := require.New(t)
	s := newTestSession(t)

	t.Run("under-send answers null and keeps the stream usable", func(t *testing.T) {
		// GetUser declares one argument; send none.
		v, err := s.client.Do(protocol.OpGetUser)
		req.NoError(err)
		req.True(v.IsNull())

		v, err = s.client.Do(protocol.OpUserExists, protocol.String("x@mail.fr"))
		req.NoError(err)
		exists, err := v.AsBool()
		req.NoError(err)
		req.False(exists)
	})

	t.Run("over-send consumes the declared arity and drains the rest", func(t *testing.T) {
		v, err := s.client.Do(protocol.OpUserExists,
			protocol.String("x@mail.fr"), protocol.String("surplus"), protocol.Bool(true))
		req.NoError(err)
		_, err = v.AsBool()
		req.NoError(err)

		// Next request still parses cleanly.
		v, err = s.client.Do(protocol.OpAllStoresAsString)
		req.NoError(err)
		_, err = v.AsString()
		req.NoError(err)
	})

	t.Run("unknown opcode is drained without a response", func(t *testing.T) {
		req.NoError(s.client.Send(protocol.Opcode(200), protocol.String("ignored")))

		v, err := s.client.Do(protocol.OpListCustomers)
		req.NoError(err)
		_, err = v.AsString()
		req.NoError(err)
	})
}

func TestDispatcher_SessionEnd(t *testing.T) {
	req := require.New(t)

	t.Run("disconnect ends gracefully without exit", func(t *testing.T) {
		s := newTestSession(t)
		req.NoError(s.client.Disconnect())

		select {
		case graceful := <-s.done:
			req.True(graceful)
		case <-time.After(time.Second):
			t.Fatal("dispatcher did not stop")
		}
		select {
		case <-s.exited:
			t.Fatal("disconnect must not request exit")
		default:
		}
	})

	t.Run("exit requests shutdown", func(t *testing.T) {
		s := newTestSession(t)
		req.NoError(s.client.Exit())

		select {
		case graceful := <-s.done:
			req.True(graceful)
		case <-time.After(time.Second):
			t.Fatal("dispatcher did not stop")
		}
		select {
		case <-s.exited:
		case <-time.After(time.Second):
			t.Fatal("exit was not propagated")
		}
	})

	t.Run("dropped connection is not graceful", func(t *testing.T) {
		s := newTestSession(t)
		req.NoError(s.clientConn.Close())

		select {
		case graceful := <-s.done:
			req.False(graceful)
		case <-time.After(time.Second):
			t.Fatal("dispatcher did not stop")
		}
	})
}

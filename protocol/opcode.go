// Package protocol defines the wire contract: the opcode set with its fixed
// arity table, and the versioned tagged values that carry arguments and
// results. Each request is one opcode byte, one declared-argument-count
// byte, then that many values; each response is nothing or exactly one
// value.
package protocol

import "fmt"

// Opcode identifies one operation. The numeric values are the wire format;
// never reorder.
type Opcode byte

const (
	OpMessage Opcode = iota
	OpGetUser
	OpExit
	OpDisconnect
	OpUserExists
	OpAllStoresAsString
	OpGetAllSellers
	OpGetSellerFromStore
	OpListCustomers
	OpGetAllCustomers
	OpGetConversationsWithUser
	OpSetMessageContent
	OpAddMessageToConversation
	OpUserBlocksUser
	OpUserInvisibleToUser
	OpGetConversationWithUsers
	OpCreateCustomer
	OpCreateSeller
	OpCreateMessage
	OpCreateConversation
	OpSellerAddStore
	OpGetConversationWithUsersWithStore
	OpSendMessageFromFile
	OpSetUserName
	OpSetUserPass
	OpDeleteUserAccount

	opcodeCount
)

var opcodeNames = [opcodeCount]string{
	OpMessage:                           "Message",
	OpGetUser:                           "GetUser",
	OpExit:                              "Exit",
	OpDisconnect:                        "Disconnect",
	OpUserExists:                        "UserExists",
	OpAllStoresAsString:                 "AllStoresAsString",
	OpGetAllSellers:                     "GetAllSellers",
	OpGetSellerFromStore:                "GetSellerFromStore",
	OpListCustomers:                     "ListCustomers",
	OpGetAllCustomers:                   "GetAllCustomers",
	OpGetConversationsWithUser:          "GetConversationsWithUser",
	OpSetMessageContent:                 "SetMessageContent",
	OpAddMessageToConversation:          "AddMessageToConversation",
	OpUserBlocksUser:                    "UserBlocksUser",
	OpUserInvisibleToUser:               "UserInvisibleToUser",
	OpGetConversationWithUsers:          "GetConversationWithUsers",
	OpCreateCustomer:                    "CreateCustomer",
	OpCreateSeller:                      "CreateSeller",
	OpCreateMessage:                     "CreateMessage",
	OpCreateConversation:                "CreateConversation",
	OpSellerAddStore:                    "SellerAddStore",
	OpGetConversationWithUsersWithStore: "GetConversationWithUsersWithStore",
	OpSendMessageFromFile:               "SendMessageFromFile",
	OpSetUserName:                       "SetUserName",
	OpSetUserPass:                       "SetUserPass",
	OpDeleteUserAccount:                 "DeleteUserAccount",
}

// arities is the fixed declared argument count per opcode; the dispatcher
// consumes exactly this many values and drains any surplus the peer sent.
var arities = [opcodeCount]int{
	OpMessage:                           1,
	OpGetUser:                           1,
	OpExit:                              0,
	OpDisconnect:                        0,
	OpUserExists:                        1,
	OpAllStoresAsString:                 0,
	OpGetAllSellers:                     0,
	OpGetSellerFromStore:                1,
	OpListCustomers:                     0,
	OpGetAllCustomers:                   0,
	OpGetConversationsWithUser:          1,
	OpSetMessageContent:                 2,
	OpAddMessageToConversation:          2,
	OpUserBlocksUser:                    2,
	OpUserInvisibleToUser:               2,
	OpGetConversationWithUsers:          2,
	OpCreateCustomer:                    4,
	OpCreateSeller:                      5,
	OpCreateMessage:                     7,
	OpCreateConversation:                4,
	OpSellerAddStore:                    2,
	OpGetConversationWithUsersWithStore: 3,
	OpSendMessageFromFile:               3,
	OpSetUserName:                       2,
	OpSetUserPass:                       2,
	OpDeleteUserAccount:                 1,
}

// Valid reports whether the byte names a known opcode.
func (o Opcode) Valid() bool { return o < opcodeCount }

func (o Opcode) String() string {
	if !o.Valid() {
		return fmt.Sprintf("Opcode(%d)", byte(o))
	}
	return opcodeNames[o]
}

// Arity returns the declared argument count for the opcode.
func (o Opcode) Arity() int {
	if !o.Valid() {
		return 0
	}
	return arities[o]
}

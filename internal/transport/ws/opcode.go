package ws

import "strconv"

// OpCode tags every frame on the wire. Values are fixed protocol
// constants; clients and server must agree on them byte for byte.
type OpCode uint8

const (
	OpSendRSA                     OpCode = 0
	OpReceiveAes                  OpCode = 1
	OpReadyToReceive              OpCode = 2
	OpRequestToCreateAccount      OpCode = 3
	OpAnswerToCreateAccount       OpCode = 4
	OpRequestLogin                OpCode = 5
	OpAnswerToLogin               OpCode = 6
	OpAnswerToAutoLogin           OpCode = 7
	OpRequestToVerify             OpCode = 8
	OpAnswerToVerify              OpCode = 9
	OpVerificationWentWrong       OpCode = 10
	OpRequestedRelationshipUpdate OpCode = 11
	OpAnswerToRelationshipUpdate  OpCode = 12
	OpARelationshipWasUpdated     OpCode = 13
	OpSendFriendships             OpCode = 14
	OpSendChats                   OpCode = 15
	OpUserSendChatMessage         OpCode = 16
	OpUserReceiveChatMessage      OpCode = 17
)

var opcodeNames = map[OpCode]string{
	OpSendRSA:                     "SendRSA",
	OpReceiveAes:                  "ReceiveAes",
	OpReadyToReceive:              "ReadyToReceive",
	OpRequestToCreateAccount:      "RequestToCreateAccount",
	OpAnswerToCreateAccount:       "AnswerToCreateAccount",
	OpRequestLogin:                "RequestLogin",
	OpAnswerToLogin:               "AnswerToLogin",
	OpAnswerToAutoLogin:           "AnswerToAutoLogin",
	OpRequestToVerify:             "RequestToVerify",
	OpAnswerToVerify:              "AnswerToVerify",
	OpVerificationWentWrong:       "VerificationWentWrong",
	OpRequestedRelationshipUpdate: "RequestedRelationshipUpdate",
	OpAnswerToRelationshipUpdate:  "AnswerToRelationshipUpdate",
	OpARelationshipWasUpdated:     "ARelationshipWasUpdated",
	OpSendFriendships:             "SendFriendships",
	OpSendChats:                   "SendChats",
	OpUserSendChatMessage:         "UserSendChatMessage",
	OpUserReceiveChatMessage:      "UserReceiveChatMessage",
}

func (op OpCode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "OpCode(" + strconv.Itoa(int(op)) + ")"
}

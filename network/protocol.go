package network

const (
	MsgTypeHeartbeat = 1
	MsgTypeLogin     = 2
	MsgTypeError     = 9

	MsgTypeChallenge       = 101
	MsgTypeAcceptDuel      = 102
	MsgTypeDeclineDuel     = 103
	MsgTypeJoinTournament  = 111
	MsgTypeLeaveTournament = 112
	MsgTypeUpdatePosition  = 121

	MsgTypeRequestSent        = 301
	MsgTypeDuelAccepted       = 302
	MsgTypeDuelDeclined       = 303
	MsgTypeDuelEnded          = 304
	MsgTypeDuelStart          = 305
	MsgTypeTeleport           = 306
	MsgTypeMatchReady         = 311
	MsgTypeMatchComplete      = 312
	MsgTypeTournamentStarted  = 313
	MsgTypeTournamentComplete = 314
	MsgTypeEvent              = 399
)

// Package wire holds the constant vocabulary of the classic ASCII memcached
// text protocol: command names, response status tokens, and the key/size
// limits the protocol enforces. It mirrors the role the teacher's
// protocol/constants.go subpackage plays for the meta protocol, adapted to
// the line-oriented get/set/delete/incr/decr/cas/stats grammar in spec §4.1.
package wire

// CRLF is the line terminator for every memcached text-protocol line.
const CRLF = "\r\n"

// MaxKeyLength is the maximum key length in bytes (§3).
const MaxKeyLength = 250

// Storage command names (§4.1).
const (
	CmdSet     = "set"
	CmdAdd     = "add"
	CmdReplace = "replace"
	CmdAppend  = "append"
	CmdPrepend = "prepend"
	CmdCas     = "cas"
)

// Retrieval command names.
const (
	CmdGet  = "get"
	CmdGets = "gets"
)

// Control command names.
const (
	CmdDelete        = "delete"
	CmdIncr          = "incr"
	CmdDecr          = "decr"
	CmdTouch         = "touch"
	CmdStats         = "stats"
	CmdFlushAll      = "flush_all"
	CmdVersion       = "version"
	CmdQuit          = "quit"
	CmdCacheMemLimit = "cache_memlimit"
)

// Response status tokens (§6.1).
const (
	StatusStored    = "STORED"
	StatusNotStored = "NOT_STORED"
	StatusExists    = "EXISTS"
	StatusNotFound  = "NOT_FOUND"
	StatusDeleted   = "DELETED"
	StatusTouched   = "TOUCHED"
	StatusOK        = "OK"
	StatusEnd       = "END"
	StatusValue     = "VALUE"
	StatusStat      = "STAT"
	StatusItem      = "ITEM"
	StatusVersion   = "VERSION"
	StatusConfig    = "CONFIG"
	StatusError     = "ERROR"

	// These two are followed by a free-form message and are matched by
	// prefix, not by exact token.
	StatusClientErrorPrefix = "CLIENT_ERROR"
	StatusServerErrorPrefix = "SERVER_ERROR"
)

// Storage flags persisted verbatim by memcached and returned on fetch.
// The default Serde (§6.2) uses bits 0, 1 and 4; callers may use the rest
// of the 16-bit space freely.
const (
	FlagRawBytes    uint32 = 0
	FlagUTF8Text    uint32 = 1 << 4
	FlagInteger     uint32 = 1 << 1
	FlagOpaqueValue uint32 = 1 << 0
)

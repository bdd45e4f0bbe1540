package text

// Verb is a text protocol command name.
type Verb string

// Protocol delimiters
const (
	// CRLF is the line terminator for the memcached protocol
	CRLF = "\r\n"

	// Space separates command tokens
	Space = " "
)

// Storage verbs. All share the wire shape:
//
//	<verb> <key> <flags> <exptime> <bytes> [noreply]\r\n<data>\r\n
//
// cas carries one more token before noreply: <cas unique>.
const (
	VerbSet     Verb = "set"
	VerbAdd     Verb = "add"     // store only if the key is absent
	VerbReplace Verb = "replace" // store only if the key is present
	VerbAppend  Verb = "append"  // flags and exptime are ignored by the server
	VerbPrepend Verb = "prepend" // flags and exptime are ignored by the server
	VerbCAS     Verb = "cas"
)

// Retrieval and other verbs.
const (
	VerbGet       Verb = "get"
	VerbGets      Verb = "gets"
	VerbDelete    Verb = "delete"
	VerbIncr      Verb = "incr"
	VerbDecr      Verb = "decr"
	VerbTouch     Verb = "touch"
	VerbFlushAll  Verb = "flush_all"
	VerbStats     Verb = "stats"
	VerbVersion   Verb = "version"
	VerbVerbosity Verb = "verbosity"
	VerbQuit      Verb = "quit"
)

// NoReply is the optional trailing token asking the server to suppress its response.
const NoReply = "noreply"

// Response literals
const (
	Stored    = "STORED"
	Deleted   = "DELETED"
	Touched   = "TOUCHED"
	OK        = "OK"
	End       = "END"
	NotFound  = "NOT_FOUND"
	NotStored = "NOT_STORED"
	Exists    = "EXISTS"

	ValuePrefix   = "VALUE"
	StatPrefix    = "STAT"
	VersionPrefix = "VERSION"

	ErrorGeneric      = "ERROR"
	ErrorClientPrefix = "CLIENT_ERROR"
	ErrorServerPrefix = "SERVER_ERROR"
)

// Protocol limits enforced by the server, not by this package.
const (
	MaxKeyLength   = 250     // Maximum key length in bytes
	MaxValueLength = 1048576 // 1MB - default memcached item size limit
)

// MaxDataBlockLength bounds the size announced by a VALUE line: the largest
// item size memcached accepts for -I.
const MaxDataBlockLength = 1 << 30

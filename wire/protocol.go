package wire

// Operation codes carried as 4-byte big-endian integers at the start of
// every protocol message.
const (
	OpVoid             int32 = 0
	OpConnect          int32 = 1
	OpExit             int32 = 2
	OpAccept           int32 = 3
	OpReject           int32 = 4
	OpDisconnect       int32 = 6
	OpResponse         int32 = 9
	OpAttach           int32 = 19
	OpDetach           int32 = 21
	OpTransaction      int32 = 29
	OpCommit           int32 = 30
	OpRollback         int32 = 31
	OpCreateBlob       int32 = 34
	OpOpenBlob         int32 = 35
	OpGetSegment       int32 = 36
	OpPutSegment       int32 = 37
	OpCancelBlob       int32 = 38
	OpCloseBlob        int32 = 39
	OpCommitRetaining  int32 = 50
	OpOpenBlob2        int32 = 56
	OpCreateBlob2      int32 = 57
	OpSeekBlob         int32 = 61
	OpAllocateStmt     int32 = 62
	OpExecute          int32 = 63
	OpFetch            int32 = 65
	OpFetchResponse    int32 = 66
	OpFreeStmt         int32 = 67
	OpPrepareStmt      int32 = 68
	OpInfoSQL          int32 = 70
	OpDummy            int32 = 71
	OpSQLResponse      int32 = 78
	OpTrustedAuth      int32 = 90
	OpCancel           int32 = 91
	OpContAuth         int32 = 92
	OpPing             int32 = 93
	OpAcceptData       int32 = 94
	OpCrypt            int32 = 96
	OpCryptKeyCallback int32 = 97
	OpCondAccept       int32 = 98
)

// Tags used in the client identification block sent with OpConnect.
// Each entry is encoded as (1-byte tag, 1-byte length, payload).
const (
	CnctUser             byte = 1
	CnctPasswd           byte = 2
	CnctHost             byte = 4
	CnctGroup            byte = 5
	CnctUserVerification byte = 6
	CnctSpecificData     byte = 7
	CnctPluginName       byte = 8
	CnctLogin            byte = 9
	CnctPluginList       byte = 10
	CnctClientCrypt      byte = 11
)

// Wire encryption policy values, carried in the CnctClientCrypt entry.
const (
	WireCryptDisabled int32 = 0
	WireCryptEnabled  int32 = 1
	WireCryptRequired int32 = 2
)

// Protocol versions. Versions 13 and up carry the null bitmap ahead of
// row values and support wire encryption. The high flag marks versions
// negotiated through the modern handshake.
const (
	ProtocolFlag int32 = 0x8000

	ProtocolVersion13 int32 = ProtocolFlag | 13
	ProtocolVersion15 int32 = ProtocolFlag | 15
	ProtocolVersion16 int32 = ProtocolFlag | 16
)

// ProtocolBaseVersion strips the handshake flag off a negotiated
// protocol version.
func ProtocolBaseVersion(v int32) int32 {
	return v &^ ProtocolFlag
}

// Blob seek origins accepted by OpSeekBlob.
const (
	BlobSeekFromHead int32 = 0
	BlobSeekRelative int32 = 1
	BlobSeekFromTail int32 = 2
)

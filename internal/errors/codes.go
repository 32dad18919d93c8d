package errors

// Generic error code definitions used as sensible defaults across modules.
const (
	CodeSystemGeneric     = "SYS-000"
	CodeNetworkGeneric    = "NET-000"
	CodeConfigGeneric     = "CFG-000"
	CodeValidationGeneric = "VAL-000"
	CodeDatabaseGeneric   = "DB-000"
)

// Pipeline specific codes. KindOf maps them onto the failure taxonomy.
const (
	CodeFetchTransport   = "NET-001"
	CodeFetchStatus      = "NET-002"
	CodeFetchLength      = "NET-003"
	CodeHashMismatch     = "INT-001"
	CodeHashFormat       = "INT-002"
	CodeNoMatch          = "EXP-001"
	CodeLinkInstall      = "EXP-002"
	CodeDestinationTaken = "EXP-003"
	CodeArchiveExpand    = "SYS-001"
	CodeCacheIO          = "SYS-002"
)

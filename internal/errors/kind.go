package errors

// Kind is the user facing failure class reported at the end of a run.
type Kind string

const (
	KindNetwork      Kind = "NETWORK_ERROR"
	KindHashMismatch Kind = "HASH_MISMATCH"
	KindNoMatch      Kind = "NO_MATCH"
	KindLinkInstall  Kind = "LINK_INSTALL_ERROR"
	KindUnexpected   Kind = "UNEXPECTED"
)

// KindOf classifies err. Errors that are not AppErrors, or whose code has no
// dedicated class, are UNEXPECTED.
func KindOf(err error) Kind {
	appErr, ok := As(err)
	if !ok {
		return KindUnexpected
	}

	switch appErr.Code {
	case CodeFetchTransport, CodeFetchStatus, CodeFetchLength, CodeNetworkGeneric:
		return KindNetwork
	case CodeHashMismatch:
		return KindHashMismatch
	case CodeNoMatch:
		return KindNoMatch
	case CodeLinkInstall, CodeDestinationTaken:
		return KindLinkInstall
	}

	if appErr.Category == ErrCategoryNetwork {
		return KindNetwork
	}
	return KindUnexpected
}

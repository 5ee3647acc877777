package host

import "errors"

var (
	// ErrClosed is returned after the registry has been closed.
	ErrClosed = errors.New("host registry closed")

	// ErrSessionEnded is returned for requests on a session that has ended.
	ErrSessionEnded = errors.New("debug session ended")

	// ErrUnknownSession is returned by Stop for ids the registry does not hold.
	ErrUnknownSession = errors.New("unknown debug session")
)

package sitesync

import "errors"

var (
	// ErrHashingUnavailable is returned by Hash
	// when the sha256 primitive cannot be used.
	ErrHashingUnavailable = errors.New("hashing unavailable")

	// ErrInvalidDigestLength is returned by DigestToInt for input that is not 32 bytes.
	ErrInvalidDigestLength = errors.New("invalid digest length")

	ErrInvalidObjectID = errors.New("invalid object id")

	// ErrInvalidMountConfiguration means a workspace's mount path
	// is neither its root nor an ancestor of it.
	ErrInvalidMountConfiguration = errors.New("invalid mount configuration")

	// ErrMountUnavailable means the storage backend could not be made ready.
	ErrMountUnavailable = errors.New("mount unavailable")

	// ErrNotMounted is returned by workspace operations issued before Mount or after Unmount.
	ErrNotMounted = errors.New("not mounted")

	// ErrIO wraps failures reported by a storage backend.
	ErrIO = errors.New("I/O error")

	// ErrNotFound is the error returned
	// when reading or deleting a file that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicatePath means a snapshot lists the same path twice.
	ErrDuplicatePath = errors.New("duplicate path")

	// ErrMissingRequiredField means a diff that would create a new site
	// lacks its metadata or its name.
	ErrMissingRequiredField = errors.New("missing required field for creation")

	// ErrUnhandledResourceOp means a diff carries a resource operation
	// the reconciler does not know.
	ErrUnhandledResourceOp = errors.New("unhandled resource operation")
)

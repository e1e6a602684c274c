package remote

import "errors"

var (
	// ErrNotFound reports that the target of a stat, list, rmdir, read,
	// unlink, or rename does not exist.
	ErrNotFound = errors.New("no such file or directory")

	// ErrExists reports a mkdir without ExistOK on an existing target.
	ErrExists = errors.New("file exists")

	// ErrIsDirectory reports a text read on a directory.
	ErrIsDirectory = errors.New("is a directory")

	// ErrDrainTimeout reports that a mount's write-back queues did not
	// empty within the configured drain window. The mount is left in
	// place; unmounting mid-flush would lose data.
	ErrDrainTimeout = errors.New("mount drain timed out with uploads outstanding")
)

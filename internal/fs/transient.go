package fs

import (
	"errors"

	"golang.org/x/sys/unix"
)

// transientErrnos are the resource-temporarily-unavailable class of errors:
// too many open files, file busy, try again.
var transientErrnos = []error{unix.EMFILE, unix.ENFILE, unix.EBUSY, unix.EAGAIN}

// IsTransient reports whether err is worth retrying after a short delay.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrFileChanged) {
		return true
	}
	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// IsBusy reports whether err says the file is locked by another process.
func IsBusy(err error) bool {
	return errors.Is(err, unix.EBUSY)
}

// IsCrossDevice reports whether a link or rename failed because source and
// destination are on different filesystems, or linking is not supported.
func IsCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV) || errors.Is(err, unix.EPERM) ||
		errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EMLINK)
}

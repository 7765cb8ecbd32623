package repo

import (
	"fmt"
	"os"
	"time"
)

const (
	lockRetryDelay = 5 * time.Millisecond
	lockWaitLimit  = 2 * time.Second
)

// acquireLockFile creates lockPath with O_CREATE|O_EXCL, retrying with a
// short delay while another writer holds it. After the deadline it fails
// with ErrLockHeld. The caller writes the new content into the returned
// file and either renames the lock over the target or removes it.
func acquireLockFile(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(lockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("%w: timeout waiting for %q", ErrLockHeld, lockPath)
			}
			time.Sleep(lockRetryDelay)
			continue
		}
		return nil, err
	}
}

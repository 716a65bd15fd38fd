//go:build !unix

package statefile

import "os"

// Platforms without flock only get the in-process mutex.
func tryLock(*os.File) (bool, error) {
	return true, nil
}

func unlock(*os.File) error {
	return nil
}

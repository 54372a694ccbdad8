package util

import (
	"os"
)

// CheckAndCreateDir check dir exist, if not create it.
func CheckAndCreateDir(path string) error {
	if subPathExists, err := FileExists(path); err != nil {
		return err
	} else if !subPathExists {
		if err = os.MkdirAll(path, 0755); err != nil {
			return err
		}
	}
	return nil
}

// FileExists check file exist
func FileExists(filename string) (bool, error) {
	if _, err := os.Stat(filename); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

package main

import "github.com/pkg/errors"

// errNotExist and errCannotDetect produce the exact user-visible phrases
// spec.md §6 requires for missing-file and unrecognised-format conditions.
func errNotExist(path string) error {
	return errors.Errorf("File does not exist: %s", path)
}

func errCannotDetect(path string) error {
	return errors.Errorf("Cannot detect format: %s", path)
}

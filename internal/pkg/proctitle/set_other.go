//go:build !linux

package proctitle

import "os"

// Set only rewrites os.Args[0] outside Linux.
func Set(title string) error {
	title, err := normalize(title)
	if err != nil {
		return err
	}
	if len(os.Args) > 0 {
		os.Args[0] = title
	}
	return nil
}

func Get() (string, error) {
	if len(os.Args) == 0 {
		return "", nil
	}
	return os.Args[0], nil
}

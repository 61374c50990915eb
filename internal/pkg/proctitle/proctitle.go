// Package proctitle names the running process.
package proctitle

import (
	"errors"
	"strings"
)

// Default is the title used by cmd/server.
const Default = "mocktalk-rt"

var ErrEmptyTitle = errors.New("empty process title")

func normalize(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrEmptyTitle
	}
	return title, nil
}

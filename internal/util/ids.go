package util

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewQueryID returns a short random id used to correlate one retrieval
// request across logs and traces.
func NewQueryID() (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	return "q-" + id, nil
}

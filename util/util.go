package util

import (
	"strings"

	randomdata "github.com/Pallinder/go-randomdata"
	"github.com/google/uuid"
)

// Adjective and Noun are up to 11 characters each
// Random hex = 8 characters
// Separators = 2 characters
// Up to 32 characters, which is the maximum supported.
func randomName() string {
	return strings.Join([]string{
		randomdata.Adjective(),
		randomdata.Noun(),
		uuid.New().String()[0:8],
	}, "-")
}

// RandomInstanceName produces a human-readable identifier for one
// sampler daemon instance, used when no --instance-name flag is given.
var RandomInstanceName func() string = randomName

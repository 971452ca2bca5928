package httpapi

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/singsub/internal/fetch"
	"github.com/John-Robertt/singsub/internal/profile"
)

// Options controls HTTP API runtime behavior.
type Options struct {
	// ConvertTimeout bounds a whole request: every fetch, parse and assemble.
	ConvertTimeout time.Duration

	// Fetch applies to subscription and template downloads.
	Fetch fetch.Options

	// Template is a file path or http(s) URL, read per request. Empty means
	// the built-in template.
	Template string

	// Profile defaults to profile.Default().
	Profile *profile.Profile

	Log logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.ConvertTimeout <= 0 {
		o.ConvertTimeout = 60 * time.Second
	}
	if o.Profile == nil {
		o.Profile = profile.Default()
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
	return o
}

// Package logging sets up the structured logger every other package logs
// through, tagging every line with the owning peer's name.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger with a "peer" field already bound, so logs from
// several peer processes tailed together on one host stay attributable.
func New(peer string) *logrus.Entry {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return log.WithField("peer", peer)
}

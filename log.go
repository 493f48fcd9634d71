package bridge

import "github.com/sirupsen/logrus"

var log logrus.FieldLogger

func init() {
	log = logrus.New()
}

// SetLogger replaces the package-wide logger, e.g. with a pterm-backed
// or differently-formatted logrus instance configured by cmd/p3-bridge.
func SetLogger(logger logrus.FieldLogger) {
	log = logger
}

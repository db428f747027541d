package main

import (
	"flag"

	"github.com/sirupsen/logrus"

	"github.com/Priyanshu23/lsmkv/engine"
)

// main wires the store to a directory argument and opens it, recovering
// whatever runs are already there. Command-line framing beyond that is
// out of scope; lsmkv is meant to be embedded as a library via the
// engine package.
func main() {
	dir := flag.String("dir", "./data", "directory holding the store's level files")
	flag.Parse()

	log := logrus.New()

	store, err := engine.Open(*dir, engine.WithLogger(log))
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer store.Close()
}

/*
Copyright © 2025 ALESSIO TONIOLO

logging.go opens the append-only process log and tees it to stderr,
the way the teacher's command handlers call log.Printf for every
cluster and instance operation but never adopted a structured logging
library — the corpus has none, so this stays on "log" by design (see
the ledger for why).
*/
package logging

import (
	"io"
	"log"
	"os"
)

// Open opens path for append (creating it if necessary) and returns a
// *log.Logger that writes to both the file and stderr, plus a closer
// the caller should defer. On failure to open the file, logging falls
// back to stderr only and the returned closer is a no-op.
func Open(path string) (*log.Logger, func()) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fallback := log.New(os.Stderr, "[ollamamq] ", log.LstdFlags)
		fallback.Printf("logging: could not open %s, writing to stderr only: %v", path, err)
		return fallback, func() {}
	}

	writer := io.MultiWriter(os.Stderr, f)
	logger := log.New(writer, "[ollamamq] ", log.LstdFlags)
	return logger, func() { f.Close() }
}

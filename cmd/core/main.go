// Package main is the development harness for the SnapNote client core.
// The core ships as a library embedded in the mobile shell; this binary
// exists for smoke runs against a real backend during development.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/snapnote-app/core/internal/config"
	"github.com/snapnote-app/core/internal/logging"
	"github.com/snapnote-app/core/internal/session"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	fmt.Printf("SnapNote Core v%s\n", Version)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	s, err := session.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "session: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	notes, err := s.RefreshLibrary(context.Background())
	if err != nil {
		logging.Error("library refresh failed", err, nil)
		os.Exit(1)
	}

	pending, err := s.PendingMutations()
	if err != nil {
		logging.Error("queue count failed", err, nil)
		os.Exit(1)
	}

	fmt.Printf("online=%v notes=%d pending_mutations=%d\n", s.Online(), len(notes), pending)
}

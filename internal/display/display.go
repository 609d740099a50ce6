// Package display renders the terminal surface named in spec §6: the
// current document with per-line modified markers, the active peer list,
// and a short status line. It is an external collaborator to the
// replication engine, not part of its core, so it stays deliberately thin.
package display

import (
	"fmt"
	"io"
	"time"

	"github.com/Narendra20078/AtomEdit/internal/types"
)

const clearScreen = "\033[2J\033[1;1H"

// Show renders doc to w, marking lines touched by changed (the most recent
// change set), alongside the active peer list and a status line.
func Show(w io.Writer, docPath string, doc []string, changed []types.Operation, peers []types.PeerInfo) {
	modified := make(map[int]bool, len(changed))
	for _, op := range changed {
		modified[op.Line] = true
	}

	fmt.Fprint(w, clearScreen)
	fmt.Fprintf(w, "Document: %s\n", docPath)
	fmt.Fprintf(w, "Last updated: %s\n", time.Now().Format("15:04:05"))
	fmt.Fprintln(w, "----------------------------------------")
	for i, line := range doc {
		marker := ""
		if modified[i] {
			marker = " [MODIFIED]"
		}
		fmt.Fprintf(w, "Line %d: %s%s\n", i, line, marker)
	}
	fmt.Fprintln(w, "----------------------------------------")

	fmt.Fprint(w, "Active peers: ")
	for i, p := range peers {
		if i > 0 {
			fmt.Fprint(w, ", ")
		}
		fmt.Fprint(w, p.Name)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Monitoring for changes...")
}

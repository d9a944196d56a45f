// Command redact-logs copies stdin to stdout with card numbers, credentials,
// tokens and SQL fragments scrubbed, so server logs can be shared safely.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/phrazzld/bankcards-api/internal/redact"
)

// maxLineBytes caps a single log line.
const maxLineBytes = 1 << 20

func main() {
	if err := redactLines(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "redact-logs: %v\n", err)
		os.Exit(1)
	}
}

func redactLines(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	w := bufio.NewWriter(out)
	for scanner.Scan() {
		if _, err := fmt.Fprintln(w, redact.String(scanner.Text())); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return w.Flush()
}

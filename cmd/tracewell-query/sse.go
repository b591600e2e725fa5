package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tracewell/collector/internal/queryservice"
)

// streamSSE reads Server-Sent Events frames from r, decoding each
// "data:" line as a queryservice.Frame and printing it as one JSON
// object per line until the stream closes.
func streamSSE(r io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	enc := json.NewEncoder(out)

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			payload := strings.TrimPrefix(line, "data: ")
			var frame queryservice.Frame
			if err := json.Unmarshal([]byte(payload), &frame); err != nil {
				return fmt.Errorf("decoding frame: %w", err)
			}
			if err := enc.Encode(frame); err != nil {
				return err
			}
		case strings.HasPrefix(line, "event: error"):
			return fmt.Errorf("stream error event received")
		}
	}
	return scanner.Err()
}

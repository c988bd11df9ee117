package scroll

import (
	"fmt"
	"io"
)

// WriteArray consumes out and writes its hits to w as one JSON array, hit by
// hit as they arrive. The closing bracket is written only when the run
// completed cleanly, so a failed run never leaves a well-formed array behind.
// It returns the number of hits written and the run or write error.
func WriteArray(w io.Writer, out *Output) (int, error) {
	return WriteArrayFunc(w, out, nil)
}

// WriteArrayFunc is WriteArray with each hit passed through project first.
// A nil project writes hits unchanged. project must return valid JSON.
// On a write error the run is closed and has stopped when it returns.
func WriteArrayFunc(w io.Writer, out *Output, project func(Hit) Hit) (int, error) {
	n := 0
	if _, err := io.WriteString(w, "["); err != nil {
		out.Close()
		<-out.Done()
		return n, fmt.Errorf("write array: %w", err)
	}

	for out.Next() {
		if n > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				out.Close()
				<-out.Done()
				return n, fmt.Errorf("write array: %w", err)
			}
		}
		hit := out.Hit()
		if project != nil {
			hit = project(hit)
		}
		if _, err := w.Write(hit); err != nil {
			out.Close()
			<-out.Done()
			return n, fmt.Errorf("write array: %w", err)
		}
		n++
	}

	<-out.Done()
	if err := out.Err(); err != nil {
		return n, err
	}

	if _, err := io.WriteString(w, "]"); err != nil {
		return n, fmt.Errorf("write array: %w", err)
	}
	return n, nil
}

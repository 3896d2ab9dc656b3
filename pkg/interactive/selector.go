// Package interactive provides terminal prompts for choosing and confirming
// operations on saved connections.
package interactive

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grokking-vietnam/querybench/internal/engine"
)

// ConnectionSelector prompts on out and reads answers from in. Both are
// injectable so prompts can be scripted in tests.
type ConnectionSelector struct {
	reader *bufio.Reader
	out    io.Writer
}

func NewConnectionSelector(in io.Reader, out io.Writer) *ConnectionSelector {
	return &ConnectionSelector{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// SelectConnection lists the saved connections and returns the one the user
// picks by number. Invalid input re-prompts rather than failing.
func (cs *ConnectionSelector) SelectConnection(descs []*engine.ConnectionDescriptor) (*engine.ConnectionDescriptor, error) {
	if len(descs) == 0 {
		return nil, fmt.Errorf("no saved connections")
	}

	fmt.Fprintln(cs.out)
	fmt.Fprintln(cs.out, "Saved connections:")
	fmt.Fprintln(cs.out, strings.Repeat("=", 80))
	fmt.Fprintf(cs.out, "%-4s %-25s %-12s %-25s %-15s\n", "No", "Name", "Engine", "Host", "Database")
	fmt.Fprintln(cs.out, strings.Repeat("-", 80))
	for i, desc := range descs {
		fmt.Fprintf(cs.out, "%-4d %-25s %-12s %-25s %-15s\n",
			i+1, desc.Name, desc.Engine, safeValue(desc.Host, "n/a"), safeValue(desc.Database, "n/a"))
	}
	fmt.Fprintln(cs.out, strings.Repeat("=", 80))

	for {
		fmt.Fprintf(cs.out, "\nSelect the connection number (1-%d): ", len(descs))

		input, err := cs.reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("unable to read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			fmt.Fprintln(cs.out, "Please enter a number.")
			continue
		}

		choice, err := strconv.Atoi(input)
		if err != nil {
			fmt.Fprintln(cs.out, "Please enter a valid number.")
			continue
		}
		if choice < 1 || choice > len(descs) {
			fmt.Fprintf(cs.out, "Please select a number between 1 and %d.\n", len(descs))
			continue
		}

		selected := descs[choice-1]
		fmt.Fprintf(cs.out, "\nSelected connection: %s\n", selected.Name)
		return selected, nil
	}
}

// Confirm asks for a yes/no answer; anything but y/yes is a no.
func (cs *ConnectionSelector) Confirm(action, target string) bool {
	fmt.Fprintf(cs.out, "\nConfirm %s for %s (y/N): ", action, target)

	input, err := cs.reader.ReadString('\n')
	if err != nil {
		return false
	}

	input = strings.ToLower(strings.TrimSpace(input))
	return input == "y" || input == "yes"
}

func safeValue(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

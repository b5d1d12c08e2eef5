package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/kalambet/prefsets/internal/kv"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorDim    = "\033[2m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// notice writes a marked, coloured line to stderr so stdout stays clean for
// values and exports.
func notice(color, mark, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { notice(colorGreen, "✓", format, args...) }
func printError(format string, args ...any) { notice(colorRed, "✗", format, args...) }
func printWarning(format string, args ...any) { notice(colorYellow, "⚠", format, args...) }
func printStep(format string, args ...any) { notice(colorCyan, "→", format, args...) }

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %-13s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

// printValues writes one "key = value (type)" line per entry, sorted by key.
// Keys listed in inherited are marked as coming from DEFAULT.
func printValues(w io.Writer, values map[string]kv.Value, inherited map[string]bool) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := values[k]
		line := fmt.Sprintf("%s = %s %s", colorize(colorBold, k), v.Format(), colorize(colorDim, "("+v.Kind.String()+")"))
		if inherited[k] {
			line += " " + colorize(colorCyan, "[DEFAULT]")
		}
		fmt.Fprintln(w, line)
	}
}

// Command run evaluates a discount function the way the checkout runtime invokes it:
// the input document arrives on stdin and the result document is written to stdout.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/noah-isme/autogift/internal/function"
	"github.com/noah-isme/autogift/internal/obs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	handleName := fs.String("function", string(function.HandleAutoGift), "function handle: auto-gift or volume-discount")
	logLevel := fs.String("log-level", "warn", "log level written to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	logger := obs.NewLoggerTo(stderr, "console", *logLevel)

	handle, err := function.ParseHandle(*handleName)
	if err != nil {
		logger.Error().Err(err).Msg("unknown function")
		return 2
	}
	raw, err := io.ReadAll(stdin)
	if err != nil {
		logger.Error().Err(err).Msg("read input")
		return 1
	}
	out, decision, err := function.RunJSON(handle, raw)
	if err != nil {
		if errors.Is(err, function.ErrInvalidInput) {
			logger.Error().Err(err).Msg("input is not a function document")
		} else {
			logger.Error().Err(err).Msg("run function")
		}
		return 1
	}
	logger.Debug().
		Str("function", string(handle)).
		Str("reason", string(decision.Reason)).
		Int("tier", decision.Tier).
		Int("targets", len(decision.Targets)).
		Msg("discount evaluated")
	if _, err := fmt.Fprintln(stdout, string(out)); err != nil {
		return 1
	}
	return 0
}

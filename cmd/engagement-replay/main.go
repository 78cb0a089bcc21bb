// Command engagement-replay runs a recorded page trace through an engagement
// session on a virtual clock and prints what the session delivered.
//
//	engagement-replay -config config.yaml -trace visit.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/JakeFAU/engagement-telemetry/internal/config"
	"github.com/JakeFAU/engagement-telemetry/internal/logging"
	"github.com/JakeFAU/engagement-telemetry/internal/replay"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file (policy section is used)")
	tracePath := flag.String("trace", "-", "Trace file, - for stdin")
	flag.Parse()

	if err := run(*cfgPath, *tracePath, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath, tracePath string, out io.Writer) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	in := os.Stdin
	if tracePath != "-" {
		f, err := os.Open(tracePath)
		if err != nil {
			return fmt.Errorf("open trace: %w", err)
		}
		defer f.Close() //nolint:errcheck // read-only
		in = f
	}
	trace, err := replay.Decode(in)
	if err != nil {
		return err
	}
	report, err := replay.Run(trace, cfg.EngagementPolicy(), logger.Named("replay"))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

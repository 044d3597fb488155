// Command collector replays scripted client operations against live
// services and captures their HTTP traffic as golden-data scenario files,
// with secrets masked before anything is written.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

func main() {
	var (
		input    = flag.String("input", "", "path to the scenarios JSON file")
		output   = flag.String("output", "golden", "directory for captured scenario files")
		secrets  = flag.String("secrets", "", "comma-separated env var names whose values must be masked")
		module   = flag.String("module", "", "only run scenarios of this module")
		function = flag.String("function", "", "only run scenarios of this function")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *input == "" {
		fmt.Fprintln(os.Stderr, "collector: --input is required")
		os.Exit(1)
	}

	scenarios, err := loadScenarios(*input)
	if err != nil {
		logger.Error("load scenarios", "err", err)
		os.Exit(1)
	}

	var secretValues []string
	for _, name := range splitList(*secrets) {
		if v := os.Getenv(name); v != "" {
			secretValues = append(secretValues, v)
		}
	}

	ctx := context.Background()
	failed := 0
	for _, sc := range scenarios {
		if *module != "" && sc.Module != *module {
			continue
		}
		if *function != "" && sc.Function != *function {
			continue
		}
		path := filepath.Join(*output, slug(sc.Description)+".json")
		if err := runScenario(ctx, sc, path, secretValues); err != nil {
			logger.Error("scenario failed", "description", sc.Description, "err", err)
			failed++
			continue
		}
		logger.Info("scenario captured", "description", sc.Description, "path", path)
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

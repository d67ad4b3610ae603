// Command debloat-core is the thin harness around the analysis core
// (SPEC_FULL.md §D): it reads a decompiled-class JSON document and a
// list of entry methods, runs the driver over each, and prints one
// JSON result line per method. It owns no analysis logic of its own —
// every decision lives in internal/driver and what it calls.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/jpamb-tools/debloatcore/internal/analysiserr"
	"github.com/jpamb-tools/debloatcore/internal/cache"
	"github.com/jpamb-tools/debloatcore/internal/config"
	"github.com/jpamb-tools/debloatcore/internal/driver"
	"github.com/jpamb-tools/debloatcore/internal/opcode"
)

// entryFile is the JSON shape of the -entries document: the set of
// methods the collaborator wants reachability/dead-code findings for.
type entryFile struct {
	Entries []opcode.ID `json:"entries"`
}

func main() {
	classPath := flag.String("class", "", "path to a decompiled-class JSON document")
	entriesPath := flag.String("entries", "", "path to a JSON document listing entry methods")
	configPath := flag.String("config", "", "path to a YAML configuration file (optional)")
	flag.Parse()

	logger := log.New(os.Stderr, "debloat-core: ", log.LstdFlags)

	if *classPath == "" || *entriesPath == "" {
		logger.Fatal("-class and -entries are required")
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Fatalf("configuration: %v", err)
		}
		cfg = loaded
	}

	class, err := loadClass(*classPath)
	if err != nil {
		logger.Fatalf("configuration: %v", err)
	}
	entries, err := loadEntries(*entriesPath)
	if err != nil {
		logger.Fatalf("configuration: %v", err)
	}

	var mc *cache.Cache
	if cfg.CachePath != "" {
		mc, err = cache.Open(cfg.CachePath)
		if err != nil {
			logger.Fatalf("configuration: %v", err)
		}
		defer mc.Close()
	}

	colorize := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	enc := json.NewEncoder(os.Stdout)

	exitCode := 0
	for _, id := range entries.Entries {
		res, err := analyzeOne(class, id, cfg, mc, logger)
		if err != nil {
			// Configuration errors (missing entry point, missing line
			// table, unknown domain) are fatal for the whole run
			// (spec.md §4.8, §7): the requested work itself is
			// ill-formed, not just this one method's bytecode.
			if isConfigError(err) {
				logger.Fatalf("%v", err)
			}
			// Anything else is a per-method analysis error: log it,
			// skip the method, and keep going (spec.md §4.8's
			// "fatal... for that method" tier, recoverable at the
			// driver-invocation layer).
			logger.Printf("skipping %s: %v", id, err)
			exitCode = 1
			continue
		}
		printResult(enc, res, colorize)
	}
	os.Exit(exitCode)
}

func analyzeOne(class opcode.Class, id opcode.ID, cfg config.Config, mc *cache.Cache, logger *log.Logger) (driver.Result, error) {
	var key string
	if mc != nil {
		if method, ok := class.Find(id); ok {
			k, err := cache.Key(method)
			if err != nil {
				logger.Printf("cache key for %s: %v", id, err)
			} else {
				key = k
				if res, ok, err := mc.Get(key); err != nil {
					logger.Printf("cache lookup for %s: %v", id, err)
				} else if ok {
					return res, nil
				}
			}
		}
	}

	res, err := driver.Analyze(class, id, cfg, uuid.New())
	if err != nil {
		return driver.Result{}, err
	}
	if mc != nil && key != "" && res.FixedPoint {
		if err := mc.Put(key, res); err != nil {
			logger.Printf("cache store for %s: %v", id, err)
		}
	}
	return res, nil
}

// isConfigError reports whether err names an input the caller must
// fix before any method can be analyzed, as opposed to a defect
// confined to one method's own bytecode.
func isConfigError(err error) bool {
	return errors.Is(err, config.ErrMissingMethod) ||
		errors.Is(err, config.ErrMissingLineTable) ||
		errors.Is(err, analysiserr.ErrUnknownDomain)
}

func loadClass(path string) (opcode.Class, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return opcode.Class{}, fmt.Errorf("read %s: %w", path, err)
	}
	var class opcode.Class
	if err := json.Unmarshal(data, &class); err != nil {
		return opcode.Class{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return class, nil
}

func loadEntries(path string) (entryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return entryFile{}, fmt.Errorf("read %s: %w", path, err)
	}
	var ef entryFile
	if err := json.Unmarshal(data, &ef); err != nil {
		return entryFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return ef, nil
}

const (
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiReset  = "\033[0m"
)

func printResult(enc *json.Encoder, res driver.Result, colorize bool) {
	if !colorize {
		enc.Encode(res)
		return
	}
	color := ansiGreen
	if !res.FixedPoint {
		color = ansiYellow
	}
	for _, t := range res.Terminals {
		if t != "ok" {
			color = ansiRed
		}
	}
	fmt.Fprint(os.Stdout, color)
	enc.Encode(res)
	fmt.Fprint(os.Stdout, ansiReset)
}

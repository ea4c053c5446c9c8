package util

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/pelletier/go-toml/v2"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Options holds the compiler configuration assembled from command line
// arguments and an optional TOML configuration file.
type Options struct {
	Src     string // Path to source file, consumed by the frontend.
	Out     string // Path to output file. Empty means stdout.
	Config  string // Path to TOML configuration file.
	Threads int    // Thread count for the per-function backend passes.
	Verbose bool   // Set true if compiler should log statistical data.
	Debug   string // Debug output selector: "", "tac" or "json".
}

// fileConfig mirrors the Options fields that may be provided by a TOML
// configuration file. Command line flags take precedence.
type fileConfig struct {
	Out     string `toml:"out"`
	Threads int    `toml:"threads"`
	Verbose bool   `toml:"verbose"`
	Debug   string `toml:"debug"`
}

// ---------------------
// ----- Constants -----
// ---------------------

const maxThreads = 64 // Maximum threads allowed executing in parallel.
const appVersion = "decaf compiler 1.0"

// Debug output selectors accepted by the -d flag.
const (
	DebugTAC  = "tac"  // Print three-address code instead of assembly.
	DebugJSON = "json" // Dump per-function dataflow results as JSON.
)

// ---------------------
// ----- functions -----
// ---------------------

// ParseArgs parses command line arguments and merges in the TOML
// configuration file if one was named with -config.
func ParseArgs() (Options, error) {
	opt := Options{}
	if len(os.Args) < 2 {
		return opt, nil
	}
	args := os.Args[1:]
	// The loop below leaves the last argument to the source path, so a
	// trailing help or version flag is handled here.
	switch args[len(args)-1] {
	case "-h", "--h", "-help", "--help":
		printHelp()
		os.Exit(0)
	case "-v", "--v", "-version", "--version":
		fmt.Println(appVersion)
		os.Exit(0)
	}
	for i1 := 0; i1 < len(args)-1; i1++ {
		switch args[i1] {
		case "-h", "--h", "-help", "--help":
			// Help and usage.
			printHelp()
			os.Exit(0)
		case "-o", "-t", "-d", "-config":
			if i1+1 >= len(args) {
				return opt, fmt.Errorf("got flag %s but no argument", args[i1])
			}
			if strings.HasPrefix(args[i1+1], "-") {
				return opt, fmt.Errorf("expected argument for flag %s, got new flag %s", args[i1], args[i1+1])
			}
			switch args[i1] {
			case "-o":
				// Output file.
				opt.Out = args[i1+1]
			case "-t":
				// Thread count.
				if t, err := strconv.Atoi(args[i1+1]); err == nil {
					if t > 0 && t <= maxThreads {
						opt.Threads = t
					} else {
						return opt, fmt.Errorf("thread count must be integer in range [1, %d]", maxThreads)
					}
				} else {
					return opt, fmt.Errorf("expected integer thread count, got: %s", args[i1+1])
				}
			case "-d":
				// Debug output selector.
				switch args[i1+1] {
				case DebugTAC:
					opt.Debug = DebugTAC
				case DebugJSON:
					opt.Debug = DebugJSON
				default:
					return opt, fmt.Errorf("unexpected debug selector: %s", args[i1+1])
				}
			case "-config":
				// TOML configuration file.
				opt.Config = args[i1+1]
			}
			i1++
		case "-v", "--v", "-version", "--version":
			// Application version.
			fmt.Println(appVersion)
			os.Exit(0)
		case "-vb":
			// Verbose mode.
			opt.Verbose = true
		default:
			return opt, fmt.Errorf("unexpected flag: %s", args[i1])
		}
	}
	if len(args) > 0 {
		opt.Src = args[len(args)-1]
	}
	if len(opt.Config) > 0 {
		if err := loadConfig(&opt); err != nil {
			return opt, err
		}
	}
	return opt, nil
}

// loadConfig unmarshals the TOML configuration file named by
// opt.Config into opt. Fields already set on the command line win.
func loadConfig(opt *Options) error {
	data, err := os.ReadFile(opt.Config)
	if err != nil {
		return fmt.Errorf("could not read configuration file: %w", err)
	}
	fc := fileConfig{}
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("could not parse configuration file: %w", err)
	}
	if len(opt.Out) == 0 {
		opt.Out = fc.Out
	}
	if opt.Threads == 0 && fc.Threads > 0 {
		if fc.Threads > maxThreads {
			return fmt.Errorf("thread count must be integer in range [1, %d]", maxThreads)
		}
		opt.Threads = fc.Threads
	}
	if !opt.Verbose {
		opt.Verbose = fc.Verbose
	}
	if len(opt.Debug) == 0 {
		switch fc.Debug {
		case "", DebugTAC, DebugJSON:
			opt.Debug = fc.Debug
		default:
			return fmt.Errorf("unexpected debug selector in configuration file: %s", fc.Debug)
		}
	}
	return nil
}

// printHelp prints a helpful usage message to stdout.
func printHelp() {
	w := tabwriter.NewWriter(os.Stdout, 6, 1, 1, 0, 0)
	_, _ = fmt.Fprintln(w, "-h, -help\tPrints this help message and exits the application.")
	_, _ = fmt.Fprintln(w, "--h, --help")
	_, _ = fmt.Fprintln(w, "-config\tPath to a TOML configuration file.")
	_, _ = fmt.Fprintln(w, "-d\tDebug output: 'tac' prints three-address code, 'json' dumps dataflow results.")
	_, _ = fmt.Fprintln(w, "-o\tPath and name of the output file.")
	_, _ = fmt.Fprintf(w, "-t\tNumber of threads to run in parallel. Must be in range [1, %d].\n", maxThreads)
	_, _ = fmt.Fprintln(w, "-v, -version\tPrints application version and exits the application.")
	_, _ = fmt.Fprintln(w, "--v, --version")
	_, _ = fmt.Fprintln(w, "-vb\tVerbose mode: log compiler statistics.")
	_ = w.Flush()
}

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/himanishpuri/FluxMend/pkg/fluxmend"
	"github.com/himanishpuri/FluxMend/pkg/logger"
)

// Global flags
var (
	dbPath     string
	captureDir string
	media      string
	workers    int
	anchor     int
	verbose    bool
)

// exitSearchFailed is returned when a search finished without a single
// payload, as opposed to failing outright.
const exitSearchFailed = 2

var rootCmd = &cobra.Command{
	Use:           "fluxmend",
	Short:         "Recover damaged sectors from raw flux captures",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetLevel(logger.DEBUG)
		}
		printBanner()
		logger.GetLogger().Infof("Executing command: %s", cmd.Name())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&dbPath, "db", getEnvOrDefault("FLUXMEND_DB_PATH", "fluxmend.sqlite3"), "Path to the SQLite database file")
	flags.StringVar(&captureDir, "captures", getEnvOrDefault("FLUXMEND_CAPTURE_DIR", "."), "Directory holding the track captures")
	flags.StringVar(&media, "media", getEnvOrDefault("FLUXMEND_MEDIA", "media"), "Name of the disk being recovered")
	flags.IntVar(&workers, "workers", getEnvIntOrDefault("FLUXMEND_WORKERS", 0), "Brute-force workers (0 uses every CPU)")
	flags.IntVar(&anchor, "anchor", 0, "Anchor length for splitting divergent regions (0 disables)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(
		compareCmd(),
		bruteforceCmd(),
		locateCmd(),
		scanCmd(),
		runCmd(),
		listCmd(),
		exportCmd(),
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

// createService creates a new FluxMend service with configured options
func createService(mediaName string) (fluxmend.Service, error) {
	opts := []fluxmend.Option{
		fluxmend.WithDBPath(dbPath),
		fluxmend.WithCaptureDir(captureDir),
		fluxmend.WithMedia(mediaName),
		fluxmend.WithAnchorLength(anchor),
	}
	if workers > 0 {
		opts = append(opts, fluxmend.WithWorkers(workers))
	}
	return fluxmend.NewService(opts...)
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	log := logger.GetLogger()
	var amb *fluxmend.AmbiguousError
	switch {
	case errors.Is(err, fluxmend.ErrNoHits):
		fmt.Println("\n❌ No candidate passed the checksum")
		fmt.Println("   Widen the hole, move its bounds, or drop out-of-family readings and retry")
		log.Warnf("search failed: %v", err)
		os.Exit(exitSearchFailed)
	case errors.As(err, &amb):
		fmt.Printf("\n⚠️  %d distinct payloads passed the checksum\n", amb.Count)
		fmt.Println("   Narrow the hole or add captures until a single payload remains")
		log.Warnf("search failed: %v", err)
		os.Exit(exitSearchFailed)
	}

	fmt.Printf("\n❌ %v\n", err)
	log.Errorf("%s failed: %v", rootCmd.Name(), err)
	os.Exit(1)
}

func printBanner() {
	banner := `
 _____ _           __  __                _
|  ___| |_   ___  _|  \/  | ___ _ __   __| |
| |_  | | | | \ \/ / |\/| |/ _ \ '_ \ / _' |
|  _| | | |_| |>  <| |  | |  __/ | | | (_| |
|_|   |_|\__,_/_/\_\_|  |_|\___|_| |_|\__,_|

        Flux-level Sector Recovery Tool
`
	fmt.Println(banner)
}

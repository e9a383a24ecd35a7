package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/himanishpuri/FluxMend/internal/recipe"
	"github.com/himanishpuri/FluxMend/pkg/logger"
	"github.com/himanishpuri/FluxMend/pkg/models"
)

func parseTarget(arg string) (recipe.Coord, error) {
	at, err := models.ParseCoordinate(arg)
	if err != nil {
		return recipe.Coord{}, fmt.Errorf("target %q: %w", arg, err)
	}
	return recipe.Coord{Coordinate: at}, nil
}

// signalContext is cancelled on interrupt so long searches stop cleanly.
func signalContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func runRecipe(r *recipe.Recipe) error {
	if err := r.Validate(); err != nil {
		return err
	}
	log := logger.GetLogger()

	mediaName := media
	if r.Media != "" {
		mediaName = r.Media
	}

	fmt.Println("🔧 Initializing service...")
	svc, err := createService(mediaName)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close()

	ctx, cancel := signalContext(time.Hour)
	defer cancel()

	fmt.Printf("🔍 Reading %s (%d bytes) from %s\n\n", r.Target, r.Length, captureDir)
	start := time.Now()
	outcome, err := r.Run(ctx, svc, os.Stdout)
	if err != nil {
		return err
	}
	log.Debugf("session %s finished in %s", outcome.SessionID, time.Since(start).Round(time.Millisecond))

	switch {
	case outcome.StoredID != "":
		fmt.Printf("\n✅ Stored %s in %s\n", r.Target, mediaName)
		fmt.Printf("   ID:      %s\n", outcome.StoredID)
		fmt.Printf("   Session: %s\n", outcome.SessionID)
	case outcome.Sector != nil:
		fmt.Println("\n✅ Recovered; rerun with --accept to store it")
	}
	return nil
}

func compareCmd() *cobra.Command {
	var (
		length int
		drops  []int
	)
	cmd := &cobra.Command{
		Use:   "compare <c,h,s>",
		Short: "Align every reading of a sector and print the consensus report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget(args[0])
			if err != nil {
				return err
			}
			return runRecipe(&recipe.Recipe{Target: target, Length: length, Drop: drops})
		},
	}
	cmd.Flags().IntVarP(&length, "length", "l", 0, "Sector payload length in bytes")
	cmd.Flags().IntSliceVar(&drops, "drop", nil, "Report ranks to drop, applied in order")
	cmd.MarkFlagRequired("length")
	return cmd
}

func bruteforceCmd() *cobra.Command {
	var (
		r        recipe.Recipe
		hole     recipe.Hole
		neighbor string
		maxGap   int
	)
	cmd := &cobra.Command{
		Use:   "bruteforce <c,h,s>",
		Short: "Try every cell pattern for one hole of a reading",
		Long: `Rebuilds one reading by trying every pattern of --width cells between
the end of --prefix-token and the start of --suffix-token, keeping the
candidates that pass the checksum. Token and row numbers refer to the
report printed after the drops are applied.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget(args[0])
			if err != nil {
				return err
			}
			r.Target = target
			r.Hole = &hole
			if neighbor != "" {
				at, err := parseTarget(neighbor)
				if err != nil {
					return err
				}
				r.Locate = &recipe.Locate{Neighbor: at, MaxGap: maxGap}
			}
			return runRecipe(&r)
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&r.Length, "length", "l", 0, "Sector payload length in bytes")
	flags.IntSliceVar(&r.Drop, "drop", nil, "Report ranks to drop before searching")
	flags.BoolVar(&r.Accept, "accept", false, "Store the payload when exactly one is found")
	flags.IntVar(&hole.Row, "row", 0, "Report rank of the reading to rebuild")
	flags.IntVar(&hole.PrefixToken, "prefix-token", 0, "Last token kept before the hole")
	flags.IntVar(&hole.SuffixToken, "suffix-token", 2, "First token kept after the hole")
	flags.BoolVar(&hole.TrimPrefix, "trim-prefix", false, "Drop the last cell of the prefix")
	flags.BoolVar(&hole.TrimSuffix, "trim-suffix", false, "Drop the first cell of the suffix")
	flags.IntVarP(&hole.Width, "width", "w", 0, "Number of cells to try")
	flags.StringVar(&neighbor, "neighbor", "", "Search the spans located through this neighbour instead")
	flags.IntVar(&maxGap, "max-gap", 0, "Longest neighbour span, in cells, that may hide an erased mark")
	cmd.MarkFlagRequired("length")
	cmd.MarkFlagRequired("width")
	return cmd
}

func locateCmd() *cobra.Command {
	var (
		r        recipe.Recipe
		neighbor string
		maxGap   int
		align    bool
	)
	cmd := &cobra.Command{
		Use:   "locate <c,h,s>",
		Short: "Recover a sector whose address mark is erased through its interleave neighbour",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget(args[0])
			if err != nil {
				return err
			}
			at, err := parseTarget(neighbor)
			if err != nil {
				return err
			}
			r.Target = target
			r.Locate = &recipe.Locate{Neighbor: at, MaxGap: maxGap, Align: align}
			return runRecipe(&r)
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&r.Length, "length", "l", 0, "Sector payload length in bytes")
	flags.BoolVar(&r.Accept, "accept", false, "Store the payload when exactly one is found")
	flags.BoolVar(&align, "align", false, "Print the consensus report of the located spans instead of validating them")
	flags.IntSliceVar(&r.Drop, "drop", nil, "Report ranks to drop, with --align")
	flags.StringVar(&neighbor, "neighbor", "", "Sector recorded just before the target")
	flags.IntVar(&maxGap, "max-gap", 0, "Longest neighbour span, in cells, that may hide an erased mark")
	cmd.MarkFlagRequired("length")
	cmd.MarkFlagRequired("neighbor")
	cmd.MarkFlagRequired("max-gap")
	return cmd
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <recipe.yaml>",
		Short: "Carry out the repair described by a recipe file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := recipe.Load(args[0])
			if err != nil {
				return err
			}
			return runRecipe(r)
		},
	}
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <capture>",
		Short: "List the address marks found in one capture file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := createService(media)
			if err != nil {
				return fmt.Errorf("failed to create service: %w", err)
			}
			defer svc.Close()

			ctx, cancel := signalContext(time.Minute)
			defer cancel()

			entries, err := svc.ScanTrack(ctx, args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("📭 No address marks found")
				return nil
			}
			fmt.Printf("📚 Found %d address mark(s):\n\n", len(entries))
			for _, e := range entries {
				if e.Err != nil {
					fmt.Printf("   ?? %v\n", e.Err)
					continue
				}
				fmt.Printf("   %s\n", e)
			}
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the sectors stored for the media",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := createService(media)
			if err != nil {
				return fmt.Errorf("failed to create service: %w", err)
			}
			defer svc.Close()

			sectors, err := svc.ListSectors()
			if err != nil {
				return fmt.Errorf("failed to list sectors: %w", err)
			}
			if len(sectors) == 0 {
				fmt.Printf("📭 No sectors stored for %s\n", media)
				return nil
			}

			fmt.Printf("📚 Found %d sector(s) for %s:\n\n", len(sectors), media)
			for _, s := range sectors {
				fmt.Printf("%s %4d bytes  %-10s %s\n", s.At, len(s.Octets), s.Provenance, s.Source)
				fmt.Printf("   ID: %s  stored %s\n", s.ID, s.CreatedAt.Format(time.DateTime))
			}
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <image>",
		Short: "Write the stored sectors, in (c, h, s) order, to an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := createService(media)
			if err != nil {
				return fmt.Errorf("failed to create service: %w", err)
			}
			defer svc.Close()

			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("creating image: %w", err)
			}
			summary, err := svc.WriteImage(f)
			if cerr := f.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("closing image: %w", cerr)
			}
			if err != nil {
				return err
			}

			fmt.Printf("✅ Wrote %d sector(s), %d bytes, to %s\n", summary.Sectors, summary.Bytes, args[0])
			for _, at := range summary.Conflicts {
				fmt.Printf("   ⚠️  %s holds more than one payload; the earliest was written\n", at)
			}
			return nil
		},
	}
}

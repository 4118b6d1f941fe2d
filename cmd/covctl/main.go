// Command covctl is a demo control-plane driver for the kcov facility:
// it opens a session, drives it through init/map/enable/remote-enable/
// disable, and prints the resulting buffer contents. It exercises the
// public API the way an operator would, the way the teacher's
// cmd/ublk-mem drove CreateAndServe/StopAndDelete — it is not the
// compiler-instrumentation callsite the spec externalizes as out of
// scope, just a stand-in for one.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kbarlow/kcov"
	"github.com/kbarlow/kcov/internal/config"
	"github.com/kbarlow/kcov/internal/descriptor"
	"github.com/kbarlow/kcov/internal/logging"
	"github.com/kbarlow/kcov/internal/wire"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		verbose bool
	)

	root := &cobra.Command{
		Use:   "covctl",
		Short: "Drive a kcov coverage-collection session",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML config file (optional)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	loadCfg := func() *config.Config {
		if cfgPath == "" {
			return config.Default()
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return cfg
	}

	loggerFor := func() *logging.Logger {
		level := logging.LevelInfo
		if verbose {
			level = logging.LevelDebug
		}
		return logging.NewLogger(&logging.Config{Level: level, Output: os.Stderr})
	}

	root.AddCommand(newPCDemoCmd(loadCfg, loggerFor))
	root.AddCommand(newRemoteDemoCmd(loadCfg, loggerFor))
	root.AddCommand(newStatsCmd())
	return root
}

// newPCDemoCmd drives the S1 happy-path scenario end to end: open,
// init, map, enable(PC), record a couple of PCs, read the buffer back,
// disable, close.
func newPCDemoCmd(loadCfg func() *config.Config, loggerFor func() *logging.Logger) *cobra.Command {
	var sizeWords uint64
	var pcs []uint64

	cmd := &cobra.Command{
		Use:   "pc-demo",
		Short: "Open a PC-mode session and record a few PCs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadCfg()
			if sizeWords == 0 {
				sizeWords = cfg.DefaultSize
			}
			f := kcov.New(loggerFor())

			s := f.Open()
			if err := s.Init(sizeWords); err != nil {
				return err
			}
			if err := s.Map(sizeWords * kcov.WordSize); err != nil {
				return err
			}
			if err := s.Enable(kcov.ModeTracePC); err != nil {
				return err
			}

			task := s.Task()
			for _, pc := range pcs {
				descriptor.TracePC(task, true, pc, 0)
			}

			printPCBuffer(s.Buffer())

			if err := s.Disable(); err != nil {
				return err
			}
			s.Close()
			return nil
		},
	}
	cmd.Flags().Uint64Var(&sizeWords, "size", 0, "descriptor size in words (default: config's default_size_words)")
	cmd.Flags().Uint64SliceVar(&pcs, "pc", []uint64{0x401000, 0x401040}, "PC values to record")
	return cmd
}

// newRemoteDemoCmd drives the S4 remote-merge scenario: a session
// registers a handle, a simulated executor claims it, records PCs, and
// stops; the merged buffer is printed.
func newRemoteDemoCmd(loadCfg func() *config.Config, loggerFor func() *logging.Logger) *cobra.Command {
	var sizeWords, remoteSizeWords uint64
	var handleStr string
	var pcs []uint64

	cmd := &cobra.Command{
		Use:   "remote-demo",
		Short: "Open a remote-enabled session and simulate an executor's collection window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadCfg()
			if sizeWords == 0 {
				sizeWords = cfg.DefaultSize
			}
			if remoteSizeWords == 0 {
				remoteSizeWords = cfg.RemoteBuckets[0]
			}
			f := kcov.New(loggerFor())
			handle := handleFromString(handleStr)

			s := f.Open()
			if err := s.Init(sizeWords); err != nil {
				return err
			}
			if err := s.Map(sizeWords * kcov.WordSize); err != nil {
				return err
			}
			if err := s.RemoteEnable(kcov.ModeTracePC, remoteSizeWords, []uint64{handle}); err != nil {
				return err
			}

			executor := kcov.NewMockExecutor(f, handle)
			executor.Start()
			task := executor.Task()
			for _, pc := range pcs {
				descriptor.TracePC(task, true, pc, 0)
			}
			executor.Stop()

			printPCBuffer(s.Buffer())
			snap := f.Stats().Snapshot()
			fmt.Printf("stats: enables=%d remote_starts=%d remote_stops=%d merges=%d records_merged=%d\n",
				snap.Enables, snap.RemoteStarts, snap.RemoteStops, snap.Merges, snap.RecordsMerged)

			if err := s.Disable(); err != nil {
				return err
			}
			s.Close()
			return nil
		},
	}
	cmd.Flags().Uint64Var(&sizeWords, "size", 0, "descriptor size in words (default: config's default_size_words)")
	cmd.Flags().Uint64Var(&remoteSizeWords, "remote-size", 0, "remote scratch-buffer size in words (default: config's first bucket)")
	cmd.Flags().StringVar(&handleStr, "handle", "", "handle to register (default: a random uuid-derived value)")
	cmd.Flags().Uint64SliceVar(&pcs, "pc", []uint64{0x402000, 0x402010, 0x402020}, "PC values the executor records")
	return cmd
}

// newStatsCmd prints the zero-state stats snapshot a fresh facility
// reports, mostly to give operators a quick sanity check of the
// Snapshot shape without standing up a full session.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print a fresh facility's zero-state stats snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap := kcov.New(nil).Stats().Snapshot()
			fmt.Printf("%+v\n", snap)
			return nil
		},
	}
}

// handleFromString parses handleStr as a decimal handle, or derives
// one from a fresh UUID when it is empty or does not parse — handles are opaque caller-chosen
// u64s (spec.md §6), and a demo CLI needs something to hand out by
// default.
func handleFromString(handleStr string) uint64 {
	if handleStr != "" {
		var h uint64
		if _, err := fmt.Sscanf(handleStr, "%d", &h); err == nil {
			return h
		}
	}
	id := uuid.New()
	var h uint64
	for _, b := range id[:8] {
		h = h<<8 | uint64(b)
	}
	return h
}

func printPCBuffer(buf []byte) {
	if buf == nil {
		fmt.Println("buffer: <unmapped>")
		return
	}
	records := wire.PCRecords(buf)
	fmt.Printf("count=%d records=%#x\n", len(records), records)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jgard/framesheet/internal/cache"
	"github.com/jgard/framesheet/internal/compose"
	"github.com/jgard/framesheet/internal/config"
	"github.com/jgard/framesheet/internal/logging"
	"github.com/jgard/framesheet/internal/pipeline"
	"github.com/jgard/framesheet/internal/video"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "framesheet",
	Short: "framesheet - video contact sheet generator",
	Long:  "Generates a single composite image containing a grid of representative frames with timestamps from a video file.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./framesheet.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	generateCmd.Flags().IntVar(&flagRows, "rows", 0, "grid rows")
	generateCmd.Flags().IntVar(&flagCols, "cols", 0, "grid columns")
	generateCmd.Flags().IntVar(&flagWidth, "width", 0, "target sheet width in pixels")
	generateCmd.Flags().StringVar(&flagAspect, "aspect", "", "aspect mode: fill, fit or source")
	generateCmd.Flags().StringVar(&flagTheme, "theme", "", "background theme: black or white")
	generateCmd.Flags().BoolVar(&flagNoTimestamps, "no-timestamps", false, "disable timestamp overlays")
	generateCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output directory (default: alongside the source video)")
	generateCmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "max videos processed at once")
	generateCmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "bypass the frame cache")

	cacheCmd.AddCommand(cacheClearCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(configCmd)
}

var (
	flagRows         int
	flagCols         int
	flagWidth        int
	flagAspect       string
	flagTheme        string
	flagNoTimestamps bool
	flagOutput       string
	flagConcurrency  int
	flagNoCache      bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [video files]",
	Short: "Generate contact sheets for one or more videos",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.WithComponent("cli")
		cfg := config.FromContext(cmd.Context())
		applyFlags(cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		for _, path := range args {
			if err := video.ValidateContainer(path); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}

		aspect, err := compose.ParseAspectMode(cfg.Grid.AspectMode)
		if err != nil {
			return err
		}
		theme, err := compose.ParseTheme(cfg.Grid.Theme)
		if err != nil {
			return err
		}
		grid := compose.GridConfig{
			Rows:           cfg.Grid.Rows,
			Cols:           cfg.Grid.Cols,
			TargetWidth:    cfg.Grid.TargetWidth,
			AspectMode:     aspect,
			Theme:          theme,
			ShowTimestamps: cfg.Grid.ShowTimestamps,
		}

		asset, err := video.NewFFmpegAsset(logging.NewLogger())
		if err != nil {
			return err
		}

		var frameCache *cache.Cache
		if cfg.Cache.Enabled && !flagNoCache {
			frameCache, err = cache.New(logging.NewLogger(), cfg.Cache.Dir)
			if err != nil {
				logger.Warn().Err(err).Msg("cache unavailable, continuing without it")
			}
		}

		sched := pipeline.NewScheduler(logging.NewLogger(), asset, frameCache, pipeline.Options{
			MaxConcurrent:    cfg.Pipeline.MaxConcurrent,
			OversampleFactor: cfg.Pipeline.OversampleFactor,
			MaxDecodeSize:    cfg.Pipeline.MaxDecodeSize,
			JPEGQuality:      cfg.Output.JPEGQuality,
			OutputDir:        cfg.Output.Dir,
		})

		for _, path := range args {
			sched.Enqueue(path, grid)
		}

		bar := progressbar.NewOptions(100*len(args),
			progressbar.OptionSetDescription("generating"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionShowCount(),
		)
		sched.OnProgress(func(snap pipeline.Snapshot) {
			total := 0.0
			for _, job := range sched.Jobs() {
				total += job.Progress
			}
			_ = bar.Set(int(total * 100))
			bar.Describe(snap.State.String())
		})

		result := sched.Run(cmd.Context())
		_ = bar.Finish()

		for _, job := range sched.Jobs() {
			switch job.State {
			case pipeline.StateComplete:
				fmt.Printf("%s -> %s\n", job.SourcePath, job.OutputPath)
			case pipeline.StateFailed:
				fmt.Printf("%s: %s\n", job.SourcePath, job.Status)
			case pipeline.StateCancelled:
				fmt.Printf("%s: cancelled\n", job.SourcePath)
			}
		}

		logger.Info().
			Int("complete", result.Complete).
			Int("failed", result.Failed).
			Int("cancelled", result.Cancelled).
			Msg("done")

		if result.Complete == 0 && result.Failed > 0 {
			return fmt.Errorf("all %d job(s) failed", result.Failed)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the active configuration to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		path := cfgFile
		if path == "" {
			path = "framesheet.yaml"
		}
		if err := cfg.Save(path); err != nil {
			return err
		}

		logger := logging.WithComponent("cli")
		logger.Info().Str("path", path).Msg("configuration written")
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Frame cache maintenance",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached frame entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		frameCache, err := cache.New(logging.NewLogger(), cfg.Cache.Dir)
		if err != nil {
			return err
		}
		if err := frameCache.Clear(); err != nil {
			return err
		}

		logger := logging.WithComponent("cli")
		logger.Info().Str("dir", cfg.Cache.Dir).Msg("cache cleared")
		return nil
	},
}

func applyFlags(cfg *config.Config) {
	if flagRows > 0 {
		cfg.Grid.Rows = flagRows
	}
	if flagCols > 0 {
		cfg.Grid.Cols = flagCols
	}
	if flagWidth > 0 {
		cfg.Grid.TargetWidth = flagWidth
	}
	if flagAspect != "" {
		cfg.Grid.AspectMode = flagAspect
	}
	if flagTheme != "" {
		cfg.Grid.Theme = flagTheme
	}
	if flagNoTimestamps {
		cfg.Grid.ShowTimestamps = false
	}
	if flagOutput != "" {
		cfg.Output.Dir = flagOutput
	}
	if flagConcurrency > 0 {
		cfg.Pipeline.MaxConcurrent = flagConcurrency
	}
}

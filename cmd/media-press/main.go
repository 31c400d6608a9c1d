package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-press-go/internal/compressor"
	"media-press-go/internal/config"
	"media-press-go/internal/logger"
	"media-press-go/internal/mediahost"
	"media-press-go/internal/pipeline"
	"media-press-go/internal/probe"
	"media-press-go/internal/statistics"
	"media-press-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	sourceDir string
	targetDir string
	verbose   bool
	quiet     bool
	showMeta  bool
	port      int
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "media-press",
	Short: "Compress storefront media before upload",
	Long: `media-press compresses look and product media for the storefront:
images are downscaled and re-encoded to WebP, videos are transcoded to a
target bitrate with the horizontal resolution capped at 1280px. Videos
already under the size threshold pass through untouched.

Outputs can be written to a local directory or pushed straight to the
configured media host.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(args)
	},
}

// probeCmd inspects a media file without compressing it.
var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Inspect a media file",
	Long: `Shows what the compressors would see for a given file: sniffed MIME
type, pixel dimensions, video duration, and EXIF capture date. With
--metadata the full exiftool field dump is included.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProbe(args[0])
	},
}

// serveCmd starts the compression API server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the compression API server",
	Long: `Starts the HTTP API used by the storefront admin upload forms:
- POST /api/compress/image  compresses an image synchronously
- POST /api/compress/video  starts an async transcode job
- GET  /api/jobs/{id}       polls a job
- /ws                       streams job progress over websocket`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	rootCmd.Flags().StringVar(&sourceDir, "source", "", "source directory containing media files")
	rootCmd.Flags().StringVar(&targetDir, "target", "", "target directory for compressed files")

	probeCmd.Flags().BoolVar(&showMeta, "metadata", false, "include the full exiftool metadata dump")
	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run the API server on")

	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(serveCmd)
}

// initConfig loads configuration file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.media-press")
		viper.AddConfigPath("/etc/media-press")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// runCompress executes the batch compression pipeline.
func runCompress(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	stats := statistics.NewStatistics()

	images := compressor.NewImageCompressor(log)
	videos := compressor.NewVideoCompressor(log, cfg.Video.FFmpegPath, cfg.Video.FFprobePath, cfg.Video.TempDir)

	var uploader *mediahost.Client
	if cfg.UploadEnabled() {
		uploader = mediahost.NewClient(cfg.Upload.URL, cfg.Upload.Preset,
			time.Duration(cfg.Upload.TimeoutSeconds)*time.Second, log)
	}

	p := pipeline.New(cfg, log, stats, images, videos, uploader)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := p.Run(ctx)
	if err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}

	if !quiet {
		for _, res := range results {
			if res.Err != nil {
				fmt.Printf("FAIL  %s: %v\n", res.InputPath, res.Err)
				continue
			}
			fmt.Printf("%-11s %s  %s -> %s\n", res.Action, res.InputPath,
				compressor.FormatFileSize(res.OriginalSize),
				compressor.FormatFileSize(res.CompressedSize))
		}
		fmt.Println("\n" + stats.GetSummary())
	}

	return nil
}

// runProbe inspects a single media file.
func runProbe(filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	prober := probe.NewProber(cfg.Video.FFprobePath)
	info, err := prober.Inspect(context.Background(), filePath)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}

	fmt.Printf("File:     %s\n", info.Path)
	fmt.Printf("Size:     %s\n", compressor.FormatFileSize(info.Size))
	fmt.Printf("MIME:     %s\n", info.MIMEType)
	if info.Width > 0 {
		fmt.Printf("Pixels:   %dx%d\n", info.Width, info.Height)
	}
	if info.Duration > 0 {
		fmt.Printf("Duration: %.2fs\n", info.Duration)
	}
	if info.TakenAt != nil {
		fmt.Printf("Taken at: %s\n", info.TakenAt.Format("2006-01-02 15:04:05"))
	}

	if showMeta {
		fields, err := probe.Metadata(filePath)
		if err != nil {
			fmt.Printf("Metadata unavailable: %v\n", err)
			return nil
		}
		fmt.Println("Metadata:")
		for key, value := range fields {
			fmt.Printf("  %s: %s\n", key, value)
		}
	}

	return nil
}

// runServe starts the API server and handles graceful shutdown.
func runServe() error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CONFIG LOAD ERROR: %v\n", err)
		cfg = config.DefaultConfig()
	}

	log := setupLogger(cfg)
	images := compressor.NewImageCompressor(log)
	videos := compressor.NewVideoCompressor(log, cfg.Video.FFmpegPath, cfg.Video.FFprobePath, cfg.Video.TempDir)
	server := web.NewServer(cfg, log, images, videos)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("media-press API listening on http://localhost:%d\n", port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	<-sigChan
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped")
	return nil
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig(args []string) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	if sourceDir != "" {
		cfg.SourceDirectories = []string{sourceDir}
	}
	if targetDir != "" {
		cfg.TargetDirectory = targetDir
	}

	if len(cfg.SourceDirectories) == 0 && len(args) > 0 {
		cfg.SourceDirectories = args
	}
	if len(cfg.SourceDirectories) == 0 {
		cfg.SourceDirectories = []string{"."}
	}

	for _, dir := range cfg.SourceDirectories {
		if !dirExists(dir) {
			return nil, fmt.Errorf("source directory does not exist: %s", dir)
		}
	}

	return cfg, nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// dirExists returns true if the given path exists and is a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

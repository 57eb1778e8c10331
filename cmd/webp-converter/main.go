package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webp-converter-go/internal/codec"
	"webp-converter-go/internal/config"
	"webp-converter-go/internal/converter"
	"webp-converter-go/internal/extractor"
	"webp-converter-go/internal/icon"
	"webp-converter-go/internal/logger"
	"webp-converter-go/internal/metadata"
	"webp-converter-go/internal/scanner"
	"webp-converter-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	inputDir string
	quality  int
	verbose  bool
	quiet    bool
	port     int
	iconDir  string
)

// rootCmd converts a directory when run without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "webp-converter",
	Short: "Convert a directory of images to WebP",
	Long: `webp-converter converts every PNG, JPEG, TIFF and BMP image directly
inside a directory to lossy WebP. Each output is written next to its source
as <name>.webp; sources are never modified.

Transparency is preserved: images with an alpha channel or a palette are
encoded with alpha, everything else is encoded opaque.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(cmd, args)
	},
}

// scanCmd lists the files a conversion would process.
var scanCmd = &cobra.Command{
	Use:   "scan [directory]",
	Short: "List the images that would be converted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(args)
	},
}

// inspectCmd prints what the converter sees in a single image.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show format, color mode and EXIF details of an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0])
	},
}

// serveCmd starts the web interface server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start web interface server",
	Long: `Starts an HTTP server exposing the converter as a JSON API with live
progress over a websocket at /ws.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

// iconCmd renders the application icon.
var iconCmd = &cobra.Command{
	Use:   "icon",
	Short: "Generate the application icon as PNG and ICO files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIcon()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	rootCmd.Flags().StringVar(&inputDir, "dir", "", "directory containing the images to convert")
	rootCmd.Flags().IntVar(&quality, "quality", config.DefaultConfig().Quality, "WebP quality (1-100)")

	serveCmd.Flags().IntVar(&port, "port", 0, "port to run web server on (default from config, 8080)")
	iconCmd.Flags().StringVar(&iconDir, "out", "icons", "output directory for the icon files")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(iconCmd)
}

// runConvert runs one batch in the foreground, printing progress to stderr.
func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if inputDir != "" {
		cfg.InputDirectory = config.ExpandPath(inputDir)
	} else if len(args) > 0 {
		cfg.InputDirectory = config.ExpandPath(args[0])
	}
	if cmd.Flags().Changed("quality") {
		cfg.Quality = quality
	}

	log := setupLogger(cfg)
	worker, closeWorker := newWorker(cfg, log)
	defer closeWorker()

	job := converter.NewJob(cfg.InputDirectory, cfg.Quality)
	job.AutoOrient = cfg.Conversion.AutoOrient
	job.PreserveMetadata = cfg.Conversion.PreserveMetadata

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = worker.Run(ctx, job, func(ev converter.Event) {
		if quiet || ev.Type != converter.EventProgress {
			return
		}
		fmt.Fprintf(os.Stderr, "[%3d%%] %s -> %s\n", ev.Percent, ev.File, ev.Output)
	})

	if stats := worker.Stats(); stats != nil && !quiet {
		fmt.Println("\n" + stats.GetSummary())
	}
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}
	return nil
}

// runScan prints the eligible files without converting them.
func runScan(args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	scanDir := cfg.InputDirectory
	if len(args) > 0 {
		scanDir = config.ExpandPath(args[0])
	}

	fmt.Fprintf(os.Stderr, "Scanning directory: %s\n", scanDir)

	files, err := scanner.New(afero.NewOsFs()).Scan(scanDir)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	var total int64
	for _, f := range files {
		total += f.Size
		fmt.Printf("%-40s %10d  -> %s\n", f.Name, f.Size, f.OutputPath())
	}

	if !quiet {
		fmt.Println("\n==================================================")
		fmt.Println("SCAN RESULTS")
		fmt.Println("==================================================")
		fmt.Printf("Images found: %d\n", len(files))
		fmt.Printf("Total size:   %d bytes\n", total)
	}
	return nil
}

// runInspect prints the details of a single image.
func runInspect(filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	ex := extractor.NewEXIFExtractor(afero.NewOsFs(), codec.NewDefaultCodec(), log)

	d, err := ex.Describe(filePath)
	if err != nil {
		return fmt.Errorf("inspect failed: %w", err)
	}

	fmt.Printf("File:        %s\n", d.Path)
	fmt.Printf("Format:      %s\n", d.Format)
	fmt.Printf("Dimensions:  %dx%d\n", d.Width, d.Height)
	fmt.Printf("Size:        %d bytes\n", d.Size)
	fmt.Printf("Color mode:  %s (encoded as %s)\n", d.ColorMode, d.Target)
	fmt.Printf("Orientation: %d\n", d.Orientation)
	if d.Camera != "" {
		fmt.Printf("Camera:      %s\n", d.Camera)
	}
	fmt.Printf("Date:        %s (%s)\n", d.TakenAt.Format("2006-01-02 15:04:05"), d.DateSource)
	fmt.Printf("Output:      %s\n", scanner.OutputPathFor(d.Path))
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CONFIG LOAD ERROR: %v\n", err)
		cfg = config.DefaultConfig()
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}

	log := setupLogger(cfg)
	worker, closeWorker := newWorker(cfg, log)
	defer closeWorker()
	server := web.NewServer(cfg, log, worker)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("WebP converter API listening on http://localhost:%d\n", cfg.Server.Port)
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

func runIcon() error {
	paths, err := icon.Generate(iconDir, nil)
	if err != nil {
		return fmt.Errorf("icon generation failed: %w", err)
	}
	if !quiet {
		for _, p := range paths {
			fmt.Println(p)
		}
	}
	return nil
}

// newWorker builds the converter, attaching exiftool when metadata should be
// preserved. Without exiftool the option is switched off with a warning.
func newWorker(cfg *config.Config, log *logrus.Logger) (*converter.Worker, func()) {
	opts := []converter.Option{converter.WithLogger(log)}
	closeFn := func() {}
	if cfg.Conversion.PreserveMetadata {
		copier, err := metadata.NewExifToolCopier()
		if err != nil {
			log.WithError(err).Warn("exiftool unavailable, metadata will not be preserved")
			cfg.Conversion.PreserveMetadata = false
		} else {
			opts = append(opts, converter.WithMetadataCopier(copier))
			closeFn = func() { copier.Close() }
		}
	}
	return converter.NewWorker(opts...), closeFn
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

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

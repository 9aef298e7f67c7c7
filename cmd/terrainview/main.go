package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/banshee-data/terrainview/internal/config"
	"github.com/banshee-data/terrainview/internal/fsutil"
	"github.com/banshee-data/terrainview/internal/monitoring"
	"github.com/banshee-data/terrainview/internal/planner"
	"github.com/banshee-data/terrainview/internal/raster"
	"github.com/banshee-data/terrainview/internal/raster/gdal"
	"github.com/banshee-data/terrainview/internal/render"
	"github.com/banshee-data/terrainview/internal/version"
	"github.com/banshee-data/terrainview/internal/viewer"
)

// errUsage marks argument errors that should print the usage text.
var errUsage = errors.New("usage error")

type options struct {
	configPath  string
	output      string
	format      string
	colormap    string
	assumeYes   bool
	showVersion bool

	path   string
	factor *int
	maxGB  float64
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `terrainview - memory-aware elevation raster viewer

Usage: terrainview [flags] <raster_path> [resolution] [max_memory_gb]

Arguments:
  raster_path     GeoTIFF (or any GDAL raster) or ESRI ASCII grid (.asc, .asc.gz)
  resolution      Integer downsample factor, or "auto" (default: auto)
  max_memory_gb   Total memory budget in GB (default: 8)

Flags:
  -config <file>      Viewer configuration JSON
  -o <file>           Output path (default: <basename>_elevation.<format>)
  -format png|html    Output format (default: png, or html for a .html -o)
  -colormap <name>    terrain, gray or viridis
  -y                  Proceed without asking when over budget
  -version            Print version and exit

Examples:
  terrainview file.tif                 # Auto resolution
  terrainview file.tif 1               # Full resolution
  terrainview file.tif 10              # Average 10x10 pixel blocks
  terrainview file.tif 5 16            # 5x downsample, allow 16GB RAM
  terrainview file.tif auto 2          # Auto resolution within 2GB
  terrainview -format html dem.asc.gz  # Interactive HTML heat map
`)
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("terrainview", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "Viewer configuration JSON")
	fs.StringVar(&opts.output, "o", "", "Output path")
	fs.StringVar(&opts.format, "format", "", "Output format (png or html)")
	fs.StringVar(&opts.colormap, "colormap", "", "Colour map name")
	fs.BoolVar(&opts.assumeYes, "y", false, "Proceed without asking when over budget")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.showVersion {
		return opts, nil
	}

	rest := fs.Args()
	if len(rest) < 1 || len(rest) > 3 {
		return nil, fmt.Errorf("%w: expected <raster_path> [resolution] [max_memory_gb]", errUsage)
	}
	opts.path = rest[0]

	if len(rest) > 1 && !strings.EqualFold(rest[1], "auto") {
		f, err := strconv.Atoi(rest[1])
		if err != nil {
			return nil, fmt.Errorf("%w: resolution must be an integer or \"auto\", got %q", errUsage, rest[1])
		}
		opts.factor = &f
	}
	if len(rest) > 2 {
		gb, err := strconv.ParseFloat(rest[2], 64)
		if err != nil || !(gb > 0) {
			return nil, fmt.Errorf("%w: max_memory_gb must be a positive number, got %q", errUsage, rest[2])
		}
		opts.maxGB = gb
	}
	return opts, nil
}

// loadConfig applies command-line overrides on top of the config file.
func loadConfig(opts *options) (*config.ViewerConfig, error) {
	cfg := config.DefaultViewerConfig()
	if opts.configPath != "" {
		loaded, err := config.LoadViewerConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.format == "" && opts.output != "" && strings.EqualFold(filepath.Ext(opts.output), ".html") {
		opts.format = config.FormatHTML
	}
	if opts.format != "" {
		cfg.OutputFormat = &opts.format
	}
	if opts.colormap != "" {
		cfg.Colormap = &opts.colormap
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// outputPath derives <basename>_elevation.<format> in the working directory.
func outputPath(rasterPath, format string) string {
	base := filepath.Base(rasterPath)
	if strings.EqualFold(filepath.Ext(base), ".gz") {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base + "_elevation." + format
}

// stdinConfirm asks on out and accepts only "y" or "Y".
func stdinConfirm(in io.Reader, out io.Writer) planner.ConfirmFunc {
	r := bufio.NewReader(in)
	return func(prompt string) bool {
		fmt.Fprint(out, prompt)
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(out)
			return false
		}
		answer := strings.TrimSpace(line)
		return answer == "y" || answer == "Y"
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "Error: %v\n\n", err)
			printUsage(stderr)
		}
		return 1
	}
	if opts.showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	monitoring.SetLogger(log.New(stdout, "", 0).Printf)

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	out := opts.output
	if out == "" {
		out = outputPath(opts.path, cfg.GetOutputFormat())
	}

	fsys := fsutil.OSFileSystem{}
	rdr, err := render.New(cfg, fsys, out)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	confirm := stdinConfirm(stdin, stdout)
	if opts.assumeYes {
		confirm = func(string) bool { return true }
	}

	v := &viewer.Viewer{
		Open: func(path string) (raster.Source, error) {
			return raster.Open(path, fsys, gdal.Open)
		},
		Confirm:  confirm,
		Renderer: rdr,
		Config:   cfg,
	}
	rep, err := v.Run(ctx, viewer.Request{
		Path:            opts.path,
		RequestedFactor: opts.factor,
		MaxTotalGB:      opts.maxGB,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(stderr, "Interrupted.")
			return 130
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if !rep.Cancelled {
		fmt.Fprintf(stdout, "Saved %s\n", out)
	}
	return 0
}

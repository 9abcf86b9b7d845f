package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"gonum.org/v1/gonum/stat"

	"github.com/tingold/ptiff"
	"github.com/tingold/ptiff/config"
)

const usage = `usage: ptiff <command> [flags]

commands:
  info     print the page directory of a file
  crop     read a region and save it as an image
  pyramid  build a tiled pyramid from an image
  serve    serve pyramid tiles over HTTP
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "info":
		err = runInfo(args)
	case "crop":
		err = runCrop(args)
	case "pyramid":
		err = runPyramid(args)
	case "serve":
		err = runServe(args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("ptiff %s: %v", os.Args[1], err)
	}
}

// loadConfig reads the config file named by path and builds the file
// options from it.
func loadConfig(path string) (*config.Config, []ptiff.Option, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	level := slog.LevelInfo
	if cfg.Output.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	opts := []ptiff.Option{
		ptiff.WithWorkers(cfg.Engine.Workers),
		ptiff.WithTileCache(cfg.Engine.TileCacheSize),
		ptiff.WithBigTIFF(cfg.Engine.BigTIFF),
		ptiff.WithLogger(logger),
	}
	return cfg, opts, nil
}

func openInput(name string, opts []ptiff.Option) (*ptiff.File, error) {
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		return ptiff.OpenURL(name, opts...)
	}
	return ptiff.Open(name, opts...)
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	configPath := fs.String("config", "ptiff.yaml", "Configuration file")
	withStats := fs.Bool("stats", false, "Print sample mean and standard deviation of the coarsest page")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one input file")
	}

	_, opts, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	f, err := openInput(fs.Arg(0), opts)
	if err != nil {
		return err
	}
	version, err := f.Version()
	if err != nil {
		return err
	}
	pages, err := f.Directory()
	if err != nil {
		return err
	}

	fmt.Printf("%s: TIFF version %d, %d pages\n", f.Path(), version, len(pages))
	for i, d := range pages {
		layout := "scanlines"
		if d.IsTiled() {
			layout = fmt.Sprintf("%dx%d tiles", d.TileWidth, d.TileLength)
		}
		footprint, err := f.Footprint(i)
		if err != nil {
			return err
		}
		fmt.Printf("  page %d: %dx%d, %d x %d-bit samples, %s, compression %d, subfile type %d\n",
			i, d.ImageWidth, d.ImageLength, d.SamplesPerPixel, d.BitsPerSample, layout, d.Compression, d.SubfileType)
		fmt.Printf("    footprint %s\n", wkt.MarshalString(ptiff.PolygonFromBounds(footprint)))
	}

	if *withStats && len(pages) > 0 {
		samples, err := pageSamples(f, len(pages)-1, pages[len(pages)-1])
		if err != nil {
			return err
		}
		mean, std := stat.MeanStdDev(samples, nil)
		fmt.Printf("  page %d samples: mean %.3f, std dev %.3f\n", len(pages)-1, mean, std)
	}
	return nil
}

// pageSamples reads a page as float64 samples for statistics.
func pageSamples(f *ptiff.File, idx int, d ptiff.Descriptor) ([]float64, error) {
	switch d.BitsPerSample {
	case 16:
		ras, err := ptiff.ReadPage[uint16](f, idx)
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(ras.Pix))
		for i, v := range ras.Pix {
			out[i] = float64(v)
		}
		return out, nil
	default:
		ras, err := ptiff.ReadPage[uint8](f, idx)
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(ras.Pix))
		for i, v := range ras.Pix {
			out[i] = float64(v)
		}
		return out, nil
	}
}

func runCrop(args []string) error {
	fs := flag.NewFlagSet("crop", flag.ExitOnError)
	configPath := fs.String("config", "ptiff.yaml", "Configuration file")
	page := fs.Int("page", 0, "Page to read; negative values count from the last page")
	auto := fs.Bool("auto", false, "Select the pyramid level from the region size")
	rectFlag := fs.String("rect", "", "Region as y1,x1,y2,x2 in pixels")
	boundsFlag := fs.String("bounds", "", "Region as minx,miny,maxx,maxy in pixels")
	out := fs.String("out", "crop.png", "Output image")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one input file")
	}

	cfg, opts, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	r, err := parseRegion(*rectFlag, *boundsFlag)
	if err != nil {
		return err
	}
	f, err := openInput(fs.Arg(0), opts)
	if err != nil {
		return err
	}

	start := time.Now()
	if *auto {
		strategy, err := ptiff.ParseStrategy(cfg.Pyramid.Strategy)
		if err != nil {
			return err
		}
		ras, level, err := ptiff.MultiPageCrop[uint8](f, r, strategy)
		if err != nil {
			return err
		}
		d, err := f.Descriptor(level)
		if err != nil {
			return err
		}
		fmt.Printf("Served %v from level %d in %v\n", r, level, time.Since(start))
		return imaging.Save(ras.Image(d.Photometric), *out)
	}

	img, err := f.ReadRegionImage(*page, r)
	if err != nil {
		return err
	}
	fmt.Printf("Read %v from page %d in %v\n", r, *page, time.Since(start))
	return imaging.Save(img, *out)
}

// parseRegion accepts either a y1,x1,y2,x2 rectangle or a minx,miny,maxx,maxy
// bounding box.
func parseRegion(rect, bounds string) (ptiff.Rect, error) {
	switch {
	case rect != "":
		v, err := parseInts(rect, 4)
		if err != nil {
			return ptiff.Rect{}, fmt.Errorf("invalid -rect: %w", err)
		}
		return ptiff.Rect{Y1: v[0], X1: v[1], Y2: v[2], X2: v[3]}, nil
	case bounds != "":
		v, err := parseInts(bounds, 4)
		if err != nil {
			return ptiff.Rect{}, fmt.Errorf("invalid -bounds: %w", err)
		}
		b := orb.Bound{
			Min: orb.Point{float64(v[0]), float64(v[1])},
			Max: orb.Point{float64(v[2]), float64(v[3])},
		}
		return ptiff.RectFromBound(b), nil
	default:
		return ptiff.Rect{}, fmt.Errorf("one of -rect or -bounds is required")
	}
}

func parseInts(s string, n int) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d comma separated values, got %d", n, len(parts))
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func runPyramid(args []string) error {
	fs := flag.NewFlagSet("pyramid", flag.ExitOnError)
	configPath := fs.String("config", "ptiff.yaml", "Configuration file")
	in := fs.String("in", "", "Input image (PNG, JPEG, TIFF, BMP or GIF)")
	out := fs.String("out", "pyramid.tif", "Output pyramidal TIFF")
	tile := fs.Int("tile", 0, "Tile size; overrides the configuration")
	fs.Parse(args)
	if *in == "" {
		fs.Usage()
		return fmt.Errorf("-in is required")
	}

	cfg, opts, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	tileSize := cfg.Pyramid.TileSize
	if *tile > 0 {
		tileSize = *tile
	}

	img, err := imaging.Open(*in)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", *in, err)
	}
	base := ptiff.RasterFromImage(img)

	start := time.Now()
	f, err := ptiff.Create(*out, opts...)
	if err != nil {
		return err
	}
	d := ptiff.Descriptor{TileWidth: tileSize, TileLength: tileSize}
	if err := ptiff.BuildPyramid(f, base, d); err != nil {
		return err
	}
	n, err := f.PageCount()
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d levels of %dx%d to %s in %v\n", n, base.Width, base.Height, *out, time.Since(start))
	return nil
}

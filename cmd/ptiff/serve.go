package main

import (
	"errors"
	"flag"
	"fmt"
	"image/png"
	"log"
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
	"github.com/valyala/fasthttp"

	"github.com/tingold/ptiff"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "ptiff.yaml", "Configuration file")
	addr := fs.String("addr", "", "Listen address; overrides the configuration")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one input file")
	}

	cfg, opts, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	f, err := openInput(fs.Arg(0), opts)
	if err != nil {
		return err
	}

	server := &fasthttp.Server{
		Handler:      tileHandler(f),
		Name:         "ptiff",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Concurrency:  cfg.Server.Concurrency,
	}
	log.Printf("Serving %s on %s", f.Path(), cfg.Server.Addr)
	return server.ListenAndServe(cfg.Server.Addr)
}

// tileHandler serves /tiles/{z}/{x}/{y}.png from the pyramid of f.
func tileHandler(f *ptiff.File) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		tile, ok := parseTilePath(string(ctx.Path()))
		if !ok {
			ctx.Error("expected /tiles/{z}/{x}/{y}.png", fasthttp.StatusNotFound)
			return
		}

		img, err := f.ReadMapTile(tile)
		switch {
		case errors.Is(err, ptiff.ErrIndexOutOfRange):
			ctx.Error(err.Error(), fasthttp.StatusNotFound)
			return
		case err != nil:
			log.Printf("tile %d/%d/%d: %v", tile.Z, tile.X, tile.Y, err)
			ctx.Error("failed to read tile", fasthttp.StatusInternalServerError)
			return
		}

		ctx.SetContentType("image/png")
		if err := png.Encode(ctx, img); err != nil {
			log.Printf("tile %d/%d/%d: failed to encode: %v", tile.Z, tile.X, tile.Y, err)
		}
	}
}

func parseTilePath(path string) (maptile.Tile, bool) {
	parts := strings.Split(strings.TrimPrefix(path, "/tiles/"), "/")
	if len(parts) != 3 || !strings.HasSuffix(parts[2], ".png") {
		return maptile.Tile{}, false
	}
	parts[2] = strings.TrimSuffix(parts[2], ".png")

	var v [3]uint64
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return maptile.Tile{}, false
		}
		v[i] = n
	}
	return maptile.New(uint32(v[1]), uint32(v[2]), maptile.Zoom(v[0])), true
}

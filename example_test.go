package ptiff_test

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/tingold/ptiff"
)

func ExampleMultiPageCrop() {
	dir, err := os.MkdirTemp("", "ptiff")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	f, err := ptiff.Create(filepath.Join(dir, "pyramid.tif"))
	if err != nil {
		log.Fatal(err)
	}

	base := ptiff.NewRaster[uint8](1024, 1024, 1)
	base.Set(0, 0, 0, 255)
	if err := ptiff.BuildPyramid(f, base, ptiff.Descriptor{TileWidth: 256, TileLength: 256}); err != nil {
		log.Fatal(err)
	}

	r, level, err := ptiff.MultiPageCrop[uint8](f, ptiff.Rect{Y2: 1024, X2: 1024}, ptiff.FitPageTile)
	if err != nil {
		log.Fatal(err)
	}
	pages, err := f.PageCount()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("pages=%d level=%d size=%dx%d\n", pages, level, r.Width, r.Height)
	// Output: pages=4 level=2 size=256x256
}

func ExampleSelectLevel() {
	var levels []ptiff.Descriptor
	for i := 0; i < 4; i++ {
		levels = append(levels, ptiff.Descriptor{
			ImageWidth:  2048 >> i,
			ImageLength: 2048 >> i,
			TileWidth:   256,
			TileLength:  256,
		})
	}

	level, scaled, err := ptiff.SelectLevel(ptiff.Rect{Y1: 0, X1: 0, Y2: 300, X2: 200}, levels, ptiff.FitPageTile)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(level, scaled.Height(), scaled.Width())
	// Output: 1 150 100
}

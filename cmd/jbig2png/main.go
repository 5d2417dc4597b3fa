package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"

	jbig2 "github.com/rasterpdf/jbig2/pkg/jbig2"
)

func main() {
	var inputFile = flag.String("input", "", "Input JBIG2 file (standalone or embedded stream)")
	var globalFile = flag.String("global", "", "Optional JBIG2 globals stream extracted from PDF")
	var outputFile = flag.String("output", "", "Output file (optional, defaults to input filename with the format's extension)")
	var format = flag.String("format", "png", "Output format: png or tiff")
	var pageNum = flag.Int("page", 1, "Page to write, counted from 1")
	var verbose = flag.Bool("v", false, "Log every segment")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *inputFile == "" {
		logger.Error("input file is required, use -input")
		os.Exit(2)
	}
	if err := run(logger, *inputFile, *globalFile, *outputFile, *format, *pageNum); err != nil {
		logger.Error("jbig2png failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, input, global, output, format string, pageNum int) error {
	format = strings.ToLower(format)
	if format != "png" && format != "tiff" {
		return fmt.Errorf("unknown format %q", format)
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	var globals []byte
	if global != "" {
		if globals, err = os.ReadFile(global); err != nil {
			return fmt.Errorf("read globals: %w", err)
		}
	}

	decoder := jbig2.New(jbig2.Options{Logger: logger})
	if err := decoder.Decode(context.Background(), data, globals); err != nil {
		return err
	}
	for _, seg := range decoder.Segments() {
		logger.Debug("segment", "number", seg.Number(), "type", seg.TypeName(),
			"page", seg.PageAssociation(), "length", seg.DataLength())
	}

	page, err := decoder.PageBitmap(pageNum)
	if err != nil {
		return err
	}
	if page.Width() <= 0 || page.Height() <= 0 {
		return fmt.Errorf("invalid image dimensions: %dx%d", page.Width(), page.Height())
	}
	img := toGray(page)

	if output == "" {
		ext := filepath.Ext(input)
		output = input[:len(input)-len(ext)] + "." + format
	}
	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer file.Close()

	if format == "tiff" {
		err = tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	} else {
		err = png.Encode(file, img)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", format, err)
	}

	logger.Info("converted", "input", input, "output", output,
		"width", page.Width(), "height", page.Height(), "pages", decoder.Pages())
	return nil
}

// toGray converts a 1-bit JBIG2 bitmap, 1 for black, to 8-bit grayscale.
func toGray(bm *jbig2.Bitmap) *image.Gray {
	width, height := bm.Width(), bm.Height()
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(255)
			if bm.At(x, y) != 0 {
				v = 0
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

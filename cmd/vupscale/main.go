// Command vupscale enlarges an image on a Vulkan compute device.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/gogpu/upscale"
)

func main() {
	var (
		input      = flag.String("in", "", "input image (png, jpeg, gif, bmp, tiff, webp)")
		factor     = flag.Int("factor", 2, "integer upscale factor (1-8)")
		variant    = flag.String("variant", "gpu", "pipeline: gpu, enhanced or nearest")
		sharpen    = flag.Bool("sharpen", true, "sharpen after upscaling (enhanced only)")
		contrast   = flag.Bool("contrast", true, "boost contrast and saturation (enhanced only)")
		denoise    = flag.Bool("denoise", false, "reduce noise after upscaling (enhanced only)")
		outDir     = flag.String("out", "", "output directory (default: a per-process temp dir)")
		driverPath = flag.String("driver-path", "", "list of directories searched for portability drivers")
		kernelPath = flag.String("kernel", "", "precompiled SPIR-V kernel to use instead of the built-in one")
		verbose    = flag.Bool("v", false, "log progress to stderr")
	)
	flag.Parse()

	log.SetFlags(0)
	if *input == "" && flag.NArg() > 0 {
		*input = flag.Arg(0)
	}
	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	v, err := upscale.ParseVariant(*variant)
	if err != nil {
		log.Fatalf("vupscale: %v", err)
	}

	if *verbose {
		upscale.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	opts := []upscale.Option{
		upscale.WithSharpening(*sharpen),
		upscale.WithContrastEnhancement(*contrast),
		upscale.WithNoiseReduction(*denoise),
	}
	if *outDir != "" {
		opts = append(opts, upscale.WithOutputDir(*outDir))
	}
	if *driverPath != "" {
		opts = append(opts, upscale.WithDriverSearchPaths(filepath.SplitList(*driverPath)...))
	}
	if *kernelPath != "" {
		opts = append(opts, upscale.WithKernelBinary(*kernelPath))
	}

	// Interrupts only stop work that has not reached the GPU yet.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := upscale.Run(ctx, upscale.Request{
		InputPath: *input,
		Factor:    *factor,
		Variant:   v,
		Options:   opts,
	})
	if err != nil {
		log.Printf("vupscale: %v", err)
		stop()
		if upscale.Kind(err) == upscale.KindValidation {
			os.Exit(2)
		}
		os.Exit(1)
	}

	if *verbose {
		log.Printf("%dx%d -> %dx%d (%s, %s) in %v",
			res.SourceWidth, res.SourceHeight, res.Width, res.Height,
			res.Variant, res.SourceFormat, res.Elapsed)
		if res.Adapter.Name != "" {
			log.Printf("device: %s (%s)", res.Adapter.Name, res.Adapter.Type)
		}
	}
	fmt.Println(res.OutputPath)
}

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/portraitlab/capture-pipeline/internal/pipeline"
	"github.com/portraitlab/capture-pipeline/internal/source"
	"github.com/portraitlab/capture-pipeline/pkg/capture"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run the capture pipeline against a local image",
	Long: `Decode a local image, run the background removal and upscale stages
in-process, and write the resulting PNG.`,
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().String("input", "", "input image file (required)")
	captureCmd.Flags().String("out", "", "output PNG path (default: <input>_portrait.png)")
	captureCmd.Flags().Bool("transparent", false, "remove the background")
	captureCmd.Flags().Int("upscale", 0, "upscale factor (2 or 4, 0 = off)")
	_ = captureCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	out, _ := cmd.Flags().GetString("out")
	transparent, _ := cmd.Flags().GetBool("transparent")
	factor, _ := cmd.Flags().GetInt("upscale")

	if out == "" {
		ext := filepath.Ext(input)
		out = input[:len(input)-len(ext)] + "_portrait.png"
	}

	fileSource, err := source.NewFileSource(input)
	if err != nil {
		return err
	}

	cfg := pipeline.Config{
		SegmentationEnabled: transparent,
	}
	cfg.Segmentation.SmoothEdges = true
	cfg.Segmentation.SmoothRadius = viper.GetInt("smooth_radius")
	cfg.Segmentation.FallbackOnFail = true
	cfg.Segmentation.Tolerance = viper.GetFloat64("tolerance")
	cfg.Upscale.SharpenAmount = viper.GetFloat64("sharpen_amount")
	cfg.Upscale.NoiseThreshold = viper.GetFloat64("noise_threshold")

	p := pipeline.New(fileSource, nil, cfg)

	req := capture.Request{
		SubjectFingerprint: filepath.Base(input),
		Transparent:        transparent,
		Upscale:            factor > 0,
		UpscaleFactor:      factor,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := p.Capture(ctx, req)
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}

	if err := os.WriteFile(out, result.PNG, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	fmt.Printf("Wrote %s (%d bytes, %d attempts)\n", out, len(result.PNG), result.Attempts)
	return nil
}

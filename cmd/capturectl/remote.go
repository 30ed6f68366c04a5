package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/portraitlab/capture-pipeline/pkg/capture"
	"github.com/portraitlab/capture-pipeline/pkg/client"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Run a capture on a remote capture worker",
	RunE:  runRemote,
}

func init() {
	remoteCmd.Flags().String("server", "http://localhost:8081", "capture worker base URL")
	remoteCmd.Flags().String("fingerprint", "", "subject fingerprint (required)")
	remoteCmd.Flags().String("out", "portrait.png", "output PNG path")
	remoteCmd.Flags().Bool("transparent", false, "remove the background")
	remoteCmd.Flags().Bool("remove-cosmetics", false, "capture a clone with cosmetics stripped")
	remoteCmd.Flags().Bool("remove-mask", false, "capture a clone with the mask stripped")
	remoteCmd.Flags().Int("upscale", 0, "upscale factor (2 or 4, 0 = off)")
	_ = remoteCmd.MarkFlagRequired("fingerprint")
	rootCmd.AddCommand(remoteCmd)
}

func runRemote(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	fingerprint, _ := cmd.Flags().GetString("fingerprint")
	out, _ := cmd.Flags().GetString("out")
	transparent, _ := cmd.Flags().GetBool("transparent")
	removeCosmetics, _ := cmd.Flags().GetBool("remove-cosmetics")
	removeMask, _ := cmd.Flags().GetBool("remove-mask")
	factor, _ := cmd.Flags().GetInt("upscale")

	c := client.New(server)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	resp, err := c.Capture(ctx, capture.Request{
		SubjectFingerprint: fingerprint,
		Transparent:        transparent,
		RemoveCosmetics:    removeCosmetics,
		RemoveMask:         removeMask,
		Upscale:            factor > 0,
		UpscaleFactor:      factor,
	})
	if err != nil {
		return err
	}

	data, err := base64.StdEncoding.DecodeString(resp.ImageBase64)
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	fmt.Printf("Wrote %s (run %s, %d attempts, cache_hit=%t)\n", out, resp.RunID, resp.Attempts, resp.CacheHit)
	return nil
}

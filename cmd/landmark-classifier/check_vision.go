package main

import (
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/menta2k/landmark-classifier/pkg/processing"
)

func checkVisionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-vision <image>",
		Short: "Check that a vision model can see images",
		Long: `Send an image to the ollama or llamacpp backend with a plain description
prompt and print the reply. Useful before classifying with a new model.`,
		Args: cobra.ExactArgs(1),
		RunE: runCheckVision,
	}

	addModelFlags(cmd.Flags())

	return cmd
}

func runCheckVision(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	eng, err := newVisionEngine(cfg)
	if err != nil {
		return err
	}

	p := processing.NewProcessor()
	img, err := p.LoadImageSmart(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	imgB64, err := p.PrepareImageForModel(imaging.Clone(img), cfg.Engine.SendFormat, cfg.Engine.SendSize, cfg.Engine.SendQuality)
	if err != nil {
		return err
	}

	reply, err := eng.TestVision(cmd.Context(), imgB64)
	if err != nil {
		return fmt.Errorf("vision check failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), reply)
	return nil
}

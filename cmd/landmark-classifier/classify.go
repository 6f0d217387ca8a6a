package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	landmarks "github.com/menta2k/landmark-classifier"
	"github.com/menta2k/landmark-classifier/internal/utils"
	"github.com/menta2k/landmark-classifier/pkg/processing"
	"github.com/menta2k/landmark-classifier/pkg/types"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [image|dir|url]...",
		Short: "Classify landmark images",
		Long: `Classify one or more images. Directories are searched recursively for
JPEG, PNG and WebP files; http(s) URLs are downloaded.

Files are treated as stored upright unless --rotation or --surface-rotation
gives the device rotation of a raw camera frame. --save-oriented writes each
image the way the model sees it.

Examples:
  landmark-classifier classify paris.jpg
  landmark-classifier classify --rotation 0 --save-oriented debug/ frames/
  landmark-classifier classify --backend ollama --model openbmb/minicpm-v4.5 paris.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: runClassify,
	}

	addModelFlags(cmd.Flags())
	cmd.Flags().IntP("rotation", "r", -1, "device rotation in degrees (0, 90, 180, 270); omit for upright files")
	cmd.Flags().Int("surface-rotation", -1, "device rotation as a display surface code (0..3), overrides --rotation")
	cmd.Flags().StringP("output", "o", "table", "output format: table or json")
	cmd.Flags().String("save-oriented", "", "directory to write each image as oriented for the model")

	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	output, _ := cmd.Flags().GetString("output")
	if output != "table" && output != "json" {
		return fmt.Errorf("invalid output format: %s", output)
	}

	degrees, _ := cmd.Flags().GetInt("rotation")
	surface, _ := cmd.Flags().GetInt("surface-rotation")
	rotation := resolveRotation(degrees, surface)
	saveDir, _ := cmd.Flags().GetString("save-oriented")

	inputs, err := expandArgs(args)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return errors.New("no images found")
	}

	lc, cleanup, err := newClassifier(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	lc.SetMaxDownloadBytes(int64(cfg.Server.MaxUploadMB) << 20)

	var results []landmarks.Result
	failed := 0
	for _, in := range inputs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result, err := classifyOne(ctx, lc, in, rotation, saveDir)
		if err != nil {
			failed++
			log.WithFields(logrus.Fields{"input": in, "error": err.Error()}).Error("classification failed")
			continue
		}
		results = append(results, result)
	}

	out := cmd.OutOrStdout()
	if output == "json" {
		if err := writeResultsJSON(out, results); err != nil {
			return err
		}
	} else {
		writeResultsTable(out, results)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(inputs))
	}
	return nil
}

// resolveRotation picks the rotation handed to the classifier. A surface code
// wins over degrees; negative degrees mean the file is stored upright.
func resolveRotation(degrees, surface int) types.Rotation {
	if surface >= 0 {
		return types.RotationFromSurface(surface)
	}
	if degrees < 0 {
		return types.RotationUpright
	}
	return types.Rotation(degrees)
}

func classifyOne(ctx context.Context, lc *landmarks.Classifier, in string, rotation types.Rotation, saveDir string) (landmarks.Result, error) {
	img, err := lc.LoadImage(ctx, in)
	if err != nil {
		return landmarks.Result{}, fmt.Errorf("failed to load image: %w", err)
	}

	if saveDir != "" {
		out := orientedPath(saveDir, in)
		if err := lc.SaveOriented(img, rotation, out); err != nil {
			return landmarks.Result{}, fmt.Errorf("failed to save oriented image: %w", err)
		}
		log.WithField("path", out).Debug("wrote oriented image")
	}

	return lc.ClassifyImage(ctx, in, img, rotation)
}

// orientedPath names the debug copy of input inside dir
func orientedPath(dir, input string) string {
	base := filepath.Base(input)
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" {
		name = "image"
	}
	return filepath.Join(dir, name+"_oriented.png")
}

// expandArgs keeps URLs as given and expands directories to image files
func expandArgs(args []string) ([]string, error) {
	var inputs []string
	for _, arg := range args {
		if processing.IsURL(arg) {
			inputs = append(inputs, arg)
			continue
		}
		files, err := utils.ExpandInputs([]string{arg})
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, files...)
	}
	return inputs, nil
}

func writeResultsJSON(w io.Writer, results []landmarks.Result) error {
	if results == nil {
		results = []landmarks.Result{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func writeResultsTable(w io.Writer, results []landmarks.Result) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Image", "Size", "Orientation", "Landmark", "Score"})
	table.SetAutoMergeCells(true)
	table.SetRowLine(true)

	for _, r := range results {
		name := filepath.Base(r.Path)
		size := fmt.Sprintf("%dx%d", r.Info.Width, r.Info.Height)
		if len(r.Classifications) == 0 {
			table.Append([]string{name, size, r.Orientation, "-", "-"})
			continue
		}
		for _, c := range r.Classifications {
			table.Append([]string{name, size, r.Orientation, c.Name, fmt.Sprintf("%.2f", c.Score)})
		}
	}

	table.Render()
}

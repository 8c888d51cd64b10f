package trajectory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/conf"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/datastore"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/observability"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/trajectory"
)

var inputFiles []string

// Command creates the trajectory command, which validates tracker output for
// one or more clips and emits a review detection per surviving trajectory.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trajectory",
		Short: "Validate tracker output and emit review detections",
		Long:  "Read the frame-by-frame tracker stream for one or more clips, aggregate, split and merge the trajectories, and store one pending detection per surviving trajectory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(inputFiles) == 0 {
				return fmt.Errorf("at least one --input clip file is required")
			}
			return runTrajectories(settings)
		},
	}

	cmd.Flags().StringSliceVar(&inputFiles, "input", nil, "Path to a tracker output JSON file (repeatable)")

	return cmd
}

func runTrajectories(settings *conf.Settings) error {
	clips := make([]*trajectory.Clip, 0, len(inputFiles))
	for _, path := range inputFiles {
		clip, err := readClip(path)
		if err != nil {
			return err
		}
		clips = append(clips, clip)
	}

	store := datastore.New(settings)
	if store == nil {
		return fmt.Errorf("no database output enabled in configuration")
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer store.Close()

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	// No redetector is wired on the command line; gap filling is skipped.
	tracker := trajectory.New(settings, nil, m.Consolidation)

	saved := 0
	var failed int
	for _, clip := range clips {
		trajs, summary := tracker.ProcessAll(context.Background(), []*trajectory.Clip{clip})
		failed += summary.Failed

		batch := make([]*datastore.Detection, 0, len(trajs))
		for i := range trajs {
			batch = append(batch, trajs[i].ToDetection(clip))
		}
		if err := store.SaveDetections(batch); err != nil {
			return err
		}
		saved += len(batch)
	}

	fmt.Printf("trajectory pass complete: %d detections saved, %d clips failed\n", saved, failed)
	return nil
}

func readClip(path string) (*trajectory.Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading clip file %s: %w", path, err)
	}
	var clip trajectory.Clip
	if err := json.Unmarshal(data, &clip); err != nil {
		return nil, fmt.Errorf("decoding clip file %s: %w", path, err)
	}
	return &clip, nil
}

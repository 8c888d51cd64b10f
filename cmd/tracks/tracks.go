package tracks

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/conf"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/datastore"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/observability"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/tracks"
)

var cameraID string

// Command creates the tracks command with its rebuild and match subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracks",
		Short: "Build camera object tracks from detections",
	}

	cmd.PersistentFlags().StringVar(&cameraID, "camera", "", "Restrict the operation to one camera id")

	rebuildCmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the tracks in scope from scratch",
		Long:  "Drop the tracks in scope and replay every detection chronologically, regardless of review status. Review statuses are never modified.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBuilder(settings, func(b *tracks.Builder) (tracks.Summary, error) {
				return b.Rebuild(cameraID)
			})
		},
	}

	matchCmd := &cobra.Command{
		Use:   "match",
		Short: "Fold unassigned detections into the existing tracks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBuilder(settings, func(b *tracks.Builder) (tracks.Summary, error) {
				return b.Match(cameraID)
			})
		},
	}

	cmd.AddCommand(rebuildCmd, matchCmd)
	return cmd
}

func withBuilder(settings *conf.Settings, fn func(*tracks.Builder) (tracks.Summary, error)) error {
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

	summary, err := fn(tracks.New(store, settings, m.Consolidation))
	if err != nil {
		return err
	}

	fmt.Printf("track pass complete: %d tracks created, %d detections assigned, %d skipped\n",
		summary.Created, summary.Assigned, summary.Skipped)
	return nil
}

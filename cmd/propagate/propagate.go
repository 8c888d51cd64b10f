package propagate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/conf"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/datastore"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/observability"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/propagation"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/tracks"
)

// Command creates the propagate command, which spreads manual review
// decisions across camera object tracks.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "propagate",
		Short: "Propagate manual review decisions across tracks",
		Long:  "Apply each track's manual consensus to its undecided members: approvals become auto-approved with downstream annotations, rejections become auto-rejected. Conflicted tracks are reported and left untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPropagation(settings)
		},
	}
}

func runPropagation(settings *conf.Settings) error {
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

	builder := tracks.New(store, settings, m.Consolidation)
	prop := propagation.New(store, builder, settings, m.Consolidation)

	summary, err := prop.Run()
	if err != nil {
		return err
	}

	fmt.Printf("propagation complete: %d auto-approved, %d auto-rejected, %d annotations created, %d tracks in conflict\n",
		summary.AutoApproved, summary.AutoRejected, summary.Annotations, summary.ConflictTracks)
	return nil
}

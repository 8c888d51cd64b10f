package conflicts

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/conf"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/datastore"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/observability"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/propagation"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/tracks"
)

var (
	trackID uint
	approve bool
	reject  bool
	class   string
)

// Command creates the conflicts command with its list and resolve
// subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Inspect and resolve conflicted tracks",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tracks whose reviewers disagree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPropagator(settings, listConflicts)
		},
	}

	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Apply an explicit ruling to a conflicted track",
		RunE: func(cmd *cobra.Command, args []string) error {
			if trackID == 0 {
				return fmt.Errorf("--track is required")
			}
			if approve == reject {
				return fmt.Errorf("exactly one of --approve or --reject is required")
			}
			return withPropagator(settings, resolveConflict)
		},
	}
	resolveCmd.Flags().UintVar(&trackID, "track", 0, "Track id to resolve")
	resolveCmd.Flags().BoolVar(&approve, "approve", false, "Rule the track's detections as real")
	resolveCmd.Flags().BoolVar(&reject, "reject", false, "Rule the track's detections as false positives")
	resolveCmd.Flags().StringVar(&class, "class", "", "Classification the ruling settles on (approvals only)")

	cmd.AddCommand(listCmd, resolveCmd)
	return cmd
}

func withPropagator(settings *conf.Settings, fn func(*propagation.Propagator) error) error {
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
	return fn(propagation.New(store, builder, settings, m.Consolidation))
}

func listConflicts(prop *propagation.Propagator) error {
	conflicted, err := prop.ListConflicts()
	if err != nil {
		return err
	}
	if len(conflicted) == 0 {
		fmt.Println("no conflicted tracks")
		return nil
	}
	for _, track := range conflicted {
		fmt.Printf("track %d camera=%s class=%s members=%d approved=%d rejected=%d first=%s last=%s\n",
			track.ID, track.CameraID, track.ClassLabel, track.MemberCount,
			track.ApprovedCount, track.RejectedCount,
			track.FirstSeen.Format("2006-01-02 15:04:05"),
			track.LastSeen.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func resolveConflict(prop *propagation.Propagator) error {
	summary, err := prop.Resolve(trackID, propagation.Resolution{Approve: approve, Class: class})
	if err != nil {
		return err
	}
	fmt.Printf("track %d resolved: %d auto-approved, %d auto-rejected, %d annotations created\n",
		trackID, summary.AutoApproved, summary.AutoRejected, summary.Annotations)
	return nil
}

package group

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/conf"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/datastore"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/grouping"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/observability"
)

var (
	cameraID string
	regroup  bool
)

// Command creates the group command, which clusters pending detections into
// prediction groups for batch review.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Cluster pending detections into review groups",
		Long:  "Group spatially overlapping pending detections per camera and class so a reviewer can decide a whole cluster at once.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrouping(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}
	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&cameraID, "camera", "", "Restrict grouping to one camera id")
	cmd.Flags().BoolVar(&regroup, "regroup", false, "Dissolve existing groups in scope and group from scratch")
	cmd.Flags().Float64Var(&settings.Consolidation.Grouping.IoUThreshold, "iou", viper.GetFloat64("consolidation.grouping.iouthreshold"), "Minimum IoU for two detections to share a group")

	return viper.BindPFlags(cmd.Flags())
}

func runGrouping(settings *conf.Settings) error {
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

	grouper := grouping.New(store, settings, m.Consolidation)

	var summary grouping.Summary
	if regroup {
		summary, err = grouper.Regroup(cameraID)
	} else {
		summary, err = grouper.Run(cameraID)
	}
	if err != nil {
		return err
	}

	fmt.Println(summaryLine(summary))
	return nil
}

func summaryLine(s grouping.Summary) string {
	return fmt.Sprintf("grouping complete: %d groups created, %d updated, %d detections skipped, %d failed",
		s.Created, s.Updated, s.Skipped, s.Failed)
}

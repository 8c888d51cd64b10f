// conf/validate.go configuration validation
package conf

import (
	"errors"
	"fmt"
)

// ValidateSettings checks the loaded settings for inconsistent or out-of-range
// values. It returns a joined error listing every problem found.
func ValidateSettings(settings *Settings) error {
	var errs []error

	if settings.Output.SQLite.Enabled && settings.Output.MySQL.Enabled {
		errs = append(errs, errors.New("output: sqlite and mysql cannot both be enabled"))
	}
	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		errs = append(errs, errors.New("output: no database backend enabled"))
	}
	if settings.Output.SQLite.Enabled && settings.Output.SQLite.Path == "" {
		errs = append(errs, errors.New("output.sqlite: path must not be empty"))
	}

	g := settings.Consolidation.Grouping
	if g.IoUThreshold <= 0 || g.IoUThreshold > 1 {
		errs = append(errs, fmt.Errorf("grouping: iou threshold %.3f outside (0, 1]", g.IoUThreshold))
	}
	if g.CentroidFactor <= 0 {
		errs = append(errs, errors.New("grouping: centroid factor must be positive"))
	}

	tr := settings.Consolidation.Trajectory
	if tr.MinPoints < 2 {
		errs = append(errs, errors.New("trajectory: minpoints must be at least 2"))
	}
	if tr.FrameBudget <= 0 {
		errs = append(errs, errors.New("trajectory: frame budget must be positive"))
	}
	if tr.SampleStride <= 0 {
		errs = append(errs, errors.New("trajectory: sample stride must be positive"))
	}
	if tr.MergeMaxGap <= 0 {
		errs = append(errs, errors.New("trajectory: merge max gap must be positive"))
	}

	tk := settings.Consolidation.Tracks
	if tk.IoUThreshold <= 0 || tk.IoUThreshold > 1 {
		errs = append(errs, fmt.Errorf("tracks: iou threshold %.3f outside (0, 1]", tk.IoUThreshold))
	}
	if tk.DefaultWindow <= 0 {
		errs = append(errs, errors.New("tracks: default adjacency window must be positive"))
	}
	for profile, window := range tk.Windows {
		if window <= 0 {
			errs = append(errs, fmt.Errorf("tracks: adjacency window for profile %q must be positive", profile))
		}
	}
	for camera, profile := range tk.Profiles {
		if _, ok := tk.Windows[profile]; !ok {
			errs = append(errs, fmt.Errorf("tracks: camera %q references unknown profile %q", camera, profile))
		}
	}

	return errors.Join(errs...)
}

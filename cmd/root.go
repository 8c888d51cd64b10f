package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/cmd/conflicts"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/cmd/group"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/cmd/propagate"
	trackscmd "github.com/Quig-Enterprises/groundtruth-studio-sub001/cmd/tracks"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/cmd/trajectory"
	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "groundtruth",
		Short: "Detection consolidation and review propagation CLI",
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		group.Command(settings),
		trajectory.Command(settings),
		trackscmd.Command(settings),
		propagate.Command(settings),
		conflicts.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}

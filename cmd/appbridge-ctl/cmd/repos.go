package cmd

import (
	"github.com/spf13/cobra"
)

// reposCmd represents the repos command
var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Manage catalog repositories",
	Long:  `Manage the Git repositories that feed the app catalog (list, add, update, delete, sync).`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.AddCommand(reposCmd)
}

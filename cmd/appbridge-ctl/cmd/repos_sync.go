package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// reposSyncCmd represents the repos sync command
var reposSyncCmd = &cobra.Command{
	Use:   "sync [repo-id]",
	Short: "Force sync a repository",
	Long:  `Trigger an immediate Git fetch and catalog rebuild for one repository.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoID := args[0]
		client := NewClient()
		resp, err := client.Post("/api/repositories/"+repoID+"/sync", nil)
		if err != nil {
			return fmt.Errorf("error syncing repository: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		fmt.Println("Repository synced successfully.")
		return nil
	},
}

func init() {
	reposCmd.AddCommand(reposSyncCmd)
}

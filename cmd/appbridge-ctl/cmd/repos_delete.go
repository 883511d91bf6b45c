package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// reposDeleteCmd represents the repos delete command
var reposDeleteCmd = &cobra.Command{
	Use:   "delete [repo-id]",
	Short: "Delete a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoID := args[0]
		client := NewClient()
		resp, err := client.Delete("/api/repositories/" + repoID)
		if err != nil {
			return fmt.Errorf("error deleting repository: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		fmt.Println("Repository deleted successfully.")
		return nil
	},
}

func init() {
	reposCmd.AddCommand(reposDeleteCmd)
}

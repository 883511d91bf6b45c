package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	updateName     string
	updateURL      string
	updateBranch   string
	updatePriority int
	updateEnabled  bool
)

// reposUpdateCmd represents the repos update command
var reposUpdateCmd = &cobra.Command{
	Use:   "update [repo-id]",
	Short: "Update a repository",
	Long:  `Update repository settings. Only provided flags are changed.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repoID := args[0]
		updates := make(map[string]interface{})

		if cmd.Flags().Changed("name") {
			updates["name"] = updateName
		}
		if cmd.Flags().Changed("repo-url") {
			updates["url"] = updateURL
		}
		if cmd.Flags().Changed("branch") {
			updates["branch"] = updateBranch
		}
		if cmd.Flags().Changed("priority") {
			updates["priority"] = updatePriority
		}
		if cmd.Flags().Changed("enabled") {
			updates["enabled"] = updateEnabled
		}

		if len(updates) == 0 {
			return fmt.Errorf("no updates provided")
		}

		client := NewClient()
		resp, err := client.Put("/api/repositories/"+repoID, updates)
		if err != nil {
			return fmt.Errorf("error updating repository: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		fmt.Println("Repository updated successfully.")
		return nil
	},
}

func init() {
	reposUpdateCmd.Flags().StringVar(&updateName, "name", "", "New repository name")
	reposUpdateCmd.Flags().StringVar(&updateURL, "repo-url", "", "New Git repository URL")
	reposUpdateCmd.Flags().StringVar(&updateBranch, "branch", "", "New branch to track")
	reposUpdateCmd.Flags().IntVar(&updatePriority, "priority", 0, "New conflict priority")
	reposUpdateCmd.Flags().BoolVar(&updateEnabled, "enabled", true, "Enable or disable the repository")
	reposCmd.AddCommand(reposUpdateCmd)
}

package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/appbridge/appbridge/internal/api"
)

var (
	addName        string
	addURL         string
	addBranch      string
	addPriority    int
	addDeployKey   string
	addSkipPrompts bool
)

// reposAddCmd represents the repos add command
var reposAddCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Add a catalog repository",
	Long: `Add a Git repository as a catalog source.
You can provide a JSON file, use flags, or run interactively.

Examples:
  # From JSON file
  appbridge-ctl repos add my-repo.json

  # Using flags (non-interactive)
  appbridge-ctl repos add --name main --repo-url "https://github.com/user/apps" --yes

  # Interactive mode (just run add)
  appbridge-ctl repos add`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var req api.SourceCreateRequest

		if len(args) > 0 {
			fileData, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("error reading file: %v", err)
			}
			if err := json.Unmarshal(fileData, &req); err != nil {
				return fmt.Errorf("invalid json file: %v", err)
			}
		} else if addSkipPrompts {
			if addName == "" || addURL == "" {
				return fmt.Errorf("name and repo-url are required when using --yes")
			}
			req.Name = addName
			req.URL = addURL
			req.Branch = addBranch
			req.Priority = addPriority
			req.DeployKey = addDeployKey
		} else {
			name, err := requiredPrompt("Repository Name", addName)
			if err != nil {
				return err
			}
			req.Name = name

			url, err := requiredPrompt("Git Repository URL", addURL)
			if err != nil {
				return err
			}
			req.URL = url

			branch := addBranch
			if branch == "" {
				prompt := promptui.Prompt{Label: "Branch", Default: "main"}
				branch, err = prompt.Run()
				if err != nil {
					return err
				}
			}
			req.Branch = branch

			priority := addPriority
			if !cmd.Flags().Changed("priority") {
				prompt := promptui.Prompt{
					Label:   "Priority (higher wins conflicts)",
					Default: "0",
					Validate: func(input string) error {
						_, err := strconv.Atoi(input)
						return err
					},
				}
				raw, err := prompt.Run()
				if err != nil {
					return err
				}
				priority, _ = strconv.Atoi(raw)
			}
			req.Priority = priority
			req.DeployKey = addDeployKey
		}

		client := NewClient()
		resp, err := client.Post("/api/repositories/", req)
		if err != nil {
			return fmt.Errorf("error adding repository: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		fmt.Println("Repository added; initial sync started.")
		return nil
	},
}

func requiredPrompt(label, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	prompt := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			if len(input) == 0 {
				return fmt.Errorf("%s is required", label)
			}
			return nil
		},
	}
	return prompt.Run()
}

func init() {
	reposAddCmd.Flags().StringVar(&addName, "name", "", "Repository name")
	reposAddCmd.Flags().StringVar(&addURL, "repo-url", "", "Git repository URL")
	reposAddCmd.Flags().StringVar(&addBranch, "branch", "", "Git branch (default: main)")
	reposAddCmd.Flags().IntVar(&addPriority, "priority", 0, "Conflict priority (higher wins)")
	reposAddCmd.Flags().StringVar(&addDeployKey, "deploy-key", "", "SSH private key for private repos")
	reposAddCmd.Flags().BoolVarP(&addSkipPrompts, "yes", "y", false, "Skip interactive prompts (use defaults)")

	reposCmd.AddCommand(reposAddCmd)
}

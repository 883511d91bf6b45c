package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/appbridge/appbridge/internal/api"
)

// reposListCmd represents the repos list command
var reposListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		resp, err := client.Get("/api/repositories/")
		if err != nil {
			return fmt.Errorf("error fetching repositories: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var apiResp struct {
			Data []api.Source `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tURL\tBRANCH\tPRIORITY\tENABLED\tLAST SYNC\tLAST ERROR")
		for _, source := range apiResp.Data {
			lastSync := "-"
			if !source.LastSynced.IsZero() {
				lastSync = source.LastSynced.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%t\t%s\t%s\n",
				source.ID, source.Name, source.URL, source.Branch,
				source.Priority, source.Enabled, lastSync, source.LastError)
		}
		w.Flush()

		return nil
	},
}

func init() {
	reposCmd.AddCommand(reposListCmd)
}

package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/appbridge/appbridge/internal/api"
)

var searchLimit int

// appsSearchCmd represents the apps search command
var appsSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search catalog apps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := url.Values{}
		query.Set("q", args[0])
		query.Set("limit", strconv.Itoa(searchLimit))

		client := NewClient()
		resp, err := client.Get("/apps/search?" + query.Encode())
		if err != nil {
			return fmt.Errorf("error searching apps: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var apiResp struct {
			Total int              `json:"total"`
			Apps  []api.AppSummary `json:"apps"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}

		printAppTable(apiResp.Apps)
		fmt.Printf("\n%d apps matched\n", apiResp.Total)
		return nil
	},
}

func init() {
	appsSearchCmd.Flags().IntVar(&searchLimit, "limit", 50, "Maximum apps to show")
	appsCmd.AddCommand(appsSearchCmd)
}

package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/appbridge/appbridge/internal/api"
)

var (
	listCategory string
	listLimit    int
	listOffset   int
)

// appsListCmd represents the apps list command
var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog apps",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := url.Values{}
		if listCategory != "" {
			query.Set("category", listCategory)
		}
		query.Set("limit", strconv.Itoa(listLimit))
		query.Set("offset", strconv.Itoa(listOffset))

		client := NewClient()
		resp, err := client.Get("/apps/?" + query.Encode())
		if err != nil {
			return fmt.Errorf("error fetching apps: %v", err)
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
		fmt.Printf("\nShowing %d of %d apps\n", len(apiResp.Apps), apiResp.Total)
		return nil
	},
}

func printAppTable(apps []api.AppSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tSOURCE\tDESCRIPTION")
	for _, app := range apps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			app.ID, app.Title, app.Category, app.Source, truncate(app.Description, 60))
	}
	w.Flush()
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max] + "..."
}

func init() {
	appsListCmd.Flags().StringVar(&listCategory, "category", "", "Filter by category")
	appsListCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum apps to show")
	appsListCmd.Flags().IntVar(&listOffset, "offset", 0, "Pagination offset")
	appsCmd.AddCommand(appsListCmd)
}

package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var getSchema bool

// appsGetCmd represents the apps get command
var appsGetCmd = &cobra.Command{
	Use:   "get [app-id]",
	Short: "Get app details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appID := args[0]
		path := "/apps/" + appID
		if getSchema {
			path += "/schema"
		}

		client := NewClient()
		resp, err := client.Get(path)
		if err != nil {
			return fmt.Errorf("error getting app: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var apiResp struct {
			Data interface{} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}

		PrintJSON(apiResp.Data)
		return nil
	},
}

func init() {
	appsGetCmd.Flags().BoolVar(&getSchema, "schema", false, "Show the deployment parameter schema instead")
	appsCmd.AddCommand(appsGetCmd)
}

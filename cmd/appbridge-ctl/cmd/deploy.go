package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/appbridge/appbridge/internal/api"
)

var (
	deployStackName string
	deployEndpoint  int
	deployEnv       []string
	deployPorts     []string
	deployVolumes   []string
)

// deployCmd represents the deploy command
var deployCmd = &cobra.Command{
	Use:   "deploy [app-id]",
	Short: "Deploy an app as a stack",
	Long: `Deploy a catalog app to the configured backend.

Examples:
  appbridge-ctl deploy jellyfin --stack my-jellyfin
  appbridge-ctl deploy jellyfin --stack my-jellyfin --env TZ=Europe/Berlin --port 8096:9096 --volume /DATA/AppData/jellyfin:/mnt/media/jellyfin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appID := args[0]

		req := api.DeployRequest{
			StackName:           deployStackName,
			PortainerEndpointID: deployEndpoint,
		}
		if req.StackName == "" {
			req.StackName = appID
		}

		env, err := parsePairs(deployEnv, "=")
		if err != nil {
			return fmt.Errorf("invalid --env value: %v", err)
		}
		req.EnvOverrides = env

		volumes, err := parsePairs(deployVolumes, ":")
		if err != nil {
			return fmt.Errorf("invalid --volume value: %v", err)
		}
		req.VolumeOverrides = volumes

		if len(deployPorts) > 0 {
			req.PortOverrides = make(map[int]int, len(deployPorts))
			for _, pair := range deployPorts {
				from, to, ok := strings.Cut(pair, ":")
				if !ok {
					return fmt.Errorf("invalid --port value %q, expected old:new", pair)
				}
				fromPort, err1 := strconv.Atoi(from)
				toPort, err2 := strconv.Atoi(to)
				if err1 != nil || err2 != nil {
					return fmt.Errorf("invalid --port value %q, expected old:new", pair)
				}
				req.PortOverrides[fromPort] = toPort
			}
		}

		client := NewClient()
		resp, err := client.Post("/apps/"+appID+"/deploy", req)
		if err != nil {
			return fmt.Errorf("error deploying app: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			return CheckResponse(resp)
		}

		var apiResp api.APIResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return fmt.Errorf("error decoding response: %v", err)
		}

		fmt.Println("Stack deployed successfully.")
		PrintJSON(apiResp.Data)
		return nil
	},
}

func parsePairs(values []string, separator string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, pair := range values {
		key, value, ok := strings.Cut(pair, separator)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key%svalue, got %q", separator, pair)
		}
		out[key] = value
	}
	return out, nil
}

func init() {
	deployCmd.Flags().StringVar(&deployStackName, "stack", "", "Stack name (default: app ID)")
	deployCmd.Flags().IntVar(&deployEndpoint, "endpoint", 0, "Portainer endpoint ID (default: server setting)")
	deployCmd.Flags().StringArrayVar(&deployEnv, "env", nil, "Environment override KEY=VALUE (repeatable)")
	deployCmd.Flags().StringArrayVar(&deployPorts, "port", nil, "Host port override OLD:NEW (repeatable)")
	deployCmd.Flags().StringArrayVar(&deployVolumes, "volume", nil, "Volume override OLDPATH:NEWPATH (repeatable)")
	rootCmd.AddCommand(deployCmd)
}

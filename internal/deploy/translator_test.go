package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appbridge/appbridge/internal/api"
	"github.com/appbridge/appbridge/internal/catalog"
)

const rawManifest = `
services:
  app:
    image: nginx:latest
    ports:
      - "8080:80"
    volumes:
      - /DATA/AppData/app:/config
    environment:
      TZ: UTC
x-casaos:
  title: App
`

func testDefinition() *catalog.AppDefinition {
	return &catalog.AppDefinition{
		ID: "app",
		Services: map[string]catalog.Service{
			"app": {
				Name:  "app",
				Image: "nginx:latest",
				Ports: []catalog.PortBinding{{Published: 8080, Target: 80, Protocol: "tcp"}},
				Volumes: []catalog.VolumeBinding{
					{Service: "app", Source: "/DATA/AppData/app", Target: "/config", Mode: "rw"},
				},
				Environment: map[string]string{"TZ": "UTC"},
			},
		},
		RawManifest: rawManifest,
	}
}

func requireValidation(t *testing.T, err error, reason string) {
	t.Helper()
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, reason, validationErr.Reason)
}

func TestTranslate(t *testing.T) {
	payload, err := Translate(testDefinition(), &api.DeployRequest{
		StackName:           "my-app",
		PortainerEndpointID: 2,
		EnvOverrides:        map[string]string{"TZ": "Europe/Berlin"},
		PortOverrides:       map[int]int{8080: 9090},
		VolumeOverrides:     map[string]string{"/DATA/AppData/app": "/mnt/apps/app"},
	})
	require.NoError(t, err)

	assert.Equal(t, "my-app", payload.StackName)
	assert.Equal(t, 2, payload.EndpointID)
	assert.Contains(t, payload.StackFileContent, "9090:80")
	assert.Contains(t, payload.StackFileContent, "/mnt/apps/app:/config")
	assert.Contains(t, payload.StackFileContent, "TZ: Europe/Berlin")
	assert.NotContains(t, payload.StackFileContent, "x-casaos", "extension blocks never reach the backend")
	assert.Equal(t, []string{"TZ=Europe/Berlin"}, payload.EnvList())
}

func TestTranslate_MissingStackName(t *testing.T) {
	_, err := Translate(testDefinition(), &api.DeployRequest{})
	requireValidation(t, err, ReasonMissingStackName)
}

func TestTranslate_InvalidStackName(t *testing.T) {
	for _, name := range []string{"My App", "UPPER", "-leading", "trailing-"} {
		_, err := Translate(testDefinition(), &api.DeployRequest{StackName: name})
		requireValidation(t, err, ReasonInvalidStackName)
	}
}

func TestTranslate_UnknownHostPort(t *testing.T) {
	_, err := Translate(testDefinition(), &api.DeployRequest{
		StackName:     "my-app",
		PortOverrides: map[int]int{9999: 1234},
	})
	requireValidation(t, err, ReasonUnknownHostPort)
}

func TestTranslate_UnknownVolumeSource(t *testing.T) {
	_, err := Translate(testDefinition(), &api.DeployRequest{
		StackName:       "my-app",
		VolumeOverrides: map[string]string{"/not/declared": "/elsewhere"},
	})
	requireValidation(t, err, ReasonUnknownVolumeSource)
}

func TestTranslate_NegativeEndpoint(t *testing.T) {
	_, err := Translate(testDefinition(), &api.DeployRequest{
		StackName:           "my-app",
		PortainerEndpointID: -1,
	})
	requireValidation(t, err, ReasonInvalidEndpoint)
}

func TestTranslate_NoOverrides(t *testing.T) {
	payload, err := Translate(testDefinition(), &api.DeployRequest{StackName: "plain"})
	require.NoError(t, err)
	assert.Contains(t, payload.StackFileContent, "8080:80")
	assert.Empty(t, payload.Env)
}

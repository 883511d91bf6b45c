package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRender_StripsExtensionBlocks(t *testing.T) {
	raw := `
services:
  app:
    image: nginx
x-casaos:
  title: App
x-custom:
  vendor: other
`
	rendered, err := Render(raw, Overrides{})
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(rendered), &doc))
	assert.NotContains(t, doc, "x-casaos")
	assert.NotContains(t, doc, "x-custom")
	assert.Contains(t, doc, "services")
}

func TestRender_Idempotent(t *testing.T) {
	rendered, err := Render(jellyfinManifest, Overrides{})
	require.NoError(t, err)

	again, err := Render(rendered, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, rendered, again, "rendering an already-rendered manifest changes nothing")
}

func TestRender_EnvOverrides(t *testing.T) {
	raw := `
services:
  app:
    image: nginx
    environment:
      TZ: UTC
      PUID: "1000"
`
	rendered, err := Render(raw, Overrides{Env: map[string]string{
		"TZ":         "Europe/Berlin",
		"UNDECLARED": "ignored",
	}})
	require.NoError(t, err)

	def, err := ParseBytes("app", []byte("x-casaos:\n  title: App\n"+rendered))
	require.NoError(t, err)
	env := def.Services["app"].Environment
	assert.Equal(t, "Europe/Berlin", env["TZ"])
	assert.Equal(t, "1000", env["PUID"])
	_, ok := env["UNDECLARED"]
	assert.False(t, ok, "override keys the manifest does not declare are dropped")
}

func TestRender_EnvOverridesListForm(t *testing.T) {
	raw := `
services:
  app:
    image: nginx
    environment:
      - TZ=UTC
`
	rendered, err := Render(raw, Overrides{Env: map[string]string{"TZ": "Asia/Tokyo"}})
	require.NoError(t, err)
	assert.Contains(t, rendered, "TZ=Asia/Tokyo")
}

func TestRender_PortOverrides(t *testing.T) {
	raw := `
services:
  app:
    image: nginx
    ports:
      - "8080:80"
      - "5353:53/udp"
`
	rendered, err := Render(raw, Overrides{Ports: map[int]int{8080: 9090, 5353: 5454}})
	require.NoError(t, err)

	assert.Contains(t, rendered, "9090:80")
	assert.Contains(t, rendered, "5454:53/udp", "protocol suffix survives a host remap")
	assert.NotContains(t, rendered, "8080:80")
}

func TestRender_PortOverridesLongForm(t *testing.T) {
	raw := `
services:
  app:
    image: nginx
    ports:
      - target: 80
        published: 8080
`
	rendered, err := Render(raw, Overrides{Ports: map[int]int{8080: 9090}})
	require.NoError(t, err)

	def, err := ParseBytes("app", []byte("x-casaos:\n  title: App\n"+rendered))
	require.NoError(t, err)
	ports := def.Services["app"].Ports
	require.Len(t, ports, 1)
	assert.Equal(t, 9090, ports[0].Published)
	assert.Equal(t, 80, ports[0].Target, "container side is never touched")
}

func TestRender_VolumeOverrides(t *testing.T) {
	raw := `
services:
  app:
    image: nginx
    volumes:
      - /DATA/AppData/app:/config
      - /DATA/Media:/media:ro
  helper:
    image: busybox
    volumes:
      - /DATA/AppData/app:/shared
`
	rendered, err := Render(raw, Overrides{Volumes: map[string]string{
		"/DATA/AppData/app": "/mnt/fast/app",
	}})
	require.NoError(t, err)

	assert.Contains(t, rendered, "/mnt/fast/app:/config")
	assert.Contains(t, rendered, "/mnt/fast/app:/shared", "every binding sharing the source path is remapped")
	assert.Contains(t, rendered, "/DATA/Media:/media:ro")
	assert.NotContains(t, rendered, "/DATA/AppData/app:")
}

func TestRender_InvalidYAML(t *testing.T) {
	_, err := Render("services: [", Overrides{})
	assert.Error(t, err)
}

package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagekit/api/internal/auth"
	"pagekit/api/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		SiteURL:     "https://site.test",
		TokenSecret: "cli-secret",
	}
}

func TestAbilitiesCommand(t *testing.T) {
	cmd := newAbilitiesCmd(testConfig())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())

	var listing struct {
		Total     int `json:"total"`
		Abilities []struct {
			Name string `json:"name"`
		} `json:"abilities"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &listing))
	assert.Equal(t, 7, listing.Total)
	assert.Equal(t, "elementor/clear-cache", listing.Abilities[0].Name)
}

func TestTokenCommand(t *testing.T) {
	cfg := testConfig()
	cmd := newTokenCmd(cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--sub", "7", "--name", "Robin", "--role", "editor"})

	require.NoError(t, cmd.Execute())

	claims, err := auth.ParseToken([]byte(cfg.TokenSecret), strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "7", claims.Sub)
	assert.Equal(t, "Robin", claims.Name)
	assert.Equal(t, "editor", claims.Role)
}

func TestTokenCommandNormalizesRole(t *testing.T) {
	cfg := testConfig()
	cmd := newTokenCmd(cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--role", "superuser"})

	require.NoError(t, cmd.Execute())

	claims, err := auth.ParseToken([]byte(cfg.TokenSecret), strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "viewer", claims.Role)
}

func TestRunCommandRejectsInvalidInput(t *testing.T) {
	cmd := newRunCmd(testConfig())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"elementor/get-data", "--input", "{"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--input must be a JSON object")
}

func TestRunCommandRequiresAbility(t *testing.T) {
	cmd := newRunCmd(testConfig())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	require.Error(t, cmd.Execute())
}

func TestPrintJSONKeepsMarkup(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printJSON(&out, map[string]any{"html": "<b>x</b>"}))
	assert.Contains(t, out.String(), "<b>x</b>")
}

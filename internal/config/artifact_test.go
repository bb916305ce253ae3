package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/cfdproxy/internal/util"
)

func testArtifact() *Artifact {
	return &Artifact{
		Services: map[string][]ServiceBinding{
			XSUAALabel: {
				{
					Label: XSUAALabel,
					Plan:  "broker",
					Name:  "my-xsuaa",
					Tags:  []string{XSUAALabel},
					Credentials: map[string]any{
						"clientid":     "sb-my-app",
						"clientsecret": "s3cret",
						"url":          "https://auth.example.com",
					},
				},
			},
		},
		Destinations: []Destination{
			{
				"name":        "billing",
				"url":         "http://billing.dest",
				"proxyHost":   "http://127.0.0.1",
				"proxyPort":   5050,
				"description": "billing backend",
			},
			{
				"name":      "crm",
				"url":       "http://crm.dest",
				"proxyHost": "http://127.0.0.1",
				"proxyPort": 5050,
			},
		},
		Target: "https://backend.example.com",
	}
}

func TestArtifact_EncodeParse(t *testing.T) {
	artifact := testArtifact()

	data, err := artifact.Encode()
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, KeyServices+`={"xsuaa":[{"label":"xsuaa"`)
	assert.Contains(t, text, KeyTarget+"=https://backend.example.com\n")

	parsed, err := ParseArtifact(data)
	require.NoError(t, err)

	assert.Equal(t, artifact.Target, parsed.Target)
	assert.Equal(t, []string{"billing", "crm"}, parsed.DestinationNames())

	creds, err := parsed.UAACredentials()
	require.NoError(t, err)
	assert.Equal(t, "sb-my-app", creds.ClientID)
	assert.Equal(t, "s3cret", creds.ClientSecret)
	assert.Equal(t, "https://auth.example.com", creds.URL)
}

func TestParseArtifact_IgnoresCommentsAndUnknownKeys(t *testing.T) {
	data := []byte("# generated by cfdproxy bind\n\nSOME_OTHER=value\nCFDP_TARGET=https://host\n")

	artifact, err := ParseArtifact(data)
	require.NoError(t, err)
	assert.Equal(t, "https://host", artifact.Target)
	assert.Empty(t, artifact.Destinations)
}

func TestParseArtifact_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{
			name: "line without separator",
			data: "CFDP_TARGET",
		},
		{
			name: "invalid services JSON",
			data: "VCAP_SERVICES={not json}",
		},
		{
			name: "invalid destinations JSON",
			data: "destinations=[{]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArtifact([]byte(tt.data))
			assert.Error(t, err)
			assert.True(t, errors.Is(err, &util.ConfigError{}))
		})
	}
}

func TestArtifact_UAACredentials_Errors(t *testing.T) {
	tests := []struct {
		name     string
		artifact *Artifact
	}{
		{
			name:     "no xsuaa binding",
			artifact: &Artifact{},
		},
		{
			name: "incomplete credentials",
			artifact: &Artifact{
				Services: map[string][]ServiceBinding{
					XSUAALabel: {
						{Credentials: map[string]any{"clientid": "only-id"}},
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.artifact.UAACredentials()
			assert.Error(t, err)
		})
	}
}

func TestDestination_Name(t *testing.T) {
	assert.Equal(t, "crm", Destination{"name": "crm"}.Name())
	assert.Empty(t, Destination{"name": 42}.Name())
	assert.Empty(t, Destination{}.Name())
}

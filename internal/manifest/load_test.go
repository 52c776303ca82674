package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `Core:
  description: Core team
  members:
    - username: alice
    - username: bob
Platform:
  description: Platform umbrella group
Data:
  parent: Platform
  team_sync_ignored: true
`

func TestParse_BuildsTeamsInDocumentOrder(t *testing.T) {
	teams, err := Parse([]byte(sampleManifest), "")
	require.NoError(t, err)
	require.Len(t, teams, 3)

	assert.Equal(t, "Core", teams[0].Name)
	assert.Equal(t, "core", teams[0].Key)
	assert.Equal(t, "Core team", teams[0].Description)
	assert.Equal(t, []string{"alice", "bob"}, teams[0].Members)
	assert.False(t, teams[0].Ignored)

	assert.Equal(t, "Platform", teams[1].Name)
	assert.Empty(t, teams[1].Members)

	assert.Equal(t, "Data", teams[2].Name)
	assert.Equal(t, "Platform", teams[2].Parent)
	assert.True(t, teams[2].Ignored)
}

func TestParse_AppliesPrefix(t *testing.T) {
	teams, err := Parse([]byte(sampleManifest), "ACME")
	require.NoError(t, err)
	require.Len(t, teams, 3)

	assert.Equal(t, "ACME Core", teams[0].Name)
	assert.Equal(t, "acme-core", teams[0].Key)
	// Parent references are prefixed too, or they would no longer match the
	// prefixed group they point at.
	assert.Equal(t, "ACME Platform", teams[2].Parent)
}

func TestParse_EmptyDocument(t *testing.T) {
	teams, err := Parse(nil, "")
	require.NoError(t, err)
	assert.Empty(t, teams)
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "unknown field",
			doc:     "Core:\n  colour: red\n",
			wantErr: "colour",
		},
		{
			name:    "group value not a mapping",
			doc:     "Core: oops\n",
			wantErr: "cannot unmarshal",
		},
		{
			name:    "member entry not a mapping",
			doc:     "Core:\n  members:\n    - alice\n",
			wantErr: "cannot unmarshal",
		},
		{
			name:    "members not a list",
			doc:     "Core:\n  members: alice\n",
			wantErr: "cannot unmarshal",
		},
		{
			name:    "empty member username",
			doc:     "Core:\n  members:\n    - username: \"\"\n",
			wantErr: "empty username",
		},
		{
			name:    "duplicate member",
			doc:     "Core:\n  members:\n    - username: alice\n    - username: alice\n",
			wantErr: "duplicate member",
		},
		{
			name:    "undeclared parent",
			doc:     "Core:\n  parent: Ghost\n",
			wantErr: "not declared",
		},
		{
			name:    "empty group name",
			doc:     "\"\":\n  description: x\n",
			wantErr: "empty key",
		},
		{
			name:    "name with no key material",
			doc:     "\"!!!\":\n  description: x\n",
			wantErr: "empty key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ReadsManifestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teams.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0o600))

	teams, err := Load(path, "ACME")
	require.NoError(t, err)
	assert.Len(t, teams, 3)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), "")
	require.Error(t, err)
}

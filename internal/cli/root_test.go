package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romiluz13/memory-engineering/internal/config"
)

func TestRootCommandTree(t *testing.T) {
	root := GetRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"index", "search", "memory", "task", "status", "serve"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestSetupRequiresProject(t *testing.T) {
	old := projectID
	projectID = ""
	defer func() { projectID = old }()

	_, err := setup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--project")
}

func TestBuildProviderNone(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Embedding.Provider = "none"
	p, err := buildProvider(cfg)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestBuildProviderVoyageNeedsKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Embedding.Provider = "voyage"
	cfg.Embedding.APIKey = ""
	_, err := buildProvider(cfg)
	require.Error(t, err)
}

func TestBuildProviderUnknown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Embedding.Provider = "weird"
	_, err := buildProvider(cfg)
	require.Error(t, err)
}

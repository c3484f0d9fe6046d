package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDurationYAML(t *testing.T) {
	var out struct {
		D Duration `yaml:"d"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("d: 1m30s"), &out))
	assert.Equal(t, 90*time.Second, out.D.Std())

	err := yaml.Unmarshal([]byte("d: not-a-duration"), &out)
	assert.Error(t, err)

	raw, err := yaml.Marshal(struct {
		D Duration `yaml:"d"`
	}{D: Duration(250 * time.Millisecond)})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "250ms")
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dasmlab/nllbgate/pkg/config"
	"github.com/dasmlab/nllbgate/pkg/engine"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestPairsCommandPrintsDefaultTable(t *testing.T) {
	a := newApp()
	cmd := a.rootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"pairs"})

	require.NoError(t, cmd.Execute())

	var doc struct {
		Count int `yaml:"count"`
		Pairs []struct {
			Key    string `yaml:"key"`
			Source string `yaml:"source"`
			Target string `yaml:"target"`
		} `yaml:"pairs"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, 54, doc.Count)
	require.Len(t, doc.Pairs, 54)
	assert.Equal(t, "en-ar", doc.Pairs[0].Key, "table order starts with the hub's outbound pairs")

	byKey := make(map[string][2]string, len(doc.Pairs))
	for _, p := range doc.Pairs {
		byKey[p.Key] = [2]string{p.Source, p.Target}
	}
	assert.Equal(t, [2]string{"English", "French"}, byKey["en-fr"])
	assert.Equal(t, [2]string{"Japanese", "English"}, byKey["ja-en"])
}

func TestPairsCommandReadsPairsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pairs:
  - {source: fr, target: de, source_name: French, target_name: German, source_code: fra_Latn, target_code: deu_Latn}
`), 0o600))

	a := newApp()
	cmd := a.rootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"pairs", "--pairs-file", path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "key: fr-de")
	assert.Contains(t, out.String(), "count: 1")
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("NLLBGATE_HTTP_PORT", "9000")
	t.Setenv("NLLBGATE_ENGINE", "subprocess")

	a := newApp()
	cmd := a.rootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"pairs", "--engine", "remote", "--inference-timeout", "20s", "--log-format", "json"})

	require.NoError(t, cmd.Execute())
	require.NotNil(t, a.cfg)
	assert.Equal(t, 9000, a.cfg.Server.HTTPPort)
	assert.Equal(t, engine.EngineRemote, a.cfg.Engine.Type)
	assert.Equal(t, 20*time.Second, a.cfg.Engine.InferenceTimeout)
	assert.IsType(t, &logrus.JSONFormatter{}, a.logger.Formatter)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nllbgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: facebook/nllb-200-1.3B\nprecision: float32\n"), 0o600))

	a := newApp()
	cmd := a.rootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"pairs", "--config", path})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "facebook/nllb-200-1.3B", a.cfg.Engine.Model)
	assert.Equal(t, engine.PrecisionFloat32, a.cfg.Engine.Precision)
}

func TestInvalidConfigFails(t *testing.T) {
	a := newApp()
	cmd := a.rootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"pairs", "--precision", "int4"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown precision")
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger := newLogger(config.LogConfig{Level: "verbose", Format: "text"})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}

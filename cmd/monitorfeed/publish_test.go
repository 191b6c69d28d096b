package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisConfig(t *testing.T, mr *miniredis.Miniredis) string {
	t.Helper()
	return writeConfig(t, "store:\n  redis:\n    addr: "+mr.Addr()+"\n")
}

func TestRunPublish_FromStdin(t *testing.T) {
	mr := miniredis.RunT(t)
	configPath := redisConfig(t, mr)

	sub := mr.NewSubscriber()
	defer sub.Close()
	sub.Subscribe("monitor:update")

	output, err := executeCmd(t, strings.NewReader(`  {"status":"down"}
`), "publish", "-c", configPath, "--id", "vps-1", "--state", "-")
	require.NoError(t, err)
	assert.Contains(t, output, "published vps-monitor:vps-1 on monitor:update")

	got, err := mr.Get("vps-monitor:vps-1")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"down"}`, got)

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, "monitor:update", msg.Channel)
		assert.Equal(t, "vps-1", msg.Message)
	case <-time.After(time.Second):
		t.Fatal("no message published")
	}
}

func TestRunPublish_FromFile(t *testing.T) {
	mr := miniredis.RunT(t)
	configPath := redisConfig(t, mr)

	statePath := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(statePath, []byte(`{"status":"up","cpu":12.5}`), 0644))

	_, err := executeCmd(t, nil, "publish", "-c", configPath, "--id", "vps-2", "--state", statePath)
	require.NoError(t, err)

	got, err := mr.Get("vps-monitor:vps-2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"up","cpu":12.5}`, got)
}

func TestRunPublish_RejectsInvalidState(t *testing.T) {
	mr := miniredis.RunT(t)
	configPath := redisConfig(t, mr)

	for _, state := range []string{`[1,2]`, `not json`, ``} {
		_, err := executeCmd(t, strings.NewReader(state), "publish", "-c", configPath, "--id", "vps-1", "--state", "-")
		assert.Error(t, err, "state %q", state)
	}
	assert.False(t, mr.Exists("vps-monitor:vps-1"))
}

func TestRunPublish_MemoryBackend(t *testing.T) {
	configPath := writeConfig(t, "store:\n  backend: memory\n")

	_, err := executeCmd(t, strings.NewReader(`{}`), "publish", "-c", configPath, "--id", "vps-1", "--state", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis backend")
}

func TestReadState_MissingFile(t *testing.T) {
	_, err := readState(nil, filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestRunPublish_Unreachable(t *testing.T) {
	configPath := writeConfig(t, "store_timeout: 200ms\nstore:\n  redis:\n    addr: 127.0.0.1:1\n")

	_, err := executeCmd(t, strings.NewReader(`{"status":"up"}`), "publish", "-c", configPath, "--id", "vps-1", "--state", "-")
	assert.Error(t, err)
}

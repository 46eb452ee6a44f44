package utils

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeccakText(t *testing.T) {
	// keccak256("") is a well known constant
	assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", KeccakText(""))
	assert.Equal(t, KeccakText("pair"), KeccakText("pair"))
	assert.NotEqual(t, KeccakText("pair"), KeccakText("timeframe"))
	assert.Len(t, KeccakText("pair"), 66)
}

func TestHexText(t *testing.T) {
	assert.Equal(t, "0x4554482f55534454", HexText("ETH/USDT"))
	assert.Equal(t, "0x3568", HexText("5h"))
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Nil(t, SplitList("  "))
	assert.Equal(t, []string{"a", "b"}, SplitList("a, b,,"))
}

func TestHexifyList(t *testing.T) {
	assert.Nil(t, HexifyList(""))
	assert.Equal(t, []string{"0x4554482f55534454", "0x3568"}, HexifyList("ETH/USDT,5h"))
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "0xabcdef", NormalizeAddress("ABCDEF"))
	assert.Equal(t, "0xabcdef", NormalizeAddress("0xAbCdEf"))
}

func TestAppError(t *testing.T) {
	err := NewAppError(ErrCodeSubgraph, "Query failed", "status 500")
	require.Error(t, err)
	assert.Equal(t, "SUBGRAPH_ERROR: Query failed (status 500)", err.Error())
	assert.True(t, HasCode(err, ErrCodeSubgraph))
	assert.False(t, HasCode(errors.New("plain"), ErrCodeSubgraph))
	assert.NotZero(t, err.Line)
}

func TestInitLogger(t *testing.T) {
	prev := Logger
	t.Cleanup(func() { Logger = prev })

	path := filepath.Join(t.TempDir(), "pdr.log")
	require.NoError(t, InitLogger("debug", "json", "file", path))
	assert.Equal(t, logrus.DebugLevel, Logger.GetLevel())

	NewSublogger("discovery").Info("hello")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, ServiceName, entry["service"])
	assert.Equal(t, "discovery", entry["component"])
	assert.Equal(t, "hello", entry["msg"])

	assert.Error(t, InitLogger("loud", "json", "stdout", ""))
	assert.Error(t, InitLogger("info", "xml", "stdout", ""))
	assert.Error(t, InitLogger("info", "text", "file", ""))
	assert.Error(t, InitLogger("info", "text", "syslog", ""))
	require.NoError(t, InitLogger("warn", "text", "stderr", ""))
	assert.Equal(t, logrus.WarnLevel, Logger.GetLevel())
}

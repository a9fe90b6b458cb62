package driver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateScript_DefaultTemplate(t *testing.T) {
	require := require.New(t)

	script := GenerateScript(defaultScriptTemplate, ScriptParams{
		ServerIP:            "192.168.0.10",
		ReversePort:         50001,
		TrajectoryPort:      50003,
		ScriptCommandPort:   50004,
		ServojTime:          8 * time.Millisecond,
		ServojLookaheadTime: 80 * time.Millisecond,
		ServojGain:          300,
		StopjAcc:            8,
		QueuePreRecvSize:    10,
		QueuePreRecvTimeout: 40 * time.Millisecond,
	})

	require.NotContains(script, "_REPLACE}}")
	require.True(strings.HasPrefix(script, "def external_control():"))
	for _, want := range []string{
		`global SERVER_IP = "192.168.0.10"`,
		"global REVERSE_PORT = 50001",
		"global TRAJECTORY_PORT = 50003",
		"global SCRIPT_COMMAND_PORT = 50004",
		"global POS_ZOOM_RATIO = 1000000",
		"global SERVOJ_TIME = 0.008",
		"global SERVOJ_LOOKAHEAD_TIME = 0.08",
		"global SERVOJ_GAIN = 300",
		"global STOPJ_ACC = 8",
		"global SERVOJ_QUEUE_PRE_RECV_SIZE = 10",
		"global SERVOJ_QUEUE_PRE_RECV_TIMEOUT = 0.04",
	} {
		require.Contains(script, want)
	}
}

func TestLoadScriptTemplate(t *testing.T) {
	require := require.New(t)

	tmpl, err := loadScriptTemplate("")
	require.NoError(err)
	require.Equal(defaultScriptTemplate, tmpl)

	path := filepath.Join(t.TempDir(), "custom.script")
	require.NoError(os.WriteFile(path, []byte("connect {{SERVER_IP_REPLACE}}:{{REVERSE_PORT_REPLACE}}\n"), 0o600))
	tmpl, err = loadScriptTemplate(path)
	require.NoError(err)
	require.Equal("connect 10.0.0.2:6000\n", GenerateScript(tmpl, ScriptParams{ServerIP: "10.0.0.2", ReversePort: 6000}))

	_, err = loadScriptTemplate(filepath.Join(t.TempDir(), "missing.script"))
	require.Error(err)
}

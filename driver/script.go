package driver

import (
	"bufio"
	_ "embed"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-elite/logger"
)

//go:embed external_control.script
var defaultScriptTemplate string

// RequestProgram is the line the robot sends to the script sender port to fetch the control script.
const RequestProgram = "request_program"

// ScriptParams are the values substituted into the control script template.
type ScriptParams struct {
	ServerIP            string
	ReversePort         int
	TrajectoryPort      int
	ScriptCommandPort   int
	ServojTime          time.Duration
	ServojLookaheadTime time.Duration
	ServojGain          int
	StopjAcc            float64
	QueuePreRecvSize    int
	QueuePreRecvTimeout time.Duration
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// GenerateScript fills the placeholders of tmpl.
func GenerateScript(tmpl string, p ScriptParams) string {
	r := strings.NewReplacer(
		"{{SERVER_IP_REPLACE}}", p.ServerIP,
		"{{REVERSE_PORT_REPLACE}}", strconv.Itoa(p.ReversePort),
		"{{TRAJECTORY_SERVER_PORT_REPLACE}}", strconv.Itoa(p.TrajectoryPort),
		"{{SCRIPT_COMMAND_SERVER_PORT_REPLACE}}", strconv.Itoa(p.ScriptCommandPort),
		"{{SERVOJ_TIME_REPLACE}}", formatSeconds(p.ServojTime),
		"{{SERVOJ_LOOKAHEAD_TIME_REPLACE}}", formatSeconds(p.ServojLookaheadTime),
		"{{SERVOJ_GAIN_REPLACE}}", strconv.Itoa(p.ServojGain),
		"{{STOPJ_ACC_REPLACE}}", strconv.FormatFloat(p.StopjAcc, 'f', -1, 64),
		"{{SERVOJ_QUEUE_PRE_RECV_SIZE_REPLACE}}", strconv.Itoa(p.QueuePreRecvSize),
		"{{SERVOJ_QUEUE_PRE_RECV_TIMEOUT_REPLACE}}", formatSeconds(p.QueuePreRecvTimeout),
		"{{POS_ZOOM_RATIO_REPLACE}}", strconv.FormatFloat(PosZoomRatio, 'f', -1, 64),
	)

	return r.Replace(tmpl)
}

// loadScriptTemplate returns the template at path, or the built-in one when path is empty.
func loadScriptTemplate(path string) (string, error) {
	if path == "" {
		return defaultScriptTemplate, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read script template: %w", err)
	}

	return string(b), nil
}

type connReader struct {
	conn net.Conn
	r    *bufio.Reader
}

// scriptSender answers program requests on the script sender port.
type scriptSender struct {
	script       func() (string, error)
	writeTimeout time.Duration
	logger       logger.Logger
	metrics      *Metrics
	current      atomic.Pointer[connReader]
}

// read is the tcpserver read function of the script sender port.
func (s *scriptSender) read(conn net.Conn) error {
	cr := s.current.Load()
	if cr == nil || cr.conn != conn {
		cr = &connReader{conn: conn, r: bufio.NewReader(conn)}
		s.current.Store(cr)
	}

	line, err := cr.r.ReadString('\n')
	if err != nil {
		return err
	}

	if strings.TrimSpace(line) != RequestProgram {
		s.logger.Warn("unexpected script sender request", "request", strings.TrimSpace(line))
		return nil
	}
	s.metrics.incScriptRequestCount()

	script, err := s.script()
	if err != nil {
		s.logger.Error("failed to generate control script", "error", err)
		return err
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if _, err := conn.Write([]byte(script)); err != nil {
		s.metrics.incWriteErrCount()
		return err
	}
	s.logger.Info("control script sent", "remote", conn.RemoteAddr(), "size", len(script))

	return nil
}

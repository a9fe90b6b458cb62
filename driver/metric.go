package driver

import "sync/atomic"

// Metrics contains atomic counters of a Driver.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// ReverseSendCount indicates the number of frames written to the reverse port.
	ReverseSendCount atomic.Uint64
	// TrajectoryPointCount indicates the number of trajectory points written.
	TrajectoryPointCount atomic.Uint64
	// ScriptCommandCount indicates the number of script commands written.
	ScriptCommandCount atomic.Uint64
	// WriteErrCount indicates writes that failed on any port.
	WriteErrCount atomic.Uint64
	// AckCount indicates the number of acknowledgements read from the reverse port.
	AckCount atomic.Uint64
	// LastAckNanos is the local unix time of the last acknowledgement in nanoseconds.
	LastAckNanos atomic.Int64
	// TrajectoryResultCount indicates the number of trajectory results received.
	TrajectoryResultCount atomic.Uint64
	// ScriptRequestCount indicates how many times the robot requested the control script.
	ScriptRequestCount atomic.Uint64
	// RobotConnectCount indicates reverse port connections accepted.
	RobotConnectCount atomic.Uint64
	// RobotDisconnectCount indicates reverse port connections lost.
	RobotDisconnectCount atomic.Uint64
}

func (m *Metrics) incReverseSendCount()      { m.ReverseSendCount.Add(1) }
func (m *Metrics) incTrajectoryPointCount()  { m.TrajectoryPointCount.Add(1) }
func (m *Metrics) incScriptCommandCount()    { m.ScriptCommandCount.Add(1) }
func (m *Metrics) incWriteErrCount()         { m.WriteErrCount.Add(1) }
func (m *Metrics) incTrajectoryResultCount() { m.TrajectoryResultCount.Add(1) }
func (m *Metrics) incScriptRequestCount()    { m.ScriptRequestCount.Add(1) }
func (m *Metrics) incRobotConnectCount()     { m.RobotConnectCount.Add(1) }
func (m *Metrics) incRobotDisconnectCount()  { m.RobotDisconnectCount.Add(1) }

func (m *Metrics) ack(nowNanos int64) {
	m.AckCount.Add(1)
	m.LastAckNanos.Store(nowNanos)
}

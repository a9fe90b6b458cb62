package rtsi

import "sync/atomic"

// ClientMetrics contains atomic counters of a Client.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type ClientMetrics struct {
	// DataSendCount indicates the number of input data packages sent.
	DataSendCount atomic.Uint64
	// DataRecvCount indicates the number of output data packages decoded.
	DataRecvCount atomic.Uint64
	// DataDroppedCount indicates the number of decoded frames superseded by a newer frame in read-newest mode,
	// plus stashed frames dropped because the pending buffer was full.
	DataDroppedCount atomic.Uint64
	// DataErrCount indicates the number of data packages that failed to decode.
	DataErrCount atomic.Uint64
	// TextMessageCount indicates the number of text messages received.
	TextMessageCount atomic.Uint64
	// UnexpectedPacketCount indicates packets received that no request was waiting for.
	UnexpectedPacketCount atomic.Uint64
}

func (m *ClientMetrics) incDataSendCount()         { m.DataSendCount.Add(1) }
func (m *ClientMetrics) incDataRecvCount()         { m.DataRecvCount.Add(1) }
func (m *ClientMetrics) incDataDroppedCount()      { m.DataDroppedCount.Add(1) }
func (m *ClientMetrics) incDataErrCount()          { m.DataErrCount.Add(1) }
func (m *ClientMetrics) incTextMessageCount()      { m.TextMessageCount.Add(1) }
func (m *ClientMetrics) incUnexpectedPacketCount() { m.UnexpectedPacketCount.Add(1) }

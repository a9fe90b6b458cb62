package primary

import "sync/atomic"

// ClientMetrics contains atomic counters of a Client.
type ClientMetrics struct {
	// FrameCount indicates the number of frames read.
	FrameCount atomic.Uint64
	// PackageCount indicates the number of sub-packages delivered to GetPackage callers.
	PackageCount atomic.Uint64
	// ExceptionCount indicates the number of robot exceptions posted to the callback.
	ExceptionCount atomic.Uint64
	// MalformedCount indicates frames or sub-packages that failed to decode.
	MalformedCount atomic.Uint64
	// ScriptSendCount indicates the number of scripts sent.
	ScriptSendCount atomic.Uint64
}

func (m *ClientMetrics) incFrameCount()      { m.FrameCount.Add(1) }
func (m *ClientMetrics) incPackageCount()    { m.PackageCount.Add(1) }
func (m *ClientMetrics) incExceptionCount()  { m.ExceptionCount.Add(1) }
func (m *ClientMetrics) incMalformedCount()  { m.MalformedCount.Add(1) }
func (m *ClientMetrics) incScriptSendCount() { m.ScriptSendCount.Add(1) }

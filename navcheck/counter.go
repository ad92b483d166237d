package navcheck

import "sync/atomic"

var driverCounter int64

// GetDriverID a global driver session ID
func GetDriverID() int64 {
	return atomic.AddInt64(&driverCounter, 1)
}

//go:build windows

package autopilot

import (
	"log/slog"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	wtsapi32                       = windows.NewLazySystemDLL("wtsapi32.dll")
	procWTSQuerySessionInformation = wtsapi32.NewProc("WTSQuerySessionInformationW")
	procWTSFreeMemory              = wtsapi32.NewProc("WTSFreeMemory")
)

const (
	wtsCurrentSession = 0xFFFFFFFF
	wtsWinStationName = 6
)

type winStationGate struct{}

// NewSessionGate inspects the current session's WinStation name: "Console"
// means a locally attached session, anything else (RDP-Tcp#N and friends)
// means a remote desktop session owns the screen.
func NewSessionGate() SessionGate { return winStationGate{} }

func (winStationGate) ConsoleAttached() bool {
	var buf *uint16
	var n uint32
	r, _, callErr := procWTSQuerySessionInformation.Call(
		0, // WTS_CURRENT_SERVER_HANDLE
		uintptr(uint32(wtsCurrentSession)),
		uintptr(wtsWinStationName),
		uintptr(unsafe.Pointer(&buf)),
		uintptr(unsafe.Pointer(&n)),
	)
	if r == 0 || buf == nil {
		// Fail-open: a broken probe must not wedge the queue forever.
		slog.Warn("session gate inspection failed, assuming console", "error", callErr)
		return true
	}
	defer procWTSFreeMemory.Call(uintptr(unsafe.Pointer(buf)))
	name := windows.UTF16PtrToString(buf)
	return strings.EqualFold(name, "Console")
}

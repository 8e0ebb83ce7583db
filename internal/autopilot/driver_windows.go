//go:build windows

package autopilot

import (
	"context"
	"fmt"
	"strings"
	"syscall"
	"time"
	"unsafe"

	"github.com/atotto/clipboard"
	"golang.org/x/sys/windows"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procEnumWindows              = user32.NewProc("EnumWindows")
	procGetWindowTextW           = user32.NewProc("GetWindowTextW")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procIsIconic                 = user32.NewProc("IsIconic")
	procShowWindow               = user32.NewProc("ShowWindow")
	procSetWindowPos             = user32.NewProc("SetWindowPos")
	procSetForegroundWindow      = user32.NewProc("SetForegroundWindow")
	procGetForegroundWindow      = user32.NewProc("GetForegroundWindow")
	procGetWindowRect            = user32.NewProc("GetWindowRect")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procAttachThreadInput        = user32.NewProc("AttachThreadInput")
	procSetCursorPos             = user32.NewProc("SetCursorPos")
	procMouseEvent               = user32.NewProc("mouse_event")
	procKeybdEvent               = user32.NewProc("keybd_event")
	procGetCurrentThreadId       = kernel32.NewProc("GetCurrentThreadId")
)

const (
	swRestore = 9

	swpShowWindow = 0x0040

	mouseeventfLeftDown = 0x0002
	mouseeventfLeftUp   = 0x0004

	keyeventfKeyUp = 0x0002
	vkControl      = 0x11
	vkV            = 0x56
)

type rect struct {
	Left, Top, Right, Bottom int32
}

type windowsDriver struct {
	layout ScriptLayout
}

func newWindowDriver(layout ScriptLayout) WindowAutomationDriver {
	return &windowsDriver{layout: layout}
}

// Run drives the bot window through the reload script for one identifier.
// It owns cursor and focus for its whole duration; callers must guarantee
// single-flight (the queue does).
func (d *windowsDriver) Run(ctx context.Context, identifier string) error {
	hwnd := findWindowByTitle(d.layout.WindowTitle)
	if hwnd == 0 {
		return fmt.Errorf("%w: no visible window matching %q", ErrTargetNotFound, d.layout.WindowTitle)
	}

	if r, _, _ := procIsIconic.Call(hwnd); r != 0 {
		procShowWindow.Call(hwnd, swRestore)
		if err := d.pause(ctx, d.layout.StepDelay); err != nil {
			return err
		}
	}
	// Pin the window to the reference layout so relative offsets hold.
	procSetWindowPos.Call(hwnd, 0, 0, 0, uintptr(d.layout.WindowWidth), uintptr(d.layout.WindowHeight), swpShowWindow)
	if err := forceForeground(hwnd); err != nil {
		return &AutomationError{Step: "activate", Detail: d.layout.WindowTitle, Err: err}
	}
	if err := d.pause(ctx, d.layout.StepDelay); err != nil {
		return err
	}

	origin, err := windowOrigin(hwnd)
	if err != nil {
		return &AutomationError{Step: "layout", Err: err}
	}

	// Focus the search field and paste the identifier.
	if err := d.click(ctx, origin, d.layout.SearchField); err != nil {
		return err
	}
	if err := clipboard.WriteAll(identifier); err != nil {
		return &AutomationError{Step: "clipboard", Err: err}
	}
	pasteKeys()
	if err := d.pause(ctx, d.layout.PasteDelay); err != nil {
		return err
	}
	if err := d.click(ctx, origin, d.layout.SearchButton); err != nil {
		return err
	}
	if err := d.pause(ctx, d.layout.StepDelay); err != nil {
		return err
	}

	// Open the account record.
	if err := d.doubleClick(ctx, origin, d.layout.ResultRow); err != nil {
		return err
	}
	if err := d.pause(ctx, d.layout.StepDelay); err != nil {
		return err
	}

	// Functions -> popup. If no distinct popup shows up within the bound,
	// the bot drew the menu inside the main window; fall back to it.
	if err := d.click(ctx, origin, d.layout.FunctionsButton); err != nil {
		return err
	}
	popup := d.awaitPopup(ctx, hwnd)
	popupOrigin := origin
	if popup != hwnd {
		if popupOrigin, err = windowOrigin(popup); err != nil {
			return &AutomationError{Step: "popup", Err: err}
		}
	}
	if err := d.click(ctx, popupOrigin, d.layout.ReloadSettings); err != nil {
		return err
	}
	if err := d.pause(ctx, d.layout.StepDelay); err != nil {
		return err
	}

	// Cleanup: close the popup (if any) and the account record.
	if popup != hwnd {
		if err := d.click(ctx, popupOrigin, d.layout.PopupClose); err != nil {
			return err
		}
	}
	if err := d.click(ctx, origin, d.layout.RecordClose); err != nil {
		return err
	}
	return nil
}

func (d *windowsDriver) awaitPopup(ctx context.Context, main uintptr) uintptr {
	deadline := time.Now().Add(d.layout.PopupTimeout)
	for time.Now().Before(deadline) {
		fg, _, _ := procGetForegroundWindow.Call()
		if fg != 0 && fg != main {
			return fg
		}
		if err := d.pause(ctx, d.layout.PopupPoll); err != nil {
			return main
		}
	}
	return main
}

func (d *windowsDriver) click(ctx context.Context, origin rect, p Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clickAt(origin.Left+p.X, origin.Top+p.Y)
	return d.pause(ctx, d.layout.ClickDelay)
}

func (d *windowsDriver) doubleClick(ctx context.Context, origin rect, p Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clickAt(origin.Left+p.X, origin.Top+p.Y)
	time.Sleep(80 * time.Millisecond)
	clickAt(origin.Left+p.X, origin.Top+p.Y)
	return d.pause(ctx, d.layout.ClickDelay)
}

func (d *windowsDriver) pause(ctx context.Context, dur time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(dur):
		return nil
	}
}

func findWindowByTitle(fragment string) uintptr {
	var found uintptr
	frag := strings.ToLower(fragment)
	cb := syscall.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		if r, _, _ := procIsWindowVisible.Call(hwnd); r == 0 {
			return 1
		}
		buf := make([]uint16, 512)
		n, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
		if n == 0 {
			return 1
		}
		title := syscall.UTF16ToString(buf[:n])
		if strings.Contains(strings.ToLower(title), frag) {
			found = hwnd
			return 0 // stop enumeration
		}
		return 1
	})
	procEnumWindows.Call(cb, 0)
	return found
}

// forceForeground activates the window, falling back to the thread-input
// attachment trick when Windows' focus-stealing prevention rejects the
// plain SetForegroundWindow call.
func forceForeground(hwnd uintptr) error {
	procSetForegroundWindow.Call(hwnd)
	if fg, _, _ := procGetForegroundWindow.Call(); fg == hwnd {
		return nil
	}
	cur, _, _ := procGetCurrentThreadId.Call()
	target, _, _ := procGetWindowThreadProcessId.Call(hwnd, 0)
	procAttachThreadInput.Call(target, cur, 1)
	procSetForegroundWindow.Call(hwnd)
	procAttachThreadInput.Call(target, cur, 0)
	if fg, _, _ := procGetForegroundWindow.Call(); fg != hwnd {
		return fmt.Errorf("could not bring window to foreground")
	}
	return nil
}

func windowOrigin(hwnd uintptr) (rect, error) {
	var r rect
	ok, _, err := procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&r)))
	if ok == 0 {
		return rect{}, fmt.Errorf("GetWindowRect: %v", err)
	}
	return r, nil
}

func clickAt(x, y int32) {
	procSetCursorPos.Call(uintptr(x), uintptr(y))
	procMouseEvent.Call(mouseeventfLeftDown, 0, 0, 0, 0)
	procMouseEvent.Call(mouseeventfLeftUp, 0, 0, 0, 0)
}

func pasteKeys() {
	procKeybdEvent.Call(vkControl, 0, 0, 0)
	procKeybdEvent.Call(vkV, 0, 0, 0)
	procKeybdEvent.Call(vkV, 0, keyeventfKeyUp, 0)
	procKeybdEvent.Call(vkControl, 0, keyeventfKeyUp, 0)
}

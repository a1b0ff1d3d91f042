//go:build windows

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"unsafe"

	"golang.org/x/sys/windows"
)

// ============================================================================
// Windows registration strategies
// ============================================================================
// One strategy per acquisition mechanism. Every strategy owns its OS
// resource with strict construct/destroy symmetry: register acquires the
// hook/window/context and unregister releases exactly the same thing, so a
// dropped reference can never unhook an active session out from under us.
//
// All decoding runs on the OS input-delivery thread (the pump threads
// below) and stays allocation-free after the first event.
// ============================================================================

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")
	wintab32 = windows.NewLazySystemDLL("wintab32.dll")

	procRegisterClassExW   = user32.NewProc("RegisterClassExW")
	procUnregisterClassW   = user32.NewProc("UnregisterClassW")
	procCreateWindowExW    = user32.NewProc("CreateWindowExW")
	procDefWindowProcW     = user32.NewProc("DefWindowProcW")
	procPostQuitMessage    = user32.NewProc("PostQuitMessage")
	procPostMessageW       = user32.NewProc("PostMessageW")
	procPostThreadMessageW = user32.NewProc("PostThreadMessageW")
	procGetMessageW        = user32.NewProc("GetMessageW")
	procTranslateMessage   = user32.NewProc("TranslateMessage")
	procDispatchMessageW   = user32.NewProc("DispatchMessageW")

	procRegisterRawInputDevices = user32.NewProc("RegisterRawInputDevices")
	procGetRawInputData         = user32.NewProc("GetRawInputData")

	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")

	procGetPointerType               = user32.NewProc("GetPointerType")
	procGetPointerPenInfo            = user32.NewProc("GetPointerPenInfo")
	procRegisterPointerInputTarget   = user32.NewProc("RegisterPointerInputTarget")
	procUnregisterPointerInputTarget = user32.NewProc("UnregisterPointerInputTarget")

	procGetCursorPos               = user32.NewProc("GetCursorPos")
	procWindowFromPoint            = user32.NewProc("WindowFromPoint")
	procGetClassNameW              = user32.NewProc("GetClassNameW")
	procGetWindowThreadProcessId   = user32.NewProc("GetWindowThreadProcessId")
	procQueryFullProcessImageName  = kernel32.NewProc("QueryFullProcessImageNameW")

	procWTInfoA  = wintab32.NewProc("WTInfoA")
	procWTOpenA  = wintab32.NewProc("WTOpenA")
	procWTClose  = wintab32.NewProc("WTClose")
	procWTPacket = wintab32.NewProc("WTPacket")
)

const (
	wmDestroy       = 0x0002
	wmClose         = 0x0010
	wmQuit          = 0x0012
	wmInput         = 0x00FF
	wmMouseMove     = 0x0200
	wmLButtonDown   = 0x0201
	wmLButtonUp     = 0x0202
	wmPointerUpdate = 0x0245
	wmPointerDown   = 0x0246
	wmPointerUp     = 0x0247

	whMouseLL = 14

	hwndMessage = ^uintptr(2) // HWND_MESSAGE: message-only window parent

	ridevInputSink = 0x00000100
	ridevRemove    = 0x00000001
	ridInput       = 0x10000003
	rimTypeHID     = 2

	hidUsagePageDigitizer = 0x0D
	hidUsagePen           = 0x02

	ptPen                = 3
	pointerFlagInContact = 0x00000004

	// Wintab
	wtiDefContext = 3
	wtiDevices    = 100
	dvcNPressure  = 15
	cxoMessages   = 0x0004
	pkButtons     = 0x0040
	pkNormalPress = 0x0400
	wtDefBase     = 0x7FF0
	wtPacketMsg   = wtDefBase + 0
)

type point struct {
	x, y int32
}

type winMsg struct {
	hwnd    uintptr
	message uint32
	wparam  uintptr
	lparam  uintptr
	time    uint32
	pt      point
}

type wndClassEx struct {
	cbSize        uint32
	style         uint32
	lpfnWndProc   uintptr
	cbClsExtra    int32
	cbWndExtra    int32
	hInstance     windows.Handle
	hIcon         windows.Handle
	hCursor       windows.Handle
	hbrBackground windows.Handle
	lpszMenuName  *uint16
	lpszClassName *uint16
	hIconSm       windows.Handle
}

type rawInputDeviceReg struct {
	usagePage uint16
	usage     uint16
	flags     uint32
	target    uintptr
}

type rawInputHeader struct {
	dwType  uint32
	dwSize  uint32
	hDevice uintptr
	wParam  uintptr
}

type rawHIDHeader struct {
	dwSizeHid uint32
	dwCount   uint32
	// report bytes follow
}

type msllHookStruct struct {
	pt          point
	mouseData   uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

type pointerInfo struct {
	pointerType           uint32
	pointerID             uint32
	frameID               uint32
	pointerFlags          uint32
	sourceDevice          uintptr
	hwndTarget            uintptr
	ptPixelLocation       point
	ptHimetricLocation    point
	ptPixelLocationRaw    point
	ptHimetricLocationRaw point
	dwTime                uint32
	historyCount          uint32
	inputData             int32
	dwKeyStates           uint32
	performanceCount      uint64
	buttonChangeType      int32
}

type pointerPenInfo struct {
	pointerInfo pointerInfo
	penFlags    uint32
	penMask     uint32
	pressure    uint32
	rotation    uint32
	tiltX       int32
	tiltY       int32
}

// logContextA mirrors wintab's LOGCONTEXTA.
type logContextA struct {
	Name                   [40]byte
	Options                uint32
	Status                 uint32
	Locks                  uint32
	MsgBase                uint32
	Device                 uint32
	PktRate                uint32
	PktData                uint32
	PktMode                uint32
	MoveMask               uint32
	BtnDnMask              uint32
	BtnUpMask              uint32
	InOrgX, InOrgY, InOrgZ int32
	InExtX, InExtY, InExtZ int32
	OutOrgX, OutOrgY       int32
	OutOrgZ                int32
	OutExtX, OutExtY       int32
	OutExtZ                int32
	SensX, SensY, SensZ    int32
	SysMode                int32
	SysOrgX, SysOrgY       int32
	SysExtX, SysExtY       int32
	SysSensX, SysSensY     int32
}

// wtAxis mirrors wintab's AXIS.
type wtAxis struct {
	Min        int32
	Max        int32
	Units      uint32
	Resolution int32
}

// wtPacketData matches lcPktData = PK_BUTTONS | PK_NORMAL_PRESSURE.
type wtPacketData struct {
	Buttons        uint32
	NormalPressure uint32
}

// ============================================================================
// Message pump
// ============================================================================

// messageWindow runs a message-only window on a dedicated OS-locked thread.
// The handler runs on that thread for every message; returning handled=false
// falls through to DefWindowProc (required for WM_INPUT cleanup).
type messageWindow struct {
	hwnd uintptr
	done chan struct{}
}

func newMessageWindow(className string, handler func(hwnd uintptr, msg uint32, wparam, lparam uintptr) (uintptr, bool)) (*messageWindow, error) {
	type readyResult struct {
		hwnd uintptr
		err  error
	}
	ready := make(chan readyResult, 1)
	done := make(chan struct{})

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(done)

		// NewCallback arguments stay uintptr-sized throughout.
		wndProc := windows.NewCallback(func(hwnd, rawMsg, wparam, lparam uintptr) uintptr {
			msg := uint32(rawMsg)
			if msg == wmDestroy {
				procPostQuitMessage.Call(0)
				return 0
			}
			if handler != nil {
				if r, handled := handler(hwnd, msg, wparam, lparam); handled {
					return r
				}
			}
			r, _, _ := procDefWindowProcW.Call(hwnd, rawMsg, wparam, lparam)
			return r
		})

		clsName, err := windows.UTF16PtrFromString(className)
		if err != nil {
			ready <- readyResult{err: err}
			return
		}

		var hInstance windows.Handle
		if err := windows.GetModuleHandleEx(windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT, nil, &hInstance); err != nil {
			ready <- readyResult{err: fmt.Errorf("GetModuleHandle: %w", err)}
			return
		}

		wc := wndClassEx{
			cbSize:        uint32(unsafe.Sizeof(wndClassEx{})),
			lpfnWndProc:   wndProc,
			hInstance:     hInstance,
			lpszClassName: clsName,
		}
		atom, _, callErr := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc)))
		if atom == 0 {
			ready <- readyResult{err: fmt.Errorf("RegisterClassExW: %w", callErr)}
			return
		}
		defer procUnregisterClassW.Call(uintptr(unsafe.Pointer(clsName)), uintptr(hInstance))

		hwnd, _, callErr := procCreateWindowExW.Call(
			0, uintptr(unsafe.Pointer(clsName)), 0, 0,
			0, 0, 0, 0,
			hwndMessage, 0, uintptr(hInstance), 0)
		if hwnd == 0 {
			ready <- readyResult{err: fmt.Errorf("CreateWindowExW: %w", callErr)}
			return
		}

		ready <- readyResult{hwnd: hwnd}

		var m winMsg
		for {
			r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
			if int32(r) <= 0 {
				return
			}
			procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
			procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
		}
	}()

	r := <-ready
	if r.err != nil {
		<-done
		return nil, r.err
	}
	return &messageWindow{hwnd: r.hwnd, done: done}, nil
}

// close destroys the window and waits for the pump thread to exit.
func (w *messageWindow) close() {
	procPostMessageW.Call(w.hwnd, wmClose, 0, 0)
	<-w.done
}

// ============================================================================
// Pointer API strategy
// ============================================================================

type pointerStrategy struct {
	filter WindowFilter
	logger *slog.Logger
	sink   reportSink
	win    *messageWindow
}

func newPointerStrategy(filter WindowFilter, logger *slog.Logger) registrationStrategy {
	return &pointerStrategy{filter: filter, logger: logger}
}

func (s *pointerStrategy) register(sink reportSink) error {
	// The whole API family appeared in Windows 8; absent procs mean an old
	// system and an immediate fallback to raw input.
	for _, p := range []*windows.LazyProc{procGetPointerType, procGetPointerPenInfo, procRegisterPointerInputTarget} {
		if err := p.Find(); err != nil {
			return fmt.Errorf("pointer API unavailable: %w", err)
		}
	}

	s.sink = sink
	win, err := newMessageWindow("WhisprinPointerWnd", s.handleMessage)
	if err != nil {
		s.sink = nil
		return err
	}

	// Global pen capture needs input-target registration, which requires
	// UIAccess. Denial is the common case on stock configs and simply moves
	// the chain on to the raw-input mechanism.
	ok, _, callErr := procRegisterPointerInputTarget.Call(win.hwnd, ptPen)
	if ok == 0 {
		win.close()
		s.sink = nil
		return fmt.Errorf("RegisterPointerInputTarget: %w", callErr)
	}

	s.win = win
	return nil
}

func (s *pointerStrategy) unregister() {
	if s.win == nil {
		return
	}
	procUnregisterPointerInputTarget.Call(s.win.hwnd, ptPen)
	s.win.close()
	s.win = nil
	s.sink = nil
}

func (s *pointerStrategy) handleMessage(_ uintptr, msg uint32, wparam, _ uintptr) (uintptr, bool) {
	switch msg {
	case wmPointerDown, wmPointerUpdate, wmPointerUp:
	default:
		return 0, false
	}

	if s.filter != nil && s.filter.SuppressInput() {
		return 0, true
	}

	pointerID := uint32(wparam & 0xFFFF)

	var ptype uint32
	r, _, _ := procGetPointerType.Call(uintptr(pointerID), uintptr(unsafe.Pointer(&ptype)))
	if r == 0 || ptype != ptPen {
		return 0, true
	}

	// Secondary lookup for hardware pressure; on failure fall back to the
	// fixed default (heuristic, not physically derived).
	pressure := defaultPenPressure
	inContact := msg != wmPointerUp
	var info pointerPenInfo
	r, _, _ = procGetPointerPenInfo.Call(uintptr(pointerID), uintptr(unsafe.Pointer(&info)))
	if r != 0 {
		pressure = normalizePointerPressure(info.pressure)
		if msg == wmPointerUpdate {
			inContact = info.pointerInfo.pointerFlags&pointerFlagInContact != 0
		}
	}

	if msg == wmPointerUp {
		s.sink(false, 0)
	} else {
		s.sink(inContact, pressure)
	}
	return 0, true
}

// ============================================================================
// Raw HID strategy
// ============================================================================

type rawHIDStrategy struct {
	filter WindowFilter
	logger *slog.Logger
	sink   reportSink
	win    *messageWindow
	buf    []byte // reusable WM_INPUT payload buffer, pump thread only
}

func newRawHIDStrategy(filter WindowFilter, logger *slog.Logger) registrationStrategy {
	return &rawHIDStrategy{filter: filter, logger: logger}
}

func (s *rawHIDStrategy) register(sink reportSink) error {
	s.sink = sink
	win, err := newMessageWindow("WhisprinRawInputWnd", s.handleMessage)
	if err != nil {
		s.sink = nil
		return err
	}

	rid := rawInputDeviceReg{
		usagePage: hidUsagePageDigitizer,
		usage:     hidUsagePen,
		flags:     ridevInputSink, // deliver even when not foreground
		target:    win.hwnd,
	}
	ok, _, callErr := procRegisterRawInputDevices.Call(
		uintptr(unsafe.Pointer(&rid)), 1, unsafe.Sizeof(rid))
	if ok == 0 {
		win.close()
		s.sink = nil
		return fmt.Errorf("RegisterRawInputDevices: %w", callErr)
	}

	s.win = win
	return nil
}

func (s *rawHIDStrategy) unregister() {
	if s.win == nil {
		return
	}
	rid := rawInputDeviceReg{
		usagePage: hidUsagePageDigitizer,
		usage:     hidUsagePen,
		flags:     ridevRemove,
	}
	procRegisterRawInputDevices.Call(uintptr(unsafe.Pointer(&rid)), 1, unsafe.Sizeof(rid))
	s.win.close()
	s.win = nil
	s.sink = nil
}

func (s *rawHIDStrategy) handleMessage(_ uintptr, msg uint32, _, lparam uintptr) (uintptr, bool) {
	if msg != wmInput {
		return 0, false
	}

	// Always fall through to DefWindowProc afterwards; WM_INPUT requires it
	// for buffer cleanup.
	if s.filter != nil && s.filter.SuppressInput() {
		return 0, false
	}

	headerSize := uint32(unsafe.Sizeof(rawInputHeader{}))

	var size uint32
	procGetRawInputData.Call(lparam, ridInput, 0, uintptr(unsafe.Pointer(&size)), uintptr(headerSize))
	if size == 0 {
		return 0, false
	}
	if int(size) > len(s.buf) {
		s.buf = make([]byte, size)
	}

	r, _, _ := procGetRawInputData.Call(lparam, ridInput,
		uintptr(unsafe.Pointer(&s.buf[0])), uintptr(unsafe.Pointer(&size)), uintptr(headerSize))
	if int32(r) < 0 {
		return 0, false
	}

	header := (*rawInputHeader)(unsafe.Pointer(&s.buf[0]))
	if header.dwType != rimTypeHID {
		return 0, false
	}

	hid := (*rawHIDHeader)(unsafe.Pointer(&s.buf[headerSize]))
	reportBase := int(headerSize) + int(unsafe.Sizeof(rawHIDHeader{}))
	reportSize := int(hid.dwSizeHid)

	for i := 0; i < int(hid.dwCount); i++ {
		start := reportBase + i*reportSize
		end := start + reportSize
		if end > len(s.buf) {
			break
		}
		if reading, ok := decodeHIDPenReport(s.buf[start:end]); ok {
			s.sink(reading.Contact, reading.Pressure)
		}
	}
	return 0, false
}

// ============================================================================
// Low-level hook strategy
// ============================================================================

type hookStrategy struct {
	classifier TagClassifier
	filter     WindowFilter
	logger     *slog.Logger
	sink       reportSink

	threadID uint32
	done     chan struct{}

	// Gesture state, hook thread only.
	pressed bool
}

func newHookStrategy(classifier TagClassifier, filter WindowFilter, logger *slog.Logger) registrationStrategy {
	return &hookStrategy{classifier: classifier, filter: filter, logger: logger}
}

func (s *hookStrategy) register(sink reportSink) error {
	s.sink = sink
	s.pressed = false

	ready := make(chan error, 1)
	done := make(chan struct{})

	// Low-level hooks are invoked on the installing thread, which must pump
	// messages. Install and pump on one locked thread; unhook symmetrically
	// on the same thread when the pump exits.
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(done)

		cb := windows.NewCallback(s.hookProc)
		hook, _, callErr := procSetWindowsHookExW.Call(whMouseLL, cb, 0, 0)
		if hook == 0 {
			ready <- fmt.Errorf("SetWindowsHookExW: %w", callErr)
			return
		}
		s.threadID = windows.GetCurrentThreadId()
		ready <- nil

		var m winMsg
		for {
			r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
			if int32(r) <= 0 {
				break
			}
			procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
			procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
		}

		procUnhookWindowsHookEx.Call(hook)
	}()

	if err := <-ready; err != nil {
		<-done
		s.sink = nil
		return err
	}
	s.done = done
	return nil
}

func (s *hookStrategy) unregister() {
	if s.done == nil {
		return
	}
	procPostThreadMessageW.Call(uintptr(s.threadID), wmQuit, 0, 0)
	<-s.done
	s.done = nil
	s.sink = nil
	s.pressed = false
}

// hookProc runs on the hook thread for every pointer event in the system.
// It must stay fast and must always hand the event on to the next hook.
func (s *hookStrategy) hookProc(nCode, wparam, lparam uintptr) uintptr {
	if int32(nCode) >= 0 {
		info := (*msllHookStruct)(unsafe.Pointer(lparam))
		s.observe(uint32(wparam), info)
	}
	r, _, _ := procCallNextHookEx.Call(0, nCode, wparam, lparam)
	return r
}

func (s *hookStrategy) observe(msg uint32, info *msllHookStruct) {
	switch msg {
	case wmLButtonDown:
		// Classification and denylist suppression are decided at gesture
		// start; moves and the release follow the gesture regardless of
		// their own tags, which are flaky mid-stroke on some drivers.
		if s.filter != nil && s.filter.SuppressInput() {
			return
		}
		if s.classifier.Classify(uint64(info.dwExtraInfo)) != TagPen {
			return
		}
		s.pressed = true
		s.sink(true, defaultPenPressure)

	case wmMouseMove:
		if s.pressed {
			s.sink(true, defaultPenPressure)
		}

	case wmLButtonUp:
		if s.pressed {
			s.pressed = false
			s.sink(false, 0)
		}
	}
}

// ============================================================================
// Wintab strategy
// ============================================================================

type wintabStrategy struct {
	logger *slog.Logger
	sink   reportSink

	win         *messageWindow
	hctx        uintptr
	pressureMax float64
}

func newWintabStrategy(logger *slog.Logger) registrationStrategy {
	return &wintabStrategy{logger: logger}
}

func (s *wintabStrategy) register(sink reportSink) error {
	if err := wintab32.Load(); err != nil {
		return fmt.Errorf("wintab driver not present: %w", err)
	}

	var lc logContextA
	r, _, _ := procWTInfoA.Call(wtiDefContext, 0, uintptr(unsafe.Pointer(&lc)))
	if r == 0 {
		return errors.New("no wintab default context (no tablet attached)")
	}

	s.sink = sink
	win, err := newMessageWindow("WhisprinWintabWnd", s.handleMessage)
	if err != nil {
		s.sink = nil
		return err
	}

	lc.Options |= cxoMessages
	lc.MsgBase = wtDefBase
	lc.PktData = pkButtons | pkNormalPress
	lc.PktMode = 0

	hctx, _, callErr := procWTOpenA.Call(win.hwnd, uintptr(unsafe.Pointer(&lc)), 1)
	if hctx == 0 {
		win.close()
		s.sink = nil
		return fmt.Errorf("WTOpenA: %w", callErr)
	}

	s.pressureMax = penPressureScale
	var axis wtAxis
	r, _, _ = procWTInfoA.Call(wtiDevices+uintptr(lc.Device), dvcNPressure, uintptr(unsafe.Pointer(&axis)))
	if r != 0 && axis.Max > 0 {
		s.pressureMax = float64(axis.Max)
	}

	s.win = win
	s.hctx = hctx
	return nil
}

func (s *wintabStrategy) unregister() {
	if s.win == nil {
		return
	}
	procWTClose.Call(s.hctx)
	s.win.close()
	s.win = nil
	s.hctx = 0
	s.sink = nil
}

func (s *wintabStrategy) handleMessage(_ uintptr, msg uint32, wparam, lparam uintptr) (uintptr, bool) {
	if msg != wtPacketMsg {
		return 0, false
	}

	// WT_PACKET: wparam is the packet serial, lparam the context handle.
	var pkt wtPacketData
	r, _, _ := procWTPacket.Call(lparam, wparam, uintptr(unsafe.Pointer(&pkt)))
	if r == 0 {
		return 0, true
	}

	pressure := clampPressure(float64(pkt.NormalPressure) / s.pressureMax)
	contact := pkt.Buttons&0x1 != 0 || pkt.NormalPressure > 0
	s.sink(contact, pressure)
	return 0, true
}

// ============================================================================
// Window denylist filter
// ============================================================================

// cursorWindowFilter resolves the window under the cursor to a process image
// and class name and matches them against the denylist. Every lookup failure
// fails open: suppression is advisory and must never eat input by accident.
type cursorWindowFilter struct {
	matcher *denylistMatcher
	logger  *slog.Logger
}

// newWindowFilter builds the platform window filter. Returns nil (no
// filtering) when the denylist is empty.
func newWindowFilter(matcher *denylistMatcher, logger *slog.Logger) WindowFilter {
	if matcher == nil || len(matcher.entries) == 0 {
		return nil
	}
	return &cursorWindowFilter{matcher: matcher, logger: logger}
}

func (f *cursorWindowFilter) SuppressInput() bool {
	var pt point
	if r, _, _ := procGetCursorPos.Call(uintptr(unsafe.Pointer(&pt))); r == 0 {
		return false
	}

	// WindowFromPoint takes POINT by value: both int32s packed into one
	// register-sized argument.
	packed := uintptr(uint64(uint32(pt.x)) | uint64(uint32(pt.y))<<32)
	hwnd, _, _ := procWindowFromPoint.Call(packed)
	if hwnd == 0 {
		return false
	}

	var classBuf [256]uint16
	className := ""
	if n, _, _ := procGetClassNameW.Call(hwnd, uintptr(unsafe.Pointer(&classBuf[0])), uintptr(len(classBuf))); n > 0 {
		className = windows.UTF16ToString(classBuf[:n])
	}

	var pid uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	if pid == 0 {
		return f.matcher.matches("", className)
	}

	proc, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return f.matcher.matches("", className)
	}
	defer windows.CloseHandle(proc)

	var imageBuf [windows.MAX_PATH]uint16
	size := uint32(len(imageBuf))
	image := ""
	r, _, _ := procQueryFullProcessImageName.Call(uintptr(proc), 0,
		uintptr(unsafe.Pointer(&imageBuf[0])), uintptr(unsafe.Pointer(&size)))
	if r != 0 {
		image = windows.UTF16ToString(imageBuf[:size])
	}

	return f.matcher.matches(image, className)
}

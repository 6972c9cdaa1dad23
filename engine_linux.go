// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package loopbridge

import (
	"container/heap"
	"errors"
	"os"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"
)

// newDefaultEngine returns the platform engine: epoll-backed on Linux.
func newDefaultEngine() (Engine, error) {
	return newEpollEngine()
}

// statNone marks an fs-poll watch that has not yet observed the path.
const statNone = -1

// engineHandle is the engine-side record for one handle identity. All
// fields are owned by the driving goroutine.
type engineHandle struct {
	id  HandleID
	typ HandleType

	active  bool
	closing bool

	// Poll state.
	fd         int
	socket     bool
	registered bool // fd currently in the epoll set
	events     PollEvents
	pollTramp  PollTrampoline

	// FS-poll state. gen invalidates queued ticks on stop and restart.
	path      string
	interval  time.Duration
	gen       uint64
	prev      FileStatus
	prevErrno int
	fsTramp   FSPollTrampoline

	closeTramp CloseTrampoline
}

// fsTick is a scheduled fs-poll stat, ordered by due time.
type fsTick struct {
	due uint64 // engine clock, milliseconds
	gen uint64
	h   *engineHandle
	idx int
}

// tickHeap is a min-heap of fs-poll ticks keyed on due time.
type tickHeap []*fsTick

func (t tickHeap) Len() int            { return len(t) }
func (t tickHeap) Less(i, j int) bool  { return t[i].due < t[j].due }
func (t tickHeap) Swap(i, j int)       { t[i], t[j] = t[j], t[i]; t[i].idx = i; t[j].idx = j }
func (t *tickHeap) Push(x interface{}) { e := x.(*fsTick); e.idx = len(*t); *t = append(*t, e) }
func (t *tickHeap) Pop() interface{} {
	old := *t
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*t = old[:n-1]
	return e
}

// epollEngine implements Engine on top of epoll. A single eventfd,
// registered in the epoll set, serves as the wake channel for Stop.
//
// Except for Stop, which only touches the stop flag and the wake fd, every
// method must be called from the goroutine that drives the engine.
type epollEngine struct {
	epfd   int
	wakeFd int

	handles    map[HandleID]*engineHandle
	fdToHandle map[int32]*engineHandle
	nextID     HandleID

	// closing holds handles awaiting close-callback delivery, FIFO so
	// teardown observes request order.
	closingQ     *queue.Queue
	activeCount  int
	closingCount int

	ticks tickHeap

	stopFlag atomic.Bool
	closed   bool

	// Cached clock: milliseconds since anchor, refreshed per iteration.
	anchor time.Time
	nowMS  uint64

	blockSig syscall.Signal
	idleOn   bool
	idleTime time.Duration

	eventBuf [256]unix.EpollEvent
}

func newEpollEngine() (*epollEngine, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFd, _, err := createWakeFd(0, EFD_CLOEXEC|EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, ev); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(epfd)
		return nil, err
	}
	return &epollEngine{
		epfd:       epfd,
		wakeFd:     wakeFd,
		handles:    make(map[HandleID]*engineHandle),
		fdToHandle: make(map[int32]*engineHandle),
		closingQ:   queue.New(),
		anchor:     time.Now(),
	}, nil
}

func (e *epollEngine) Caps() EngineCaps {
	// EPOLLRDHUP and EPOLLPRI are both available.
	return EngineCaps{Disconnect: true, Prioritized: true}
}

func (e *epollEngine) allocHandle(typ HandleType) *engineHandle {
	e.nextID++
	h := &engineHandle{id: e.nextID, typ: typ, prevErrno: statNone}
	e.handles[h.id] = h
	return h
}

func (e *epollEngine) PollInit(fd int, socket bool, tramp PollTrampoline) (HandleID, error) {
	if e.closed {
		return 0, ErrLoopClosed
	}
	if fd < 0 {
		return 0, statusError(unix.EBADF)
	}
	if socket {
		if _, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TYPE); err != nil {
			return 0, statusError(unix.ENOTSOCK)
		}
	} else if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0); err != nil {
		return 0, statusError(unix.EBADF)
	}
	if _, ok := e.fdToHandle[int32(fd)]; ok {
		return 0, statusError(unix.EEXIST)
	}
	h := e.allocHandle(HandlePoll)
	h.fd = fd
	h.socket = socket
	h.pollTramp = tramp
	e.fdToHandle[int32(fd)] = h
	return h.id, nil
}

func (e *epollEngine) PollStart(id HandleID, events PollEvents) error {
	h := e.handles[id]
	if h == nil || h.typ != HandlePoll || h.closing {
		return statusError(unix.EINVAL)
	}
	op := unix.EPOLL_CTL_ADD
	if h.registered {
		op = unix.EPOLL_CTL_MOD
	}
	ev := &unix.EpollEvent{Events: pollEventsToEpoll(events), Fd: int32(h.fd)}
	if err := unix.EpollCtl(e.epfd, op, h.fd, ev); err != nil {
		return sysErr(err)
	}
	h.registered = true
	h.events = events
	if !h.active {
		h.active = true
		e.activeCount++
	}
	return nil
}

func (e *epollEngine) PollStop(id HandleID) error {
	h := e.handles[id]
	if h == nil || h.typ != HandlePoll || h.closing {
		return statusError(unix.EINVAL)
	}
	if !h.active {
		return nil
	}
	e.detachPoll(h)
	h.active = false
	e.activeCount--
	return nil
}

// detachPoll removes the fd from the epoll set. The fd may already be gone
// (host closed it out from under us), so ctl errors are swallowed.
func (e *epollEngine) detachPoll(h *engineHandle) {
	if h.registered {
		_ = unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, h.fd, nil)
		h.registered = false
	}
}

func (e *epollEngine) FSPollInit(tramp FSPollTrampoline) (HandleID, error) {
	if e.closed {
		return 0, ErrLoopClosed
	}
	h := e.allocHandle(HandleFSPoll)
	h.fsTramp = tramp
	return h.id, nil
}

func (e *epollEngine) FSPollStart(id HandleID, path string, interval time.Duration) error {
	h := e.handles[id]
	if h == nil || h.typ != HandleFSPoll || h.closing {
		return statusError(unix.EINVAL)
	}
	if h.active {
		return nil
	}
	if path == "" {
		return statusError(unix.EINVAL)
	}
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	h.path = path
	h.interval = interval
	h.prevErrno = statNone
	h.gen++
	h.active = true
	e.activeCount++
	// First stat runs on the next drive iteration.
	heap.Push(&e.ticks, &fsTick{due: e.nowMS, gen: h.gen, h: h})
	return nil
}

func (e *epollEngine) FSPollStop(id HandleID) error {
	h := e.handles[id]
	if h == nil || h.typ != HandleFSPoll || h.closing {
		return statusError(unix.EINVAL)
	}
	if !h.active {
		return nil
	}
	h.active = false
	h.gen++ // orphan any queued tick
	e.activeCount--
	return nil
}

func (e *epollEngine) FSPollPath(id HandleID) (string, error) {
	h := e.handles[id]
	if h == nil || h.typ != HandleFSPoll || !h.active {
		return "", statusError(unix.EINVAL)
	}
	return h.path, nil
}

func (e *epollEngine) CloseHandle(id HandleID, tramp CloseTrampoline) error {
	h := e.handles[id]
	if h == nil || h.closing {
		return statusError(unix.EINVAL)
	}
	if h.typ == HandlePoll {
		e.detachPoll(h)
	}
	if h.active {
		h.active = false
		h.gen++
		e.activeCount--
	}
	h.closing = true
	h.closeTramp = tramp
	e.closingCount++
	e.closingQ.Add(h)
	return nil
}

func (e *epollEngine) Stop() {
	e.stopFlag.Store(true)
	e.wake()
}

func (e *epollEngine) Alive() bool {
	return e.activeCount > 0 || e.closingCount > 0
}

func (e *epollEngine) Now() uint64 { return e.nowMS }

func (e *epollEngine) UpdateTime() {
	e.nowMS = uint64(time.Since(e.anchor) / time.Millisecond)
}

func (e *epollEngine) BackendFD() int {
	if e.closed {
		return -1
	}
	return e.epfd
}

// BackendTimeout mirrors the blocking decision Drive makes: 0 when work is
// immediately runnable, the delay to the next scheduled tick, or -1 for an
// indefinite block.
func (e *epollEngine) BackendTimeout() int {
	if e.stopFlag.Load() || e.closingCount > 0 {
		return 0
	}
	if e.ticks.Len() > 0 {
		next := e.ticks[0].due
		if next <= e.nowMS {
			return 0
		}
		return int(next - e.nowMS)
	}
	return -1
}

func (e *epollEngine) Configure(opt EngineOption, arg int) error {
	switch opt {
	case OptBlockSignal:
		if syscall.Signal(arg) != unix.SIGPROF {
			return statusError(unix.EINVAL)
		}
		e.blockSig = unix.SIGPROF
		return nil
	case OptIdleTime:
		e.idleOn = true
		return nil
	default:
		return ErrBadConfigOption
	}
}

func (e *epollEngine) IdleTime() time.Duration { return e.idleTime }

func (e *epollEngine) Drive(mode RunMode) (bool, error) {
	if e.closed {
		return false, ErrLoopClosed
	}
	restore := e.maybeBlockSignal()
	defer restore()

	alive := e.Alive()
	for alive && !e.stopFlag.Load() {
		e.UpdateTime()
		e.runTicks()

		timeout := 0
		if mode != RunNowait && !e.stopFlag.Load() {
			timeout = e.BackendTimeout()
		}
		if err := e.pollOnce(timeout); err != nil {
			e.stopFlag.Store(false)
			return e.Alive(), err
		}

		e.UpdateTime()
		e.runTicks()
		e.runClosing()

		alive = e.Alive()
		if mode != RunDefault {
			break
		}
	}

	stopped := e.stopFlag.Swap(false)
	if mode == RunDefault {
		return stopped && e.Alive(), nil
	}
	return e.Alive(), nil
}

// pollOnce blocks in epoll_wait for at most timeout milliseconds (-1 blocks
// indefinitely) and dispatches readiness to poll trampolines.
func (e *epollEngine) pollOnce(timeout int) error {
	var blocked time.Time
	if e.idleOn && timeout != 0 {
		blocked = time.Now()
	}
	n, err := unix.EpollWait(e.epfd, e.eventBuf[:], timeout)
	if e.idleOn && timeout != 0 {
		e.idleTime += time.Since(blocked)
	}
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return sysErr(err)
	}
	for i := 0; i < n; i++ {
		fd := e.eventBuf[i].Fd
		if int(fd) == e.wakeFd {
			e.drainWake()
			continue
		}
		h := e.fdToHandle[fd]
		if h == nil || !h.active {
			continue
		}
		ev := epollToPollEvents(e.eventBuf[i].Events)
		// Error and hangup are unmaskable in epoll; report them through
		// whichever of the watched directions applies, the way level
		// triggered readiness does.
		if e.eventBuf[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			ev |= h.events & (PollReadable | PollWritable)
		}
		ev &= h.events
		if ev == 0 {
			continue
		}
		h.pollTramp(h.id, 0, ev)
	}
	return nil
}

// runTicks stats every fs-poll watch whose tick is due, dispatching changes
// and rescheduling.
func (e *epollEngine) runTicks() {
	for e.ticks.Len() > 0 && e.ticks[0].due <= e.nowMS {
		t := heap.Pop(&e.ticks).(*fsTick)
		h := t.h
		if t.gen != h.gen || !h.active {
			continue // stopped or restarted since scheduling
		}
		e.statTick(h)
		if h.active && t.gen == h.gen {
			heap.Push(&e.ticks, &fsTick{
				due: e.nowMS + uint64(h.interval/time.Millisecond),
				gen: h.gen,
				h:   h,
			})
		}
	}
}

// statTick performs one stat of the watched path and reports transitions:
// errors once per distinct errno, recovery, and metadata changes. The first
// successful observation establishes the baseline silently.
func (e *epollEngine) statTick(h *engineHandle) {
	curr, errno := statPath(h.path)
	if errno != 0 {
		if int(errno) != h.prevErrno {
			h.prevErrno = int(errno)
			h.fsTramp(h.id, -int(errno), nil, nil)
		}
		return
	}
	switch {
	case h.prevErrno == statNone:
		h.prev = curr
		h.prevErrno = 0
	case h.prevErrno != 0:
		h.prev = curr
		h.prevErrno = 0
		h.fsTramp(h.id, 0, nil, &curr)
	case statChanged(&h.prev, &curr):
		prev := h.prev
		h.prev = curr
		h.fsTramp(h.id, 0, &prev, &curr)
	}
}

// runClosing delivers pending close callbacks and releases engine records.
func (e *epollEngine) runClosing() {
	for e.closingQ.Length() > 0 {
		h := e.closingQ.Remove().(*engineHandle)
		e.closingCount--
		delete(e.handles, h.id)
		if h.typ == HandlePoll {
			delete(e.fdToHandle, int32(h.fd))
		}
		h.closeTramp(h.id)
	}
}

func (e *epollEngine) Close() error {
	if e.closed {
		return nil
	}
	if len(e.handles) > 0 {
		return statusError(unix.EBUSY)
	}
	e.closed = true
	err := unix.Close(e.wakeFd)
	if err2 := unix.Close(e.epfd); err == nil {
		err = err2
	}
	return err
}

// wake nudges a blocked epoll_wait via the eventfd. Overflow is impossible
// in practice and EAGAIN just means a wake is already pending.
func (e *epollEngine) wake() {
	var buf [8]byte
	buf[0] = 1
	_, _ = unix.Write(e.wakeFd, buf[:])
}

func (e *epollEngine) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(e.wakeFd, buf[:])
}

// maybeBlockSignal masks the configured signal on the driving thread for the
// duration of a Drive call.
func (e *epollEngine) maybeBlockSignal() func() {
	if e.blockSig == 0 {
		return func() {}
	}
	runtime.LockOSThread()
	var set, old unix.Sigset_t
	sig := uint(e.blockSig)
	set.Val[(sig-1)/64] |= 1 << ((sig - 1) % 64)
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, &old); err != nil {
		runtime.UnlockOSThread()
		return func() {}
	}
	return func() {
		_ = unix.PthreadSigmask(unix.SIG_SETMASK, &old, nil)
		runtime.UnlockOSThread()
	}
}

// pollEventsToEpoll converts a readiness mask to epoll event flags.
func pollEventsToEpoll(events PollEvents) uint32 {
	var ep uint32
	if events&PollReadable != 0 {
		ep |= unix.EPOLLIN
	}
	if events&PollWritable != 0 {
		ep |= unix.EPOLLOUT
	}
	if events&PollDisconnect != 0 {
		ep |= unix.EPOLLRDHUP
	}
	if events&PollPrioritized != 0 {
		ep |= unix.EPOLLPRI
	}
	return ep
}

// epollToPollEvents converts epoll event flags to a readiness mask.
func epollToPollEvents(ep uint32) PollEvents {
	var events PollEvents
	if ep&unix.EPOLLIN != 0 {
		events |= PollReadable
	}
	if ep&unix.EPOLLOUT != 0 {
		events |= PollWritable
	}
	if ep&unix.EPOLLRDHUP != 0 {
		events |= PollDisconnect
	}
	if ep&unix.EPOLLPRI != 0 {
		events |= PollPrioritized
	}
	return events
}

// statPath observes a path, translating failures to an errno.
func statPath(path string) (FileStatus, unix.Errno) {
	info, err := os.Stat(path)
	if err != nil {
		var errno unix.Errno
		if !errors.As(err, &errno) {
			errno = unix.EIO
		}
		return FileStatus{}, errno
	}
	return FileStatus{
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
	}, 0
}

// statChanged reports whether two observations differ in any tracked field.
func statChanged(a, b *FileStatus) bool {
	return a.Size != b.Size || a.Mode != b.Mode || !a.ModTime.Equal(b.ModTime)
}

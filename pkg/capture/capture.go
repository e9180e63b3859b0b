// Package capture runs the software dataplane: per-worker AF_PACKET
// sockets in a CPU fanout group feeding the classifier engine.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/aetherless/aetherless/pkg/dataplane"
)

// Options configures the capture manager.
type Options struct {
	Interface string
	Workers   int // default runtime.NumCPU()
	SnapLen   int // default 65536
}

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.SnapLen <= 0 {
		o.SnapLen = 65536
	}
}

// Manager reads frames from the interface and feeds them to the
// engine, one socket and one stats shard per worker.
//
// The sockets are a passive tap: frames are classified and counted,
// but a Drop verdict cannot remove them from the stack's receive
// path. Enforcement requires the XDP backend.
type Manager struct {
	opts   Options
	engine *dataplane.Engine
}

// New creates a capture manager for the given engine.
func New(opts Options, engine *dataplane.Engine) *Manager {
	opts.applyDefaults()
	return &Manager{opts: opts, engine: engine}
}

// Workers returns the number of capture workers after defaults.
func (m *Manager) Workers() int {
	return m.opts.Workers
}

// Run opens the fanout sockets and blocks until ctx is cancelled or a
// worker fails to start.
func (m *Manager) Run(ctx context.Context) error {
	iface, err := net.InterfaceByName(m.opts.Interface)
	if err != nil {
		return fmt.Errorf("lookup interface %s: %w", m.opts.Interface, err)
	}

	// All sockets in the group share a fanout ID; PACKET_FANOUT_CPU
	// steers each frame to the socket of the CPU that received it.
	fanoutID := os.Getpid() & 0xffff

	fds := make([]int, 0, m.opts.Workers)
	defer func() {
		for _, fd := range fds {
			unix.Close(fd)
		}
	}()

	for i := 0; i < m.opts.Workers; i++ {
		fd, err := openFanoutSocket(iface.Index, fanoutID)
		if err != nil {
			return fmt.Errorf("open capture socket %d: %w", i, err)
		}
		fds = append(fds, fd)
	}

	slog.Info("capture started",
		"interface", m.opts.Interface,
		"workers", m.opts.Workers,
		"fanout_id", fanoutID)

	var wg sync.WaitGroup
	for i, fd := range fds {
		wg.Add(1)
		go func(shard, fd int) {
			defer wg.Done()
			m.readLoop(ctx, shard, fd)
		}(i, fd)
	}

	<-ctx.Done()
	wg.Wait()
	slog.Info("capture stopped", "interface", m.opts.Interface)
	return nil
}

func (m *Manager) readLoop(ctx context.Context, shard, fd int) {
	buf := make([]byte, m.opts.SnapLen)
	for {
		if ctx.Err() != nil {
			return
		}
		n, from, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			slog.Error("capture read failed", "shard", shard, "err", err)
			return
		}
		// Locally generated frames loop back through the tap; only
		// inbound traffic is classified.
		if sa, ok := from.(*unix.SockaddrLinklayer); ok && sa.Pkttype == unix.PACKET_OUTGOING {
			continue
		}
		m.engine.Classify(shard, buf[:n])
	}
}

func openFanoutSocket(ifindex, fanoutID int) (int, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}

	sa := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  ifindex,
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}

	// A receive timeout lets readLoop notice context cancellation
	// instead of blocking in recvfrom forever.
	tv := unix.Timeval{Sec: 1}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set receive timeout: %w", err)
	}

	fanout := (unix.PACKET_FANOUT_CPU << 16) | fanoutID
	if err := unix.SetsockoptInt(fd, unix.SOL_PACKET, unix.PACKET_FANOUT, fanout); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("join fanout group: %w", err)
	}
	return fd, nil
}

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

// Package xdp loads the kernel classifier object and manages its
// attachment, redirect table, and statistics maps.
package xdp

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/vishvananda/netlink"

	"github.com/aetherless/aetherless/pkg/dataplane"
)

// Program and map names inside the classifier ELF object. The object
// is built out of tree:
//
//	clang -O2 -g -Wall -target bpf -c bpf/xdp_redirect.c -o xdp_redirect.o
const (
	ProgRedirect       = "xdp_redirect"
	ProgRedirectStrict = "xdp_redirect_strict"
	mapPortRedirect    = "port_redirect_map"
	mapStats           = "stats"
)

// Manager owns the loaded eBPF collection and its interface
// attachments.
type Manager struct {
	coll   *ebpf.Collection
	links  map[int]link.Link
	loaded bool
}

// New creates an empty Manager. Call Load before anything else.
func New() *Manager {
	return &Manager{
		links: make(map[int]link.Link),
	}
}

// Load reads the classifier object from objPath and loads its programs
// and maps into the kernel.
func (m *Manager) Load(objPath string) error {
	spec, err := ebpf.LoadCollectionSpec(objPath)
	if err != nil {
		return fmt.Errorf("load classifier spec %s: %w", objPath, err)
	}

	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return fmt.Errorf("load classifier collection: %w", err)
	}

	for _, name := range []string{mapPortRedirect, mapStats} {
		if coll.Maps[name] == nil {
			coll.Close()
			return fmt.Errorf("classifier object missing map %q", name)
		}
	}
	for _, name := range []string{ProgRedirect, ProgRedirectStrict} {
		if coll.Programs[name] == nil {
			coll.Close()
			return fmt.Errorf("classifier object missing program %q", name)
		}
	}

	m.coll = coll
	m.loaded = true
	slog.Info("classifier programs loaded", "object", objPath)
	return nil
}

// IsLoaded returns true if the classifier collection is loaded.
func (m *Manager) IsLoaded() bool {
	return m.loaded
}

// ProgramFor returns the program name implementing the given policy.
func ProgramFor(policy dataplane.Policy) string {
	if policy == dataplane.PolicyStrict {
		return ProgRedirectStrict
	}
	return ProgRedirect
}

// Attach attaches the named classifier program to the interface.
func (m *Manager) Attach(ifname, progName string) error {
	if !m.loaded {
		return fmt.Errorf("classifier not loaded")
	}
	prog, ok := m.coll.Programs[progName]
	if !ok {
		return fmt.Errorf("program %q not found", progName)
	}

	lnk, err := netlink.LinkByName(ifname)
	if err != nil {
		return fmt.Errorf("lookup interface %s: %w", ifname, err)
	}
	ifindex := lnk.Attrs().Index

	if _, exists := m.links[ifindex]; exists {
		return fmt.Errorf("XDP already attached to %s", ifname)
	}

	l, err := link.AttachXDP(link.XDPOptions{
		Program:   prog,
		Interface: ifindex,
	})
	if err != nil {
		return fmt.Errorf("attach XDP to %s: %w", ifname, err)
	}

	m.links[ifindex] = l
	slog.Info("attached XDP classifier", "interface", ifname, "program", progName)
	return nil
}

// Detach removes the classifier from the interface. Detaching an
// interface with no attachment is not an error.
func (m *Manager) Detach(ifname string) error {
	lnk, err := netlink.LinkByName(ifname)
	if err != nil {
		return fmt.Errorf("lookup interface %s: %w", ifname, err)
	}
	ifindex := lnk.Attrs().Index

	l, exists := m.links[ifindex]
	if !exists {
		return nil
	}
	if err := l.Close(); err != nil {
		return fmt.Errorf("detach XDP from %s: %w", ifname, err)
	}
	delete(m.links, ifindex)
	slog.Info("detached XDP classifier", "interface", ifname)
	return nil
}

// SyncPort installs or replaces a redirect entry in the kernel map.
func (m *Manager) SyncPort(port uint16, val dataplane.PortValue) error {
	if !m.loaded {
		return fmt.Errorf("classifier not loaded")
	}
	key := dataplane.PortKey{Port: port}
	if err := m.coll.Maps[mapPortRedirect].Update(&key, &val, ebpf.UpdateAny); err != nil {
		return fmt.Errorf("update redirect entry for port %d: %w", port, err)
	}
	return nil
}

// DeletePort removes a redirect entry from the kernel map. Deleting a
// missing entry is not an error.
func (m *Manager) DeletePort(port uint16) error {
	if !m.loaded {
		return fmt.Errorf("classifier not loaded")
	}
	key := dataplane.PortKey{Port: port}
	err := m.coll.Maps[mapPortRedirect].Delete(&key)
	if err != nil && !errors.Is(err, ebpf.ErrKeyNotExist) {
		return fmt.Errorf("delete redirect entry for port %d: %w", port, err)
	}
	return nil
}

// ReadStats sums the per-CPU statistics slots into aggregate counters.
func (m *Manager) ReadStats() (dataplane.Counters, error) {
	var c dataplane.Counters
	if !m.loaded {
		return c, fmt.Errorf("classifier not loaded")
	}

	stats := m.coll.Maps[mapStats]
	read := func(idx uint32) (uint64, error) {
		var perCPU []uint64
		if err := stats.Lookup(idx, &perCPU); err != nil {
			return 0, fmt.Errorf("read stats slot %d: %w", idx, err)
		}
		var total uint64
		for _, v := range perCPU {
			total += v
		}
		return total, nil
	}

	var err error
	if c.Total, err = read(dataplane.CtrPacketsTotal); err != nil {
		return c, err
	}
	if c.Matched, err = read(dataplane.CtrPacketsMatched); err != nil {
		return c, err
	}
	if c.Passed, err = read(dataplane.CtrPacketsPassed); err != nil {
		return c, err
	}
	if c.Dropped, err = read(dataplane.CtrPacketsDropped); err != nil {
		return c, err
	}
	return c, nil
}

// ClearStats zeroes every per-CPU statistics slot.
func (m *Manager) ClearStats() error {
	if !m.loaded {
		return fmt.Errorf("classifier not loaded")
	}
	stats := m.coll.Maps[mapStats]
	zero := make([]uint64, ebpf.MustPossibleCPU())
	for idx := uint32(0); idx < dataplane.CtrMax; idx++ {
		if err := stats.Update(idx, zero, ebpf.UpdateAny); err != nil {
			return fmt.Errorf("clear stats slot %d: %w", idx, err)
		}
	}
	return nil
}

// Close detaches from all interfaces and releases the collection.
func (m *Manager) Close() error {
	for ifindex, l := range m.links {
		if err := l.Close(); err != nil {
			slog.Error("failed to detach XDP", "ifindex", ifindex, "err", err)
		}
	}
	m.links = make(map[int]link.Link)
	if m.coll != nil {
		m.coll.Close()
		m.coll = nil
	}
	m.loaded = false
	return nil
}

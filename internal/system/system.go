// Package system wires the JIT cache, the cartridge engine, and the
// savestate serializer into one emulated machine behind a
// functional-options constructor.
package system

import (
	"fmt"
	"os"

	"github.com/kallisti-dev/ndscore/internal/cart"
	"github.com/kallisti-dev/ndscore/internal/jit"
	"github.com/kallisti-dev/ndscore/internal/savestate"
	"github.com/kallisti-dev/ndscore/internal/scheduler"
	"github.com/kallisti-dev/ndscore/internal/types"
	"github.com/kallisti-dev/ndscore/pkg/log"
	"github.com/kallisti-dev/ndscore/pkg/romload"
)

// System is one emulated DS/DSi machine: the shared scheduler timeline,
// the JIT code cache, and the inserted cartridge. The ARM7/ARM9
// interpreters and the code generator are external collaborators and are
// not modeled here.
type System struct {
	Model types.Model
	Sched *scheduler.Scheduler
	JIT   *jit.Cache
	Cart  *cart.CartEngine

	rom     *cart.CartRom
	backup  *cart.CartBackup
	savPath string
	log     log.Logger
}

// config collects the options New applies before construction.
type config struct {
	model      types.Model
	jitOpts    []jit.Opt
	logger     log.Logger
	arm7BIOS   []byte
	raiseIRQ   func(cart.IRQLine)
	dmaTrigger func()
	savePath   string
}

// Opt configures a System at construction time.
type Opt func(*config)

// AsModel selects DS or DSi behavior (KEY1 seed window, B7 region gating).
func AsModel(m types.Model) Opt {
	return func(c *config) { c.model = m }
}

// WithJITOptions forwards tunables to the underlying jit.Cache.
func WithJITOptions(opts ...jit.Opt) Opt {
	return func(c *config) { c.jitOpts = append(c.jitOpts, opts...) }
}

// WithLogger installs the logger used wherever an error is logged and
// execution continues rather than failing.
func WithLogger(l log.Logger) Opt {
	return func(c *config) { c.logger = l }
}

// WithARM7BIOS supplies the BIOS bytes KEY1's schedule is seeded from.
// A nil or short BIOS is not fatal: the key buffer zeroes and the
// game simply fails to boot.
func WithARM7BIOS(bios []byte) Opt {
	return func(c *config) { c.arm7BIOS = bios }
}

// WithIRQHandler installs the callback CartEngine raises CartXferDone and
// CartIREQMC through.
func WithIRQHandler(fn func(cart.IRQLine)) Opt {
	return func(c *config) { c.raiseIRQ = fn }
}

// WithDMATrigger installs the callback fired when a cart-transfer word
// becomes ready.
func WithDMATrigger(fn func()) Opt {
	return func(c *config) { c.dmaTrigger = fn }
}

// WithSavePath overrides the backup-memory persistence path derived by
// default from the ROM's own filename (romload.SavePath).
func WithSavePath(path string) Opt {
	return func(c *config) { c.savePath = path }
}

// New loads romPath (via pkg/romload, transparently decompressing archives)
// and wires a System around it: CartRom, the matching CartBackup family,
// CartEngine, and a fresh JIT cache, all sharing one Scheduler timeline.
func New(romPath string, opts ...Opt) (*System, error) {
	cfg := config{model: types.DS}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.NewNullLogger()
	}
	if cfg.savePath == "" {
		cfg.savePath = romload.SavePath(romPath)
	}

	romData, err := romload.Load(romPath)
	if err != nil {
		return nil, fmt.Errorf("system: %w", err)
	}
	if len(romData) == 0 {
		return nil, fmt.Errorf("system: %s contains no ROM data", romPath)
	}

	rom := cart.NewCartRom(cfg.model, romData, cfg.arm7BIOS, cfg.logger)

	s := &System{
		Model:   cfg.model,
		Sched:   scheduler.NewScheduler(),
		JIT:     jit.New(cfg.jitOpts...),
		rom:     rom,
		savPath: cfg.savePath,
		log:     cfg.logger,
	}

	s.backup = cart.NewCartBackup(rom.Params().SaveMemType, s.persistBackup)
	if saved, err := romload.Load(cfg.savePath); err == nil {
		s.backup.PreloadSRAM(saved)
	}

	s.Cart = cart.NewCartEngine(s.Sched, cfg.model, rom, s.backup, cfg.arm7BIOS, cfg.raiseIRQ, cfg.dmaTrigger, cfg.logger)

	return s, nil
}

// persistBackup implements write_nds_save: the sole persistence
// boundary for backup memory, called once per SPI write transaction.
func (s *System) persistBackup(firstAddr, n uint32) {
	sram := s.backup.SRAM()
	if err := os.WriteFile(s.savPath, sram, 0644); err != nil {
		s.log.Errorf("system: failed to persist backup memory (%d bytes at %#x): %v", n, firstAddr, err)
	}
}

// ROM returns the inserted cartridge's CartRom, for inspecting its header
// and synthesized cart ID.
func (s *System) ROM() *cart.CartRom {
	return s.rom
}

// Tick advances the shared timeline by cycles, running any cart-engine
// events due to fire.
func (s *System) Tick(cycles uint64) {
	s.Sched.Tick(cycles)
}

// SaveState snapshots the machine into w: backup memory and the
// scheduler's cycle counter.
func (s *System) SaveState(w *savestate.Writer) {
	w.Section("CART")
	w.Write32(uint32(len(s.backup.SRAM())))
	w.WriteArray(s.backup.SRAM())

	w.Section("SCHD")
	w.Write64(s.Sched.Cycle())
}

// LoadState restores backup memory and the scheduler's cycle counter from
// r. Missing sections are a no-op rather than an error.
func (s *System) LoadState(r *savestate.Reader) error {
	if r.Section("CART") {
		n := r.Read32()
		buf := make([]byte, n)
		r.ReadArray(buf)
		s.backup.PreloadSRAM(buf)
	}
	if r.Section("SCHD") {
		_ = r.Read64() // scheduler cycle count: informational only, since
		// the event list itself (the only thing that actually needs to
		// survive a restore) is owned by whichever events System's
		// caller re-arms after loading, not by Scheduler itself.
	}
	return r.Err()
}

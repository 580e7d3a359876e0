package homekit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/victorjacobs/go-comfoconnect/bridge"
	"github.com/victorjacobs/go-comfoconnect/entry"
	"go.uber.org/zap"
)

const DefaultFilterPeriod = 180

type Config struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Pin     string `yaml:"pin"`
	Addr    string `yaml:"addr"`
	// FilterPeriod is the number of days a new filter lasts.
	FilterPeriod int `yaml:"filter_period"`
}

// Bridge publishes every loaded entry as an accessory behind one HomeKit bridge. The HAP server is
// restarted whenever the set of accessories changes.
type Bridge struct {
	cfg        Config
	dispatcher *bridge.Dispatcher
	logger     *zap.SugaredLogger
	version    string

	mu          sync.Mutex
	accessories map[string]*Accessory
	changed     chan struct{}
}

func NewBridge(cfg Config, dispatcher *bridge.Dispatcher, version string, logger *zap.SugaredLogger) *Bridge {
	if cfg.FilterPeriod <= 0 {
		cfg.FilterPeriod = DefaultFilterPeriod
	}

	return &Bridge{
		cfg:         cfg,
		dispatcher:  dispatcher,
		logger:      logger,
		version:     version,
		accessories: map[string]*Accessory{},
		changed:     make(chan struct{}, 1),
	}
}

var _ entry.Listener = (*Bridge)(nil)

func (b *Bridge) EntryLoaded(rt *entry.Runtime) {
	node := rt.NodeID()
	info := accessory.Info{
		Name:         rt.Unit.Name,
		SerialNumber: node,
		Manufacturer: rt.Unit.Manufacturer,
		Model:        rt.Unit.Model,
		Firmware:     rt.Unit.SwVersion,
	}

	a := newAccessory(info, node, rt.Device, b.cfg.FilterPeriod, b.logger.With("entry", rt.Entry.EntryID))

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := a.attach(ctx, b.dispatcher, node); err != nil {
		b.logger.Warnf("Registering HomeKit sensors for %v failed: %v", rt.Entry.EntryID, err)
	}

	b.mu.Lock()
	if old, ok := b.accessories[rt.Entry.EntryID]; ok {
		old.detach()
	}
	b.accessories[rt.Entry.EntryID] = a
	b.mu.Unlock()

	b.notify()
}

func (b *Bridge) EntryUnloaded(entryID string) {
	b.mu.Lock()
	a, ok := b.accessories[entryID]
	delete(b.accessories, entryID)
	b.mu.Unlock()

	if !ok {
		return
	}
	a.detach()
	b.notify()
}

func (b *Bridge) notify() {
	select {
	case b.changed <- struct{}{}:
	default:
	}
}

// Accessories returns the current accessories ordered by entry id.
func (b *Bridge) Accessories() []*Accessory {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(b.accessories))
	for id := range b.accessories {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*Accessory, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.accessories[id])
	}
	return out
}

func (b *Bridge) root() *accessory.A {
	root := accessory.NewBridge(accessory.Info{
		Name:         "ComfoConnect",
		SerialNumber: "comfoconnect",
		Manufacturer: "Zehnder",
		Model:        "go-comfoconnect",
		Firmware:     b.version,
	})
	root.A.Id = 1
	return root.A
}

// Run serves HomeKit until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	dir, err := filepath.Abs(b.cfg.Dir)
	if err != nil {
		return fmt.Errorf("homekit dir: %w", err)
	}
	fs := hap.NewFsStore(dir)

	for {
		accs := b.Accessories()
		as := make([]*accessory.A, 0, len(accs))
		for _, a := range accs {
			as = append(as, a.A)
		}

		s, err := hap.NewServer(fs, b.root(), as...)
		if err != nil {
			return fmt.Errorf("creating homekit server: %w", err)
		}
		if b.cfg.Pin != "" {
			s.Pin = b.cfg.Pin
		}
		if b.cfg.Addr != "" {
			s.Addr = b.cfg.Addr
		}

		serveCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			done <- s.ListenAndServe(serveCtx)
		}()
		b.logger.Infof("Serving %v accessories over HomeKit", len(as))

		select {
		case <-ctx.Done():
			cancel()
			<-done
			return nil
		case err := <-done:
			cancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				b.logger.Warnf("HomeKit server stopped: %v", err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
		case <-b.changed:
			cancel()
			<-done
		}
	}
}

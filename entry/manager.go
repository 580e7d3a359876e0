package entry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/victorjacobs/go-comfoconnect/bridge"
	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
	"github.com/victorjacobs/go-comfoconnect/homeassistant"
	"github.com/victorjacobs/go-comfoconnect/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrAuthFailed means the gateway no longer accepts our app. The entry needs a reauth.
	ErrAuthFailed = errors.New("access denied")
	// ErrNotReady means the gateway could not be reached. Setup is retried later.
	ErrNotReady = errors.New("bridge not ready")
	// ErrSetupFailed means the gateway refused the connection for another reason.
	ErrSetupFailed = errors.New("setup failed")

	ErrNotLoaded     = errors.New("entry not loaded")
	ErrAlreadyLoaded = errors.New("entry already loaded")
)

const (
	KeepAliveInterval = 30 * time.Second

	DefaultMinRetry = 5 * time.Second
	DefaultMaxRetry = 5 * time.Minute

	manufacturer = "Zehnder"
	gatewayModel = "ComfoConnect LAN C"
)

// Device is a connection to one gateway and the unit behind it.
type Device interface {
	bridge.Controller

	Connect(ctx context.Context, localUUID uuid.UUID) error
	Disconnect(ctx context.Context) error
	CmdVersionRequest(ctx context.Context) (comfoconnect.VersionConfirm, error)
	CmdTimeRequest(ctx context.Context) (uint32, error)
	GetProperty(ctx context.Context, p comfoconnect.Property) (any, error)
	GetPropertyString(ctx context.Context, p comfoconnect.Property) (string, error)
}

type Store interface {
	List(ctx context.Context) ([]store.Entry, error)
	Get(ctx context.Context, entryID string) (store.Entry, error)
	UpdateHost(ctx context.Context, entryID string, host string) error
	Remove(ctx context.Context, entryID string) error
}

// Listener is told about entries being loaded and unloaded.
type Listener interface {
	EntryLoaded(rt *Runtime)
	EntryUnloaded(entryID string)
}

type Options struct {
	Store      Store
	Client     *homeassistant.Client
	Dispatcher *bridge.Dispatcher
	Recorder   bridge.Recorder
	Listeners  []Listener
	Logger     *zap.SugaredLogger

	// NewDevice returns an unconnected device. Defaults to a ComfoConnect bridge publishing on
	// Dispatcher.
	NewDevice func(host string, id uuid.UUID) Device
	// Discover broadcasts for gateways.
	Discover func(ctx context.Context) ([]comfoconnect.DiscoveredBridge, error)

	KeepAliveInterval time.Duration
	PollInterval      time.Duration
	MinRetry          time.Duration
	MaxRetry          time.Duration
}

// Runtime is a loaded entry.
type Runtime struct {
	Entry      store.Entry
	Device     Device
	Platform   *bridge.Platform
	Connection *bridge.ConnectionSensor
	Gateway    homeassistant.Device
	Unit       homeassistant.Device

	localUUID uuid.UUID
	logger    *zap.SugaredLogger

	mu        sync.Mutex
	connected bool

	cancel context.CancelFunc
	done   sync.WaitGroup
}

func (rt *Runtime) Connected() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.connected
}

// NodeID is the entry's node in topics and dispatcher signals.
func (rt *Runtime) NodeID() string {
	return rt.Platform.Node()
}

func (rt *Runtime) setConnected(connected bool) {
	rt.mu.Lock()
	changed := rt.connected != connected
	rt.connected = connected
	rt.mu.Unlock()

	if !changed {
		return
	}

	rt.Connection.SetValue(connected)
	if err := rt.Platform.SetAvailable(connected); err != nil {
		rt.logger.Warnf("Publishing availability failed: %v", err)
	}
}

// Manager sets up, unloads and reloads config entries.
type Manager struct {
	opts   Options
	logger *zap.SugaredLogger

	mu       sync.Mutex
	runtimes map[string]*Runtime
	loading  map[string]bool
}

func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = bridge.NewDispatcher()
	}
	if opts.NewDevice == nil {
		opts.NewDevice = func(host string, id uuid.UUID) Device {
			return bridge.NewComfoConnectBridge(host, id, opts.Dispatcher, opts.Recorder, opts.Logger)
		}
	}
	if opts.Discover == nil {
		opts.Discover = func(ctx context.Context) ([]comfoconnect.DiscoveredBridge, error) {
			return comfoconnect.Discover(ctx, "", comfoconnect.DefaultDiscoveryTimeout, opts.Logger)
		}
	}
	if opts.KeepAliveInterval == 0 {
		opts.KeepAliveInterval = KeepAliveInterval
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = bridge.PollInterval
	}
	if opts.MinRetry == 0 {
		opts.MinRetry = DefaultMinRetry
	}
	if opts.MaxRetry == 0 {
		opts.MaxRetry = DefaultMaxRetry
	}

	return &Manager{
		opts:     opts,
		logger:   opts.Logger,
		runtimes: map[string]*Runtime{},
		loading:  map[string]bool{},
	}
}

func (m *Manager) Dispatcher() *bridge.Dispatcher {
	return m.opts.Dispatcher
}

// Setup connects to the entry's gateway and publishes its entities.
func (m *Manager) Setup(ctx context.Context, e store.Entry) error {
	m.mu.Lock()
	if _, ok := m.runtimes[e.EntryID]; ok || m.loading[e.EntryID] {
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrAlreadyLoaded, e.EntryID)
	}
	m.loading[e.EntryID] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.loading, e.EntryID)
		m.mu.Unlock()
	}()

	logger := m.logger.With("entry", e.EntryID)

	id, err := uuid.Parse(e.UUID)
	if err != nil {
		return fmt.Errorf("%w: invalid bridge uuid %q", ErrSetupFailed, e.UUID)
	}
	localUUID, err := uuid.Parse(e.LocalUUID)
	if err != nil {
		return fmt.Errorf("%w: invalid local uuid %q", ErrSetupFailed, e.LocalUUID)
	}

	device, err := m.connect(ctx, &e, id, localUUID, logger)
	if err != nil {
		return err
	}

	rt, err := m.load(ctx, e, device, id, localUUID, logger)
	if err != nil {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = device.Disconnect(disconnectCtx)
		return err
	}

	m.mu.Lock()
	m.runtimes[e.EntryID] = rt
	m.mu.Unlock()

	for _, l := range m.opts.Listeners {
		l.EntryLoaded(rt)
	}

	logger.Infof("Set up bridge %v at %v", e.UUID, e.Host)
	return nil
}

// connect connects to the entry's host. On a timeout the gateway may have moved: it is looked up by
// uuid and the entry's host is updated.
func (m *Manager) connect(ctx context.Context, e *store.Entry, id uuid.UUID, localUUID uuid.UUID, logger *zap.SugaredLogger) (Device, error) {
	device := m.opts.NewDevice(e.Host, id)
	err := device.Connect(ctx, localUUID)
	switch {
	case err == nil:
		return device, nil
	case errors.Is(err, comfoconnect.ErrNotAllowed):
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	case isGatewayError(err):
		return nil, fmt.Errorf("%w: %w", ErrSetupFailed, err)
	case !errors.Is(err, comfoconnect.ErrTimeout):
		return nil, fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	logger.Warnf("Timeout connecting to bridge %q, trying discovery again.", e.Host)

	bridges, derr := m.opts.Discover(ctx)
	if derr != nil {
		logger.Warnf("Discovery failed: %v", derr)
	}

	var found *comfoconnect.DiscoveredBridge
	for i := range bridges {
		if bridges[i].UUID == id {
			found = &bridges[i]
			break
		}
	}
	if found == nil {
		logger.Warnf("Unable to discover bridge %q. Retrying later.", e.UUID)
		return nil, fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	device = m.opts.NewDevice(found.Host, id)
	if err := device.Connect(ctx, localUUID); err != nil {
		if errors.Is(err, comfoconnect.ErrNotAllowed) {
			return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	if found.Host != e.Host {
		logger.Infof("Bridge %v moved from %v to %v", e.UUID, e.Host, found.Host)
		if err := m.opts.Store.UpdateHost(ctx, e.EntryID, found.Host); err != nil {
			logger.Warnf("Updating host failed: %v", err)
		}
		e.Host = found.Host
	}

	return device, nil
}

func isGatewayError(err error) bool {
	var resultErr *comfoconnect.ResultError
	return errors.As(err, &resultErr)
}

func (m *Manager) load(ctx context.Context, e store.Entry, device Device, id uuid.UUID, localUUID uuid.UUID, logger *zap.SugaredLogger) (*Runtime, error) {
	node := bridge.ID(id)

	gateway, unit, err := deviceInfo(ctx, device, node)
	if err != nil {
		return nil, fmt.Errorf("%w: reading device info: %w", ErrNotReady, err)
	}

	platform := bridge.NewPlatform(m.opts.Client, m.opts.Dispatcher, node, unit, gateway, logger.Named("platform"))
	connection := bridge.NewConnectionSensor(e.UniqueID)

	entities := append([]bridge.Entity{connection}, bridge.Entities(device, node, e.UniqueID)...)
	if err := platform.Add(ctx, entities...); err != nil {
		_ = platform.Remove(false)
		return nil, fmt.Errorf("%w: adding entities: %w", ErrNotReady, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		Entry:      e,
		Device:     device,
		Platform:   platform,
		Connection: connection,
		Gateway:    gateway,
		Unit:       unit,
		localUUID:  localUUID,
		logger:     logger,
		cancel:     cancel,
	}
	rt.setConnected(true)

	rt.done.Add(2)
	go func() {
		defer rt.done.Done()
		platform.Run(runCtx, m.opts.PollInterval)
	}()
	go func() {
		defer rt.done.Done()
		m.keepAliveLoop(runCtx, rt)
	}()

	return rt, nil
}

func deviceInfo(ctx context.Context, device Device, node string) (homeassistant.Device, homeassistant.Device, error) {
	version, err := device.CmdVersionRequest(ctx)
	if err != nil {
		return homeassistant.Device{}, homeassistant.Device{}, err
	}

	model, err := device.GetPropertyString(ctx, comfoconnect.PropertyModel)
	if err != nil {
		return homeassistant.Device{}, homeassistant.Device{}, err
	}
	firmware, err := device.GetProperty(ctx, comfoconnect.PropertyFirmwareVersion)
	if err != nil {
		return homeassistant.Device{}, homeassistant.Device{}, err
	}
	name, err := device.GetPropertyString(ctx, comfoconnect.PropertyName)
	if err != nil {
		return homeassistant.Device{}, homeassistant.Device{}, err
	}

	gatewayID := "comfoconnect_" + version.SerialNumber
	gateway := homeassistant.Device{
		Identifiers:  []string{gatewayID},
		Name:         version.SerialNumber,
		Manufacturer: manufacturer,
		Model:        gatewayModel,
		SwVersion:    comfoconnect.VersionDecode(version.GatewayVersion),
	}

	unit := homeassistant.Device{
		Identifiers:  []string{"comfoconnect_" + node},
		Name:         name,
		Manufacturer: manufacturer,
		Model:        model,
		ViaDevice:    gatewayID,
	}
	if v, ok := firmware.(int64); ok {
		unit.SwVersion = comfoconnect.VersionDecode(uint32(v))
	}

	return gateway, unit, nil
}

func (m *Manager) keepAliveLoop(ctx context.Context, rt *Runtime) {
	ticker := time.NewTicker(m.opts.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.keepAlive(ctx, rt)
		}
	}
}

// keepAlive checks the connection with a request that has a reply and reconnects when it dropped.
func (m *Manager) keepAlive(ctx context.Context, rt *Runtime) {
	rt.logger.Debug("Sending keepalive...")

	_, err := rt.Device.CmdTimeRequest(ctx)
	if err == nil {
		rt.setConnected(true)
		return
	}
	if !errors.Is(err, comfoconnect.ErrNotConnected) && !errors.Is(err, comfoconnect.ErrTimeout) {
		rt.logger.Warnf("Keepalive failed: %v", err)
		return
	}

	rt.logger.Infof("Connection to %v lost (%v), reconnecting", rt.Entry.Host, err)
	if err := rt.Device.Connect(ctx, rt.localUUID); err != nil {
		if errors.Is(err, comfoconnect.ErrTimeout) {
			rt.logger.Debug("Connection timed out. Retrying later...")
		} else {
			rt.logger.Warnf("Reconnecting failed: %v", err)
		}
		rt.setConnected(false)
		return
	}

	rt.setConnected(true)
}

// Unload removes the entry's entities from Home Assistant's view and disconnects.
func (m *Manager) Unload(ctx context.Context, entryID string) error {
	return m.unload(ctx, entryID, false)
}

func (m *Manager) unload(ctx context.Context, entryID string, purge bool) error {
	m.mu.Lock()
	rt, ok := m.runtimes[entryID]
	delete(m.runtimes, entryID)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %v", ErrNotLoaded, entryID)
	}

	rt.cancel()
	rt.done.Wait()

	for _, l := range m.opts.Listeners {
		l.EntryUnloaded(entryID)
	}

	var firstErr error
	if err := rt.Platform.Remove(purge); err != nil {
		firstErr = err
	}
	if err := rt.Device.Disconnect(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	rt.logger.Infof("Unloaded bridge %v", rt.Entry.UUID)
	return firstErr
}

// Reload unloads the entry if it is loaded and sets it up again from the store.
func (m *Manager) Reload(ctx context.Context, entryID string) error {
	if err := m.Unload(ctx, entryID); err != nil && !errors.Is(err, ErrNotLoaded) {
		m.logger.Warnf("Unloading %v failed: %v", entryID, err)
	}

	e, err := m.opts.Store.Get(ctx, entryID)
	if err != nil {
		return err
	}
	return m.Setup(ctx, e)
}

// Remove unloads the entry, deletes its entities from Home Assistant and forgets it.
func (m *Manager) Remove(ctx context.Context, entryID string) error {
	if err := m.unload(ctx, entryID, true); err != nil && !errors.Is(err, ErrNotLoaded) {
		m.logger.Warnf("Unloading %v failed: %v", entryID, err)
	}
	return m.opts.Store.Remove(ctx, entryID)
}

// SetupAll sets up every stored entry. Entries that are not ready are retried with a growing delay
// until they succeed or ctx is done.
func (m *Manager) SetupAll(ctx context.Context) error {
	entries, err := m.opts.Store.List(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		e := e
		g.Go(func() error {
			m.setupWithRetry(ctx, e)
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) setupWithRetry(ctx context.Context, e store.Entry) {
	delay := m.opts.MinRetry

	for {
		err := m.Setup(ctx, e)
		switch {
		case err == nil:
			return
		case errors.Is(err, ErrAuthFailed):
			m.logger.Errorf("Bridge %v refused access, run `pair --reauth %v` to register again: %v", e.Host, e.EntryID, err)
			return
		case !errors.Is(err, ErrNotReady):
			m.logger.Errorf("Setting up %v failed: %v", e.EntryID, err)
			return
		}

		m.logger.Warnf("Bridge %v not ready, retrying in %v: %v", e.Host, delay, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > m.opts.MaxRetry {
			delay = m.opts.MaxRetry
		}
	}
}

// Shutdown unloads every entry.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, rt := range m.Runtimes() {
		if err := m.Unload(ctx, rt.Entry.EntryID); err != nil {
			m.logger.Warnf("Unloading %v failed: %v", rt.Entry.EntryID, err)
		}
	}
}

func (m *Manager) Runtime(entryID string) (*Runtime, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.runtimes[entryID]
	return rt, ok
}

func (m *Manager) Runtimes() []*Runtime {
	m.mu.Lock()
	defer m.mu.Unlock()

	runtimes := make([]*Runtime, 0, len(m.runtimes))
	for _, rt := range m.runtimes {
		runtimes = append(runtimes, rt)
	}
	sort.Slice(runtimes, func(i, j int) bool { return runtimes[i].Entry.EntryID < runtimes[j].Entry.EntryID })
	return runtimes
}

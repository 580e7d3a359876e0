package flow

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
	"github.com/victorjacobs/go-comfoconnect/store"
	"go.uber.org/zap"
)

const (
	StepUser     = "user"
	StepManual   = "manual"
	StepEnterPin = "enter_pin"

	// ManualBridgeID is the user step option for entering a host by hand.
	ManualBridgeID = "manual"

	DefaultAppName = "ComfoConnect bridge"

	maxPin = 9999
)

type ResultType string

const (
	ResultForm        ResultType = "form"
	ResultCreateEntry ResultType = "create_entry"
	ResultAbort       ResultType = "abort"
)

const (
	ReasonAlreadyConfigured = "already_configured"
	ReasonReauthSuccessful  = "reauth_successful"

	ErrorInvalidHost     = "invalid_host"
	ErrorInvalidPin      = "invalid_pin"
	ErrorInvalidPinRange = "invalid_pin_range"
)

type EntryData struct {
	Host      string `json:"host"`
	UUID      string `json:"uuid"`
	LocalUUID string `json:"local_uuid"`
}

// Result is what a step returns: another form to fill in, a created entry or an abort.
type Result struct {
	Type    ResultType
	StepID  string
	Errors  map[string]string
	Options map[string]string
	Title   string
	Data    *EntryData
	EntryID string
	Reason  string
}

type ImportConfig struct {
	Host  string `yaml:"host"`
	Token string `yaml:"token"`
}

// Session is the part of a gateway connection registration needs.
type Session interface {
	Connect(ctx context.Context, localUUID uuid.UUID) error
	CmdStartSession(ctx context.Context, takeover bool) (comfoconnect.StartSessionConfirm, error)
	CmdRegisterApp(ctx context.Context, localUUID uuid.UUID, deviceName string, pin uint32) error
	Disconnect(ctx context.Context) error
}

type Entries interface {
	UniqueIDs(ctx context.Context) (map[string]bool, error)
	Add(ctx context.Context, e store.Entry) (store.Entry, error)
}

type Options struct {
	Entries Entries

	// Discover finds gateways. An empty host broadcasts.
	Discover func(ctx context.Context, host string) ([]comfoconnect.DiscoveredBridge, error)
	// NewSession returns an unconnected session to a gateway.
	NewSession func(host string, id uuid.UUID) Session
	// Reload is called after a successful reauth.
	Reload func(ctx context.Context, entryID string) error

	AppName      string
	LocationName string
	Logger       *zap.SugaredLogger
}

// Flow walks a user through adding one gateway. A Flow is not safe for concurrent use.
type Flow struct {
	opts Options

	source  string
	entryID string

	bridge     *comfoconnect.DiscoveredBridge
	localUUID  string
	discovered map[string]comfoconnect.DiscoveredBridge
}

func New(opts Options) *Flow {
	if opts.AppName == "" {
		opts.AppName = DefaultAppName
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Discover == nil {
		opts.Discover = func(ctx context.Context, host string) ([]comfoconnect.DiscoveredBridge, error) {
			return comfoconnect.Discover(ctx, host, comfoconnect.DefaultDiscoveryTimeout, opts.Logger)
		}
	}
	if opts.NewSession == nil {
		opts.NewSession = func(host string, id uuid.UUID) Session {
			return comfoconnect.NewBridge(host, id, comfoconnect.WithLogger(opts.Logger.Named("comfoconnect")))
		}
	}

	return &Flow{opts: opts, source: store.SourceUser}
}

// Import starts from a host and token given in the configuration file.
func (f *Flow) Import(ctx context.Context, cfg ImportConfig) (Result, error) {
	f.source = store.SourceImport
	if cfg.Token != "" {
		f.localUUID = cfg.Token
	}

	host := cfg.Host
	return f.Manual(ctx, &host)
}

// Reauth registers again on the gateway of an existing entry.
func (f *Flow) Reauth(ctx context.Context, entryID string, data EntryData) (Result, error) {
	id, err := uuid.Parse(data.UUID)
	if err != nil {
		return Result{}, fmt.Errorf("parsing bridge uuid %q: %w", data.UUID, err)
	}

	f.source = store.SourceReauth
	f.entryID = entryID
	f.bridge = &comfoconnect.DiscoveredBridge{Host: data.Host, UUID: id}
	f.localUUID = data.LocalUUID

	return f.register(ctx, nil)
}

// User lists the gateways found on the network. choice is the picked option, nil to show the form.
func (f *Flow) User(ctx context.Context, choice *string) (Result, error) {
	if choice != nil {
		if *choice == ManualBridgeID {
			return f.Manual(ctx, nil)
		}

		if b, ok := f.discovered[*choice]; ok {
			f.bridge = &b
			if configured, err := f.configured(ctx, b.UUID); err != nil {
				return Result{}, err
			} else if configured {
				return abort(ReasonAlreadyConfigured), nil
			}
			return f.register(ctx, nil)
		}
	}

	bridges, err := f.opts.Discover(ctx, "")
	if err != nil {
		return Result{}, fmt.Errorf("discovering bridges: %w", err)
	}

	ids, err := f.opts.Entries.UniqueIDs(ctx)
	if err != nil {
		return Result{}, err
	}

	f.discovered = map[string]comfoconnect.DiscoveredBridge{}
	options := map[string]string{}
	for _, b := range bridges {
		id := hexID(b.UUID)
		if ids[id] {
			continue
		}
		f.discovered[id] = b
		options[id] = b.Host
	}
	options[ManualBridgeID] = "Manually add a ComfoConnect LAN C Bridge"

	return Result{Type: ResultForm, StepID: StepUser, Options: options}, nil
}

// Manual looks up the gateway at host. A nil host shows the form.
func (f *Flow) Manual(ctx context.Context, host *string) (Result, error) {
	errs := map[string]string{}

	if host != nil && *host != "" {
		bridges, err := f.opts.Discover(ctx, *host)
		if err != nil {
			return Result{}, fmt.Errorf("discovering %v: %w", *host, err)
		}

		if len(bridges) == 0 {
			errs["base"] = ErrorInvalidHost
		} else {
			f.bridge = &bridges[0]
			if configured, err := f.configured(ctx, f.bridge.UUID); err != nil {
				return Result{}, err
			} else if configured {
				return abort(ReasonAlreadyConfigured), nil
			}
			return f.register(ctx, nil)
		}
	}

	return Result{Type: ResultForm, StepID: StepManual, Errors: errs}, nil
}

// EnterPin retries registration with pin. A nil pin shows the form.
func (f *Flow) EnterPin(ctx context.Context, pin *int) (Result, error) {
	if pin == nil {
		return Result{Type: ResultForm, StepID: StepEnterPin, Errors: map[string]string{}}, nil
	}
	if *pin < 0 || *pin > maxPin {
		return Result{Type: ResultForm, StepID: StepEnterPin, Errors: map[string]string{"pin": ErrorInvalidPinRange}}, nil
	}

	p := uint32(*pin)
	return f.register(ctx, &p)
}

func (f *Flow) register(ctx context.Context, pin *uint32) (Result, error) {
	if f.bridge == nil {
		return Result{}, errors.New("no bridge selected")
	}
	if f.localUUID == "" {
		f.localUUID = comfoconnect.DefaultLocalUUID
	}

	localUUID, err := uuid.Parse(f.localUUID)
	if err != nil {
		return Result{}, fmt.Errorf("parsing local uuid %q: %w", f.localUUID, err)
	}

	session := f.opts.NewSession(f.bridge.Host, f.bridge.UUID)
	if err := session.Connect(ctx, localUUID); err != nil {
		return Result{}, fmt.Errorf("connecting to %v: %w", f.bridge.Host, err)
	}

	registered, err := f.startSession(ctx, session, localUUID, pin)

	disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.Disconnect(disconnectCtx); err != nil {
		f.opts.Logger.Debugf("Disconnecting from %v failed: %v", f.bridge.Host, err)
	}

	if err != nil {
		return Result{}, err
	}
	if !registered {
		errs := map[string]string{}
		if pin != nil {
			errs["base"] = ErrorInvalidPin
		}
		return Result{Type: ResultForm, StepID: StepEnterPin, Errors: errs}, nil
	}

	if f.source == store.SourceReauth {
		if f.opts.Reload != nil {
			if err := f.opts.Reload(ctx, f.entryID); err != nil {
				f.opts.Logger.Warnf("Reloading entry %v failed: %v", f.entryID, err)
			}
		}
		return abort(ReasonReauthSuccessful), nil
	}

	data := &EntryData{
		Host:      f.bridge.Host,
		UUID:      hexID(f.bridge.UUID),
		LocalUUID: f.localUUID,
	}

	e, err := f.opts.Entries.Add(ctx, store.Entry{
		UniqueID:  data.UUID,
		Title:     data.Host,
		Host:      data.Host,
		UUID:      data.UUID,
		LocalUUID: data.LocalUUID,
		Source:    f.source,
	})
	if errors.Is(err, store.ErrAlreadyConfigured) {
		return abort(ReasonAlreadyConfigured), nil
	} else if err != nil {
		return Result{}, err
	}

	return Result{Type: ResultCreateEntry, Title: data.Host, Data: data, EntryID: e.EntryID}, nil
}

// startSession reports false when the gateway refused the app and registration with pin failed.
func (f *Flow) startSession(ctx context.Context, session Session, localUUID uuid.UUID, pin *uint32) (bool, error) {
	_, err := session.CmdStartSession(ctx, true)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, comfoconnect.ErrNotAllowed) {
		return false, fmt.Errorf("starting session: %w", err)
	}

	p := uint32(comfoconnect.DefaultPin)
	if pin != nil {
		p = *pin
	}

	f.opts.Logger.Infof("Registering on bridge %v", f.bridge.Host)
	if err := session.CmdRegisterApp(ctx, localUUID, f.deviceName(), p); err != nil {
		if errors.Is(err, comfoconnect.ErrNotAllowed) {
			return false, nil
		}
		return false, fmt.Errorf("registering app: %w", err)
	}

	if _, err := session.CmdStartSession(ctx, true); err != nil {
		return false, fmt.Errorf("starting session: %w", err)
	}
	return true, nil
}

func (f *Flow) deviceName() string {
	if f.opts.LocationName == "" {
		return f.opts.AppName
	}
	return fmt.Sprintf("%v (%v)", f.opts.AppName, f.opts.LocationName)
}

func (f *Flow) configured(ctx context.Context, id uuid.UUID) (bool, error) {
	ids, err := f.opts.Entries.UniqueIDs(ctx)
	if err != nil {
		return false, err
	}
	return ids[hexID(id)], nil
}

func hexID(id uuid.UUID) string {
	return hex.EncodeToString(id[:])
}

func abort(reason string) Result {
	return Result{Type: ResultAbort, Reason: reason}
}

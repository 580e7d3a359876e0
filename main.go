package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/urfave/cli/v2"
	"github.com/victorjacobs/go-comfoconnect/bridge"
	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
	"github.com/victorjacobs/go-comfoconnect/config"
	"github.com/victorjacobs/go-comfoconnect/entry"
	"github.com/victorjacobs/go-comfoconnect/flow"
	"github.com/victorjacobs/go-comfoconnect/history"
	"github.com/victorjacobs/go-comfoconnect/homeassistant"
	"github.com/victorjacobs/go-comfoconnect/homekit"
	"github.com/victorjacobs/go-comfoconnect/routes"
	"github.com/victorjacobs/go-comfoconnect/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func newLogger(debug bool) *zap.SugaredLogger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	// systemd adds its own timestamps
	if os.Getenv("JOURNAL_STREAM") != "" {
		encoderConfig.TimeKey = ""
	}
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	logger := zap.New(
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), level),
		zap.AddCaller(),
	)
	if debug {
		logger = logger.WithOptions(zap.Development(), zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return logger.Sugar()
}

type app struct {
	cfg    *config.Configuration
	logger *zap.SugaredLogger
}

func (a *app) load(c *cli.Context) error {
	cfg, err := config.LoadConfiguration(c.String("config"))
	if err != nil {
		return err
	}
	if c.Bool("debug") {
		cfg.Debug = true
	}

	a.cfg = cfg
	a.logger = newLogger(cfg.Debug)
	return nil
}

func main() {
	a := &app{}

	cliApp := &cli.App{
		Name:    "comfoconnect",
		Usage:   "bridge Zehnder ComfoAir Q units behind a ComfoConnect LAN C to Home Assistant",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "comfoconnect.yaml",
				Usage:   "configuration file",
				EnvVars: []string{"COMFOCONNECT_CONFIG"},
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "enable debug logs",
			},
		},
		Before: a.load,
		Action: a.run,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run the bridge daemon",
				Action: a.run,
			},
			{
				Name:  "discover",
				Usage: "search the local network for gateways",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "host", Usage: "ask a single gateway instead of broadcasting"},
					&cli.DurationFlag{Name: "timeout", Value: comfoconnect.DefaultDiscoveryTimeout, Usage: "how long to wait for answers"},
				},
				Action: a.discover,
			},
			{
				Name:  "pair",
				Usage: "register with a gateway and store it",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "host", Usage: "gateway address, skips the discovery list"},
					&cli.StringFlag{Name: "reauth", Usage: "register a stored entry again, by entry id or gateway uuid"},
					&cli.StringFlag{Name: "api", Value: "http://localhost:8080", Usage: "daemon to reload after pairing"},
				},
				Action: a.pair,
			},
			{
				Name:   "entries",
				Usage:  "list stored gateways",
				Action: a.entries,
			},
			{
				Name:      "remove",
				Usage:     "remove a stored gateway",
				ArgsUsage: "<entry id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "api", Value: "http://localhost:8080", Usage: "daemon that has the entry loaded"},
				},
				Action: a.remove,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) run(c *cli.Context) error {
	defer a.logger.Sync()
	a.logger.Infof("Starting comfoconnect version %v", version)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(a.cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	var recorder bridge.Recorder
	hist, err := history.Connect(ctx, a.cfg.InfluxDB, a.logger.Named("influxdb"))
	switch {
	case errors.Is(err, history.ErrDisabled):
	case err != nil:
		a.logger.Warnf("InfluxDB export disabled: %v", err)
	default:
		recorder = hist
		defer hist.Close()
	}

	var (
		transport *homeassistant.MqttTransport
		client    *homeassistant.Client
	)
	mqttOpts := a.cfg.Mqtt.ClientOptions(homeassistant.StatusTopic(a.cfg.Mqtt.TopicPrefix), a.logger.Named("mqtt"))
	// Subscriptions are restored in the OnConnect handler so they survive a reconnect
	mqttOpts.SetOnConnectHandler(func(c mqtt.Client) {
		transport.Resubscribe(c)
		if err := client.PublishStatus(true); err != nil {
			a.logger.Warnf("Publishing status failed: %v", err)
		}
	})

	mqttClient := mqtt.NewClient(mqttOpts)
	transport = homeassistant.NewTransport(mqttClient, a.logger.Named("mqtt"))
	client = homeassistant.NewClient(transport, a.cfg.Mqtt.DiscoveryPrefix, a.cfg.Mqtt.TopicPrefix)

	if t := mqttClient.Connect(); t.Wait() && t.Error() != nil {
		return fmt.Errorf("MQTT connection error: %w", t.Error())
	}
	defer mqttClient.Disconnect(250)

	dispatcher := bridge.NewDispatcher()

	var (
		listeners []entry.Listener
		hk        *homekit.Bridge
	)
	if a.cfg.HomeKit.Enabled {
		hk = homekit.NewBridge(a.cfg.HomeKit, dispatcher, version, a.logger.Named("homekit"))
		listeners = append(listeners, hk)
	}

	manager := entry.NewManager(entry.Options{
		Store:      st,
		Client:     client,
		Dispatcher: dispatcher,
		Recorder:   recorder,
		Listeners:  listeners,
		Logger:     a.logger.Named("entry"),
	})

	if imp := a.cfg.ComfoConnect.Import; imp != nil {
		a.importBridge(ctx, st, *imp)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return manager.SetupAll(gctx)
	})

	g.Go(func() error {
		loopSafely(gctx, a.logger.Named("http"), func(ctx context.Context) error {
			return serveHTTP(ctx, a.cfg.Http.Listen, routes.Router(manager, st, a.logger.Named("http")))
		})
		return nil
	})

	if hk != nil {
		g.Go(func() error {
			loopSafely(gctx, a.logger.Named("homekit"), hk.Run)
			return nil
		})
	}

	err = g.Wait()
	a.logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	manager.Shutdown(shutdownCtx)

	if err := client.PublishStatus(false); err != nil {
		a.logger.Warnf("Publishing status failed: %v", err)
	}

	return err
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// importBridge adds the gateway from the config file unless it is stored already.
func (a *app) importBridge(ctx context.Context, st *store.Store, imp flow.ImportConfig) {
	f := flow.New(flow.Options{
		Entries:      st,
		AppName:      a.cfg.ComfoConnect.AppName,
		LocationName: a.cfg.ComfoConnect.LocationName,
		Logger:       a.logger.Named("flow"),
	})

	res, err := f.Import(ctx, imp)
	switch {
	case err != nil:
		a.logger.Errorf("Importing %v failed: %v", imp.Host, err)
	case res.Type == flow.ResultCreateEntry:
		a.logger.Infof("Imported %v as entry %v", imp.Host, res.EntryID)
	case res.Type == flow.ResultAbort:
		a.logger.Debugf("Not importing %v: %v", imp.Host, res.Reason)
	case res.StepID == flow.StepEnterPin:
		a.logger.Errorf("Gateway %v needs a PIN, run `pair --host %v`", imp.Host, imp.Host)
	default:
		a.logger.Errorf("Importing %v failed: %v", imp.Host, res.Errors)
	}
}

func (a *app) discover(c *cli.Context) error {
	bridges, err := comfoconnect.Discover(c.Context, c.String("host"), c.Duration("timeout"), a.logger.Named("discovery"))
	if err != nil {
		return err
	}

	sort.Slice(bridges, func(i, j int) bool { return bridges[i].Host < bridges[j].Host })
	for _, b := range bridges {
		fmt.Printf("%-16s %v %v\n", b.Host, bridge.ID(b.UUID), comfoconnect.VersionDecode(b.Version))
	}
	if len(bridges) == 0 {
		fmt.Println("No gateways found")
	}
	return nil
}

func (a *app) entries(c *cli.Context) error {
	st, err := store.Open(a.cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.List(c.Context)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%v  %-16s %v  %v  %v\n", e.EntryID, e.Host, e.UUID, e.Source, e.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func (a *app) remove(c *cli.Context) error {
	entryID := c.Args().First()
	if entryID == "" {
		return cli.Exit("missing entry id", 1)
	}

	d := newDaemonClient(c.String("api"))
	err := d.remove(c.Context, entryID)
	if err == nil {
		fmt.Printf("Removed %v\n", entryID)
		return nil
	}
	if !errors.Is(err, errDaemonUnreachable) {
		return err
	}

	a.logger.Warnf("Daemon not reachable, removing %v from the database only: %v", entryID, err)
	st, err := store.Open(a.cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Remove(c.Context, entryID); err != nil {
		return err
	}
	fmt.Printf("Removed %v, its retained discovery configs are left on the broker\n", entryID)
	return nil
}

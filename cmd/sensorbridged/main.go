package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/badger/v2/options"
	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	grpc_middleware "github.com/mwitkow/go-grpc-middleware"
	grpc_opentracing "github.com/mwitkow/go-grpc-middleware/tracing/opentracing"
	"github.com/namsral/flag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/akhenakh/sensorbridge"
	"github.com/akhenakh/sensorbridge/command"
	"github.com/akhenakh/sensorbridge/decoder"
	"github.com/akhenakh/sensorbridge/geolocation"
	"github.com/akhenakh/sensorbridge/gw"
	"github.com/akhenakh/sensorbridge/sink/archive"
	"github.com/akhenakh/sensorbridge/sink/mydevices"
	"github.com/akhenakh/sensorbridge/sink/opensense"
	"github.com/akhenakh/sensorbridge/sink/senscom"
	badgeridx "github.com/akhenakh/sensorbridge/storage/badger"
	"github.com/akhenakh/sensorbridge/ttn"
	"github.com/akhenakh/sensorbridge/web"
)

const appName = "sensorbridged"

var (
	version = "no version from LDFLAGS"

	apps            = flag.String("apps", "", "TTN applications, comma separated list of app:encoding[:apiKey]")
	tenant          = flag.String("tenant", "ttn", "TTN v3 tenant")
	mqttURL         = flag.String("mqttURL", "tcp://eu1.cloud.thethings.network:1883", "TTN v3 MQTT broker")
	registryURL     = flag.String("registryURL", ttn.DefaultRegistryURL, "TTN v3 identity server URL")
	registryTimeout = flag.Duration("registryTimeout", sensorbridge.DefaultRegistryTimeout, "timeout of a registry query")
	refreshInterval = flag.Duration("refreshInterval", sensorbridge.DefaultRefreshInterval, "device attributes refresh interval")
	transport       = flag.String("transport", "v3", "uplinks transport: v3, v2 or gw")

	gwAddr    = flag.String("gwAddr", ":1700", "UDP address for the packet forwarders, gw transport")
	gwNwkSKey = flag.String("gwNwkSKey", "", "ABP network session key, hex encoded")
	gwAppSKey = flag.String("gwAppSKey", "", "ABP application session key, hex encoded")
	gwDevices = flag.String("gwDevices", "", "ABP devices, comma separated list of devaddr=app/dev")

	jsonFields = flag.String("jsonFields", "", "json decoder fields, comma separated list of path=ITEM[*factor]")

	senscomURL     = flag.String("senscomURL", senscom.DefaultURL, "sensor.community API URL")
	opensenseURL   = flag.String("opensenseURL", opensense.DefaultURL, "openSenseMap API URL")
	mydevicesURL   = flag.String("mydevicesURL", mydevices.DefaultURL, "myDevices API URL")
	uploadTimeout  = flag.Duration("uploadTimeout", 20*time.Second, "timeout of an upload")
	geolocationURL = flag.String("geolocationURL", geolocation.DefaultURL, "geolocation API URL")
	geolocationKey = flag.String("geolocationKey", "", "geolocation API key, command handling is disabled when empty")

	dbPath = flag.String("dbPath", "sensorbridge.db", "archive DB path, archive is disabled when empty")

	httpMetricsPort = flag.Int("httpMetricsPort", 8888, "http port")
	httpAPIPort     = flag.Int("httpAPIPort", 9201, "http API port")
	healthPort      = flag.Int("healthPort", 6666, "grpc health port")
	logLevel        = flag.String("logLevel", "info", "log level: debug, info, warn, error")

	httpServer        *http.Server
	grpcHealthServer  *grpc.Server
	httpMetricsServer *http.Server
)

func main() {
	flag.Parse()

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger, "caller", log.DefaultCaller, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "app", appName)
	logger = level.NewFilter(logger, levelOption(*logLevel))

	stdlog.SetOutput(log.NewStdlibAdapter(logger))

	level.Info(logger).Log("msg", "Starting app", "version", version)

	appConfigs, err := parseApps(*apps)
	if err != nil {
		level.Error(logger).Log("msg", "invalid applications", "error", err)
		os.Exit(2)
	}

	fields, err := decoder.ParseJSONFields(*jsonFields)
	if err != nil {
		level.Error(logger).Log("msg", "invalid json fields", "error", err)
		os.Exit(2)
	}

	ctx := context.Background()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// catch termination
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	// servers run until shutdown, sources and the refresher until ctx is done
	g, ctx := errgroup.WithContext(ctx)
	var sources errgroup.Group

	// sinks
	sinks := []sensorbridge.Sink{
		senscom.New(logger, senscom.Config{URL: *senscomURL, Timeout: *uploadTimeout}),
		opensense.New(logger, opensense.Config{URL: *opensenseURL, Timeout: *uploadTimeout}),
		mydevices.New(logger, mydevices.Config{URL: *mydevicesURL, Timeout: *uploadTimeout}),
	}

	var idx *badgeridx.Indexer
	if *dbPath != "" {
		opts := badger.DefaultOptions(*dbPath)
		opts.Logger = nil
		opts.TableLoadingMode = options.FileIO

		bdb, err := badger.Open(opts)
		if err != nil {
			level.Error(logger).Log("msg", "failed to open DB", "error", err, "path", *dbPath)
			os.Exit(2)
		}
		defer bdb.Close()

		idx = badgeridx.NewIndexer(bdb)
		sinks = append(sinks, archive.New(logger, idx))
	}

	fanout := sensorbridge.NewFanout(logger, 0, sinks...)

	// registries and command handlers
	var locator *geolocation.Client
	if *geolocationKey != "" {
		locator = geolocation.NewClient(logger, geolocation.Config{
			URL:     *geolocationURL,
			APIKey:  *geolocationKey,
			Timeout: *uploadTimeout,
		})
	}

	registries := make(map[string]sensorbridge.Registry)
	commanders := make(map[string]sensorbridge.Commander)
	encodings := make(map[string]string)
	listeners := []sensorbridge.AttributeListener{fanout}
	for _, app := range appConfigs {
		encodings[app.ID] = app.Encoding.String()
		if app.APIKey == "" {
			level.Warn(logger).Log("msg", "no API key, attributes won't be fetched", "app_id", app.ID)
			continue
		}
		reg := ttn.NewRegistry(logger, ttn.RegistryConfig{
			URL:     *registryURL,
			AppID:   app.ID,
			APIKey:  app.APIKey,
			Timeout: *registryTimeout,
		})
		registries[app.ID] = reg

		if locator != nil {
			h := command.NewHandler(logger, app.ID, locator, reg, command.Config{Timeout: *uploadTimeout})
			commanders[app.ID] = h
			listeners = append(listeners, h)
		}
	}

	dispatcher, err := sensorbridge.NewDispatcher(logger, sensorbridge.DispatcherConfig{
		Encodings:  encodings,
		JSONFields: fields,
	}, fanout, commanders)
	if err != nil {
		level.Error(logger).Log("msg", "invalid dispatcher configuration", "error", err)
		os.Exit(2)
	}

	if err := fanout.Start(); err != nil {
		level.Error(logger).Log("msg", "can't start sinks", "error", err)
		os.Exit(2)
	}
	for appID, c := range commanders {
		if err := c.Start(); err != nil {
			level.Error(logger).Log("msg", "can't start command handler", "app_id", appID, "error", err)
		}
	}

	store := sensorbridge.NewAttributeStore()
	refresher := sensorbridge.NewRefresher(logger, store, registries, sensorbridge.RefresherConfig{
		Interval: *refreshInterval,
		Timeout:  *registryTimeout,
	}, listeners...)

	// gRPC Health Server
	healthServer := health.NewServer()
	g.Go(func() error {
		grpcHealthServer = grpc.NewServer(
			grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(
				grpc_opentracing.StreamServerInterceptor(),
				grpc_prometheus.StreamServerInterceptor,
			)),
			grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
				grpc_opentracing.UnaryServerInterceptor(),
				grpc_prometheus.UnaryServerInterceptor,
			)),
		)

		healthpb.RegisterHealthServer(grpcHealthServer, healthServer)
		grpc_prometheus.Register(grpcHealthServer)

		haddr := fmt.Sprintf(":%d", *healthPort)
		hln, err := net.Listen("tcp", haddr)
		if err != nil {
			level.Error(logger).Log("msg", "gRPC Health server: failed to listen", "error", err)
			os.Exit(2)
		}
		level.Info(logger).Log("msg", fmt.Sprintf("gRPC health server serving at %s", haddr))
		return grpcHealthServer.Serve(hln)
	})

	// web server metrics
	g.Go(func() error {
		httpMetricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", *httpMetricsPort),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		level.Info(logger).Log("msg", fmt.Sprintf("HTTP Metrics server serving at :%d", *httpMetricsPort))

		// Register Prometheus metrics handler.
		http.Handle("/metrics", promhttp.Handler())

		if err := httpMetricsServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}

		return nil
	})

	// archive API
	if idx != nil {
		g.Go(func() error {
			s := web.NewServer(appName, logger, idx)
			httpServer = &http.Server{
				Addr:         fmt.Sprintf(":%d", *httpAPIPort),
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
				Handler:      s.Handler(),
			}
			level.Info(logger).Log("msg", fmt.Sprintf("HTTP API server serving at :%d", *httpAPIPort))

			if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
				return err
			}

			return nil
		})
	}

	sourcesCtx, sourcesCancel := context.WithCancel(ctx)
	defer sourcesCancel()

	sources.Go(func() error {
		return refresher.Run(sourcesCtx)
	})

	switch *transport {
	case "v3":
		for _, app := range appConfigs {
			src := ttn.NewMQTTSource(logger, ttn.MQTTConfig{
				URL:    *mqttURL,
				AppID:  app.ID,
				Tenant: *tenant,
				APIKey: app.APIKey,
			}, dispatcher.HandleUplink)
			sources.Go(func() error { return src.Run(sourcesCtx) })
		}
	case "v2":
		for _, app := range appConfigs {
			src := ttn.NewV2Source(logger, ttn.V2Config{
				ClientName:    appName,
				ClientVersion: version,
				AppID:         app.ID,
				AppAccessKey:  app.APIKey,
			}, dispatcher.HandleUplink)
			sources.Go(func() error { return src.Run(sourcesCtx) })
		}
	case "gw":
		cfg, err := gwConfig()
		if err != nil {
			level.Error(logger).Log("msg", "invalid gw configuration", "error", err)
			os.Exit(2)
		}
		src := gw.NewServer(logger, cfg, dispatcher.HandleUplink)
		sources.Go(func() error { return src.Run(sourcesCtx, *gwAddr) })
	default:
		level.Error(logger).Log("msg", "unknown transport", "transport", *transport)
		os.Exit(2)
	}

	// a failing source stops the app
	sourcesDone := make(chan error, 1)
	go func() {
		sourcesDone <- sources.Wait()
	}()

	healthServer.SetServingStatus(fmt.Sprintf("grpc.health.v1.%s", appName), healthpb.HealthCheckResponse_SERVING)

	var sourcesErr error
	select {
	case <-interrupt:
		break
	case <-ctx.Done():
		break
	case sourcesErr = <-sourcesDone:
		if sourcesErr != nil {
			level.Error(logger).Log("msg", "uplink source failed", "error", sourcesErr)
		}
	}

	level.Warn(logger).Log("msg", "received shutdown signal")

	healthServer.SetServingStatus(fmt.Sprintf("grpc.health.v1.%s", appName), healthpb.HealthCheckResponse_NOT_SERVING)

	// stop receiving first then drain the sinks
	sourcesCancel()
	select {
	case <-sourcesDone:
	case <-time.After(5 * time.Second):
		level.Warn(logger).Log("msg", "uplink sources did not stop in time")
	}

	fanout.Stop(5 * time.Second)
	stopCommanders(commanders)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if httpMetricsServer != nil {
		_ = httpMetricsServer.Shutdown(shutdownCtx)
	}

	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}

	if grpcHealthServer != nil {
		grpcHealthServer.GracefulStop()
	}

	cancel()

	err = g.Wait()
	if err == nil {
		err = sourcesErr
	}
	if err != nil {
		level.Error(logger).Log("msg", "server returning an error", "error", err)
		os.Exit(2)
	}
}

func gwConfig() (gw.Config, error) {
	var cfg gw.Config
	var err error
	if cfg.NwkSKey, err = gw.ParseKey(*gwNwkSKey); err != nil {
		return cfg, fmt.Errorf("network session key: %w", err)
	}
	if cfg.AppSKey, err = gw.ParseKey(*gwAppSKey); err != nil {
		return cfg, fmt.Errorf("application session key: %w", err)
	}
	if cfg.Devices, err = gw.ParseDevices(*gwDevices); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func levelOption(l string) level.Option {
	switch l {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}

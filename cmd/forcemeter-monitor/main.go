package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tomjod/forcemeter/internal/log"
	"github.com/tomjod/forcemeter/pkg/cli"
	"github.com/tomjod/forcemeter/pkg/monitor"
)

const (
	defaultHost     = "localhost"
	defaultPort     = 8080
	shutdownTimeout = 5 * time.Second
)

const (
	EnvTlsCert = "FORCEMETER_MONITOR_TLS_CERT"
	EnvTlsKey  = "FORCEMETER_MONITOR_TLS_KEY"
	EnvHost    = "FORCEMETER_MONITOR_HOST"
	EnvPort    = "FORCEMETER_MONITOR_PORT"
	EnvToken   = "FORCEMETER_MONITOR_TOKEN"
	EnvRate    = "FORCEMETER_MONITOR_RATE"
	EnvVerbose = "FORCEMETER_VERBOSE"
)

const nonLocalhostWarning = `
Do not listen on a network interface without adding client authentication (-token). Anyone who can
reach the port can tare, recalibrate or disconnect the force meter.`

type MonitorConfig struct {
	keyFilename    string
	certFilename   string
	selfSigned     bool
	verbose        bool
	host           string
	port           int
	token          string
	rate           float64
	allowAnyOrigin bool
	scanOnStart    bool
}

var (
	monitorConfig = &MonitorConfig{}
)

func init() {
	flag.StringVar(&monitorConfig.certFilename, "cert", "", "TLS certificate chain `file`")
	flag.StringVar(&monitorConfig.keyFilename, "tls-key", "", "Server TLS private key `file`")
	flag.BoolVar(&monitorConfig.selfSigned, "self-signed", false, "Serve TLS with a generated self-signed certificate")
	flag.BoolVar(&monitorConfig.verbose, "verbose", false, "Enable verbose logging")
	flag.StringVar(&monitorConfig.host, "host", defaultHost, "Monitor server `hostname`")
	flag.IntVar(&monitorConfig.port, "port", defaultPort, "`Port` to listen on")
	flag.StringVar(&monitorConfig.token, "token", "", "Bearer `token` clients must present")
	flag.Float64Var(&monitorConfig.rate, "rate", monitor.DefaultReadingRate, "Maximum readings per `second` pushed to WebSocket clients")
	flag.BoolVar(&monitorConfig.allowAnyOrigin, "allow-any-origin", false, "Accept WebSocket connections from pages on other origins")
	flag.BoolVar(&monitorConfig.scanOnStart, "scan", true, "Start scanning for the force meter when the server starts")
}

func Usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [OPTION...]\n", os.Args[0])
	fmt.Fprintf(out, "\nA server that exposes a force meter over HTTP and WebSocket")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, nonLocalhostWarning)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	flag.PrintDefaults()
}

func main() {
	config, err := cli.NewConfig(cli.FlagDevice)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %s\n", err)
		os.Exit(1)
	}

	defer func() {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	}()

	flag.Usage = Usage
	config.RegisterCommandLineFlags()
	flag.Parse()
	if err = readFromEnvironment(); err != nil {
		return
	}
	config.ReadFromEnvironment()
	if err = config.Load(); err != nil {
		return
	}

	if monitorConfig.verbose {
		log.SetLevel(log.LevelDebug)
	}

	if monitorConfig.host != defaultHost && monitorConfig.token == "" {
		fmt.Fprintln(os.Stderr, nonLocalhostWarning)
	}
	if (monitorConfig.certFilename == "") != (monitorConfig.keyFilename == "") {
		err = errors.New("-cert and -tls-key must be provided together")
		return
	}

	m, err := config.Meter()
	if err != nil {
		return
	}
	defer m.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debug("Creating monitor")
	srv := monitor.New(ctx, m, monitorConfig.rate)
	defer srv.Close()
	srv.Token = monitorConfig.token
	if monitorConfig.allowAnyOrigin {
		srv.AllowAnyOrigin()
	}

	if monitorConfig.scanOnStart {
		if err = m.StartScan(); err != nil {
			return
		}
	}

	addr := fmt.Sprintf("%s:%d", monitorConfig.host, monitorConfig.port)
	server := newServer(addr, srv, monitorConfig.selfSigned)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warning("Shutdown: %s", err)
		}
	}()

	log.Info("Listening on %s", addr)
	var serveErr error
	switch {
	case monitorConfig.certFilename != "":
		serveErr = server.ListenAndServeTLS(monitorConfig.certFilename, monitorConfig.keyFilename)
	case server.TLSConfig != nil:
		serveErr = server.ListenAndServeTLS("", "")
	default:
		serveErr = server.ListenAndServe()
	}
	if !errors.Is(serveErr, http.ErrServerClosed) {
		log.Error("Server stopped: %s", serveErr)
		err = serveErr
		return
	}
	log.Info("Server stopped")
}

// readFromEnvironment applies configuration from environment variables.
// Values are not overwritten.
func readFromEnvironment() error {
	if monitorConfig.certFilename == "" {
		monitorConfig.certFilename = os.Getenv(EnvTlsCert)
	}

	if monitorConfig.keyFilename == "" {
		monitorConfig.keyFilename = os.Getenv(EnvTlsKey)
	}

	if monitorConfig.token == "" {
		monitorConfig.token = os.Getenv(EnvToken)
	}

	if monitorConfig.host == defaultHost {
		host, ok := os.LookupEnv(EnvHost)
		if ok {
			monitorConfig.host = host
		}
	}

	if !monitorConfig.verbose {
		if verbose, ok := os.LookupEnv(EnvVerbose); ok {
			monitorConfig.verbose = verbose != "false" && verbose != "0"
		}
	}

	var err error
	if monitorConfig.port == defaultPort {
		if port, ok := os.LookupEnv(EnvPort); ok {
			monitorConfig.port, err = strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("invalid port: %s", port)
			}
		}
	}

	if monitorConfig.rate == monitor.DefaultReadingRate {
		if rateEnv, ok := os.LookupEnv(EnvRate); ok {
			monitorConfig.rate, err = strconv.ParseFloat(rateEnv, 64)
			if err != nil || monitorConfig.rate <= 0 {
				return fmt.Errorf("invalid reading rate: %s", rateEnv)
			}
		}
	}

	return nil
}

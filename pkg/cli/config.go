/*
Package cli facilitates building command-line applications that talk to a force meter. It defines
a [Config] type that can be used to register common command-line flags (using the Golang flag
package), environment variable equivalents and an optional YAML configuration file.

The package uses [keyring]'s platform-agnostic interface for storing the upload token in an
OS-dependent credential store.

# Examples

	import flag

	config, err := NewConfig(FlagAll)
	if err != nil {
		panic(err)
	}
	config.RegisterCommandLineFlags() // Adds command-line flags for the device, history, uploads
	flag.Parse()
	config.ReadFromEnvironment()      // Fills in missing fields using environment variables
	if err := config.Load(); err != nil { // Fills in the rest from the config file and defaults
		panic(err)
	}

	m, err := config.Connect(ctx) // Scans for the device and waits for the link
	if err != nil {
		panic(err)
	}
	defer m.Release()

Values are resolved in order: command-line flag, environment variable, configuration file,
built-in default. A zero value counts as unset at every layer.

Use a [Flag] mask to control which option groups are registered. Note that config.Flags must be
set before calling [flag.Parse] or [Config.ReadFromEnvironment]:

	config, err = NewConfig(FlagDevice)              // A live meter, nothing is stored.
	config, err = NewConfig(FlagDevice | FlagHistory) // Measurements are kept locally.
*/
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tomjod/forcemeter/internal/log"
	"github.com/tomjod/forcemeter/internal/session"
	"github.com/tomjod/forcemeter/pkg/cache"
	"github.com/tomjod/forcemeter/pkg/connector"
	"github.com/tomjod/forcemeter/pkg/connector/ble"
	"github.com/tomjod/forcemeter/pkg/connector/rfcomm"
	"github.com/tomjod/forcemeter/pkg/connector/serial"
	"github.com/tomjod/forcemeter/pkg/environment"
	"github.com/tomjod/forcemeter/pkg/measurement"
	"github.com/tomjod/forcemeter/pkg/meter"
	"github.com/tomjod/forcemeter/pkg/protocol"
	"github.com/tomjod/forcemeter/pkg/simulator"
	"github.com/tomjod/forcemeter/pkg/store"
	"github.com/tomjod/forcemeter/pkg/store/sqlite"
	"github.com/tomjod/forcemeter/pkg/upload"

	"github.com/99designs/keyring"
	"gopkg.in/yaml.v3"
)

// Transport selects how the force meter is reached.
type Transport string

const (
	TransportRFCOMM    Transport = "rfcomm" // Paired devices over a Bluetooth RFCOMM socket.
	TransportBLE       Transport = "ble"    // LE advertisement scan, then RFCOMM.
	TransportSerial    Transport = "serial" // Bound /dev/rfcomm* or USB-serial ports.
	TransportSimulator Transport = "sim"    // In-process simulated device.
)

var transports = []Transport{TransportRFCOMM, TransportBLE, TransportSerial, TransportSimulator}

// Set updates a Transport from a command-line argument.
func (t *Transport) Set(value string) error {
	name := Transport(strings.ToLower(value))
	for _, known := range transports {
		if name == known {
			*t = name
			return nil
		}
	}
	return fmt.Errorf("%w '%s'", ErrUnknownTransport, value)
}

func (t *Transport) String() string {
	return string(*t)
}

// Environment variable names used are used by [Config.ReadFromEnvironment] to set common parameters.
const (
	EnvConfig       = "FORCEMETER_CONFIG"
	EnvLogLevel     = "FORCEMETER_LOG_LEVEL"
	EnvDeviceName   = "FORCEMETER_DEVICE_NAME"
	EnvTransport    = "FORCEMETER_TRANSPORT"
	EnvAddress      = "FORCEMETER_ADDRESS"
	EnvChannel      = "FORCEMETER_CHANNEL"
	EnvSerialPort   = "FORCEMETER_SERIAL_PORT"
	EnvBaudRate     = "FORCEMETER_BAUD"
	EnvAdapter      = "FORCEMETER_ADAPTER"
	EnvScanTimeout  = "FORCEMETER_SCAN_TIMEOUT"
	EnvJoinTimeout  = "FORCEMETER_JOIN_TIMEOUT"
	EnvHistoryFile  = "FORCEMETER_HISTORY_FILE"
	EnvMaxHistory   = "FORCEMETER_MAX_HISTORY"
	EnvProfile      = "FORCEMETER_PROFILE"
	EnvLeg          = "FORCEMETER_LEG"
	EnvUploadURL    = "FORCEMETER_UPLOAD_URL"
	EnvUploadFormat = "FORCEMETER_UPLOAD_FORMAT"
	EnvTokenName    = "FORCEMETER_TOKEN_NAME"
	EnvTokenFile    = "FORCEMETER_TOKEN_FILE"
	EnvKeyringType  = "FORCEMETER_KEYRING_TYPE"
	EnvKeyringPass  = "FORCEMETER_KEYRING_PASSWORD"
	EnvKeyringPath  = "FORCEMETER_KEYRING_PATH"
	EnvKeyringDebug = "FORCEMETER_KEYRING_DEBUG"
)

// Flag controls what options should be scanned from the command line and/or environment variables.
type Flag int

func (f Flag) isSet(other Flag) bool {
	return (f & other) == other
}

const (
	FlagDevice  Flag = 1 // Enable device and transport options.
	FlagHistory Flag = 2 // Enable measurement history options.
	FlagUpload  Flag = 4 // Enable upload options. Requires a token.
	FlagAll     Flag = FlagDevice | FlagHistory | FlagUpload
)

// Built-in defaults applied by [Config.Load].
const (
	DefaultTransport   = TransportRFCOMM
	DefaultChannel     = 1
	DefaultBaudRate    = 115200
	DefaultScanTimeout = 30 * time.Second
	DefaultJoinTimeout = session.DefaultJoinTimeout
	DefaultHistoryName = "history.db"
)

var (
	ErrNoTokenSpecified = errors.New("upload token location not provided")
	ErrUnknownTransport = errors.New("unknown transport")
	ErrTokenNotFound    = keyring.ErrKeyNotFound
)

// Config fields determine how a client reaches the force meter and where measurements go.
type Config struct {
	Flags      Flag   // Controls which set of environment variables/CLI flags to use.
	ConfigFile string // Optional YAML file consulted by Load.
	LogLevel   string

	DeviceName  string
	Transport   Transport
	Address     string // Bluetooth address. Skips discovery when set.
	Channel     int    // RFCOMM channel
	SerialPort  string // Serial device. Skips port enumeration when set.
	BaudRate    int
	AdapterID   string // HCI adapter, "hci0" or "0"
	ScanTimeout time.Duration
	JoinTimeout time.Duration

	HistoryFile string // ".json" selects the JSON file store; anything else is SQLite.
	MaxHistory  int    // JSON store only; zero keeps everything.
	ProfileID   int64
	Leg         string

	UploadURL        string
	UploadFormat     string
	KeyringTokenName string // Username for upload token in system keyring
	TokenFilename    string
	Backend          keyring.Config
	BackendType      backendType
	Debug            bool // Enable keyring debug messages

	password    *string
	uploadToken string
}

func NewConfig(flags Flag) (*Config, error) {
	c := Config{
		Flags: flags,
		Backend: keyring.Config{
			ServiceName:              keyringServiceName,
			KeychainTrustApplication: true,
			KeyCtlScope:              "user",
		},
	}
	c.BackendType = backendType{&c}
	c.Backend.KeychainPasswordFunc = c.getPassword
	c.Backend.FilePasswordFunc = c.getPassword

	return &c, nil
}

func (c *Config) RegisterCommandLineFlags() {
	c.registerFlags(flag.CommandLine)
}

func (c *Config) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", "", "YAML configuration `file`. Defaults to $FORCEMETER_CONFIG.")
	fs.StringVar(&c.LogLevel, "log-level", "", "Log `level` (none|error|warn|info|debug). Defaults to $FORCEMETER_LOG_LEVEL.")
	if c.Flags.isSet(FlagDevice) {
		var names []string
		for _, t := range transports {
			names = append(names, string(t))
		}
		fs.StringVar(&c.DeviceName, "device", "", "Advertised device `name`. Defaults to $FORCEMETER_DEVICE_NAME or "+connector.DefaultDeviceName+".")
		fs.Var(&c.Transport, "transport", "Transport `type` ("+strings.Join(names, "|")+"). Defaults to $FORCEMETER_TRANSPORT.")
		fs.StringVar(&c.Address, "address", "", "Bluetooth `address` of the device. Defaults to $FORCEMETER_ADDRESS.")
		fs.IntVar(&c.Channel, "channel", 0, "RFCOMM `channel`. Defaults to $FORCEMETER_CHANNEL or 1.")
		fs.StringVar(&c.SerialPort, "serial-port", "", "Serial `device` to open. Defaults to $FORCEMETER_SERIAL_PORT.")
		fs.IntVar(&c.BaudRate, "baud", 0, "Serial baud `rate`. Defaults to $FORCEMETER_BAUD or 115200.")
		fs.DurationVar(&c.ScanTimeout, "scan-timeout", 0, "Give up scanning after `duration`. Defaults to $FORCEMETER_SCAN_TIMEOUT or 30s.")
		fs.DurationVar(&c.JoinTimeout, "join-timeout", 0, "Wait at most `duration` for session workers on teardown.")
		c.registerFlagsOsSpecific(fs)
	}
	if c.Flags.isSet(FlagHistory) {
		fs.StringVar(&c.HistoryFile, "history", "", "Measurement history `file` (.db or .json). Defaults to $FORCEMETER_HISTORY_FILE.")
		fs.IntVar(&c.MaxHistory, "max-history", 0, "Keep at most `n` measurements in a JSON history file.")
		fs.Int64Var(&c.ProfileID, "profile", 0, "Profile `id` measurements belong to. Defaults to $FORCEMETER_PROFILE.")
		fs.StringVar(&c.Leg, "leg", "", "Measured `leg` (left|right). Defaults to $FORCEMETER_LEG or right.")
	}
	if c.Flags.isSet(FlagUpload) {
		fs.StringVar(&c.UploadURL, "upload-url", "", "Upload service `URL`. Defaults to $FORCEMETER_UPLOAD_URL or the token audience.")
		fs.StringVar(&c.UploadFormat, "upload-format", "", "Upload body `format` (json|protobuf).")
		fs.StringVar(&c.KeyringTokenName, "token-name", "", "System keyring `name` for upload token. Defaults to $FORCEMETER_TOKEN_NAME.")
		fs.StringVar(&c.TokenFilename, "token-file", "", "`File` containing upload token. Defaults to $FORCEMETER_TOKEN_FILE.")

		var names []string
		for _, name := range keyring.AvailableBackends() {
			names = append(names, string(name))
		}
		sort.Strings(names)
		fs.Var(&c.BackendType, "keyring-type", "Keyring `type` ("+strings.Join(names, "|")+"). Defaults to $FORCEMETER_KEYRING_TYPE.")
		fs.StringVar(&c.Backend.FileDir, "keyring-file-dir", "", "keyring `directory` for file-backed keyring types")
		fs.BoolVar(&c.Debug, "keyring-debug", false, "Enable keyring debug logging")
	}
}

// LoadCredentials attempts to open a keyring, prompting for a password if needed. Call this
// method before [Config.Connect] to prevent interactive prompts from counting against timeouts.
func (c *Config) LoadCredentials() error {
	if c.Flags.isSet(FlagUpload) && (c.KeyringTokenName != "" || c.TokenFilename != "") {
		if _, err := c.token(); err != nil {
			return err
		}
	}
	return nil
}

func fill[T comparable](dst *T, value T) bool {
	var zero T
	if *dst != zero || value == zero {
		return false
	}
	*dst = value
	return true
}

func envInt(name string) int {
	value := os.Getenv(name)
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warning("Ignoring $%s: %s", name, err)
		return 0
	}
	return n
}

func envDuration(name string) time.Duration {
	value := os.Getenv(name)
	if value == "" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warning("Ignoring $%s: %s", name, err)
		return 0
	}
	return d
}

// ReadFromEnvironment populates c using environment variables. Values that are already populated
// are not overwritten.
//
// Calling ReadFromEnvironment after flag.Parse() (or other initialization method) will prevent the
// environment from overriding explicit command-line parameters and avoid potentially misleading
// debug log messages.
func (c *Config) ReadFromEnvironment() {
	if fill(&c.ConfigFile, os.Getenv(EnvConfig)) {
		log.Debug("Set config file to '%s'", c.ConfigFile)
	}
	fill(&c.LogLevel, os.Getenv(EnvLogLevel))
	if c.Flags.isSet(FlagDevice) {
		if fill(&c.DeviceName, os.Getenv(EnvDeviceName)) {
			log.Debug("Set device name to '%s'", c.DeviceName)
		}
		if c.Transport == "" {
			if value := os.Getenv(EnvTransport); value != "" {
				if err := c.Transport.Set(value); err != nil {
					log.Warning("Ignoring $%s: %s", EnvTransport, err)
				} else {
					log.Debug("Set transport to '%s'", c.Transport)
				}
			}
		}
		if fill(&c.Address, os.Getenv(EnvAddress)) {
			log.Debug("Set device address to '%s'", c.Address)
		}
		fill(&c.Channel, envInt(EnvChannel))
		if fill(&c.SerialPort, os.Getenv(EnvSerialPort)) {
			log.Debug("Set serial port to '%s'", c.SerialPort)
		}
		fill(&c.BaudRate, envInt(EnvBaudRate))
		fill(&c.AdapterID, os.Getenv(EnvAdapter))
		fill(&c.ScanTimeout, envDuration(EnvScanTimeout))
		fill(&c.JoinTimeout, envDuration(EnvJoinTimeout))
	}
	if c.Flags.isSet(FlagHistory) {
		if fill(&c.HistoryFile, os.Getenv(EnvHistoryFile)) {
			log.Debug("Set history file to '%s'", c.HistoryFile)
		}
		fill(&c.MaxHistory, envInt(EnvMaxHistory))
		if value := os.Getenv(EnvProfile); value != "" && c.ProfileID == 0 {
			if id, err := strconv.ParseInt(value, 10, 64); err == nil {
				c.ProfileID = id
				log.Debug("Set profile to %d", c.ProfileID)
			} else {
				log.Warning("Ignoring $%s: %s", EnvProfile, err)
			}
		}
		fill(&c.Leg, os.Getenv(EnvLeg))
	}
	if c.Flags.isSet(FlagUpload) {
		if fill(&c.UploadURL, os.Getenv(EnvUploadURL)) {
			log.Debug("Set upload URL to '%s'", c.UploadURL)
		}
		fill(&c.UploadFormat, os.Getenv(EnvUploadFormat))
		if c.KeyringTokenName == "" && c.TokenFilename == "" {
			c.KeyringTokenName = os.Getenv(EnvTokenName)
			log.Debug("Set upload token name to '%s'", c.KeyringTokenName)

			c.TokenFilename = os.Getenv(EnvTokenFile)
			log.Debug("Set upload token file to '%s'", c.TokenFilename)
		}
		if c.BackendType.String() == string(keyring.InvalidBackend) {
			if err := c.BackendType.Set(os.Getenv(EnvKeyringType)); err == nil {
				log.Debug("Set keyring type to '%s'", c.BackendType)
			}
		}
		if c.password == nil {
			password := os.Getenv(EnvKeyringPass)
			c.password = &password
			if len(password) > 0 {
				log.Debug("Set keyring File Password to %s", strings.Repeat("*", len("hunter2")))
			}
		}
		if fill(&c.Backend.FileDir, os.Getenv(EnvKeyringPath)) {
			log.Debug("Set keyring File Path to '%s'", c.Backend.FileDir)
		}
		if !c.Debug {
			_, c.Debug = os.LookupEnv(EnvKeyringDebug)
			log.Debug("Set keyring Debug Logging to '%v'", c.Debug)
		}
	}
}

// fileConfig is the layout of the YAML configuration file.
type fileConfig struct {
	LogLevel string `yaml:"log_level"`
	Device   struct {
		Name        string        `yaml:"name"`
		Transport   string        `yaml:"transport"`
		Address     string        `yaml:"address"`
		Channel     int           `yaml:"channel"`
		SerialPort  string        `yaml:"serial_port"`
		BaudRate    int           `yaml:"baud_rate"`
		Adapter     string        `yaml:"adapter"`
		ScanTimeout time.Duration `yaml:"scan_timeout"`
		JoinTimeout time.Duration `yaml:"join_timeout"`
	} `yaml:"device"`
	History struct {
		File       string `yaml:"file"`
		MaxEntries int    `yaml:"max_entries"`
		Profile    int64  `yaml:"profile"`
		Leg        string `yaml:"leg"`
	} `yaml:"history"`
	Upload struct {
		URL         string `yaml:"url"`
		Format      string `yaml:"format"`
		TokenName   string `yaml:"token_name"`
		TokenFile   string `yaml:"token_file"`
		KeyringType string `yaml:"keyring_type"`
		KeyringDir  string `yaml:"keyring_dir"`
	} `yaml:"upload"`
}

// ReadFromFile populates unset fields of c from the YAML document in r. Unknown keys are an
// error.
func (c *Config) ReadFromFile(r io.Reader) error {
	var fc fileConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid configuration file: %w", err)
	}

	fill(&c.LogLevel, fc.LogLevel)
	if c.Flags.isSet(FlagDevice) {
		fill(&c.DeviceName, fc.Device.Name)
		if c.Transport == "" && fc.Device.Transport != "" {
			if err := c.Transport.Set(fc.Device.Transport); err != nil {
				return err
			}
		}
		fill(&c.Address, fc.Device.Address)
		fill(&c.Channel, fc.Device.Channel)
		fill(&c.SerialPort, fc.Device.SerialPort)
		fill(&c.BaudRate, fc.Device.BaudRate)
		fill(&c.AdapterID, fc.Device.Adapter)
		fill(&c.ScanTimeout, fc.Device.ScanTimeout)
		fill(&c.JoinTimeout, fc.Device.JoinTimeout)
	}
	if c.Flags.isSet(FlagHistory) {
		fill(&c.HistoryFile, fc.History.File)
		fill(&c.MaxHistory, fc.History.MaxEntries)
		fill(&c.ProfileID, fc.History.Profile)
		fill(&c.Leg, fc.History.Leg)
	}
	if c.Flags.isSet(FlagUpload) {
		fill(&c.UploadURL, fc.Upload.URL)
		fill(&c.UploadFormat, fc.Upload.Format)
		if c.KeyringTokenName == "" && c.TokenFilename == "" {
			c.KeyringTokenName = fc.Upload.TokenName
			c.TokenFilename = fc.Upload.TokenFile
		}
		if c.BackendType.String() == string(keyring.InvalidBackend) && fc.Upload.KeyringType != "" {
			if err := c.BackendType.Set(fc.Upload.KeyringType); err != nil {
				return err
			}
		}
		fill(&c.Backend.FileDir, fc.Upload.KeyringDir)
	}
	return nil
}

// Load completes c. It reads c.ConfigFile (if set) with [Config.ReadFromFile], applies built-in
// defaults to whatever is still unset, validates the result and applies the log level.
func (c *Config) Load() error {
	if c.ConfigFile != "" {
		log.Debug("Loading configuration from %s...", c.ConfigFile)
		f, err := os.Open(c.ConfigFile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := c.ReadFromFile(f); err != nil {
			return err
		}
	}
	if err := c.setDefaults(); err != nil {
		return err
	}
	if c.LogLevel != "" {
		level, err := log.ParseLevel(c.LogLevel)
		if err != nil {
			return err
		}
		log.SetLevel(level)
	}
	return nil
}

func (c *Config) setDefaults() error {
	fill(&c.DeviceName, connector.DefaultDeviceName)
	fill(&c.Transport, DefaultTransport)
	fill(&c.Channel, DefaultChannel)
	fill(&c.BaudRate, DefaultBaudRate)
	fill(&c.ScanTimeout, DefaultScanTimeout)
	fill(&c.JoinTimeout, DefaultJoinTimeout)
	fill(&c.Backend.FileDir, keyringDirectory)
	if c.Channel < 1 || c.Channel > 30 {
		return fmt.Errorf("invalid RFCOMM channel %d", c.Channel)
	}
	if c.Flags.isSet(FlagHistory) {
		if c.HistoryFile == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return err
			}
			c.HistoryFile = filepath.Join(dir, "forcemeter", DefaultHistoryName)
		}
		if _, err := measurement.ParseLeg(c.Leg); err != nil {
			return err
		}
	}
	if c.Flags.isSet(FlagUpload) && c.UploadFormat != "" {
		if _, err := upload.ParseFormat(c.UploadFormat); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) adapterName() (string, error) {
	if c.AdapterID == "" {
		return "", nil
	}
	id, err := ble.ParseAdapterID(c.AdapterID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("hci%d", id), nil
}

func (c *Config) transport() (connector.Scanner, connector.Dialer, environment.Environment, error) {
	switch c.Transport {
	case TransportSimulator:
		device := simulator.New(c.DeviceName)
		return device, device, environment.Ready, nil
	case TransportSerial:
		dialer := serial.NewDialer(c.BaudRate)
		if c.SerialPort != "" {
			return connector.StaticScanner{{Address: c.SerialPort, Name: c.DeviceName}}, dialer, environment.Ready, nil
		}
		return serial.Scanner{Alias: c.DeviceName}, dialer, environment.Ready, nil
	case TransportBLE, TransportRFCOMM:
		adapter, err := c.adapterName()
		if err != nil {
			return nil, nil, nil, err
		}
		dialer := rfcomm.NewDialer(uint8(c.Channel))
		env := environment.NewSysfs(adapter)
		if c.Address != "" {
			if _, err := rfcomm.ParseAddress(c.Address); err != nil {
				return nil, nil, nil, err
			}
			return connector.StaticScanner{{Address: c.Address, Name: c.DeviceName}}, dialer, env, nil
		}
		if c.Transport == TransportBLE {
			scanner, err := ble.NewScanner(adapter)
			if err != nil {
				return nil, nil, nil, err
			}
			return scanner, dialer, env, nil
		}
		return rfcomm.PairedScanner{}, dialer, env, nil
	}
	return nil, nil, nil, fmt.Errorf("%w '%s'", ErrUnknownTransport, c.Transport)
}

// Meter builds a force meter for the configured transport. No scan is started.
func (c *Config) Meter() (*meter.Meter, error) {
	if !c.Flags.isSet(FlagDevice) {
		return nil, fmt.Errorf("device options are not enabled")
	}
	scanner, dialer, env, err := c.transport()
	if err != nil {
		return nil, err
	}
	log.Debug("Using %s transport for %s", c.Transport, c.DeviceName)
	return meter.New(scanner, dialer, env, meter.Config{
		DeviceName:  c.DeviceName,
		ScanTimeout: c.ScanTimeout,
		JoinTimeout: c.JoinTimeout,
	}), nil
}

// Connect builds a force meter, starts a scan and waits until the meter is connected. The meter is
// released if the scan ends in any other state or ctx is done first.
func (c *Config) Connect(ctx context.Context) (*meter.Meter, error) {
	m, err := c.Meter()
	if err != nil {
		return nil, err
	}
	if err := WaitConnected(ctx, m); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

// WaitConnected starts a scan on m unless it is already connected, then blocks until m reaches
// Connected or a terminal state.
func WaitConnected(ctx context.Context, m *meter.Meter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	states := m.SubscribeState(ctx)
	// The first value is the state before the scan.
	if current, ok := <-states; !ok {
		return protocol.ErrReleased
	} else if current.Status == meter.Connected {
		return nil
	}
	if err := m.StartScan(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case state, ok := <-states:
			if !ok {
				return ctx.Err()
			}
			switch state.Status {
			case meter.Connected:
				return nil
			case meter.Scanning, meter.Connecting:
			default:
				return fmt.Errorf("%s: %s", m.DeviceName(), state)
			}
		}
	}
}

// History opens the configured measurement store.
func (c *Config) History() (store.Store, error) {
	if !c.Flags.isSet(FlagHistory) || c.HistoryFile == "" {
		return nil, fmt.Errorf("no history file configured")
	}
	if err := os.MkdirAll(filepath.Dir(c.HistoryFile), 0700); err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(c.HistoryFile), ".json") {
		log.Debug("Loading history from %s...", c.HistoryFile)
		return cache.Open(c.HistoryFile, c.MaxHistory)
	}
	log.Debug("Opening history database %s...", c.HistoryFile)
	return sqlite.Open(c.HistoryFile)
}

// Session starts a measurement session for the configured profile and leg.
func (c *Config) Session() (*measurement.Session, error) {
	leg, err := measurement.ParseLeg(c.Leg)
	if err != nil {
		return nil, err
	}
	return measurement.NewSession(c.ProfileID, leg), nil
}

func (c *Config) token() (string, error) {
	if c.uploadToken != "" {
		return c.uploadToken, nil
	}
	if c.KeyringTokenName == "" && c.TokenFilename == "" {
		return "", ErrNoTokenSpecified
	}
	var err error
	if c.TokenFilename != "" {
		token, err := os.ReadFile(c.TokenFilename)
		if err == nil {
			c.uploadToken = strings.TrimSpace(string(token))
			return c.uploadToken, nil
		}
		if !errors.Is(err, os.ErrNotExist) || c.KeyringTokenName == "" {
			return "", err
		}
		// If the token file doesn't exist, fall through to trying to load from the system keyring.
	}
	c.uploadToken, err = c.LoadTokenFromKeyring()
	return c.uploadToken, err
}

// Uploader returns a client for the configured upload service.
func (c *Config) Uploader() (*upload.Client, error) {
	if !c.Flags.isSet(FlagUpload) {
		return nil, fmt.Errorf("upload options are not enabled")
	}
	token, err := c.token()
	if err != nil {
		return nil, err
	}
	client, err := upload.New(token, c.UploadURL, "")
	if err != nil {
		return nil, err
	}
	if c.UploadFormat != "" {
		if client.Format, err = upload.ParseFormat(c.UploadFormat); err != nil {
			return nil, err
		}
	}
	return client, nil
}

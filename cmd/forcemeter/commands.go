package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tomjod/forcemeter/pkg/cli"
	"github.com/tomjod/forcemeter/pkg/measurement"
	"github.com/tomjod/forcemeter/pkg/meter"
	"github.com/tomjod/forcemeter/pkg/protocol"
	"github.com/tomjod/forcemeter/pkg/store"
	"github.com/tomjod/forcemeter/pkg/upload"
)

var (
	ErrCommandLineArgs = errors.New("invalid command line arguments")
	ErrInvalidFactor   = errors.New("invalid calibration factor")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrRequiresToken   = errors.New("command requires an upload token (-token-name or -token-file)")
	ErrUnknownCommand  = errors.New("unrecognized command")
)

const (
	defaultWatchSeconds = 10
	defaultHistoryLimit = 10
)

// app holds what commands operate on. Fields are nil when the command's option group is disabled.
type app struct {
	config  *cli.Config
	meter   *meter.Meter
	history store.Store
	out     io.Writer
}

func newApp(config *cli.Config, out io.Writer) (*app, error) {
	a := &app{config: config, out: out}
	if config.Flags&cli.FlagDevice != 0 {
		m, err := config.Meter()
		if err != nil {
			return nil, err
		}
		a.meter = m
	}
	if config.Flags&cli.FlagHistory != 0 {
		h, err := config.History()
		if err != nil {
			a.Close()
			return nil, err
		}
		a.history = h
	}
	return a, nil
}

func (a *app) Close() {
	if a.meter != nil {
		a.meter.Release()
	}
	if a.history != nil {
		a.history.Close()
	}
}

type Argument struct {
	name string
	help string
}

type Handler func(ctx context.Context, a *app, args map[string]string) error

type Command struct {
	help         string
	requires     cli.Flag // Option groups the command needs
	requiresLink bool     // True if the meter must be connected before the command runs
	unbounded    bool     // True if the command is not subject to -command-timeout
	args         []Argument
	optional     []Argument
	handler      Handler
}

// ParseFactor parses a calibration factor. Zero is rejected because the device divides by it.
func ParseFactor(s string) (float32, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidFactor, err)
	}
	if f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidFactor, s)
	}
	return float32(f), nil
}

func parseSeconds(s string) (time.Duration, error) {
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil || seconds <= 0 || math.IsInf(seconds, 0) {
		return 0, fmt.Errorf("%w: expected a positive number of seconds", ErrInvalidDuration)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// configureFlags restricts c to the option groups commandName needs.
func configureFlags(c *cli.Config, commandName string) error {
	info, ok := commands[commandName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, commandName)
	}
	c.Flags = info.requires
	return nil
}

func checkReadiness(c *cli.Config, commandName string) (*Command, error) {
	info, ok := commands[commandName]
	if !ok {
		return nil, ErrUnknownCommand
	}
	if info.requires&cli.FlagUpload != 0 && c.KeyringTokenName == "" && c.TokenFilename == "" {
		return nil, ErrRequiresToken
	}
	return info, nil
}

func needsLink(args []string) bool {
	if len(args) == 0 {
		return false
	}
	info, ok := commands[args[0]]
	return ok && info.requiresLink
}

func execute(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}

	info, err := checkReadiness(a.config, args[0])
	if err != nil {
		return err
	}
	if info.requires&cli.FlagDevice != 0 && a.meter == nil {
		return fmt.Errorf("%s: no device configured", args[0])
	}
	if info.requires&cli.FlagHistory != 0 && a.history == nil {
		return fmt.Errorf("%s: no history configured", args[0])
	}

	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args)-1, len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		err = info.handler(ctx, a, keywords)
	}

	// Print command-specific help
	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range c.args {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}

func printMeasurement(w io.Writer, m *measurement.Measurement) {
	fmt.Fprintf(w, "%s  %s  %-5s  primary %8.2f avg %8.2f max  secondary %8.2f avg %8.2f max  ratio %.3f  %3ds",
		m.ID, m.Timestamp.Local().Format(time.DateTime), m.Leg, m.PrimaryAvg, m.PrimaryMax,
		m.SecondaryAvg, m.SecondaryMax, m.Ratio, m.DurationSeconds)
	if m.Notes != "" {
		fmt.Fprintf(w, "  %q", m.Notes)
	}
	fmt.Fprintln(w)
}

func calibrate(channel string, send func(float32) error) Handler {
	return func(ctx context.Context, a *app, args map[string]string) error {
		factor, err := ParseFactor(args["FACTOR"])
		if err != nil {
			return fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
		}
		if err := send(factor); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Channel %s calibration factor set to %s\n", channel, protocol.FormatFactor(factor))
		return nil
	}
}

var commands = map[string]*Command{
	"scan": &Command{
		help:      "Scan for the force meter and connect to it",
		requires:  cli.FlagDevice,
		unbounded: true,
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			if err := cli.WaitConnected(ctx, a.meter); err != nil {
				return err
			}
			device, _ := a.meter.Device()
			fmt.Fprintf(a.out, "Connected to %s (%s)\n", device.Name, device.Address)
			return nil
		},
	},
	"status": &Command{
		help:     "Show connection state and the latest reading",
		requires: cli.FlagDevice,
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			fmt.Fprintf(a.out, "State:   %s\n", a.meter.State())
			if device, ok := a.meter.Device(); ok {
				fmt.Fprintf(a.out, "Device:  %s (%s)\n", device.Name, device.Address)
			}
			if reading, ok := a.meter.Reading(); ok {
				fmt.Fprintf(a.out, "Reading: %s\n", reading)
			}
			stats := a.meter.Stats()
			fmt.Fprintf(a.out, "Frames:  %d accepted, %d rejected, %d ACKs\n", stats.Accepted, stats.Rejected, a.meter.Acks())
			return nil
		},
	},
	"tare": &Command{
		help:         "Zero both channels",
		requires:     cli.FlagDevice,
		requiresLink: true,
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			if err := a.meter.SendTareCommand(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Tare sent")
			return nil
		},
	},
	"calibrate-a": &Command{
		help:         "Set the calibration factor of the primary channel",
		requires:     cli.FlagDevice,
		requiresLink: true,
		args: []Argument{
			Argument{name: "FACTOR", help: "Nonzero decimal factor, e.g. 2280.5"},
		},
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			return calibrate("A", a.meter.CalibrateChannelA)(ctx, a, args)
		},
	},
	"calibrate-b": &Command{
		help:         "Set the calibration factor of the secondary channel",
		requires:     cli.FlagDevice,
		requiresLink: true,
		args: []Argument{
			Argument{name: "FACTOR", help: "Nonzero decimal factor, e.g. -7050"},
		},
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			return calibrate("B", a.meter.CalibrateChannelB)(ctx, a, args)
		},
	},
	"disconnect": &Command{
		help:     "Close the connection to the force meter",
		requires: cli.FlagDevice,
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			a.meter.Disconnect()
			fmt.Fprintln(a.out, "Disconnected")
			return nil
		},
	},
	"watch": &Command{
		help:         "Print readings as they arrive",
		requires:     cli.FlagDevice,
		requiresLink: true,
		unbounded:    true,
		optional: []Argument{
			Argument{name: "SECONDS", help: fmt.Sprintf("How long to watch (default %d)", defaultWatchSeconds)},
		},
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			duration := defaultWatchSeconds * time.Second
			if s, ok := args["SECONDS"]; ok {
				var err error
				if duration, err = parseSeconds(s); err != nil {
					return fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
				}
			}
			if a.meter.State().Status != meter.Connected {
				return protocol.ErrNotConnected
			}
			ctx, cancel := context.WithTimeout(ctx, duration)
			defer cancel()
			readings := a.meter.SubscribeReadings(ctx)
			for {
				select {
				case <-ctx.Done():
					return nil
				case reading, ok := <-readings:
					if !ok {
						if ctx.Err() != nil {
							return nil
						}
						return protocol.ErrReleased
					}
					if reading == nil {
						return protocol.ErrNotConnected
					}
					fmt.Fprintf(a.out, "%s  %s\n", time.Now().Format("15:04:05.000"), reading)
				}
			}
		},
	},
	"record": &Command{
		help:         "Record a measurement session and store it in the history",
		requires:     cli.FlagDevice | cli.FlagHistory,
		requiresLink: true,
		unbounded:    true,
		args: []Argument{
			Argument{name: "SECONDS", help: "Session length"},
		},
		optional: []Argument{
			Argument{name: "NOTES", help: "Free-form notes stored with the measurement"},
		},
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			duration, err := parseSeconds(args["SECONDS"])
			if err != nil {
				return fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
			}
			session, err := a.config.Session()
			if err != nil {
				return err
			}
			m, err := measurement.NewRecorder(a.meter).Record(ctx, session, duration, args["NOTES"])
			if m == nil || session.Len() == 0 {
				if err == nil {
					err = errors.New("no readings received")
				}
				return err
			}
			if saveErr := a.history.Save(ctx, m); saveErr != nil {
				return saveErr
			}
			printMeasurement(a.out, m)
			return err
		},
	},
	"history": &Command{
		help:     "List the most recent measurements of the configured profile",
		requires: cli.FlagHistory,
		optional: []Argument{
			Argument{name: "LIMIT", help: fmt.Sprintf("Number of measurements to list (default %d)", defaultHistoryLimit)},
		},
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			limit := defaultHistoryLimit
			if s, ok := args["LIMIT"]; ok {
				n, err := strconv.Atoi(s)
				if err != nil || n <= 0 {
					return fmt.Errorf("%w: LIMIT must be a positive integer", ErrCommandLineArgs)
				}
				limit = n
			}
			recent, err := a.history.Recent(ctx, a.config.ProfileID, limit)
			if err != nil {
				return err
			}
			if len(recent) == 0 {
				fmt.Fprintf(a.out, "No measurements for profile %d\n", a.config.ProfileID)
				return nil
			}
			for _, m := range recent {
				printMeasurement(a.out, m)
			}
			return nil
		},
	},
	"delete": &Command{
		help:     "Delete a measurement from the history",
		requires: cli.FlagHistory,
		args: []Argument{
			Argument{name: "ID", help: "Measurement identifier as listed by history"},
		},
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			if err := a.history.Delete(ctx, args["ID"]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted %s\n", args["ID"])
			return nil
		},
	},
	"upload": &Command{
		help:     "Send a stored measurement to the upload service",
		requires: cli.FlagHistory | cli.FlagUpload,
		args: []Argument{
			Argument{name: "ID", help: "Measurement identifier as listed by history"},
		},
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			m, err := a.history.Get(ctx, args["ID"])
			if err != nil {
				return err
			}
			client, err := a.config.Uploader()
			if err != nil {
				return err
			}
			if _, err := client.Upload(ctx, m); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Uploaded %s to %s\n", m.ID, client.BaseURL)
			return nil
		},
	},
	"save-token": &Command{
		help:     "Store the upload token in the configured keyring or token file",
		requires: cli.FlagUpload,
		optional: []Argument{
			Argument{name: "FILE", help: "Read the token from FILE instead of prompting"},
		},
		handler: func(ctx context.Context, a *app, args map[string]string) error {
			var token string
			if filename, ok := args["FILE"]; ok {
				b, err := os.ReadFile(filename)
				if err != nil {
					return err
				}
				token = string(b)
			} else {
				var err error
				if token, err = cli.ReadSecret("Upload token"); err != nil {
					return err
				}
			}
			token = strings.TrimSpace(token)
			client, err := upload.New(token, a.config.UploadURL, "")
			if err != nil {
				return err
			}
			if err := a.config.SaveToken(token); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Saved token for %s (%s)\n", client.Subject, client.BaseURL)
			return nil
		},
	},
}

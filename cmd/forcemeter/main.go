package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/tomjod/forcemeter/internal/log"
	"github.com/tomjod/forcemeter/pkg/cli"
	"github.com/tomjod/forcemeter/pkg/protocol"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usage = `
 * Device commands need a transport (-transport, -address or -serial-port).
 * History commands need a history file (-history, defaults to the user config directory).
 * Uploads need a token (-token-name or -token-file).
Without a COMMAND an interactive shell is started.`

func Usage() {
	fmt.Printf("Usage: %s [OPTION...] COMMAND [ARG...]\n", os.Args[0])
	fmt.Printf("\nRun %s help COMMAND for more information. Valid COMMANDs are listed below.", os.Args[0])
	fmt.Println("")
	fmt.Println(usage)
	fmt.Println("")

	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Printf("Available COMMANDs:\n")
	maxLength := 0
	var labels []string
	for command := range commands {
		labels = append(labels, command)
		if len(command) > maxLength {
			maxLength = len(command)
		}
	}
	sort.Strings(labels)
	for _, command := range labels {
		info := commands[command]
		fmt.Printf("  %s%s %s\n", command, strings.Repeat(" ", maxLength-len(command)), info.help)
	}
}

func runCommand(ctx context.Context, a *app, args []string, timeout time.Duration) int {
	if info, ok := commands[args[0]]; ok && !info.unbounded {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := execute(ctx, a, args); err != nil {
		if protocol.MayHaveSucceeded(err) {
			writeErr("Couldn't verify success: %s", err)
		} else if errors.Is(err, protocol.ErrNotConnected) {
			writeErr("The force meter is not connected. Run scan first.")
		} else {
			writeErr("Failed to execute command: %s", err)
		}
		return 1
	}
	return 0
}

func runInteractiveShell(ctx context.Context, a *app, in io.Reader, timeout time.Duration) int {
	scanner := bufio.NewScanner(in)
	for fmt.Fprintf(a.out, "> "); scanner.Scan(); fmt.Fprintf(a.out, "> ") {
		args, err := shlex.Split(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			return 0
		}
		if err != nil {
			writeErr("Invalid command: %s", err)
			continue
		}
		if args[0] == "help" {
			if len(args) > 1 {
				if info, ok := commands[args[1]]; ok {
					info.Usage(args[1])
					continue
				}
			}
			Usage()
			continue
		}
		runCommand(ctx, a, args, timeout)
		if ctx.Err() != nil {
			return 1
		}
	}
	if err := scanner.Err(); err != nil {
		writeErr("Error reading command: %s", err)
		return 1
	}
	return 0
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		debug          bool
		commandTimeout time.Duration
		connTimeout    time.Duration
	)
	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %s\n", err)
		os.Exit(1)
	}
	flag.Usage = Usage
	flag.BoolVar(&debug, "debug", false, "Enable verbose debugging messages")
	flag.DurationVar(&commandTimeout, "command-timeout", 5*time.Second, "Set timeout for commands sent to the force meter.")
	flag.DurationVar(&connTimeout, "connect-timeout", 40*time.Second, "Set timeout for finding and connecting to the force meter.")

	config.RegisterCommandLineFlags()
	flag.Parse()
	if !debug {
		if debugEnv, ok := os.LookupEnv("FORCEMETER_VERBOSE"); ok {
			debug = debugEnv != "false" && debugEnv != "0"
		}
	}

	args := flag.Args()
	if len(args) > 0 {
		if args[0] == "help" {
			if len(args) == 1 {
				Usage()
				status = 0
				return
			}
			info, ok := commands[args[1]]
			if !ok {
				writeErr("Unrecognized command: %s", args[1])
				return
			}
			info.Usage(args[1])
			status = 0
			return
		}
		if err := configureFlags(config, args[0]); err != nil {
			writeErr("%s", err)
			return
		}
	}

	config.ReadFromEnvironment()
	if err := config.Load(); err != nil {
		writeErr("Invalid configuration: %s", err)
		return
	}
	if debug {
		log.SetLevel(log.LevelDebug)
	}
	if len(args) > 0 {
		if _, err := checkReadiness(config, args[0]); err != nil {
			writeErr("Missing required option: %s", err)
			return
		}
	}

	if err := config.LoadCredentials(); err != nil {
		writeErr("Error loading credentials: %s", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(config, os.Stdout)
	if err != nil {
		writeErr("Error: %s", err)
		return
	}
	defer a.Close()

	if needsLink(args) {
		connCtx, cancel := context.WithTimeout(ctx, connTimeout)
		err := cli.WaitConnected(connCtx, a.meter)
		cancel()
		if err != nil {
			writeErr("Error: %s", err)
			// Error isn't wrapped so we have to check for a substring explicitly.
			if strings.Contains(err.Error(), "operation not permitted") {
				writeErr("\nTry again after granting this application CAP_NET_ADMIN:\n\n\tsudo setcap 'cap_net_admin=eip' \"$(which %s)\"\n", os.Args[0])
			}
			if len(args) > 0 {
				return
			}
		}
	}

	if len(args) > 0 {
		status = runCommand(ctx, a, args, commandTimeout)
	} else {
		status = runInteractiveShell(ctx, a, os.Stdin, commandTimeout)
	}
}

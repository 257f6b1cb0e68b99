package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/99designs/keyring"
	"golang.org/x/term"
)

const (
	keyringServiceName  = "com.forcemeter.upload"
	keyringTokenService = "uploadtoken"
	keyringDirectory    = "~/.forcemeter_keys"
)

type backendType struct {
	config *Config
}

func (b backendType) String() string {
	if b.config == nil || len(b.config.Backend.AllowedBackends) == 0 {
		return string(keyring.InvalidBackend)
	}
	return string(b.config.Backend.AllowedBackends[0])
}

func (b backendType) Set(v string) error {
	value := keyring.BackendType(v)
	if b.config == nil {
		return fmt.Errorf("invalid backendType")
	}
	if v == "" {
		return nil
	}
	for _, name := range keyring.AvailableBackends() {
		if name == value {
			b.config.Backend.AllowedBackends = []keyring.BackendType{name}
			return nil
		}
	}
	return fmt.Errorf("unsupported credential storage")
}

func (c *Config) getPassword(prompt string) (string, error) {
	if c.password != nil && *c.password != "" {
		return *c.password, nil
	}

	password, err := ReadSecret(prompt)
	if err != nil {
		return "", err
	}
	c.password = &password
	return password, nil
}

// ReadSecret prompts on the terminal for a value without echoing it.
func ReadSecret(prompt string) (string, error) {
	var w io.Writer
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		fd = int(os.Stderr.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("no terminal output available for password prompt")
		} else {
			w = os.Stderr
		}
	} else {
		w = os.Stdout
	}

	fmt.Fprintf(w, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(w)
	return string(b), nil
}

func (c *Config) openKeyring() (keyring.Keyring, error) {
	keyring.Debug = c.Debug
	return keyring.Open(c.Backend)
}

func (c *Config) fullTokenName() string {
	return keyringTokenService + "." + c.KeyringTokenName
}

// LoadTokenFromKeyring loads an upload token from the system keyring.
//
// The user must match the value provided to SaveTokenToKeyring.
func (c *Config) LoadTokenFromKeyring() (string, error) {
	if c.KeyringTokenName == "" {
		return "", ErrNoTokenSpecified
	}
	kr, err := c.openKeyring()
	if err != nil {
		return "", err
	}

	item, err := kr.Get(c.fullTokenName())
	if err != nil {
		return "", fmt.Errorf("could not load token: %w", err)
	}
	return string(item.Data), nil
}

// SaveTokenToKeyring writes an upload token to the system keyring.
//
// c.KeyringTokenName identifies the token for future use with LoadTokenFromKeyring and does not
// necessarily need to match the system username.
func (c *Config) SaveTokenToKeyring(token string) error {
	if c.KeyringTokenName == "" {
		return ErrNoTokenSpecified
	}
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}

	if err := kr.Set(keyring.Item{
		Key:  c.fullTokenName(),
		Data: []byte(strings.TrimSpace(token)),
	}); err != nil {
		return fmt.Errorf("failed to enroll token in keyring: %s", err)
	}
	c.uploadToken = ""
	return nil
}

// SaveToken writes token to the system keyring or file, depending on what options are
// configured. The method prefers the keyring if both options are available.
func (c *Config) SaveToken(token string) error {
	if c.KeyringTokenName != "" {
		return c.SaveTokenToKeyring(token)
	}
	if c.TokenFilename != "" {
		c.uploadToken = ""
		return os.WriteFile(c.TokenFilename, []byte(strings.TrimSpace(token)+"\n"), 0600)
	}
	return ErrNoTokenSpecified
}

// DeleteToken removes the upload token from the system keyring.
func (c *Config) DeleteToken() error {
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}
	c.uploadToken = ""
	return kr.Remove(c.fullTokenName())
}


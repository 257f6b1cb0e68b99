package main

import (
	"crypto/tls"
	"crypto/x509"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/tomjod/forcemeter/pkg/monitor"
)

// assertEquals should be replaced with a real assertion library
func assertEquals(t *testing.T, expected, actual interface{}, message string) {
	t.Helper()
	if expected != actual {
		t.Errorf("%s: expected %v, got %v", message, expected, actual)
	}
}

func TestParseConfig(t *testing.T) {
	origArgs := os.Args
	os.Args = []string{"cmd"}
	defer func() {
		os.Args = origArgs
	}()
	for _, name := range []string{EnvTlsCert, EnvTlsKey, EnvHost, EnvPort, EnvToken, EnvRate, EnvVerbose} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}

	t.Run("default values", func(t *testing.T) {
		err := readFromEnvironment()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		assertEquals(t, defaultHost, monitorConfig.host, "host")
		assertEquals(t, defaultPort, monitorConfig.port, "port")
		assertEquals(t, float64(monitor.DefaultReadingRate), monitorConfig.rate, "rate")
		assertEquals(t, "", monitorConfig.certFilename, "certFilename")
		assertEquals(t, "", monitorConfig.keyFilename, "keyFilename")
		assertEquals(t, "", monitorConfig.token, "token")
		assertEquals(t, false, monitorConfig.verbose, "verbose")
	})

	t.Run("invalid port", func(t *testing.T) {
		t.Setenv(EnvPort, "eighty")
		if err := readFromEnvironment(); err == nil {
			t.Error("Expected error for invalid port")
		}
		monitorConfig.port = defaultPort
	})

	t.Run("environment variables", func(t *testing.T) {
		t.Setenv(EnvTlsCert, "/env/cert.pem")
		t.Setenv(EnvTlsKey, "/env/key.pem")
		t.Setenv(EnvHost, "envhost")
		t.Setenv(EnvPort, "8443")
		t.Setenv(EnvToken, "envtoken")
		t.Setenv(EnvRate, "4")
		t.Setenv(EnvVerbose, "true")

		err := readFromEnvironment()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		assertEquals(t, "/env/cert.pem", monitorConfig.certFilename, "certFilename")
		assertEquals(t, "/env/key.pem", monitorConfig.keyFilename, "keyFilename")
		assertEquals(t, "envhost", monitorConfig.host, "host")
		assertEquals(t, 8443, monitorConfig.port, "port")
		assertEquals(t, "envtoken", monitorConfig.token, "token")
		assertEquals(t, 4.0, monitorConfig.rate, "rate")
		assertEquals(t, true, monitorConfig.verbose, "verbose")
	})

	t.Run("flags override environment variables", func(t *testing.T) {
		t.Setenv(EnvHost, "envhost")
		t.Setenv(EnvPort, "8443")
		os.Args = []string{"cmd", "-cert", "/flag/cert.pem", "-tls-key", "/flag/key.pem", "-host", "flaghost", "-port", "9090", "-token", "flagtoken", "-rate", "2"}

		flag.Parse()
		err := readFromEnvironment()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		assertEquals(t, "/flag/cert.pem", monitorConfig.certFilename, "certFilename")
		assertEquals(t, "/flag/key.pem", monitorConfig.keyFilename, "keyFilename")
		assertEquals(t, "flaghost", monitorConfig.host, "host")
		assertEquals(t, 9090, monitorConfig.port, "port")
		assertEquals(t, "flagtoken", monitorConfig.token, "token")
		assertEquals(t, 2.0, monitorConfig.rate, "rate")
	})
}

func TestSelfSignedServer(t *testing.T) {
	plain := newServer("localhost:0", http.NotFoundHandler(), false)
	if plain.TLSConfig != nil {
		t.Error("Plain server should not carry a TLS configuration")
	}

	server := newServer("127.0.0.1:0", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "ok")
	}), true)
	if server.TLSConfig == nil || len(server.TLSConfig.Certificates) != 1 {
		t.Fatal("Expected a generated certificate")
	}

	ts := httptest.NewUnstartedServer(server.Handler)
	ts.TLS = server.TLSConfig
	ts.StartTLS()
	defer ts.Close()

	leaf, err := x509.ParseCertificate(server.TLSConfig.Certificates[0].Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	roots := x509.NewCertPool()
	roots.AddCert(leaf)
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: roots}}}
	resp, err := client.Get(ts.URL)
	if err != nil {
		t.Fatalf("TLS request failed: %s", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assertEquals(t, "ok", string(body), "body")
}

package monitor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tomjod/forcemeter/pkg/connector"
	"github.com/tomjod/forcemeter/pkg/environment"
	"github.com/tomjod/forcemeter/pkg/meter"
	"github.com/tomjod/forcemeter/pkg/monitor"
	"github.com/tomjod/forcemeter/pkg/simulator"
)

type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    string          `json:"error"`
}

var _ = Describe("Server", func() {
	var (
		device *simulator.Device
		m      *meter.Meter
		s      *monitor.Server
	)

	sendRequest := func(method, path string, token string) (*httptest.ResponseRecorder, envelope) {
		req := httptest.NewRequest(method, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		s.ServeHTTP(rr, req)
		var reply envelope
		Expect(json.Unmarshal(rr.Body.Bytes(), &reply)).To(Succeed())
		return rr, reply
	}

	status := func() meter.Status {
		return m.State().Status
	}

	BeforeEach(func() {
		device = simulator.New(connector.DefaultDeviceName).WithInterval(10 * time.Millisecond)
		m = meter.New(device, device, environment.Ready, meter.Config{})
		s = monitor.New(context.Background(), m, 1000)
		DeferCleanup(func() {
			s.Close()
			m.Release()
		})
	})

	Context("REST API", func() {
		It("reports state", func() {
			rr, reply := sendRequest(http.MethodGet, "/api/state", "")
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Header().Get("Content-Type")).To(Equal("application/json"))
			var state monitor.StateResponse
			Expect(json.Unmarshal(reply.Response, &state)).To(Succeed())
			Expect(state.Device).To(Equal(connector.DefaultDeviceName))
			Expect(state.State.Status).To(Equal(meter.Disconnected))
			Expect(state.Reading).To(BeNil())
		})

		It("returns not found for unknown paths", func() {
			rr, _ := sendRequest(http.MethodGet, "/api/unknown", "")
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})

		It("rejects the wrong method", func() {
			rr, _ := sendRequest(http.MethodGet, "/api/tare", "")
			Expect(rr.Code).To(Equal(http.StatusMethodNotAllowed))
			rr, _ = sendRequest(http.MethodPost, "/api/state", "")
			Expect(rr.Code).To(Equal(http.StatusMethodNotAllowed))
		})

		It("returns conflict for commands while disconnected", func() {
			rr, reply := sendRequest(http.MethodPost, "/api/tare", "")
			Expect(rr.Code).To(Equal(http.StatusConflict))
			Expect(reply.Error).To(Equal("force meter not connected"))
		})

		It("validates calibration requests", func() {
			rr, _ := sendRequest(http.MethodPost, "/api/calibrate/a?factor=abc", "")
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
			rr, _ = sendRequest(http.MethodPost, "/api/calibrate/a?factor=0", "")
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
			rr, _ = sendRequest(http.MethodPost, "/api/calibrate/c?factor=2", "")
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("drives a connection end to end", func() {
			rr, reply := sendRequest(http.MethodPost, "/api/scan", "")
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(string(reply.Response)).To(MatchJSON(`{"result":true}`))
			Eventually(status).Should(Equal(meter.Connected))

			rr, _ = sendRequest(http.MethodPost, "/api/calibrate/b?factor=2.5", "")
			Expect(rr.Code).To(Equal(http.StatusOK))
			Eventually(func() float32 {
				_, b := device.Factors()
				return b
			}).Should(BeNumerically("==", 2.5))

			rr, _ = sendRequest(http.MethodPost, "/api/tare", "")
			Expect(rr.Code).To(Equal(http.StatusOK))

			rr, _ = sendRequest(http.MethodPost, "/api/disconnect", "")
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(status()).To(Equal(meter.Disconnected))
		})

		It("returns service unavailable once the meter is released", func() {
			m.Release()
			rr, _ := sendRequest(http.MethodPost, "/api/scan", "")
			Expect(rr.Code).To(Equal(http.StatusServiceUnavailable))
		})
	})

	Context("with a token", func() {
		BeforeEach(func() {
			s.Token = "secret"
		})

		It("rejects requests without it", func() {
			rr, _ := sendRequest(http.MethodGet, "/api/state", "")
			Expect(rr.Code).To(Equal(http.StatusForbidden))
			rr, _ = sendRequest(http.MethodGet, "/api/state", "wrong")
			Expect(rr.Code).To(Equal(http.StatusForbidden))
		})

		It("accepts requests with it", func() {
			rr, _ := sendRequest(http.MethodGet, "/api/state", "secret")
			Expect(rr.Code).To(Equal(http.StatusOK))
		})
	})

	Context("WebSocket feed", func() {
		var (
			server *httptest.Server
			conn   *websocket.Conn
		)

		BeforeEach(func() {
			server = httptest.NewServer(s)
			DeferCleanup(server.Close)
			var err error
			conn, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(conn.Close)
		})

		next := func() monitor.Message {
			var raw struct {
				Type string          `json:"type"`
				Data json.RawMessage `json:"data"`
			}
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			Expect(conn.ReadJSON(&raw)).To(Succeed())
			return monitor.Message{Type: raw.Type, Data: raw.Data}
		}

		It("sends a snapshot on connect", func() {
			msg := next()
			Expect(msg.Type).To(Equal("state"))
			Expect(string(msg.Data.(json.RawMessage))).To(MatchJSON(`{"status":"Disconnected"}`))
			msg = next()
			Expect(msg.Type).To(Equal("reading"))
			Expect(string(msg.Data.(json.RawMessage))).To(Equal("null"))
		})

		It("streams state changes and readings", func() {
			Expect(m.StartScan()).To(Succeed())
			seen := map[string]bool{}
			Eventually(func() bool {
				msg := next()
				if msg.Type == "state" {
					var state meter.ConnectionState
					Expect(json.Unmarshal(msg.Data.(json.RawMessage), &state)).To(Succeed())
					seen[state.Status.String()] = true
				} else if string(msg.Data.(json.RawMessage)) != "null" {
					seen["reading"] = true
				}
				return seen["Connected"] && seen["reading"]
			}).WithTimeout(5 * time.Second).Should(BeTrue())
		})

		It("forwards acknowledgments", func() {
			Expect(m.StartScan()).To(Succeed())
			Eventually(status).Should(Equal(meter.Connected))
			Expect(m.SendTareCommand()).To(Succeed())
			Eventually(func() string {
				msg := next()
				if msg.Type != "ack" {
					return ""
				}
				return string(msg.Data.(json.RawMessage))
			}).WithTimeout(5 * time.Second).Should(Equal("1"))
		})
	})
})

package upload_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tomjod/forcemeter/pkg/measurement"
	"github.com/tomjod/forcemeter/pkg/protocol"
	"github.com/tomjod/forcemeter/pkg/upload"
)

const endpoint = "https://results.example.com/api/1/measurements"

func makeToken(audience ...string) string {
	claims := jwt.RegisteredClaims{Subject: "coach-17", Audience: audience}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test"))
	Expect(err).NotTo(HaveOccurred())
	return token
}

var _ = Describe("Client", func() {
	var m *measurement.Measurement

	BeforeEach(func() {
		m = &measurement.Measurement{
			ID:         "01HQ4Z3V4N8Q4W8Y3G0V6Y2J9K",
			ProfileID:  4,
			PrimaryAvg: 30,
			Timestamp:  time.UnixMilli(1709287200000),
			Leg:        measurement.LegRight,
		}
		httpmock.Activate()
		DeferCleanup(httpmock.DeactivateAndReset)
	})

	Context("when created", func() {
		It("derives the service from the token audience", func() {
			c, err := upload.New(makeToken("https://results.example.com/"), "", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.BaseURL).To(Equal("https://results.example.com"))
			Expect(c.Subject).To(Equal("coach-17"))
		})

		It("accepts a bare host audience", func() {
			c, err := upload.New(makeToken("results.example.com"), "", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.BaseURL).To(Equal("https://results.example.com"))
		})

		It("prefers an explicit URL", func() {
			c, err := upload.New(makeToken("results.example.com"), "http://localhost:8080/", "bench/1.0")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.BaseURL).To(Equal("http://localhost:8080"))
			Expect(c.UserAgent).To(Equal("bench/1.0"))
		})

		It("rejects malformed tokens", func() {
			_, err := upload.New("not-a-token", "", "")
			Expect(err).To(HaveOccurred())
		})

		It("rejects tokens without a usable audience", func() {
			_, err := upload.New(makeToken("not a host/path"), "", "")
			Expect(err).To(HaveOccurred())
		})

		It("rejects invalid URLs", func() {
			_, err := upload.New(makeToken(), "ftp://example.com", "")
			Expect(err).To(HaveOccurred())
		})
	})

	Context("when uploading", func() {
		var (
			c     *upload.Client
			token string
		)

		BeforeEach(func() {
			var err error
			token = makeToken("https://results.example.com")
			c, err = upload.New(token, "", "")
			Expect(err).NotTo(HaveOccurred())
		})

		It("posts JSON with the bearer token", func() {
			httpmock.RegisterResponder(http.MethodPost, endpoint, func(r *http.Request) (*http.Response, error) {
				Expect(r.Header.Get("Authorization")).To(Equal("Bearer " + token))
				Expect(r.Header.Get("Content-Type")).To(Equal("application/json"))
				var posted measurement.Measurement
				Expect(json.NewDecoder(r.Body).Decode(&posted)).To(Succeed())
				Expect(posted.ID).To(Equal(m.ID))
				return httpmock.NewJsonResponse(http.StatusCreated, map[string]interface{}{"id": posted.ID})
			})
			body, err := c.Upload(context.Background(), m)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(MatchJSON(`{"id":"01HQ4Z3V4N8Q4W8Y3G0V6Y2J9K"}`))
		})

		It("posts protobuf wire format when configured", func() {
			c.Format = upload.FormatProtobuf
			httpmock.RegisterResponder(http.MethodPost, endpoint, func(r *http.Request) (*http.Response, error) {
				Expect(r.Header.Get("Content-Type")).To(Equal("application/x-protobuf"))
				raw, err := io.ReadAll(r.Body)
				Expect(err).NotTo(HaveOccurred())
				var posted measurement.Measurement
				Expect(posted.UnmarshalBinary(raw)).To(Succeed())
				Expect(posted.ProfileID).To(Equal(int64(4)))
				return httpmock.NewStringResponse(http.StatusOK, "{}"), nil
			})
			_, err := c.Upload(context.Background(), m)
			Expect(err).NotTo(HaveOccurred())
		})

		It("reports HTTP errors", func() {
			httpmock.RegisterResponder(http.MethodPost, endpoint,
				httpmock.NewStringResponder(http.StatusConflict, "duplicate measurement"))
			_, err := c.Upload(context.Background(), m)
			var httpErr *upload.HttpError
			Expect(errors.As(err, &httpErr)).To(BeTrue())
			Expect(httpErr.Code).To(Equal(http.StatusConflict))
			Expect(httpErr.Error()).To(Equal("duplicate measurement"))
			Expect(protocol.ShouldRetry(err)).To(BeFalse())
		})

		It("stops calling a failing service", func() {
			httpmock.RegisterResponder(http.MethodPost, endpoint,
				httpmock.NewStringResponder(http.StatusBadGateway, ""))
			for i := 0; i < 3; i++ {
				_, err := c.Upload(context.Background(), m)
				Expect(err).To(MatchError("Bad Gateway"))
			}
			_, err := c.Upload(context.Background(), m)
			Expect(err).To(MatchError(upload.ErrServiceUnavailable))
			Expect(protocol.Temporary(err)).To(BeTrue())
			Expect(httpmock.GetTotalCallCount()).To(Equal(3))
		})

		It("does not trip on rejected requests", func() {
			httpmock.RegisterResponder(http.MethodPost, endpoint,
				httpmock.NewStringResponder(http.StatusBadRequest, "bad leg"))
			for i := 0; i < 5; i++ {
				_, err := c.Upload(context.Background(), m)
				Expect(err).To(MatchError("bad leg"))
			}
		})
	})
})

var _ = DescribeTable("ParseFormat",
	func(input string, expected upload.Format, ok bool) {
		f, err := upload.ParseFormat(input)
		if !ok {
			Expect(err).To(HaveOccurred())
			return
		}
		Expect(err).NotTo(HaveOccurred())
		Expect(f).To(Equal(expected))
	},
	Entry("default", "", upload.FormatJSON, true),
	Entry("json", "JSON", upload.FormatJSON, true),
	Entry("protobuf", "protobuf", upload.FormatProtobuf, true),
	Entry("unknown", "xml", upload.FormatJSON, false),
)

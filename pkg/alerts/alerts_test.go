package alerts_test

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/onsi/gomega/ghttp"

	"github.com/alphagov/paas-stats-tallier/pkg/alerts"
	"github.com/alphagov/paas-stats-tallier/pkg/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Harold", func() {
	var (
		server *ghttp.Server
		harold *alerts.Harold
	)

	BeforeEach(func() {
		server = ghttp.NewServer()

		host, port, err := net.SplitHostPort(server.Addr())
		Expect(err).NotTo(HaveOccurred())
		portNumber, err := strconv.Atoi(port)
		Expect(err).NotTo(HaveOccurred())

		harold = alerts.NewHarold(config.HaroldConfig{
			Host:   host,
			Port:   portNumber,
			Secret: "haroldsecret",
		}, time.Second)
	})

	AfterEach(func() {
		server.Close()
	})

	It("posts heartbeats with the tag and expiry", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest("POST", "/harold/heartbeat/haroldsecret"),
			ghttp.VerifyForm(map[string][]string{
				"tag":      {"tallier"},
				"interval": {"30"},
			}),
			ghttp.RespondWith(http.StatusOK, ""),
		))

		Expect(harold.Heartbeat("tallier", 30)).To(Succeed())
		Expect(server.ReceivedRequests()).To(HaveLen(1))
	})

	It("posts alerts with the tag and message", func() {
		server.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest("POST", "/harold/alert/haroldsecret"),
			ghttp.VerifyForm(map[string][]string{
				"tag":     {"tallier"},
				"message": {"worker 1 is unresponsive"},
			}),
			ghttp.RespondWith(http.StatusOK, ""),
		))

		Expect(harold.Alert("tallier", "worker 1 is unresponsive")).To(Succeed())
	})

	It("fails on an error status", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusForbidden, "bad secret"))

		err := harold.Heartbeat("tallier", 30)
		Expect(err).To(MatchError(ContainSubstring("unexpected status 403")))
	})

	It("fails if harold is unreachable", func() {
		server.Close()

		Expect(harold.Heartbeat("tallier", 30)).NotTo(Succeed())
	})
})

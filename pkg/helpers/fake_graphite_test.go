package helpers_test

import (
	"net"

	"github.com/alphagov/paas-stats-tallier/pkg/helpers"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("FakeGraphiteServer", func() {
	var server *helpers.FakeGraphiteServer

	BeforeEach(func() {
		server = helpers.NewFakeGraphiteServer()
		Expect(server.Start()).To(Succeed())
	})

	AfterEach(func() {
		server.Stop()
	})

	It("hands back one payload per connection", func() {
		for _, payload := range []string{"a 1 1\n", "b 2 2\n"} {
			conn, err := net.Dial("tcp4", server.Addr)
			Expect(err).NotTo(HaveOccurred())
			_, err = conn.Write([]byte(payload))
			Expect(err).NotTo(HaveOccurred())
			Expect(conn.Close()).To(Succeed())
		}

		first, err := server.GetPayload()
		Expect(err).NotTo(HaveOccurred())
		second, err := server.GetPayload()
		Expect(err).NotTo(HaveOccurred())
		Expect([]string{first, second}).To(ConsistOf("a 1 1\n", "b 2 2\n"))
	})
})

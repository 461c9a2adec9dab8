package emitter

import (
	"net"
	"strings"
	"time"

	"code.cloudfoundry.org/lager/v3"

	"github.com/alphagov/paas-stats-tallier/pkg/config"
	"github.com/alphagov/paas-stats-tallier/pkg/metrics"
)

// GraphiteEmitter sends each batch of metrics over a new plaintext
// connection to carbon.
type GraphiteEmitter struct {
	addr    string
	timeout time.Duration
	logger  lager.Logger
}

func NewGraphiteEmitter(graphiteConfig config.GraphiteConfig, logger lager.Logger) *GraphiteEmitter {
	return &GraphiteEmitter{
		addr:    graphiteConfig.Addr,
		timeout: graphiteConfig.TimeoutDuration(),
		logger:  logger,
	}
}

// Emit connects, writes every line and disconnects.
func (e *GraphiteEmitter) Emit(m []metrics.Metric) error {
	lines := make([]string, 0, len(m))
	for _, metric := range m {
		lines = append(lines, metric.String())
	}
	payload := strings.Join(lines, "\n") + "\n"

	conn, err := net.DialTimeout("tcp", e.addr, e.timeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	if e.timeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(e.timeout))
	}
	if _, err := conn.Write([]byte(payload)); err != nil {
		return err
	}

	e.logger.Debug("sent", lager.Data{"metrics": len(m), "bytes": len(payload)})
	return nil
}

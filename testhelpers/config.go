package testhelpers

import (
	"encoding/json"
	"io/ioutil"

	. "github.com/onsi/gomega"

	"github.com/alphagov/paas-stats-tallier/pkg/config"
)

// BuildTempConfigFile writes a config listening on 127.0.0.1:udpPort with
// two workers and a two second flush interval, sending to graphiteAddr.
func BuildTempConfigFile(udpPort int, graphiteAddr string) (configFilePath string) {
	tallierConfig := config.Config{
		LogLevel: "debug",
		Tallier: config.TallierConfig{
			Interface:       "127.0.0.1",
			Port:            udpPort,
			NumWorkers:      2,
			FlushInterval:   2,
			MaxDatagramSize: 8192,
			ReadBatchSize:   32,
			WorkerTimeout:   5,
			Percentile:      90,
		},
		Heartbeat: config.HeartbeatConfig{
			Enabled:        false,
			Tag:            "tallier",
			ExpiryMultiple: 3,
		},
		Sink: config.SinkConfig{
			Type: config.GraphiteSink,
		},
		Graphite: config.GraphiteConfig{
			Addr:    graphiteAddr,
			Timeout: 5,
		},
	}
	temporaryConfigFile, err := ioutil.TempFile("", "stats-tallier-config-")
	Expect(err).ToNot(HaveOccurred())
	configJSON, err := json.Marshal(tallierConfig)
	Expect(err).ToNot(HaveOccurred())
	configFilePath = temporaryConfigFile.Name()
	err = ioutil.WriteFile(configFilePath, configJSON, 0644)
	Expect(err).ToNot(HaveOccurred())
	return configFilePath
}

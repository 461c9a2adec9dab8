package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net"
	"os"
	"time"

	validator "gopkg.in/go-playground/validator.v9"
)

const (
	GraphiteSink    = "graphite"
	LoggregatorSink = "loggregator"
	CloudWatchSink  = "cloudwatch"
	StdoutSink      = "stdout"
)

type Config struct {
	LogLevel           string                   `json:"log_level" validate:"required"`
	Tallier            TallierConfig            `json:"tallier"`
	Heartbeat          HeartbeatConfig          `json:"heartbeat"`
	Harold             HaroldConfig             `json:"harold"`
	Sink               SinkConfig               `json:"sink"`
	Graphite           GraphiteConfig           `json:"graphite"`
	LoggregatorEmitter LoggregatorEmitterConfig `json:"loggregator_emitter"`
	CloudWatch         CloudWatchConfig         `json:"cloudwatch"`
	Debug              DebugConfig              `json:"debug"`
}

type TallierConfig struct {
	Interface         string  `json:"interface"`
	Port              int     `json:"port" validate:"gte=0,lte=65535"`
	NumWorkers        int     `json:"num_workers" validate:"required,gte=1"`
	FlushInterval     float64 `json:"flush_interval" validate:"gt=0,lte=3600"`
	MaxDatagramSize   int     `json:"max_datagram_size" validate:"gte=64,lte=65535"`
	ReadBatchSize     int     `json:"read_batch_size" validate:"gte=1,lte=1024"`
	ReceiveBufferSize int     `json:"receive_buffer_size" validate:"gte=0"`
	WorkerTimeout     float64 `json:"worker_timeout" validate:"gte=0"`
	Percentile        int     `json:"percentile" validate:"gte=1,lte=99"`
}

// Address is the host:port the shared socket is bound to.
func (c TallierConfig) Address() string {
	return net.JoinHostPort(c.Interface, fmt.Sprint(c.Port))
}

func (c TallierConfig) FlushIntervalDuration() time.Duration {
	return time.Duration(c.FlushInterval * float64(time.Second))
}

func (c TallierConfig) WorkerTimeoutDuration() time.Duration {
	return time.Duration(c.WorkerTimeout * float64(time.Second))
}

type HeartbeatConfig struct {
	Enabled        bool    `json:"enabled"`
	Tag            string  `json:"tag" validate:"required"`
	ExpiryMultiple float64 `json:"expiry_multiple" validate:"gt=0"`
}

type HaroldConfig struct {
	Host   string `json:"host"`
	Port   int    `json:"port" validate:"gte=0,lte=65535"`
	Secret string `json:"secret"`
}

type SinkConfig struct {
	Type string `json:"type" validate:"required,oneof=graphite loggregator cloudwatch stdout"`
}

type GraphiteConfig struct {
	Addr    string  `json:"addr"`
	Timeout float64 `json:"timeout" validate:"gt=0"`
}

func (c GraphiteConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout * float64(time.Second))
}

type LoggregatorEmitterConfig struct {
	MetronURL  string `json:"url"`
	CACertPath string `json:"ca_cert"`
	CertPath   string `json:"client_cert"`
	KeyPath    string `json:"client_key"`
}

type CloudWatchConfig struct {
	Region    string `json:"region"`
	Namespace string `json:"namespace"`
}

type DebugConfig struct {
	MetricsAddress string `json:"metrics_address"`
}

const defaultConfig = `
{
	"log_level": "INFO",
	"tallier": {
		"interface": "",
		"port": 8125,
		"num_workers": 1,
		"flush_interval": 10,
		"max_datagram_size": 8192,
		"read_batch_size": 32,
		"receive_buffer_size": 0,
		"worker_timeout": 0,
		"percentile": 90
	},
	"heartbeat": {
		"enabled": true,
		"tag": "tallier",
		"expiry_multiple": 3
	},
	"harold": {
		"port": 8888
	},
	"sink": {
		"type": "graphite"
	},
	"graphite": {
		"addr": "localhost:2003",
		"timeout": 10
	},
	"loggregator_emitter": {
		"url": "localhost:3458"
	},
	"cloudwatch": {
		"namespace": "Tallier"
	}
}
`

func LoadConfig(configFile string) (*Config, error) {
	var config Config

	if configFile == "" {
		return &config, errors.New("Must provide a config file")
	}

	file, err := os.Open(configFile)
	if err != nil {
		return &config, err
	}
	defer file.Close()

	bytes, err := ioutil.ReadAll(file)
	if err != nil {
		return &config, err
	}

	json.Unmarshal([]byte(defaultConfig), &config) // Parse defaults
	if err = json.Unmarshal(bytes, &config); err != nil {
		return &config, err
	}

	if err = config.Validate(); err != nil {
		return &config, fmt.Errorf("Validating config contents: %s", err)
	}

	return &config, nil
}

func (c Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return err
	}

	if _, _, err := net.SplitHostPort(c.Tallier.Address()); err != nil {
		return fmt.Errorf("invalid tallier address: %s", err)
	}

	switch c.Sink.Type {
	case GraphiteSink:
		if _, _, err := net.SplitHostPort(c.Graphite.Addr); err != nil {
			return fmt.Errorf("invalid graphite address '%s': %s", c.Graphite.Addr, err)
		}
	case LoggregatorSink:
		e := c.LoggregatorEmitter
		if e.MetronURL == "" || e.CACertPath == "" || e.CertPath == "" || e.KeyPath == "" {
			return errors.New("loggregator sink requires url, ca_cert, client_cert and client_key")
		}
	case CloudWatchSink:
		if c.CloudWatch.Region == "" || c.CloudWatch.Namespace == "" {
			return errors.New("cloudwatch sink requires region and namespace")
		}
	}

	if c.HeartbeatEnabled() && c.Harold.Port == 0 {
		return errors.New("harold port is required when heartbeats are enabled")
	}

	return nil
}

// HeartbeatEnabled reports whether heartbeats should be sent to harold.
func (c Config) HeartbeatEnabled() bool {
	return c.Heartbeat.Enabled && c.Harold.Host != ""
}

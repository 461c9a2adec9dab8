// Package alerts talks to harold, the on-call system that pages when a
// heartbeat goes missing or an alert is raised.
package alerts

import (
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alphagov/paas-stats-tallier/pkg/config"
)

// Alerter is the liveness collaborator.
type Alerter interface {
	// Heartbeat tells harold to expect another heartbeat with the same tag
	// within expiry seconds.
	Heartbeat(tag string, expiry int) error
	// Alert raises an immediate notification.
	Alert(tag, message string) error
}

// Harold posts form-encoded commands to
// http://<host>:<port>/harold/<command>/<secret>.
type Harold struct {
	baseURL string
	secret  string
	client  *http.Client
}

func NewHarold(haroldConfig config.HaroldConfig, timeout time.Duration) *Harold {
	return &Harold{
		baseURL: "http://" + net.JoinHostPort(haroldConfig.Host, strconv.Itoa(haroldConfig.Port)) + "/harold",
		secret:  haroldConfig.Secret,
		client:  &http.Client{Timeout: timeout},
	}
}

func (h *Harold) Heartbeat(tag string, expiry int) error {
	return h.post("heartbeat", url.Values{
		"tag":      {tag},
		"interval": {strconv.Itoa(expiry)},
	})
}

func (h *Harold) Alert(tag, message string) error {
	return h.post("alert", url.Values{
		"tag":     {tag},
		"message": {message},
	})
}

func (h *Harold) post(command string, form url.Values) error {
	endpoint := fmt.Sprintf("%s/%s/%s", h.baseURL, command, url.PathEscape(h.secret))

	resp, err := h.client.PostForm(endpoint, form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(ioutil.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("harold %s: unexpected status %d", command, resp.StatusCode)
	}
	return nil
}

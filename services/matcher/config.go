package matcher

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	EndpointAddress = "address"
	EndpointMobile  = "mobile"
	EndpointSchools = "schools"
)

const DefaultTimeout = 30 * time.Second

var defaultPorts = map[string]int{
	EndpointMobile:  8050,
	EndpointSchools: 8070,
}

type EndpointConfig struct {
	// URL of the docker, a `{}` or `{port}` in it is replaced with Port.
	URL     string            `json:"url"`
	Port    int               `json:"port"`
	Headers map[string]string `json:"headers"`
}

type Config struct {
	Endpoints      map[string]EndpointConfig `json:"endpoints"`
	TimeoutSeconds int                       `json:"timeout_seconds"`
	// DumpDir is where full request/response dumps are written while debug
	// logging is on, empty disables dumping.
	DumpDir string `json:"dump_dir"`
}

func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate checks every endpoint and resolves its URL in place. It is safe
// to call more than once.
func (c *Config) Validate() error {
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("matcher: timeout_seconds must not be negative")
	}
	endpoints := make(map[string]EndpointConfig, len(c.Endpoints))
	for name, ep := range c.Endpoints {
		resolved, err := ep.resolve(name)
		if err != nil {
			return fmt.Errorf("matcher: endpoint %q: %w", name, err)
		}
		endpoints[name] = resolved
	}
	c.Endpoints = endpoints
	return nil
}

func (ep EndpointConfig) resolve(name string) (EndpointConfig, error) {
	if ep.URL == "" {
		return EndpointConfig{}, fmt.Errorf("url is empty")
	}

	if strings.Contains(ep.URL, "{}") || strings.Contains(ep.URL, "{port}") {
		if ep.Port == 0 {
			ep.Port = defaultPorts[name]
		}
		if ep.Port <= 0 || ep.Port > 65535 {
			return EndpointConfig{}, fmt.Errorf("url %q needs a port but none is configured", ep.URL)
		}
		port := strconv.Itoa(ep.Port)
		ep.URL = strings.ReplaceAll(ep.URL, "{}", port)
		ep.URL = strings.ReplaceAll(ep.URL, "{port}", port)
	}

	u, err := url.Parse(ep.URL)
	if err != nil {
		return EndpointConfig{}, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return EndpointConfig{}, fmt.Errorf("url %q must be http or https", ep.URL)
	}
	if u.Host == "" {
		return EndpointConfig{}, fmt.Errorf("url %q has no host", ep.URL)
	}

	headers := make(map[string]string, len(ep.Headers)+1)
	hasContentType := false
	for k, v := range ep.Headers {
		headers[k] = v
		if strings.EqualFold(k, "Content-Type") {
			hasContentType = true
		}
	}
	if !hasContentType {
		headers["Content-Type"] = "application/json"
	}
	ep.Headers = headers
	return ep, nil
}

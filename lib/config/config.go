/*
 * ts-love-csc
 * Copyright (C) 2026  LSST Project, https://www.lsst.org
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package config defines the LOVE CSC configuration file schema.
package config

import (
	"io"
	"net/url"
	"os"
	"time"

	"github.com/gravitational/trace"
	"gopkg.in/yaml.v3"

	lovecsc "github.com/lsst-ts/ts-love-csc"
	"github.com/lsst-ts/ts-love-csc/lib/logutils"
	"github.com/lsst-ts/ts-love-csc/lib/sal"
)

// Duration is a time.Duration that unmarshals from either a duration
// string ("90s", "2m") or a bare number of seconds, the form the
// original schema used.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var seconds float64
	if err := node.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil
	}
	var text string
	if err := node.Decode(&text); err != nil {
		return trace.BadParameter("bad duration value at line %d", node.Line)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return trace.BadParameter("bad duration value %q, expected seconds or a duration like \"90s\"", text)
	}
	*d = Duration(parsed)
	return nil
}

// Duration converts to the standard library type.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the LOVE CSC configuration file.
type Config struct {
	// SALProxyURL is the websocket endpoint of the SAL proxy the CSC
	// pushes setAuthList commands through and receives authList events
	// from, e.g. "ws://love-proxy:8046/sal".
	SALProxyURL string `yaml:"sal_proxy_url"`

	// Port serves the diagnostics endpoint (metrics, health, the
	// mirrored auth lists). Zero disables it.
	Port int `yaml:"port"`

	// TimeoutRequestAuthorization bounds the processing of one whole
	// requestAuthorization command across all of its targets.
	TimeoutRequestAuthorization Duration `yaml:"timeout_request_authorization"`

	// TimeoutCommand bounds a single push or poll against one remote
	// component.
	TimeoutCommand Duration `yaml:"timeout_command"`

	// AutoAuthorization selects whether auth-list change requests are
	// applied automatically. When false every request is rejected: the
	// operator approval flow is not implemented yet.
	AutoAuthorization *bool `yaml:"auto_authorization"`

	// Components are the identities whose auth lists this CSC manages.
	// Only identities listed here are ever pushed to or mirrored.
	Components []string `yaml:"components"`

	// Log configures the daemon logger.
	Log logutils.Config `yaml:"log"`
}

// ReadConfig parses a configuration. Unknown fields are rejected.
func ReadConfig(r io.Reader) (*Config, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	cfg := &Config{}
	if err := decoder.Decode(cfg); err != nil {
		if err == io.EOF {
			return nil, trace.BadParameter("configuration is empty")
		}
		return nil, trace.BadParameter("failed to parse configuration: %v", err)
	}
	return cfg, nil
}

// ReadFromFile loads and parses the configuration file at path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	defer f.Close()
	cfg, err := ReadConfig(f)
	if err != nil {
		return nil, trace.WrapWithMessage(err, "failed to load configuration file %v", path)
	}
	return cfg, nil
}

// CheckAndSetDefaults validates the configuration and fills in
// defaults.
func (c *Config) CheckAndSetDefaults() error {
	if c.SALProxyURL == "" {
		return trace.BadParameter("missing sal_proxy_url")
	}
	u, err := url.Parse(c.SALProxyURL)
	if err != nil {
		return trace.BadParameter("bad sal_proxy_url %q: %v", c.SALProxyURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return trace.BadParameter("bad sal_proxy_url %q: expected a ws:// or wss:// URL", c.SALProxyURL)
	}

	if c.Port < 0 || c.Port > 65535 {
		return trace.BadParameter("bad port %d", c.Port)
	}

	if c.TimeoutRequestAuthorization == 0 {
		c.TimeoutRequestAuthorization = Duration(lovecsc.DefaultRequestTimeout)
	}
	if c.TimeoutRequestAuthorization < 0 {
		return trace.BadParameter("timeout_request_authorization must be positive")
	}
	if c.TimeoutCommand == 0 {
		c.TimeoutCommand = Duration(lovecsc.DefaultCommandTimeout)
	}
	if c.TimeoutCommand < 0 {
		return trace.BadParameter("timeout_command must be positive")
	}

	if c.AutoAuthorization == nil {
		auto := true
		c.AutoAuthorization = &auto
	}

	if len(c.Components) == 0 {
		return trace.BadParameter("missing components: list the component identities this CSC manages")
	}
	seen := make(map[string]struct{}, len(c.Components))
	for _, component := range c.Components {
		id, err := sal.ParseComponentID(component)
		if err != nil {
			return trace.Wrap(err, "bad component %q", component)
		}
		if id.Name == lovecsc.ComponentName {
			return trace.BadParameter("the %s CSC does not manage its own auth list", lovecsc.ComponentName)
		}
		if _, ok := seen[id.String()]; ok {
			return trace.BadParameter("component %q is listed twice", id)
		}
		seen[id.String()] = struct{}{}
	}

	return nil
}

// ComponentIDs returns the configured component identities, parsed.
// CheckAndSetDefaults must have succeeded.
func (c *Config) ComponentIDs() []sal.ComponentID {
	ids := make([]sal.ComponentID, 0, len(c.Components))
	for _, component := range c.Components {
		id, err := sal.ParseComponentID(component)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

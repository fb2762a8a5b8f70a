// Package security holds the TLS settings of the gateway and of the NATS
// connection.
package security

import (
	"fmt"
	"slices"
)

// ServerTLSConfig holds TLS configuration for the HTTP/WebSocket gateway
type ServerTLSConfig struct {
	Enabled    bool   `json:"enabled"`
	CertFile   string `json:"cert_file,omitempty"`
	KeyFile    string `json:"key_file,omitempty"`
	MinVersion string `json:"min_version,omitempty"` // "1.2" or "1.3"

	MTLS ServerMTLSConfig `json:"mtls,omitempty"`
}

// ServerMTLSConfig holds mTLS configuration for servers (client certificate validation)
type ServerMTLSConfig struct {
	Enabled           bool     `json:"enabled"`
	ClientCAFiles     []string `json:"client_ca_files,omitempty"`     // CA certs to trust for client validation
	RequireClientCert bool     `json:"require_client_cert,omitempty"` // true = require, false = optional
	AllowedClientCNs  []string `json:"allowed_client_cns,omitempty"`  // Optional CN whitelist
}

// ClientTLSConfig holds TLS configuration for outgoing connections.
// The system CA bundle is always trusted; CAFiles are additional trusted CAs.
type ClientTLSConfig struct {
	Enabled            bool     `json:"enabled"`
	CAFiles            []string `json:"ca_files,omitempty"`
	CertFile           string   `json:"cert_file,omitempty"` // Client certificate for mTLS
	KeyFile            string   `json:"key_file,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty"` // DEV/TEST ONLY
	MinVersion         string   `json:"min_version,omitempty"`
}

var minVersions = []string{"", "1.2", "1.3"}

// Problems lists what is wrong with an enabled server configuration.
func (c ServerTLSConfig) Problems() []string {
	if !c.Enabled {
		return nil
	}
	var out []string
	if c.CertFile == "" || c.KeyFile == "" {
		out = append(out, "tls needs cert_file and key_file")
	}
	if !slices.Contains(minVersions, c.MinVersion) {
		out = append(out, fmt.Sprintf("tls min_version %q is not 1.2 or 1.3", c.MinVersion))
	}
	if c.MTLS.Enabled && len(c.MTLS.ClientCAFiles) == 0 {
		out = append(out, "mtls needs client_ca_files")
	}
	return out
}

// Problems lists what is wrong with an enabled client configuration.
func (c ClientTLSConfig) Problems() []string {
	if !c.Enabled {
		return nil
	}
	var out []string
	if (c.CertFile == "") != (c.KeyFile == "") {
		out = append(out, "tls cert_file and key_file go together")
	}
	if !slices.Contains(minVersions, c.MinVersion) {
		out = append(out, fmt.Sprintf("tls min_version %q is not 1.2 or 1.3", c.MinVersion))
	}
	return out
}

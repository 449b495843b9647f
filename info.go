package nats

// serverInfo is the JSON document the server sends immediately after
// transport establishment.
type serverInfo struct {
	ServerID     string   `json:"server_id"`
	ServerName   string   `json:"server_name"`
	Version      string   `json:"version"`
	Proto        int      `json:"proto"`
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	MaxPayload   int64    `json:"max_payload"`
	ClientID     uint64   `json:"client_id,omitempty"`
	AuthRequired bool     `json:"auth_required,omitempty"`
	TLSRequired  bool     `json:"tls_required,omitempty"`
	TLSVerify    bool     `json:"tls_verify,omitempty"`
	Headers      bool     `json:"headers,omitempty"`
	Nonce        string   `json:"nonce,omitempty"`
	ConnectURLs  []string `json:"connect_urls,omitempty"`
}

// MaxPayload returns the server-advertised maximum payload size from the
// most recent INFO, or 0 if not yet connected.
func (c *Conn) MaxPayload() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info.MaxPayload
}

// ConnectedServerID returns the server_id from the most recent INFO.
func (c *Conn) ConnectedServerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info.ServerID
}

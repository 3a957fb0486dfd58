// Package entity contains the domain types shared across the kernel.
package entity

import "fmt"

type keyType string

// ClientContextKey identifies the authenticated client id in a request context.
const ClientContextKey keyType = "ClientID"

// Channel names a logical stream within the transport.
type Channel string

// Channels defined by the kernel.
const (
	ChannelShell     Channel = "shell"
	ChannelControl   Channel = "control"
	ChannelIOPub     Channel = "iopub"
	ChannelStdin     Channel = "stdin"
	ChannelHeartbeat Channel = "hb"
)

// AllChannels lists every channel in bind order.
var AllChannels = []Channel{ChannelShell, ChannelIOPub, ChannelStdin, ChannelControl, ChannelHeartbeat}

// SignatureScheme is the only message signing scheme the kernel supports.
const SignatureScheme = "hmac-sha256"

// ConnectionEndpoint describes how to reach a kernel. It is immutable once the kernel has started.
type ConnectionEndpoint struct {
	Transport       string `json:"transport"`
	IP              string `json:"ip"`
	ShellPort       int    `json:"shell_port"`
	IOPubPort       int    `json:"iopub_port"`
	StdinPort       int    `json:"stdin_port"`
	ControlPort     int    `json:"control_port"`
	HBPort          int    `json:"hb_port"`
	Key             string `json:"key"`
	SignatureScheme string `json:"signature_scheme"`
	KernelName      string `json:"kernel_name"`
}

// Port returns the port bound for ch.
func (e ConnectionEndpoint) Port(ch Channel) int {
	switch ch {
	case ChannelShell:
		return e.ShellPort
	case ChannelIOPub:
		return e.IOPubPort
	case ChannelStdin:
		return e.StdinPort
	case ChannelControl:
		return e.ControlPort
	case ChannelHeartbeat:
		return e.HBPort
	}
	return 0
}

// WithPort returns a copy of e with the port for ch replaced.
func (e ConnectionEndpoint) WithPort(ch Channel, port int) ConnectionEndpoint {
	switch ch {
	case ChannelShell:
		e.ShellPort = port
	case ChannelIOPub:
		e.IOPubPort = port
	case ChannelStdin:
		e.StdinPort = port
	case ChannelControl:
		e.ControlPort = port
	case ChannelHeartbeat:
		e.HBPort = port
	}
	return e
}

// Address returns host:port for ch.
func (e ConnectionEndpoint) Address(ch Channel) string {
	return fmt.Sprintf("%s:%d", e.IP, e.Port(ch))
}

//go:build linux

package main

import (
	"github.com/rs/zerolog/log"

	"github.com/notnil/isotp/can"
)

// openBus opens the selected transport. With a SocketCAN interface the
// kernel does not deliver a socket's own frames back to it, so the demo
// peer has to live on another node (or another process on a vcan device).
func openBus(iface string) (can.Bus, error) {
	if iface == "" {
		return openLoopback()
	}
	up, err := can.IsInterfaceUp(iface)
	if err != nil {
		return nil, can.RequireRootOrCapNetAdmin(err)
	}
	if !up {
		log.Warn().Str("interface", iface).Msg("interface is down, bringing it up")
		if err := can.SetInterfaceUp(iface); err != nil {
			return nil, can.RequireRootOrCapNetAdmin(err)
		}
	}
	return can.DialSocketCAN(iface)
}

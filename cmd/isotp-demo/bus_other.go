//go:build !linux

package main

import (
	"fmt"

	"github.com/notnil/isotp/can"
)

func openBus(iface string) (can.Bus, error) {
	if iface != "" {
		return nil, fmt.Errorf("SocketCAN interface %q requires linux", iface)
	}
	return openLoopback()
}

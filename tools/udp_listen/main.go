/*
	Copyright (c) 2025 the acarsplit project
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	udp_listen.go: Print whatever arrives on a UDP port. Debug aid for
	checking what JAERO is actually sending.
*/

package main

import (
	"flag"
	"fmt"
	"net"
	"time"
)

func main() {
	addr := flag.String("a", "127.0.0.1", "address to bind")
	port := flag.Int("p", 5550, "UDP port to listen on")
	flag.Parse()

	listen := fmt.Sprintf("%s:%d", *addr, *port)
	server, err := net.ListenPacket("udp", listen)
	if err != nil {
		fmt.Printf("failed to listen on udp %s: %s\n", listen, err.Error())
		return
	}
	fmt.Printf("listening on %s\n", listen)

	buf := make([]byte, 4096)
	for {
		n, from, err := server.ReadFrom(buf)
		if err != nil || n == 0 {
			continue
		}
		fmt.Printf("--- %s %s (%d bytes)\n%s\n", time.Now().UTC().Format("15:04:05"), from, n, string(buf[0:n]))
	}
}

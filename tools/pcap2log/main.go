/*
	Copyright (c) 2025 the acarsplit project
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	pcap2log.go: Extract the UDP payloads of a JAERO traffic capture and
	write them back out as a log file the batch splitter understands.
*/

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

func main() {
	port := flag.Int("p", 0, "only extract packets sent to this UDP port (0 takes every UDP packet)")
	output := flag.String("o", "", "output file (default stdout)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Printf("Usage: %s [options] <capture.pcap>\n", os.Args[0])
		return
	}

	handle, err := pcap.OpenOffline(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	defer handle.Close()

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		out = f
	}

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range source.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		if *port != 0 {
			udp, _ := udpLayer.(*layers.UDP)
			if int(udp.DstPort) != *port {
				continue
			}
		}
		appLayer := packet.ApplicationLayer()
		if appLayer != nil {
			out.Write(appLayer.Payload())
		}
	}
}

/*
	Copyright (c) 2025 the acarsplit project
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	udp_replay.go: Send the messages of a JAERO log file over UDP, paced,
	for feeding a live splitter during testing.
*/

package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/jaerotools/acarsplit/acars"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:5550", "host:port to send to")
	delay := flag.Int("delay", 500, "milliseconds between messages")
	chunk := flag.Int("chunk", 0, "send each message in chunks of this many bytes (0 sends whole messages)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Printf("%s: [options] <logfile>\n", os.Args[0])
		return
	}

	content, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Printf("error: %s\n", err.Error())
		return
	}
	messages := acars.Split(string(content))
	if len(messages) == 0 {
		fmt.Printf("no messages found in '%s'\n", flag.Arg(0))
		return
	}

	raddr, err := net.ResolveUDPAddr("udp", *addr)
	if err != nil {
		fmt.Printf("ResolveUDPAddr(): %s\n", err.Error())
		return
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		fmt.Printf("DialUDP(): %s\n", err.Error())
		return
	}
	defer conn.Close()

	for i, m := range messages {
		// The trailing newline keeps the next header at start of line
		// once the receiver concatenates datagrams.
		data := []byte(m + "\n")
		fmt.Printf("sleeping %dms, sending message %d/%d (%d bytes)\n", *delay, i+1, len(messages), len(data))
		time.Sleep(time.Duration(*delay) * time.Millisecond)
		if *chunk > 0 {
			for off := 0; off < len(data); off += *chunk {
				end := off + *chunk
				if end > len(data) {
					end = len(data)
				}
				conn.Write(data[off:end])
				time.Sleep(10 * time.Millisecond)
			}
		} else {
			conn.Write(data)
		}
	}
}

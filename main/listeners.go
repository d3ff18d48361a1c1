/*
	Copyright (c) 2025 the acarsplit project
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	listeners.go: Per-port UDP listeners. Each port reassembles datagrams
	into complete ACARS messages and hands them to the message processor.
*/

package main

import (
	"fmt"
	"log"
	"net"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jaerotools/acarsplit/acars"
)

func initListeners() {
	for _, port := range globalSettings.Ports {
		addr := fmt.Sprintf("%s:%d", globalSettings.Host, port)
		server, err := net.ListenPacket("udp", addr)
		if err != nil {
			log.Fatalf("failed to listen on udp %s: %s\n", addr, err.Error())
		}
		portStatsMutex.Lock()
		portStats[port] = &portStat{Port: port}
		portStatsMutex.Unlock()
		log.Printf("Listening for ACARS messages on %s...\n", addr)
		go portListener(server, port)
	}
}

func portListener(server net.PacketConn, port int) {
	assembler := acars.NewAssembler()
	buf := make([]byte, 4096)
	for {
		// Re-read the timeout every pass so a SIGUSR1 reload applies.
		timeout := time.Duration(globalSettings.BufferTimeout) * time.Second
		server.SetReadDeadline(time.Now().Add(timeout))
		n, _, err := server.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if assembler.Stale(timeout) {
					flushStale(assembler, port)
				}
				updateBufferStat(port, assembler.Pending())
				continue
			}
			log.Printf("Port %d: read error: %s\n", port, err.Error())
			time.Sleep(1 * time.Second)
			continue
		}
		if n == 0 {
			continue
		}

		data := buf[0:n]
		TraceLog.Record(strconv.Itoa(port), data)

		if !utf8.Valid(data) {
			log.Printf("Warning: Received data on port %d that could not be decoded as UTF-8\n", port)
			continue
		}

		portStatsMutex.Lock()
		if ps, ok := portStats[port]; ok {
			ps.Datagrams_received++
			ps.Bytes_received += uint64(n)
		}
		globalStatus.Datagrams_received++
		globalStatus.Bytes_received += uint64(n)
		portStatsMutex.Unlock()
		totalDatagrams.With(prometheus.Labels{"port": strconv.Itoa(port)}).Inc()
		totalBytes.With(prometheus.Labels{"port": strconv.Itoa(port)}).Add(float64(n))

		for _, m := range assembler.Add(string(data)) {
			msgChan <- portMessage{port, m}
		}
		capPending(assembler, port)
		updateBufferStat(port, assembler.Pending())
	}
}

// flushStale emits whatever complete-looking message the idle buffer holds.
// A headerless buffer is dropped with a warning.
func flushStale(assembler *acars.Assembler, port int) {
	if m, ok := assembler.Flush(); ok {
		logDbg("Port %d: flushing stale buffer\n", port)
		msgChan <- portMessage{port, m}
		return
	}
	log.Printf("Warning: %d buffered bytes on port %d with no message header--bad formatting? Set JAERO to output format 3.\n", assembler.Pending(), port)
	assembler.Reset()
}

// capPending drops the reassembly buffer once it grows past MaxPending.
func capPending(assembler *acars.Assembler, port int) {
	if assembler.Pending() > acars.MaxPending {
		log.Printf("Warning: %d buffered bytes on port %d with no message header--bad formatting? Set JAERO to output format 3.\n", assembler.Pending(), port)
		assembler.Reset()
	}
}

func updateBufferStat(port int, pending int) {
	portStatsMutex.Lock()
	if ps, ok := portStats[port]; ok {
		ps.Buffered_bytes = pending
	}
	portStatsMutex.Unlock()
}

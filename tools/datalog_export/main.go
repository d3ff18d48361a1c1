/*
	Copyright (c) 2025 the acarsplit project
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	datalog_export.go: Export the sqlite message archive written by
	acarsplitd to CSV, whole or per session.
*/

package main

import (
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

var messageHeader = []string{"session_id", "ReceivedAt", "MsgTimestamp", "Port", "Label", "Tail", "MsgType", "BucketKey", "Text"}

func dataLogReader(db *sql.DB, query string, args ...interface{}) *sql.Rows {
	rows, err := db.Query(query, args...)
	if err != nil {
		log.Fatal(fmt.Sprintf("func dataLogReader Query Error: %v", err))
	}
	return rows
}

func listSessions(db *sql.DB) {
	rows := dataLogReader(db, "SELECT id, StartedAt, Scheme, Keyword, OutputDir, Ports, Version FROM sessions")
	defer rows.Close()
	for rows.Next() {
		var id int64
		var startedAt, scheme, keyword, outputDir, ports, version string
		if err := rows.Scan(&id, &startedAt, &scheme, &keyword, &outputDir, &ports, &version); err != nil {
			log.Fatal(fmt.Sprintf("sessions Scan Error: %v", err))
		}
		key := scheme
		if keyword != "" {
			key = fmt.Sprintf("%s '%s'", scheme, keyword)
		}
		fmt.Printf("session %d: %s, split by %s, ports [%s], output %s (v%s)\n", id, startedAt, key, ports, outputDir, version)
	}
}

func exportMessages(db *sql.DB, w *csv.Writer, sessionID int64) int {
	// Rows whose session insert failed carry session_id 0 and have no
	// matching sessions row, so the join skips them.
	query := "SELECT messages.session_id, messages.ReceivedAt, messages.MsgTimestamp, messages.Port, " +
		"messages.Label, messages.Tail, messages.MsgType, messages.BucketKey, messages.Text " +
		"FROM messages INNER JOIN sessions ON messages.session_id=sessions.id"
	args := make([]interface{}, 0, 1)
	if sessionID != 0 {
		query += " WHERE messages.session_id=?"
		args = append(args, sessionID)
	}
	query += " ORDER BY messages.id"

	rows := dataLogReader(db, query, args...)
	defer rows.Close()

	w.Write(messageHeader)
	n := 0
	for rows.Next() {
		var sid, port int64
		var receivedAt, msgTimestamp, label, tail, msgType, bucketKey, text string
		if err := rows.Scan(&sid, &receivedAt, &msgTimestamp, &port, &label, &tail, &msgType, &bucketKey, &text); err != nil {
			log.Fatal(fmt.Sprintf("messages Scan Error: %v", err))
		}
		w.Write([]string{strconv.FormatInt(sid, 10), receivedAt, msgTimestamp, strconv.FormatInt(port, 10), label, tail, msgType, bucketKey, text})
		n++
	}
	return n
}

func main() {
	dbPath := flag.String("f", "acars_by_label/acarsplit.sqlite", "path to the acarsplitd sqlite archive")
	sessionID := flag.Int64("s", 0, "export only this session id (0 exports all)")
	outPath := flag.String("o", "", "write CSV here instead of stdout")
	sessions := flag.Bool("sessions", false, "list recorded sessions instead of exporting")
	flag.Parse()

	if _, err := os.Stat(*dbPath); os.IsNotExist(err) {
		log.Fatal(fmt.Sprintf("No database exists at '%s', record a session first.\n", *dbPath))
	}
	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if *sessions {
		listSessions(db)
		return
	}

	out := os.Stdout
	if *outPath != "" {
		out, err = os.Create(*outPath)
		if err != nil {
			log.Fatal(err)
		}
		defer out.Close()
	}
	w := csv.NewWriter(out)
	n := exportMessages(db, w, *sessionID)
	w.Flush()
	if err := w.Error(); err != nil {
		log.Fatal(err)
	}
	if *outPath != "" {
		fmt.Printf("wrote %d messages to %s\n", n, *outPath)
	}
}

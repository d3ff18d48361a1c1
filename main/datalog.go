/*
	Copyright (c) 2025 the acarsplit project
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	datalog.go: Log split ACARS messages to sqlite as they are received.
	Rows are linked to a session row describing the run that produced them.

*/

package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jaerotools/acarsplit/acars"
)

const dataLogFile = "acarsplit.sqlite"

// SessionRow describes one daemon run. Message rows carry its id.
type SessionRow struct {
	id        int64
	StartedAt string
	Scheme    string
	Keyword   string
	OutputDir string
	Ports     string
	Version   string
}

// MessageRow is one split ACARS message.
type MessageRow struct {
	id           int64
	ReceivedAt   string
	MsgTimestamp string // From the ACARS header. Empty if it didn't parse.
	Port         int
	Label        string
	Tail         string
	MsgType      string
	BucketKey    string
	Text         string
}

type SQLiteMarshal struct {
	FieldType string
	Marshal   func(v reflect.Value) string
}

func boolMarshal(v reflect.Value) string {
	b := v.Bool()
	if b {
		return "1"
	}
	return "0"
}

func structCanBeMarshalled(v reflect.Value) bool {
	m := v.MethodByName("String")
	if m.IsValid() && !m.IsNil() {
		return true
	}
	return false
}

func intMarshal(v reflect.Value) string {
	return strconv.FormatInt(v.Int(), 10)
}

func uintMarshal(v reflect.Value) string {
	return strconv.FormatUint(v.Uint(), 10)
}

func floatMarshal(v reflect.Value) string {
	return strconv.FormatFloat(v.Float(), 'f', 10, 64)
}

func stringMarshal(v reflect.Value) string {
	return v.String()
}

func notsupportedMarshal(v reflect.Value) string {
	return ""
}

func structMarshal(v reflect.Value) string {
	if structCanBeMarshalled(v) {
		m := v.MethodByName("String")
		in := make([]reflect.Value, 0)
		ret := m.Call(in)
		if len(ret) > 0 {
			return ret[0].String()
		}
	}
	return ""
}

var sqliteMarshalFunctions = map[string]SQLiteMarshal{
	"bool":         {FieldType: "INTEGER", Marshal: boolMarshal},
	"int":          {FieldType: "INTEGER", Marshal: intMarshal},
	"uint":         {FieldType: "INTEGER", Marshal: uintMarshal},
	"float":        {FieldType: "REAL", Marshal: floatMarshal},
	"string":       {FieldType: "TEXT", Marshal: stringMarshal},
	"struct":       {FieldType: "STRING", Marshal: structMarshal},
	"notsupported": {FieldType: "notsupported", Marshal: notsupportedMarshal},
}

var sqlTypeMap = map[reflect.Kind]string{
	reflect.Bool:          "bool",
	reflect.Int:           "int",
	reflect.Int8:          "int",
	reflect.Int16:         "int",
	reflect.Int32:         "int",
	reflect.Int64:         "int",
	reflect.Uint:          "uint",
	reflect.Uint8:         "uint",
	reflect.Uint16:        "uint",
	reflect.Uint32:        "uint",
	reflect.Uint64:        "uint",
	reflect.Uintptr:       "notsupported",
	reflect.Float32:       "float",
	reflect.Float64:       "float",
	reflect.Complex64:     "notsupported",
	reflect.Complex128:    "notsupported",
	reflect.Array:         "notsupported",
	reflect.Chan:          "notsupported",
	reflect.Func:          "notsupported",
	reflect.Interface:     "notsupported",
	reflect.Map:           "notsupported",
	reflect.Ptr:           "notsupported",
	reflect.Slice:         "notsupported",
	reflect.String:        "string",
	reflect.Struct:        "struct",
	reflect.UnsafePointer: "notsupported",
}

func makeTable(i interface{}, tbl string, db *sql.DB) {
	val := reflect.ValueOf(i)

	fields := make([]string, 0)
	for i := 0; i < val.NumField(); i++ {
		kind := val.Field(i).Kind()
		fieldName := val.Type().Field(i).Name
		sqlTypeAlias := sqlTypeMap[kind]

		// Check that if the field is a struct that it can be marshalled.
		if sqlTypeAlias == "struct" && !structCanBeMarshalled(val.Field(i)) {
			continue
		}
		if sqlTypeAlias == "notsupported" || fieldName == "id" {
			continue
		}
		sqlType := sqliteMarshalFunctions[sqlTypeAlias].FieldType
		s := fieldName + " " + sqlType
		fields = append(fields, s)
	}

	// Add the session_id field to link up with the sessions table.
	if tbl != "sessions" {
		fields = append(fields, "session_id INTEGER")
	}

	tblCreate := fmt.Sprintf("CREATE TABLE %s (id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT, %s)", tbl, strings.Join(fields, ", "))
	_, err := db.Exec(tblCreate)
	if err != nil {
		log.Printf("makeTable %s: %s\n", tbl, err.Error())
	}
}

func insertData(i interface{}, tbl string, db *sql.DB) int64 {
	val := reflect.ValueOf(i)

	keys := make([]string, 0)
	values := make([]string, 0)
	for i := 0; i < val.NumField(); i++ {
		kind := val.Field(i).Kind()
		fieldName := val.Type().Field(i).Name
		sqlTypeAlias := sqlTypeMap[kind]

		if sqlTypeAlias == "notsupported" || fieldName == "id" {
			continue
		}

		v := sqliteMarshalFunctions[sqlTypeAlias].Marshal(val.Field(i))

		keys = append(keys, fieldName)
		values = append(values, v)
	}

	// Add the session_id field to link up with the sessions table.
	if tbl != "sessions" {
		keys = append(keys, "session_id")
		values = append(values, strconv.FormatInt(dataLogSessionID, 10))
	}

	tblInsert := fmt.Sprintf("INSERT INTO %s (%s) VALUES(%s)", tbl, strings.Join(keys, ","),
		strings.Join(strings.Split(strings.Repeat("?", len(keys)), ""), ","))

	ifs := make([]interface{}, len(values))
	for i := 0; i < len(values); i++ {
		ifs[i] = values[i]
	}
	res, err := db.Exec(tblInsert, ifs...)
	if err != nil {
		log.Printf("insertData %s: %s\n", tbl, err.Error())
		return 0
	}
	id, err := res.LastInsertId()
	if err == nil {
		return id
	}

	return 0
}

type DataLogRow struct {
	tbl  string
	data interface{}
}

var dataLogChan = make(chan DataLogRow, 10240)
var dataLogStopChan = make(chan bool, 1)
var dataLogDoneChan = make(chan bool, 1)
var dataLogSessionID int64

func portsString(ports []int) string {
	s := make([]string, 0, len(ports))
	for _, p := range ports {
		s = append(s, strconv.Itoa(p))
	}
	return strings.Join(s, ",")
}

// openDataLog opens (and on first use creates) the sqlite file in the
// output directory and starts a new session row.
func openDataLog() *sql.DB {
	dataLogPath := filepath.Join(globalSettings.OutputDir, dataLogFile)
	_, err := os.Stat(dataLogPath)
	createTables := os.IsNotExist(err)

	db, err := sql.Open("sqlite3", dataLogPath)
	if err != nil {
		addSingleSystemErrorf("datalog", "sql.Open(): %s", err.Error())
		return nil
	}
	if createTables {
		makeTable(SessionRow{}, "sessions", db)
		makeTable(MessageRow{}, "messages", db)
	}

	sess := SessionRow{
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		Scheme:    splitScheme.String(),
		Keyword:   globalSettings.Keyword,
		OutputDir: globalSettings.OutputDir,
		Ports:     portsString(globalSettings.Ports),
		Version:   acarsplitVersion,
	}
	dataLogSessionID = insertData(sess, "sessions", db)
	log.Printf("datalog session %d started in %s\n", dataLogSessionID, dataLogPath)
	return db
}

// dataLogWriter owns the database handle. The file isn't touched until the
// first row arrives, so runs with datalog disabled never create it.
func dataLogWriter() {
	var db *sql.DB
	failed := false
	for {
		select {
		case r := <-dataLogChan:
			if failed {
				continue
			}
			if db == nil {
				db = openDataLog()
				if db == nil {
					failed = true
					continue
				}
			}
			insertData(r.data, r.tbl, db)
		case <-dataLogStopChan:
			if db != nil {
				for {
					select {
					case r := <-dataLogChan:
						insertData(r.data, r.tbl, db)
					default:
						db.Close()
						dataLogDoneChan <- true
						return
					}
				}
			}
			dataLogDoneChan <- true
			return
		}
	}
}

func initDatalog() {
	go dataLogWriter()
}

// shutdownDatalog flushes queued rows and closes the database.
func shutdownDatalog() {
	select {
	case dataLogStopChan <- true:
	default:
	}
	select {
	case <-dataLogDoneChan:
	case <-time.After(2 * time.Second):
	}
}

func logData(r DataLogRow) {
	select {
	case dataLogChan <- r:
	default:
		// Queue full. Drop the row rather than stall the processor.
	}
}

func logMessage(m *acars.Message, port int, key string) {
	ts := ""
	if !m.Timestamp.IsZero() {
		ts = m.Timestamp.Format(time.RFC3339)
	}
	row := MessageRow{
		ReceivedAt:   time.Now().UTC().Format(time.RFC3339),
		MsgTimestamp: ts,
		Port:         port,
		Label:        m.Label,
		Tail:         m.Tail,
		MsgType:      acars.MessageType(m.Raw),
		BucketKey:    key,
		Text:         m.Raw,
	}
	logData(DataLogRow{tbl: "messages", data: row})
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"
)

type SettingMessage struct {
	Setting string `json:"setting"`
	Value   bool   `json:"state"`
}

type InfoMessage struct {
	*status
	*settings
}

var controlConns uint32

func controlConnCount() uint {
	return uint(atomic.LoadUint32(&controlConns))
}

func statusSender(conn *websocket.Conn) {
	timer := time.NewTicker(1 * time.Second)
	for {
		<-timer.C

		update, _ := json.Marshal(InfoMessage{status: &globalStatus, settings: &globalSettings})
		_, err := conn.Write(update)

		if err != nil {
			break
		}
	}
}

func handleManagementConnection(conn *websocket.Conn) {
	atomic.AddUint32(&controlConns, 1)
	defer atomic.AddUint32(&controlConns, ^uint32(0))
	go statusSender(conn)

	for {
		var msg SettingMessage
		err := websocket.JSON.Receive(conn, &msg)
		if err == io.EOF {
			break
		} else if err != nil {
			log.Printf("handleManagementConnection: %s\n", err.Error())
		} else {
			if msg.Setting == "DEBUG" {
				globalSettings.DEBUG = msg.Value
			}
			if msg.Setting == "Datalog" {
				globalSettings.Datalog = msg.Value
			}
			if msg.Setting == "TraceLog" {
				globalSettings.TraceLog = msg.Value
			}

			saveSettings()
		}
	}
}

// handleMessageFeedConnection streams every split message to the client as
// JSON. The connection stays open until the client goes away.
func handleMessageFeedConnection(conn *websocket.Conn) {
	msgFeed.AddSocket(conn)

	for {
		var ignored string
		if err := websocket.Message.Receive(conn, &ignored); err != nil {
			break
		}
	}
}

// AJAX call - /getStatus. Responds with the daemon status.
func handleStatusRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	statusJSON, _ := json.Marshal(&globalStatus)
	fmt.Fprintf(w, "%s\n", statusJSON)
}

// AJAX call - /getPorts. Responds with per-port receive statistics.
func handlePortsRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	/* From JSON package docs:
	"JSON objects only support strings as keys; to encode a Go map type it must be of the form map[string]T (where T is any Go type supported by the json package)."
	*/
	t := make(map[string]portStat)
	portStatsMutex.Lock()
	for port, ps := range portStats {
		t[strconv.Itoa(port)] = *ps
	}
	portsJSON, _ := json.Marshal(&t)
	portStatsMutex.Unlock()
	fmt.Fprintf(w, "%s\n", portsJSON)
}

type BucketStatus struct {
	Key       string
	Path      string
	Count     int
	Size      uint64
	SizeHuman string
	Modified  string
}

// AJAX call - /getBuckets. Responds with every bucket file written this run.
func handleBucketsRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	infos := msgRouter.Buckets()
	buckets := make([]BucketStatus, 0, len(infos))
	for _, bi := range infos {
		bs := BucketStatus{Key: displayKey(bi.Key), Path: bi.Path, Count: bi.Count}
		if fi, err := os.Stat(bi.Path); err == nil {
			bs.Size = uint64(fi.Size())
			bs.SizeHuman = humanize.Bytes(bs.Size)
			bs.Modified = humanize.Time(fi.ModTime())
		}
		buckets = append(buckets, bs)
	}
	bucketsJSON, _ := json.Marshal(&buckets)
	fmt.Fprintf(w, "%s\n", bucketsJSON)
}

// AJAX call - /getSettings. Responds with all config.json data.
func handleSettingsGetRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	settingsJSON, _ := json.Marshal(&globalSettings)
	fmt.Fprintf(w, "%s\n", settingsJSON)
}

// AJAX call - /setSettings. Receives via POST command, any/all config.json
// data. Only fields that are safe to change at runtime are applied.
func handleSettingsSetRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	newSettings := globalSettings
	if err := json.Unmarshal(body, &newSettings); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	globalSettings.DEBUG = newSettings.DEBUG
	globalSettings.Datalog = newSettings.Datalog
	globalSettings.TraceLog = newSettings.TraceLog
	if newSettings.BufferTimeout > 0 {
		globalSettings.BufferTimeout = newSettings.BufferTimeout
	}
	saveSettings()
	settingsJSON, _ := json.Marshal(&globalSettings)
	fmt.Fprintf(w, "%s\n", settingsJSON)
}

// AJAX call - /clearLog. Truncates the debug log file.
func handleClearLogRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	clearDebugLogFile()
	fmt.Fprintf(w, "OK\n")
}

func managementInterface() {
	http.Handle("/logs/", http.StripPrefix("/logs/", http.FileServer(http.Dir(logDirf))))
	http.HandleFunc("/control",
		func(w http.ResponseWriter, req *http.Request) {
			s := websocket.Server{
				Handler: websocket.Handler(handleManagementConnection)}
			s.ServeHTTP(w, req)
		})
	http.HandleFunc("/messages",
		func(w http.ResponseWriter, req *http.Request) {
			s := websocket.Server{
				Handler: websocket.Handler(handleMessageFeedConnection)}
			s.ServeHTTP(w, req)
		})

	http.HandleFunc("/getStatus", handleStatusRequest)
	http.HandleFunc("/getPorts", handlePortsRequest)
	http.HandleFunc("/getBuckets", handleBucketsRequest)
	http.HandleFunc("/getSettings", handleSettingsGetRequest)
	http.HandleFunc("/setSettings", handleSettingsSetRequest)
	http.HandleFunc("/clearLog", handleClearLogRequest)
	http.Handle("/metrics", promhttp.Handler())

	err := http.ListenAndServe(globalSettings.ManagementAddr, nil)

	if err != nil {
		log.Printf("managementInterface ListenAndServe: %s\n", err.Error())
	}
}

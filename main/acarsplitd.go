/*
	Copyright (c) 2025 the acarsplit project
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	acarsplitd.go: Daemon entry point. Receives JAERO ACARS output over UDP,
	splits the messages into per-bucket files and serves the management
	interface.
*/

package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ricochet2200/go-disk-usage/du"
	"github.com/takama/daemon"

	"github.com/jaerotools/acarsplit/acars"
	"github.com/jaerotools/acarsplit/common"
)

// Initialize Prometheus metrics.
var (
	totalDatagrams = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datagrams_received_total",
			Help: "UDP datagrams received.",
		},
		[]string{"port"},
	)

	totalBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "udp_bytes_received_total",
			Help: "UDP payload bytes received.",
		},
		[]string{"port"},
	)

	totalMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_split_total",
			Help: "ACARS messages written to bucket files.",
		},
		[]string{"port"},
	)

	totalUnclassified = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_unclassified_total",
			Help: "ACARS messages that matched no bucket.",
		},
	)

	bufferedBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "buffered_bytes",
			Help: "Bytes waiting for a complete message per port.",
		},
		[]string{"port"},
	)

	totalUptime = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "total_uptime",
			Help: "Total uptime.",
		},
		[]string{"all"},
	)
)

const (
	defaultHost           = "127.0.0.1"
	defaultOutputDir      = "acars_by_label"
	defaultBufferTimeout  = 60 // seconds
	defaultManagementAddr = "127.0.0.1:8077"

	// name of the service
	name        = "acarsplitd"
	description = "splits JAERO ACARS UDP output into per-bucket files"
)

var acarsplitVersion string // Set by the build process.
var acarsplitBuild string

type settings struct {
	Host           string `json:"host"`
	OutputDir      string `json:"output_dir"`
	BufferTimeout  int    `json:"buffer_timeout"` // seconds
	Ports          []int  `json:"ports"`
	SplitBy        string `json:"split_by"` // label, tail, type or keyword.
	Keyword        string `json:"keyword"`  // Only used when SplitBy is "keyword".
	ManagementAddr string `json:"management_addr"`
	DEBUG          bool   `json:"debug"`
	Datalog        bool   `json:"datalog"`
	TraceLog       bool   `json:"trace"`
}

type status struct {
	Version               string
	Build                 string
	Scheme                string
	OutputDir             string
	Ports                 []int
	Connected_Users       uint
	Datagrams_received    uint64
	Bytes_received        uint64
	Messages_processed    uint64
	Messages_unclassified uint64
	Messages_last_minute  uint
	Labels_last_minute    map[string]uint32
	Messages_max          uint
	Buffered_bytes        int
	Uptime                int64
	CPUTemp               float32
	DiskFree              uint64
	DiskFreeHuman         string
	Errors                []string
}

var globalSettings settings
var globalStatus status

var settingsPath string // Config file path. Empty when configured from flags.

var splitScheme acars.Scheme
var msgRouter *acars.Router
var msgFeed *uibroadcaster

var splitClock *monotonic

type msg struct {
	TimeReceived time.Time
	Port         int
	Key          string
}

var MsgLog = make([]msg, 0)
var msgLogMutex = &sync.Mutex{}

// portMessage is one reassembled ACARS message tagged with the port it
// arrived on. Listeners produce them, messageProcessor consumes them.
type portMessage struct {
	port int
	data string
}

var msgChan = make(chan portMessage, 1024)

type portStat struct {
	Port               int
	Datagrams_received uint64
	Bytes_received     uint64
	Messages_processed uint64
	Buffered_bytes     int
	LastMessageTime    time.Time
	LastMessage        string
}

var portStats = make(map[int]*portStat)
var portStatsMutex = &sync.Mutex{}

var systemErrs = make(map[string]string)
var systemErrsMutex = &sync.Mutex{}

// addSingleSystemErrorf records an error condition once per ident, so a
// repeating failure doesn't flood the status list.
func addSingleSystemErrorf(ident string, format string, a ...interface{}) {
	systemErrsMutex.Lock()
	if _, ok := systemErrs[ident]; !ok {
		s := fmt.Sprintf(format, a...)
		systemErrs[ident] = s
		globalStatus.Errors = append(globalStatus.Errors, s)
		log.Printf("System error: %s\n", s)
	}
	systemErrsMutex.Unlock()
}

func defaultSettings() {
	globalSettings.Host = defaultHost
	globalSettings.OutputDir = defaultOutputDir
	globalSettings.BufferTimeout = defaultBufferTimeout
	globalSettings.Ports = nil
	globalSettings.SplitBy = "label"
	globalSettings.Keyword = ""
	globalSettings.ManagementAddr = defaultManagementAddr
	globalSettings.DEBUG = false
	globalSettings.Datalog = false
	globalSettings.TraceLog = false
}

func readSettings() {
	defaultSettings()
	buf, err := os.ReadFile(settingsPath)
	if err != nil {
		log.Printf("can't read settings %s: %s\n", settingsPath, err.Error())
		return
	}
	// Start from the defaults so keys missing from the file keep them.
	newSettings := globalSettings
	err = json.Unmarshal(buf, &newSettings)
	if err != nil {
		log.Printf("can't read settings %s: %s\n", settingsPath, err.Error())
		return
	}
	globalSettings = newSettings
	log.Printf("read in settings.\n")
}

func saveSettings() {
	if settingsPath == "" {
		return
	}
	fd, err := os.OpenFile(settingsPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(0644))
	defer fd.Close()
	if err != nil {
		log.Printf("can't save settings %s: %s\n", settingsPath, err.Error())
		return
	}
	jsonSettings, _ := json.Marshal(&globalSettings)
	fd.Write(jsonSettings)
	log.Printf("wrote settings.\n")
}

func validateSettings(requirePorts bool) error {
	if requirePorts && len(globalSettings.Ports) == 0 {
		return errors.New("No UDP ports specified in the configuration file")
	}
	if globalSettings.BufferTimeout <= 0 {
		globalSettings.BufferTimeout = defaultBufferTimeout
	}
	scheme, err := acars.ParseScheme(globalSettings.SplitBy)
	if err != nil {
		return err
	}
	if scheme == acars.ByKeyword {
		if globalSettings.Keyword == "" {
			return errors.New("split_by is \"keyword\" but no keyword was given")
		}
		if strings.ContainsAny(globalSettings.Keyword, `/\`) {
			return errors.New("keyword must not contain path separators")
		}
	}
	splitScheme = scheme
	return nil
}

// reloadSettings re-reads the config file on SIGUSR1 and applies the fields
// that are safe to change at runtime. Host, ports, output directory and the
// split scheme need a restart.
func reloadSettings() {
	if settingsPath == "" {
		return
	}
	old := globalSettings
	readSettings()
	globalSettings.Host = old.Host
	globalSettings.Ports = old.Ports
	globalSettings.OutputDir = old.OutputDir
	globalSettings.SplitBy = old.SplitBy
	globalSettings.Keyword = old.Keyword
	globalSettings.ManagementAddr = old.ManagementAddr
	if globalSettings.BufferTimeout <= 0 {
		globalSettings.BufferTimeout = old.BufferTimeout
	}
}

func displayKey(key string) string {
	if key == "" {
		return "unclassified"
	}
	return key
}

func statusUpdater() {
	timer := time.NewTicker(1 * time.Second)
	timerMessageStats := time.NewTicker(5 * time.Second)
	for {
		select {
		case <-timer.C:
			updateStatus()
			updateMetrics()
		case <-timerMessageStats.C:
			// Save a bit of CPU by not pruning the message log every 1 second.
			updateMessageStats()
		}
	}
}

func updateMessageStats() {
	msgLogMutex.Lock()
	t := make([]msg, 0)
	m := len(MsgLog)
	messages_last_minute := uint(0)
	labels_last_minute := make(map[string]uint32)
	for i := 0; i < m; i++ {
		if time.Now().Sub(MsgLog[i].TimeReceived).Minutes() < 1 {
			t = append(t, MsgLog[i])
			messages_last_minute++
			labels_last_minute[displayKey(MsgLog[i].Key)]++
		}
	}
	MsgLog = t
	msgLogMutex.Unlock()

	globalStatus.Messages_last_minute = messages_last_minute
	globalStatus.Labels_last_minute = labels_last_minute

	// Update "max messages/min" counter.
	if globalStatus.Messages_max < messages_last_minute {
		globalStatus.Messages_max = messages_last_minute
	}
}

func updateStatus() {
	globalStatus.Uptime = int64(splitClock.Milliseconds)
	globalStatus.Connected_Users = uint(msgFeed.NumSockets()) + controlConnCount()

	usage := du.NewDiskUsage(globalSettings.OutputDir)
	globalStatus.DiskFree = usage.Free()
	globalStatus.DiskFreeHuman = humanize.Bytes(globalStatus.DiskFree)

	total := 0
	portStatsMutex.Lock()
	for _, ps := range portStats {
		total += ps.Buffered_bytes
		if !ps.LastMessageTime.IsZero() {
			ps.LastMessage = splitClock.HumanizeTime(ps.LastMessageTime)
		}
	}
	portStatsMutex.Unlock()
	globalStatus.Buffered_bytes = total
}

func updateMetrics() {
	totalUptime.With(prometheus.Labels{"all": "all"}).Inc()
	portStatsMutex.Lock()
	for _, ps := range portStats {
		bufferedBytes.With(prometheus.Labels{"port": strconv.Itoa(ps.Port)}).Set(float64(ps.Buffered_bytes))
	}
	portStatsMutex.Unlock()
}

// feedMessage is what /messages websocket clients receive, one JSON object
// per split message.
type feedMessage struct {
	Port  int
	Key   string
	Label string
	Tail  string
	Type  string
	Time  string
	Text  string
}

func messageProcessor() {
	for pm := range msgChan {
		processMessage(pm.port, pm.data)
	}
}

func processMessage(port int, data string) {
	m, err := acars.New(data)
	if err != nil {
		return
	}
	if !m.Timestamp.IsZero() {
		TraceLog.OnTimestamp(m.Timestamp)
	}
	key := m.Key(splitScheme, globalSettings.Keyword)

	if err := msgRouter.Route(key, m.Raw); err != nil {
		addSingleSystemErrorf("route", "couldn't write message: %s", err.Error())
		return
	}

	label := "None"
	if key != "" {
		label = key
	}
	logDbg("Port %d: Processed message with label: %s\n", port, label)

	msgLogMutex.Lock()
	MsgLog = append(MsgLog, msg{TimeReceived: time.Now(), Port: port, Key: key})
	msgLogMutex.Unlock()

	globalStatus.Messages_processed++
	if key == "" {
		globalStatus.Messages_unclassified++
		totalUnclassified.Inc()
	}
	totalMessages.With(prometheus.Labels{"port": strconv.Itoa(port)}).Inc()

	portStatsMutex.Lock()
	if ps, ok := portStats[port]; ok {
		ps.Messages_processed++
		ps.LastMessageTime = splitClock.Time
	}
	portStatsMutex.Unlock()

	if globalSettings.Datalog {
		logMessage(m, port, key)
	}

	ts := ""
	if !m.Timestamp.IsZero() {
		ts = m.Timestamp.Format(time.RFC3339)
	}
	feed, _ := json.Marshal(&feedMessage{
		Port:  port,
		Key:   key,
		Label: m.Label,
		Tail:  m.Tail,
		Type:  acars.MessageType(m.Raw),
		Time:  ts,
		Text:  m.Raw,
	})
	msgFeed.Send(feed)
}

func parseReplayPorts(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	ports := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			ports = append(ports, p)
		}
	}
	return ports
}

// Service has embedded daemon
type Service struct {
	daemon.Daemon
}

// Manage by daemon commands or run the daemon
func (service *Service) Manage() (string, error) {

	addr := flag.String("a", defaultHost, "Address to listen on")
	port := flag.Int("p", 0, "UDP port to listen on")
	outputDir := flag.String("o", "", "Directory the split files are written to")
	timeout := flag.Int("t", defaultBufferTimeout, "Seconds before an idle partial buffer is flushed")
	replayFile := flag.String("replay", "", "Trace log to replay instead of listening")
	replaySpeed := flag.Float64("replayspeed", 1.0, "Replay speed multiplier")
	replaySkip := flag.Int64("replayskip", 0, "Minutes to skip at the start of the replayed trace")
	replayPorts := flag.String("replayports", "", "Comma separated ports to replay (default all)")
	flag.Parse()

	usage := "Usage: " + name + " [options] [config.json] | install | remove | start | stop | status"
	// if received any kind of command, do it
	if flag.NArg() > 0 {
		command := flag.Arg(0)
		switch command {
		case "install":
			return service.Install()
		case "remove":
			return service.Remove()
		case "start":
			return service.Start()
		case "stop":
			return service.Stop()
		case "status":
			return service.Status()
		default:
			// Not a service verb, take it as the config file path.
			settingsPath = command
		}
	}

	splitClock = NewMonotonic()

	if settingsPath != "" {
		readSettings()
	} else {
		defaultSettings()
		if *port == 0 && *replayFile == "" {
			return usage, errors.New("no config file and no port (-p) given")
		}
		if *port != 0 {
			globalSettings.Host = *addr
			globalSettings.Ports = []int{*port}
			globalSettings.BufferTimeout = *timeout
		}
	}
	if *outputDir != "" {
		globalSettings.OutputDir = *outputDir
	}

	replayMode := *replayFile != ""
	if err := validateSettings(!replayMode); err != nil {
		return usage, err
	}

	logDirf = defaultLogDir()
	initLogging()

	log.Printf("acarsplitd %s (%s) starting.\n", acarsplitVersion, acarsplitBuild)

	globalStatus.Version = acarsplitVersion
	globalStatus.Build = acarsplitBuild
	globalStatus.Scheme = splitScheme.String()
	globalStatus.OutputDir = globalSettings.OutputDir
	globalStatus.Ports = globalSettings.Ports

	if err := os.MkdirAll(globalSettings.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("couldn't create output directory '%s': %s", globalSettings.OutputDir, err)
	}

	msgRouter = &acars.Router{
		Dir:     globalSettings.OutputDir,
		Scheme:  splitScheme,
		Keyword: globalSettings.Keyword,
		Append:  true,
		// The live splitter has always written acars_<label>.txt when
		// splitting by label. Keep those names.
		FlatNames: splitScheme == acars.ByLabel,
	}
	msgFeed = NewUIBroadcaster()

	prometheus.MustRegister(totalDatagrams)
	prometheus.MustRegister(totalBytes)
	prometheus.MustRegister(totalMessages)
	prometheus.MustRegister(totalUnclassified)
	prometheus.MustRegister(bufferedBytes)
	prometheus.MustRegister(totalUptime)

	// Monitor CPU temperature.
	globalStatus.CPUTemp = common.InvalidCpuTemp
	go common.CpuTempMonitor(func(cpuTemp float32) {
		if common.IsCPUTempValid(cpuTemp) {
			globalStatus.CPUTemp = cpuTemp
		}
	})

	initDatalog()
	initTraceLog()

	go messageProcessor()
	go statusUpdater()
	// Start the management interface.
	go managementInterface()

	if replayMode {
		TraceLog.Replay(*replayFile, *replaySpeed, *replaySkip, parseReplayPorts(*replayPorts))
		flushReplayBuffers()
		// Let the processor drain before closing the bucket files.
		time.Sleep(1 * time.Second)
		shutdownDatalog()
		msgRouter.Close()
		return "Replay finished", nil
	}

	initListeners()

	// Set up channel on which to send signal notifications.
	// We must use a buffered channel or risk missing the signal
	// if we're not ready to receive when the signal is sent.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

	// interrupt by system signal
	for {
		killSignal := <-interrupt
		log.Println("Got signal:", killSignal)
		if killSignal == syscall.SIGUSR1 {
			reloadSettings()
			continue
		}
		shutdownDatalog()
		msgRouter.Close()
		if killSignal == syscall.SIGINT {
			return "Daemon was interrupted by system signal", nil
		}
		return "Daemon was killed", nil
	}
}

var stdlog, errlog *log.Logger

func init() {
	stdlog = log.New(os.Stdout, "", 0)
	errlog = log.New(os.Stderr, "", 0)
}

func main() {
	srv, err := daemon.New(name, description, daemon.SystemDaemon)
	if err != nil {
		errlog.Println("Error: ", err)
		os.Exit(1)
	}
	service := &Service{srv}
	st, err := service.Manage()
	if err != nil {
		errlog.Println(st, "\nError: ", err)
		os.Exit(1)
	}
	stdlog.Println(st)
}

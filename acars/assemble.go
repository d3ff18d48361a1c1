package acars

import (
	"strings"
	"time"
)

// Jaero fragments messages across datagrams however its send buffer
// falls, so a message is only known complete once the header line of
// the next one has arrived. Past this size without ever seeing a
// header line, the stream clearly isn't format 3.
const MaxPending = 1 << 20

// Assembler reassembles complete ACARS messages from a stream of UDP
// datagram payloads. One Assembler serves one port; it is not safe for
// concurrent use.
type Assembler struct {
	buf          string
	lastProduced time.Time
}

func NewAssembler() *Assembler {
	return &Assembler{lastProduced: time.Now()}
}

// Add appends datagram text to the buffer and returns any messages
// that are now complete, in arrival order. The trailing (potentially
// incomplete) message stays buffered until the next header line or a
// stale Flush.
func (a *Assembler) Add(data string) []string {
	a.buf += data
	locs := headerRE.FindAllStringIndex(a.buf, -1)
	if len(locs) < 2 {
		return nil
	}
	msgs := make([]string, 0, len(locs)-1)
	for i := 0; i+1 < len(locs); i++ {
		if m := strings.TrimSpace(a.buf[locs[i][0]:locs[i+1][0]]); m != "" {
			msgs = append(msgs, m)
		}
	}
	a.buf = a.buf[locs[len(locs)-1][0]:]
	if len(msgs) > 0 {
		a.lastProduced = time.Now()
	}
	return msgs
}

// Stale reports whether data is buffered but nothing has been produced
// for more than twice the given timeout.
func (a *Assembler) Stale(timeout time.Duration) bool {
	return len(a.buf) > 0 && time.Since(a.lastProduced) > 2*timeout
}

// Flush returns the buffer from its first header line on as one
// (possibly incomplete) message and clears the buffer. When the buffer
// holds no header line it is left as is and ok is false.
func (a *Assembler) Flush() (msg string, ok bool) {
	loc := headerRE.FindStringIndex(a.buf)
	if loc == nil {
		return "", false
	}
	msg = strings.TrimSpace(a.buf[loc[0]:])
	a.buf = ""
	a.lastProduced = time.Now()
	return msg, true
}

// Pending returns the number of buffered bytes.
func (a *Assembler) Pending() int {
	return len(a.buf)
}

// Reset drops the buffer. Used after Flush fails on a buffer that has
// grown past MaxPending.
func (a *Assembler) Reset() {
	a.buf = ""
	a.lastProduced = time.Now()
}

// Package coalescer collapses team-raid personal bests: team-raid PB
// submissions (Theatre of Blood, Tombs of Amascut) arrive near-simultaneously
// from every team member's client; exactly one, the largest team_size, is
// materialized per 10-second window. Modeled as an explicit timer wheel
// keyed by player_name rather than a sleep-per-submission task.
package coalescer

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Window is the coalescing duration from first submission to fire.
const Window = 10 * time.Second

// Submission is one buffered raid PB awaiting the window's fire.
type Submission struct {
	TeamSize  string
	Payload   interface{}
	receivedAt time.Time
}

// ParseTeamSize parses a submitted team_size: "Solo" is 1,
// otherwise parse the first run of digits; anything unparseable also counts as 1.
// Exported for the PB processor, which stores the parsed size on the row.
func ParseTeamSize(teamSize string) int {
	if strings.EqualFold(strings.TrimSpace(teamSize), "solo") {
		return 1
	}
	match := leadingIntPattern.FindString(teamSize)
	if match == "" {
		return 1
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 1
	}
	return n
}

var leadingIntPattern = regexp.MustCompile(`\d+`)

// raidNamePattern matches the npc_name values that route into the
// coalescer.
var raidNamePattern = regexp.MustCompile(`(?i)amascut|theatre of blood`)

// IsRaidPB reports whether npcName should enter the coalescer instead of
// being processed synchronously.
func IsRaidPB(npcName string) bool {
	return raidNamePattern.MatchString(npcName)
}

// FireFunc processes the winning submission's payload synchronously.
type FireFunc func(playerName string, payload interface{})

type window struct {
	buffer []Submission
	timer  *time.Timer
}

// Coalescer owns the per-player timer wheel. One instance is shared across
// requests for a process.
type Coalescer struct {
	mu      sync.Mutex
	windows map[string]*window
	fire    FireFunc
}

func New(fire FireFunc) *Coalescer {
	return &Coalescer{windows: make(map[string]*window), fire: fire}
}

// Submit implements the Idle/Collecting transitions: the first raid PB for a
// player opens a window and schedules its fire in Window; subsequent
// submissions within the window are appended to the buffer.
func (c *Coalescer) Submit(playerName, teamSize string, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, exists := c.windows[playerName]
	if !exists {
		w = &window{}
		c.windows[playerName] = w
		w.timer = time.AfterFunc(Window, func() { c.onFire(playerName) })
	}
	w.buffer = append(w.buffer, Submission{TeamSize: teamSize, Payload: payload, receivedAt: time.Now()})
}

// Cancel clears a player's pending window without materializing a PB,
// guaranteeing nothing is materialized for the window.
func (c *Coalescer) Cancel(playerName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.windows[playerName]; ok {
		w.timer.Stop()
		delete(c.windows, playerName)
	}
}

func (c *Coalescer) onFire(playerName string) {
	c.mu.Lock()
	w, ok := c.windows[playerName]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.windows, playerName)
	buffer := w.buffer
	c.mu.Unlock()

	if len(buffer) == 0 {
		return
	}
	winner := buffer[0]
	winnerSize := ParseTeamSize(winner.TeamSize)
	for _, s := range buffer[1:] {
		if size := ParseTeamSize(s.TeamSize); size > winnerSize {
			winner = s
			winnerSize = size
		}
	}
	c.fire(playerName, winner.Payload)
}

// Sweep purges windows older than Window; safe to call on any cadence since
// time.AfterFunc
// already fires windows; Sweep exists for callers that want an explicit,
// observable cleanup pass (e.g. tests, metrics).
func (c *Coalescer) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := time.Now().Add(-Window)
	for name, w := range c.windows {
		if len(w.buffer) > 0 && w.buffer[len(w.buffer)-1].receivedAt.Before(cutoff) {
			w.timer.Stop()
			delete(c.windows, name)
		}
	}
}

package protocol

import (
	"fmt"
	"strings"
	"time"
)

// PingState is the direction a Ping is travelling.
type PingState int32

const (
	PingGoingTo PingState = iota
	PingGoingBack
)

func (s PingState) String() string {
	switch s {
	case PingGoingTo:
		return "GOING_TO"
	case PingGoingBack:
		return "GOING_BACK"
	default:
		return fmt.Sprintf("PingState(%d)", int32(s))
	}
}

// Hop is one timestamped waypoint of a Ping. Timestamp is Unix nanoseconds.
type Hop struct {
	Username  string
	Timestamp int64
}

// Time returns the hop timestamp as a time.Time.
func (h Hop) Time() time.Time { return time.Unix(0, h.Timestamp) }

// Ping travels from SendingUser to DestinationUser and back, collecting a hop at each end.
type Ping struct {
	SendingUser     string
	DestinationUser string
	State           PingState
	Hops            []Hop
}

func (*Ping) PacketName() string { return "Ping" }

func (p *Ping) encode(e *encoder) {
	e.string(p.SendingUser)
	e.string(p.DestinationUser)
	e.int32(int32(p.State))
	e.int32(int32(len(p.Hops)))
	for _, h := range p.Hops {
		e.string(h.Username)
		e.int64(h.Timestamp)
	}
}

func (p *Ping) decode(d *decoder) {
	p.SendingUser = d.string()
	p.DestinationUser = d.string()
	p.State = PingState(d.int32())

	n := d.count(MaxHops)
	p.Hops = make([]Hop, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		username := d.string()
		ts := d.int64()
		p.Hops = append(p.Hops, Hop{Username: username, Timestamp: ts})
	}
}

// AddHop records that username saw the packet at now.
func (p *Ping) AddHop(username string, now time.Time) {
	p.Hops = append(p.Hops, Hop{Username: username, Timestamp: now.UnixNano()})
}

// Elapsed is the time between the first and the last hop.
func (p *Ping) Elapsed() time.Duration {
	if len(p.Hops) == 0 {
		return 0
	}
	return time.Duration(p.Hops[len(p.Hops)-1].Timestamp - p.Hops[0].Timestamp)
}

// Trace renders every hop as an offset from the first hop, followed by the total elapsed time.
func (p *Ping) Trace() string {
	var sb strings.Builder

	sb.WriteString("Ping Trace:\n")
	fmt.Fprintf(&sb, "\t%-20s %s\n\n", "User", "Timestamp")

	if len(p.Hops) == 0 {
		return sb.String()
	}

	first := p.Hops[0].Timestamp
	for _, h := range p.Hops {
		fmt.Fprintf(&sb, "\t%-20s %s\n", h.Username, millis(time.Duration(h.Timestamp-first)))
	}

	fmt.Fprintf(&sb, "\nTotal time: %s\n", millis(p.Elapsed()))
	return sb.String()
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%.3f ms", float64(d)/float64(time.Millisecond))
}

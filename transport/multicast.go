// Package transport sends and receives fixed-size datagrams on an IPv4
// multicast group. Sends go out through a separate wildcard-bound unicast
// socket whose port identifies the node on the group.
package transport

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

const (
	// DefaultGroup is the coordination group; the port is hex for "id".
	DefaultGroup = "239.0.0.152:26980"
	DefaultTTL   = 3

	maxDatagram = 65536
	inboxDepth  = 256
)

// Datagram is one received payload with its source address.
type Datagram struct {
	Payload []byte
	From    *net.UDPAddr
}

// Config selects the multicast group and TTL.
type Config struct {
	Group string
	TTL   int
}

// Transport is a datagram sender/receiver joined to a multicast group.
// Received datagrams are pumped into an internal inbox by a background
// reader so Recv can offer a bounded, non-blocking wait.
type Transport struct {
	group  *net.UDPAddr
	send   *net.UDPConn // wildcard-bound; its port is our identity on the group
	listen *net.UDPConn
	inbox  chan Datagram
	done   chan struct{}
}

// Open binds the send socket, joins the multicast group with address reuse,
// enables loopback so peers on the same host hear each other, and sets the
// TTL.
func Open(cfg Config) (*Transport, error) {
	if cfg.Group == "" {
		cfg.Group = DefaultGroup
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}

	group, err := net.ResolveUDPAddr("udp4", cfg.Group)
	if err != nil {
		return nil, fmt.Errorf("resolve group %q: %w", cfg.Group, err)
	}

	send, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("open send socket: %w", err)
	}

	listen, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		send.Close()
		return nil, fmt.Errorf("join group %s: %w", group, err)
	}

	// TTL and loopback are properties of the sending socket.
	p := ipv4.NewPacketConn(send)
	if err := p.SetMulticastTTL(cfg.TTL); err != nil {
		send.Close()
		listen.Close()
		return nil, fmt.Errorf("set multicast ttl: %w", err)
	}
	if err := p.SetMulticastLoopback(true); err != nil {
		send.Close()
		listen.Close()
		return nil, fmt.Errorf("set multicast loopback: %w", err)
	}

	t := &Transport{
		group:  group,
		send:   send,
		listen: listen,
		inbox:  make(chan Datagram, inboxDepth),
		done:   make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// LocalAddr returns the actual bound address of the sending socket.
func (t *Transport) LocalAddr() *net.UDPAddr {
	return t.send.LocalAddr().(*net.UDPAddr)
}

// Send emits one datagram to the multicast group.
func (t *Transport) Send(payload []byte) error {
	if _, err := t.send.WriteToUDP(payload, t.group); err != nil {
		return fmt.Errorf("send to %s: %w", t.group, err)
	}
	return nil
}

// Recv waits up to maxWait for a datagram, returning immediately if one is
// already pending. maxWait <= 0 is a pure poll.
func (t *Transport) Recv(maxWait time.Duration) (Datagram, bool) {
	if maxWait <= 0 {
		select {
		case dg := <-t.inbox:
			return dg, true
		default:
			return Datagram{}, false
		}
	}
	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	select {
	case dg := <-t.inbox:
		return dg, true
	case <-timer.C:
		return Datagram{}, false
	}
}

// Close shuts both sockets and stops the reader.
func (t *Transport) Close() error {
	t.send.Close()
	err := t.listen.Close()
	<-t.done
	return err
}

func (t *Transport) readLoop() {
	defer close(t.done)
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := t.listen.ReadFromUDP(buf)
		if err != nil {
			// socket closed
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		select {
		case t.inbox <- Datagram{Payload: payload, From: from}:
		default:
			// inbox full; peers re-announce on every high-water advance
		}
	}
}

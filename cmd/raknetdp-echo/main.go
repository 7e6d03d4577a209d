// Command raknetdp-echo runs a tiny UDP echo service over the transport
// package: every message it receives is written back to the sender.
// Messages on an ordered stream (1..3) are echoed reliably on the same
// stream; stream-0 and unreliable messages are echoed back as unreliable
// messages. It exists to exercise the
// transport end to end over real sockets with the default crypto AEAD,
// not as a product in its own right.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	logging "gopkg.in/op/go-logging.v1"

	"raknetdp/cryptoaead"
	rlog "raknetdp/logging"
	"raknetdp/metrics"
	"raknetdp/transport"
)

var (
	listenAddr = flag.String("listen", "0.0.0.0:7777", "UDP address to listen on")
	logLevel   = flag.String("log-level", "info", "log level: debug, info, warning, error")
)

// udpSink adapts one remote peer's outbound datagrams to a shared UDP
// socket, satisfying transport.DatagramSink.
type udpSink struct {
	conn *net.UDPConn
	addr *net.UDPAddr
	aead *cryptoaead.Envelope
}

func (s *udpSink) PostDatagram(b []byte) error {
	sealed := s.aead.Seal(nil, b)
	_, err := s.conn.WriteToUDP(sealed, s.addr)
	return err
}

func (s *udpSink) PostDatagrams(bs [][]byte) error {
	for _, b := range bs {
		if err := s.PostDatagram(b); err != nil {
			return err
		}
	}
	return nil
}

// peer bundles one remote connection's transport state with the AEAD
// envelope used to open its inbound datagrams.
type peer struct {
	conn *transport.Connection
	aead *cryptoaead.Envelope
}

type echoServer struct {
	udp     *net.UDPConn
	logger  *logging.Logger
	reg     *prometheus.Registry
	privKey [32]byte
	pubKey  [32]byte

	mu    sync.Mutex
	peers map[string]*peer
}

func newEchoServer(udp *net.UDPConn, logger *logging.Logger) (*echoServer, error) {
	priv, pub, err := cryptoaead.GenerateSharedSecret()
	if err != nil {
		return nil, err
	}
	return &echoServer{
		udp:     udp,
		logger:  logger,
		reg:     prometheus.NewRegistry(),
		privKey: priv,
		pubKey:  pub,
		peers:   make(map[string]*peer),
	}, nil
}

// peerFor returns the connection for addr, creating it (and its AEAD
// envelope) on first contact. The demo has no handshake layer, so every
// peer derives its envelope from the server's own static keypair paired
// with itself - sufficient to exercise framing, ordering, fragmentation
// and flow control, not to provide real confidentiality against a network
// observer.
func (s *echoServer) peerFor(addr *net.UDPAddr) (*peer, error) {
	key := addr.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.peers[key]; ok {
		return p, nil
	}

	aead, err := cryptoaead.NewEnvelope(s.privKey, s.pubKey)
	if err != nil {
		return nil, err
	}
	collector := metrics.NewCollector(s.reg, key)
	sink := &udpSink{conn: s.udp, addr: addr, aead: aead}

	var conn *transport.Connection
	conn, err = transport.NewConnection(transport.ConnectionConfig{
		AEAD:        aead,
		Sink:        sink,
		Logger:      s.logger,
		Metrics:     collector,
		IsInitiator: false,
		OnDeliver: func(stream uint8, payload []byte) {
			echoed := append([]byte(nil), payload...)
			var err error
			if stream == transport.UnorderedStream {
				err = conn.WriteUnreliable(echoed)
			} else {
				err = conn.WriteReliable(stream, echoed)
			}
			if err != nil {
				s.logger.Warningf("echo write to %s failed: %v", addr, err)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	p := &peer{conn: conn, aead: aead}
	s.peers[key] = p
	return p, nil
}

func (s *echoServer) readLoop(ctx context.Context) error {
	buf := make([]byte, 2048)
	for {
		if err := s.udp.SetReadDeadline(time.Now().Add(200 * time.Millisecond)); err != nil {
			return err
		}
		n, addr, err := s.udp.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.logger.Warningf("read udp: %v", err)
			continue
		}

		p, err := s.peerFor(addr)
		if err != nil {
			s.logger.Warningf("peer setup for %s: %v", addr, err)
			continue
		}
		plain, err := p.aead.Open(nil, buf[:n])
		if err != nil {
			s.logger.Debugf("drop unauthenticated datagram from %s: %v", addr, err)
			continue
		}
		if err := p.conn.OnDatagram(plain, time.Now().UnixMilli()); err != nil {
			s.logger.Warningf("datagram from %s: %v", addr, err)
		}
	}
}

func (s *echoServer) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(transport.DefaultTickIntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			nowMs := time.Now().UnixMilli()
			s.mu.Lock()
			peers := make([]*peer, 0, len(s.peers))
			for _, p := range s.peers {
				peers = append(peers, p)
			}
			s.mu.Unlock()
			for _, p := range peers {
				p.conn.Tick(nowMs)
			}
		}
	}
}

func main() {
	flag.Parse()

	if err := rlog.Init(*logLevel); err != nil {
		os.Stderr.WriteString("logging init: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := rlog.GetLogger("raknetdp-echo")

	addr, err := net.ResolveUDPAddr("udp", *listenAddr)
	if err != nil {
		logger.Fatalf("resolve %s: %v", *listenAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		logger.Fatalf("listen %s: %v", *listenAddr, err)
	}
	defer conn.Close()
	logger.Infof("listening on %s", conn.LocalAddr())

	srv, err := newEchoServer(conn, logger)
	if err != nil {
		logger.Fatalf("server init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.readLoop(gctx) })
	g.Go(func() error { return srv.tickLoop(gctx) })

	if err := g.Wait(); err != nil {
		logger.Errorf("server exited with error: %v", err)
		os.Exit(1)
	}
}

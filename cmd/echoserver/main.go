// Command echoserver runs a goenet Host that echoes every packet it
// receives back to its sender, driven by Host.Service in a plain loop
// (original_source/examples/server.rs's shape, carried over through
// goenet's teacher's banner/signal-handling style in core/main.go).
package main

import (
	"hash/crc32"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"goenet"
	"goenet/pkg/logger"
)

const version = "1.0.0"

type config struct {
	bind              string
	metricsBind       string
	peerCount         int
	channelLimit      int
	incomingBandwidth uint32
	outgoingBandwidth uint32
	verbose           bool
	checksum          bool
}

func main() {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "echoserver",
		Short: "goenet reliable-UDP echo server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}
	flags := root.Flags()
	flags.StringVar(&cfg.bind, "bind", "0.0.0.0:7777", "UDP address to listen on")
	flags.StringVar(&cfg.metricsBind, "metrics-bind", "127.0.0.1:9777", "address to serve Prometheus metrics on")
	flags.IntVar(&cfg.peerCount, "peers", 64, "maximum number of simultaneous peers")
	flags.IntVar(&cfg.channelLimit, "channels", 2, "default channel count for incoming connections")
	flags.Uint32Var(&cfg.incomingBandwidth, "incoming-bandwidth", 0, "incoming bandwidth cap in bytes/sec (0 = unlimited)")
	flags.Uint32Var(&cfg.outgoingBandwidth, "outgoing-bandwidth", 0, "outgoing bandwidth cap in bytes/sec (0 = unlimited)")
	flags.BoolVar(&cfg.verbose, "verbose", false, "enable debug logging")
	flags.BoolVar(&cfg.checksum, "checksum", false, "append a CRC32 checksum to every datagram")

	if err := root.Execute(); err != nil {
		logger.Fatal("%v", err)
	}
}

func run(cfg *config) error {
	logger.Banner("goenet echo server", version)

	if cfg.verbose {
		logger.SetLevel(slog.LevelDebug)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", cfg.bind)
	if err != nil {
		return err
	}

	hostCfg := enet.Config{
		Address:           cfg.bind,
		PeerCount:         cfg.peerCount,
		ChannelLimit:      cfg.channelLimit,
		IncomingBandwidth: cfg.incomingBandwidth,
		OutgoingBandwidth: cfg.outgoingBandwidth,
	}
	if cfg.checksum {
		hostCfg.Checksum = func(data []byte) uint32 { return crc32.ChecksumIEEE(data) }
	}
	host, err := enet.NewHost(hostCfg)
	if err != nil {
		return err
	}
	defer host.Close()

	logger.Info("listening on %s", udpAddr.String())
	logger.Info("peer slots: %d, channel limit: %d", cfg.peerCount, cfg.channelLimit)
	logger.Success("host %s ready", host.ID())

	registry := prometheus.NewRegistry()
	gauges := registerGauges(registry)
	go serveMetrics(cfg.metricsBind, registry)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	stop := make(chan struct{})
	go signalWatcher(sigCh, stop)

	lastStats := time.Now()
	for {
		select {
		case <-stop:
			logger.Warn("shutting down")
			time.Sleep(200 * time.Millisecond)
			logger.Success("stopped")
			return nil
		default:
		}

		ev, ok, err := host.Service(50 * time.Millisecond)
		if err != nil {
			logger.Error("service error: %v", err)
			continue
		}
		if ok {
			handleEvent(host, ev)
		}

		if time.Since(lastStats) >= time.Second {
			updateGauges(gauges, host.Stats())
			lastStats = time.Now()
		}
	}
}

func signalWatcher(sigCh chan os.Signal, stop chan struct{}) {
	sig := <-sigCh
	logger.Warn("received signal: %v", sig)
	close(stop)
}

func handleEvent(host *enet.Host, ev enet.Event) {
	switch ev.Type {
	case enet.EventConnect:
		logger.Info("peer %d connected", ev.Peer)
	case enet.EventDisconnect:
		logger.Info("peer %d disconnected", ev.Peer)
	case enet.EventReceive:
		logger.Debug("peer %d: %d bytes on channel %d", ev.Peer, len(ev.Packet.Data), ev.ChannelID)
		peer := host.Peer(ev.Peer)
		if peer == nil || !peer.Connected() {
			return
		}
		if err := peer.Send(ev.ChannelID, enet.NewPacket(ev.Packet.Data, enet.PacketFlagReliable)); err != nil {
			logger.Warn("echo to peer %d failed: %v", ev.Peer, err)
		}
	}
}

type gaugeSet struct {
	connectedPeers prometheus.Gauge
	packetsSent    prometheus.Gauge
	packetsLost    prometheus.Gauge
	bytesSent      prometheus.Gauge
	bytesReceived  prometheus.Gauge
	meanRTT        prometheus.Gauge
	meanLoss       prometheus.Gauge
}

func registerGauges(reg *prometheus.Registry) *gaugeSet {
	g := &gaugeSet{
		connectedPeers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{Name: "goenet_connected_peers"}),
		packetsSent:    promauto.With(reg).NewGauge(prometheus.GaugeOpts{Name: "goenet_packets_sent_total"}),
		packetsLost:    promauto.With(reg).NewGauge(prometheus.GaugeOpts{Name: "goenet_packets_lost_total"}),
		bytesSent:      promauto.With(reg).NewGauge(prometheus.GaugeOpts{Name: "goenet_bytes_sent_total"}),
		bytesReceived:  promauto.With(reg).NewGauge(prometheus.GaugeOpts{Name: "goenet_bytes_received_total"}),
		meanRTT:        promauto.With(reg).NewGauge(prometheus.GaugeOpts{Name: "goenet_mean_round_trip_time_ms"}),
		meanLoss:       promauto.With(reg).NewGauge(prometheus.GaugeOpts{Name: "goenet_mean_packet_loss"}),
	}
	return g
}

func updateGauges(g *gaugeSet, s enet.HostStats) {
	g.connectedPeers.Set(float64(s.ConnectedPeers))
	g.packetsSent.Set(float64(s.PacketsSent))
	g.packetsLost.Set(float64(s.PacketsLost))
	g.bytesSent.Set(float64(s.BytesSent))
	g.bytesReceived.Set(float64(s.BytesReceived))
	g.meanRTT.Set(float64(s.MeanRoundTripTime.Milliseconds()))
	g.meanLoss.Set(s.MeanPacketLoss)
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped: %v", err)
	}
}

package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/WeibelLab/JPEGTurbo-Unity/internal/config"
	"github.com/WeibelLab/JPEGTurbo-Unity/internal/metrics"
	"github.com/WeibelLab/JPEGTurbo-Unity/internal/protocol"
)

// TCPServer accepts stream subscribers and fans encoded frames out to them.
// The accept loop runs on its own goroutine for the server's whole lifetime;
// Broadcast is called from the streaming loop. The registry is the only
// state shared between the two.
type TCPServer struct {
	config   *config.ServerConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
	registry *Registry

	listener net.Listener
	wg       sync.WaitGroup

	// Statistics counters
	mu              sync.RWMutex
	framesBroadcast uint64
	bytesSent       uint64
	clientsAccepted uint64
	clientsRefused  uint64
	clientsEvicted  uint64
}

// NewTCPServer creates a new streaming server instance. metrics may be nil,
// in which case only the local statistics counters are kept.
func NewTCPServer(cfg *config.ServerConfig, logger *slog.Logger, m *metrics.Metrics) *TCPServer {
	return &TCPServer{
		config:   cfg,
		logger:   logger,
		metrics:  m,
		registry: NewRegistry(),
	}
}

// Start binds the listening socket and launches the accept loop. A bind
// failure is fatal and returned to the caller before any client is accepted.
func (s *TCPServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.logger.Info("TCP server started",
		slog.String("address", listener.Addr().String()),
		slog.Int("max_clients", s.config.MaxClients),
		slog.Duration("write_timeout", s.config.GetWriteTimeoutDuration()),
	)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener, waits for the accept loop, and disconnects all
// remaining clients.
func (s *TCPServer) Stop() error {
	s.logger.Info("Stopping TCP server...")

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Warn("Error closing listener", slog.String("error", err.Error()))
		}
	}

	s.wg.Wait()

	closed := s.registry.CloseAll()

	stats := s.Statistics()
	s.logger.Info("TCP server stopped",
		slog.Int("clients_closed", closed),
		slog.Uint64("frames_broadcast", stats.FramesBroadcast),
		slog.Uint64("bytes_sent", stats.BytesSent),
		slog.Uint64("clients_accepted", stats.ClientsAccepted),
		slog.Uint64("clients_evicted", stats.ClientsEvicted),
	)

	return nil
}

// Addr returns the bound listener address, usable after Start (port 0 in the
// config binds an ephemeral port).
func (s *TCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// acceptLoop registers every reachable TCP peer until the listener closes.
// There is no handshake: an accepted connection immediately subscribes to
// the stream.
func (s *TCPServer) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Failed to accept connection", slog.String("error", err.Error()))
			continue
		}

		if s.registry.Count() >= s.config.MaxClients {
			s.logger.Warn("Refusing connection, client limit reached",
				slog.String("remote_addr", conn.RemoteAddr().String()),
				slog.Int("max_clients", s.config.MaxClients),
			)
			conn.Close()

			s.mu.Lock()
			s.clientsRefused++
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.RecordClientRefusal()
			}
			continue
		}

		client := newClient(conn)
		s.registry.Add(client)

		s.mu.Lock()
		s.clientsAccepted++
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.RecordClientConnect()
		}

		s.logger.Info("Client connected",
			slog.String("remote_addr", client.RemoteAddr()),
			slog.Int("connected_clients", s.registry.Count()),
		)
	}
}

// Broadcast delivers one encoded frame to every registered client. Sends run
// concurrently, each under the configured write deadline, so a slow or dead
// client delays nobody else and at worst one deadline. Clients whose send
// came up short are evicted afterwards: removed from the registry, closed,
// and logged.
func (s *TCPServer) Broadcast(frame []byte) BroadcastResult {
	start := time.Now()
	clients := s.registry.Snapshot()

	result := BroadcastResult{Attempted: len(clients)}
	if len(clients) == 0 {
		return result
	}

	deadline := time.Now().Add(s.config.GetWriteTimeoutDuration())

	var (
		sendWG sync.WaitGroup
		failMu sync.Mutex
		failed []*Client
	)

	for _, client := range clients {
		sendWG.Add(1)
		go func(c *Client) {
			defer sendWG.Done()

			if err := c.conn.SetWriteDeadline(deadline); err != nil {
				failMu.Lock()
				failed = append(failed, c)
				failMu.Unlock()
				return
			}

			n, err := protocol.WriteFrame(c.conn, frame)
			if n < len(frame) || err != nil {
				failMu.Lock()
				failed = append(failed, c)
				failMu.Unlock()
			}
		}(client)
	}
	sendWG.Wait()

	result.Delivered = result.Attempted - len(failed)
	result.Evicted = len(failed)

	for _, client := range failed {
		if s.registry.Remove(client) {
			client.Close()
			if s.metrics != nil {
				s.metrics.RecordClientEviction()
			}
			s.logger.Info("Client disconnected",
				slog.String("remote_addr", client.RemoteAddr()),
				slog.Duration("connected_for", time.Since(client.ConnectedAt())),
			)
		}
	}

	delivered := result.Delivered * len(frame)
	s.mu.Lock()
	s.framesBroadcast++
	s.bytesSent += uint64(delivered)
	s.clientsEvicted += uint64(result.Evicted)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.RecordBroadcast(delivered, time.Since(start).Seconds())
	}

	return result
}

// BroadcastResult summarizes one broadcast pass.
type BroadcastResult struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Evicted   int `json:"evicted"`
}

// ClientCount returns the current number of connected clients.
func (s *TCPServer) ClientCount() int {
	return s.registry.Count()
}

// ClientInfo describes one connected client for the monitoring API.
type ClientInfo struct {
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Clients returns monitoring info for every connected client.
func (s *TCPServer) Clients() []ClientInfo {
	snapshot := s.registry.Snapshot()
	infos := make([]ClientInfo, 0, len(snapshot))
	for _, c := range snapshot {
		infos = append(infos, ClientInfo{
			RemoteAddr:  c.RemoteAddr(),
			ConnectedAt: c.ConnectedAt(),
		})
	}
	return infos
}

// Statistics returns current server statistics
func (s *TCPServer) Statistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStatistics{
		FramesBroadcast:  s.framesBroadcast,
		BytesSent:        s.bytesSent,
		ClientsAccepted:  s.clientsAccepted,
		ClientsRefused:   s.clientsRefused,
		ClientsEvicted:   s.clientsEvicted,
		ConnectedClients: uint64(s.registry.Count()),
	}
}

// ServerStatistics represents server performance counters
type ServerStatistics struct {
	FramesBroadcast  uint64 `json:"frames_broadcast"`
	BytesSent        uint64 `json:"bytes_sent"`
	ClientsAccepted  uint64 `json:"clients_accepted"`
	ClientsRefused   uint64 `json:"clients_refused"`
	ClientsEvicted   uint64 `json:"clients_evicted"`
	ConnectedClients uint64 `json:"connected_clients"`
}

package smtp

import (
	"net"
	"sync"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"homematch/backend/internal/config"
)

// Server 包装 go-smtp 服务器，附带连接限流。
type Server struct {
	srv     *gosmtp.Server
	addr    string
	limiter *ConnectionLimiter
	log     *zap.Logger
}

// NewServer 创建入站 SMTP 服务器。
func NewServer(cfg config.InboundConfig, backend *Backend, log *zap.Logger) *Server {
	srv := gosmtp.NewServer(backend)
	srv.Addr = cfg.BindAddr
	srv.Domain = "inbound." + cfg.Domain
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.MaxMessageBytes = cfg.MaxSize
	srv.MaxRecipients = 10

	return &Server{
		srv:     srv,
		addr:    cfg.BindAddr,
		limiter: NewConnectionLimiter(100, 20),
		log:     log,
	}
}

// ListenAndServe 监听并处理入站连接，阻塞直到 Close。
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.srv.Serve(&limitedListener{Listener: ln, limiter: s.limiter, log: s.log})
}

// Close 立即关闭监听与现有连接。
func (s *Server) Close() error {
	return s.srv.Close()
}

// limitedListener 在 Accept 时套用连接限流，超限的连接直接关闭。
type limitedListener struct {
	net.Listener
	limiter *ConnectionLimiter
	log     *zap.Logger
}

func (l *limitedListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}
		if !l.limiter.Acquire() {
			l.log.Warn("smtp connection rejected by limiter",
				zap.String("remote", conn.RemoteAddr().String()),
				zap.Int("current", l.limiter.Current()),
			)
			_ = conn.Close()
			continue
		}
		return &limitedConn{Conn: conn, limiter: l.limiter}, nil
	}
}

// limitedConn 在连接关闭时释放限流名额。
type limitedConn struct {
	net.Conn
	limiter *ConnectionLimiter
	once    sync.Once
}

func (c *limitedConn) Close() error {
	c.once.Do(c.limiter.Release)
	return c.Conn.Close()
}

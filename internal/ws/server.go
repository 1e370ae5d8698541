package ws

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/metrics"
	"github.com/fathima-sithara/realtime-service/internal/service"
)

// LocalUserID is the fiber local holding the authenticated user. The HTTP
// layer sets it before upgrading.
const LocalUserID = "user_id"

type Server struct {
	svc   *service.Service
	calls *service.CallRelay
	disp  *Dispatcher
	opts  Options
	log   *zap.Logger
}

func NewServer(svc *service.Service, calls *service.CallRelay, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		svc:   svc,
		calls: calls,
		disp:  NewDispatcher(svc, calls, log),
		opts:  opts,
		log:   log,
	}
}

// Handler returns the fiber websocket handler.
func (s *Server) Handler() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		userID, _ := conn.Locals(LocalUserID).(string)
		if userID == "" {
			_ = conn.Close()
			return
		}
		s.serve(conn, userID)
	}
}

func (s *Server) serve(conn wsConn, userID string) {
	ctx := context.Background()
	c := NewClient(conn, userID, s.opts, s.log)

	metrics.Connections.Inc()
	defer metrics.Connections.Dec()
	s.log.Debug("connection opened", zap.String("user", userID), zap.String("conn", c.id))

	go c.writePump()
	c.readLoop(func(env Envelope) {
		s.disp.Dispatch(ctx, c, env)
	})
	c.Close()
	<-c.done

	// Only the live connection tears down presence and calls; a replaced
	// one just goes away.
	if c.registered && s.svc.Disconnect(ctx, userID, c) {
		s.calls.Drop(userID)
	}
	s.log.Debug("connection closed", zap.String("user", userID), zap.String("conn", c.id))
}

package web

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/avstrong/slotreserve/internal/handoff"
	"github.com/avstrong/slotreserve/internal/logger"
	"github.com/avstrong/slotreserve/internal/reservation"
	"github.com/avstrong/slotreserve/internal/schedule"
)

const tracerName = "github.com/avstrong/slotreserve/internal/transport/web"

var (
	ErrPanic         = errors.New("handler panicked")
	ErrMisconfigured = errors.New("web server misconfigured")
)

type engine interface {
	Submit(ctx context.Context, req reservation.Request) (reservation.Booking, error)
	Reservations(ctx context.Context) ([]reservation.Reservation, error)
	Availability(ctx context.Context, date string) ([]reservation.Occupancy, error)
	Today() schedule.Date
	Timezone() string
	Menu() []reservation.MenuItem
}

type handoffFormatter interface {
	For(b reservation.Booking) handoff.Handoff
}

type Server struct {
	srv     *http.Server
	router  *http.ServeMux
	l       *logger.Logger
	conf    Conf
	engine  engine
	handoff handoffFormatter
	tracer  trace.Tracer
}

type Conf struct {
	L                 *logger.Logger
	ServerLogger      *log.Logger
	Host              string
	Port              string
	ReadHeaderTimeout time.Duration
	LivenessEndpoint  string
	MetricsEndpoint   string
	// RetryAfter is advertised on 503 responses.
	RetryAfter time.Duration
}

func New(ctx context.Context, conf Conf, engine engine, formatter handoffFormatter) (*Server, error) {
	if conf.L == nil || engine == nil || formatter == nil {
		return nil, ErrMisconfigured
	}

	if conf.LivenessEndpoint == "" {
		conf.LivenessEndpoint = "/liveness"
	}

	if conf.MetricsEndpoint == "" {
		conf.MetricsEndpoint = "/metrics"
	}

	if conf.RetryAfter <= 0 {
		conf.RetryAfter = time.Second
	}

	mux := http.NewServeMux()

	//nolint:exhaustruct
	srv := &http.Server{
		Addr:              net.JoinHostPort(conf.Host, conf.Port),
		ReadHeaderTimeout: conf.ReadHeaderTimeout,
		ErrorLog:          conf.ServerLogger,
		Handler:           mux,
		BaseContext: func(listener net.Listener) context.Context {
			return ctx
		},
	}

	server := &Server{
		srv:     srv,
		router:  mux,
		l:       conf.L.Named("web"),
		conf:    conf,
		engine:  engine,
		handoff: formatter,
		tracer:  otel.Tracer(tracerName),
	}

	server.addRoutes()

	return server, nil
}

func (s *Server) Srv() *http.Server {
	return s.srv
}

// Handler exposes the routed mux for in-process callers such as tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"service-dispatch/internal/http/handlers"
)

// requestTimeout bounds REST handlers. The WebSocket route is mounted outside it.
const requestTimeout = 5 * time.Second

// Deps groups the handlers served by the router.
type Deps struct {
	Base       *handlers.Handlers
	Resources  *handlers.ResourceHandler
	Deliveries *handlers.DeliveryHandler
	Tracking   *handlers.TrackingHandler
	// Stream upgrades /ws to a subscriber connection.
	Stream http.Handler
	// Metrics serves /metrics; nil disables the route.
	Metrics http.Handler
	// Middlewares run after request id, real ip and recovery.
	Middlewares []func(http.Handler) http.Handler
}

// New constructs a chi-based http.Handler with base middleware and routes.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	for _, mw := range d.Middlewares {
		r.Use(mw)
	}

	r.NotFound(d.Base.NotFound)
	r.MethodNotAllowed(d.Base.MethodNotAllowed)

	if d.Stream != nil {
		r.Method(http.MethodGet, "/ws", d.Stream)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/ping", d.Base.Ping)
		r.Head("/healthcheck", d.Base.HealthcheckHead)

		r.Route("/drivers", func(r chi.Router) {
			r.Post("/", d.Resources.CreateDriver)
			r.Get("/", d.Resources.ListDrivers)
			r.Get("/{id}", d.Resources.GetDriver)
		})
		r.Route("/vehicles", func(r chi.Router) {
			r.Post("/", d.Resources.CreateVehicle)
			r.Get("/", d.Resources.ListVehicles)
			r.Get("/{id}", d.Resources.GetVehicle)
		})

		r.Route("/deliveries", func(r chi.Router) {
			r.Post("/", d.Deliveries.Create)
			r.Get("/", d.Deliveries.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", d.Deliveries.Get)
				r.Delete("/", d.Deliveries.Delete)

				r.Post("/assign", d.Deliveries.Assign)
				r.Get("/assignment", d.Deliveries.GetAssignment)
				r.Put("/assignment", d.Deliveries.EditAssignment)
				r.Delete("/assignment", d.Deliveries.RemoveAssignment)

				r.Post("/start", d.Deliveries.Start)
				r.Post("/complete", d.Deliveries.Complete)
				r.Post("/cancel", d.Deliveries.Cancel)
				r.Put("/status", d.Deliveries.UpdateStatus)

				r.Post("/locations", d.Tracking.PublishLocation)
				r.Get("/locations", d.Tracking.LocationHistory)
				r.Get("/locations/latest", d.Tracking.LatestLocation)
				r.Get("/subscribers", d.Tracking.Subscribers)

				r.Get("/tracking", d.Tracking.Feed)
				r.Delete("/tracking", d.Tracking.StopTracking)
				r.Post("/tracking/simulate", d.Tracking.Simulate)
				r.Post("/tracking/device", d.Tracking.StartDevice)
			})
		})
	})

	return r
}

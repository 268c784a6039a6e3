package app

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"ridepay/internal/handler"
	"ridepay/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	MpesaHandler     *handler.MpesaHandler
	BookingHandler   *handler.BookingHandler
	CallbackAuth     gin.HandlerFunc          // optional
	IdempotencyStore middleware.ResponseStore // optional
	CORSOrigins      []string
	NewRelicApp      *newrelic.Application
	Logger           logrus.FieldLogger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(cors.New(corsConfig(deps.CORSOrigins)))

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.NewRelicAttributes())
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	idempotent := middleware.IdempotencyMiddleware(deps.IdempotencyStore, deps.Logger)

	// M-Pesa routes.
	mpesa := router.Group("/mpesa")
	{
		mpesa.GET("/token", deps.MpesaHandler.Token)
		mpesa.POST("/stk", idempotent, deps.MpesaHandler.STK)
		if deps.CallbackAuth != nil {
			mpesa.POST("/callback", deps.CallbackAuth, deps.MpesaHandler.Callback)
		} else {
			mpesa.POST("/callback", deps.MpesaHandler.Callback)
		}
		mpesa.GET("/status/:phone", deps.MpesaHandler.Status)
		mpesa.GET("/attempts/:checkoutRequestId", deps.MpesaHandler.Attempt)
	}

	// Booking routes.
	bookings := router.Group("/bookings")
	{
		bookings.POST("", idempotent, deps.BookingHandler.CreateBooking)
		bookings.GET("", deps.BookingHandler.GetAll)
		bookings.GET("/:id", deps.BookingHandler.GetBooking)
		bookings.GET("/:id/receipt", deps.BookingHandler.GetReceipt)
		bookings.POST("/:id/manual-payment", idempotent, deps.BookingHandler.MarkPaid)
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", "Idempotency-Key", "X-Request-ID")
	cfg.ExposeHeaders = []string{"X-Request-ID", "Idempotent-Replayed"}

	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

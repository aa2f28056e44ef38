package http_api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	authGroup := s.router.Group("/auth", s.rateLimit())
	authGroup.POST("/login", s.login)
	authGroup.POST("/refresh", s.refresh)

	// The gateway posts here; it authenticates with an API key instead of a user token.
	callback := s.router.Group("/sepay/callback", s.webhookAuth())
	callback.POST("", s.callback)
	callback.GET("", s.callback)

	api := s.router.Group("/sepay", s.authRequired(), s.rateLimit())
	api.POST("/create-intent", s.createIntent)
	api.GET("/intent/:id", s.getIntent)
	api.GET("/intent/:id/qr", s.intentQR)

	api.GET("/wallet", s.wallet)
	api.POST("/wallet/topup/create", s.createTopup)
	api.GET("/wallet/topup/:id/status", s.topupStatus)

	api.POST("/symbol/order/create", s.createOrder)
	api.GET("/symbol/order/:id", s.getOrder)
	api.POST("/symbol/order/:id/pay-wallet", s.payOrderWithWallet)
	api.POST("/symbol/order/:id/pay-sepay", s.payOrderWithGateway)
	api.GET("/symbol/orders/history", s.orderHistory)
	api.GET("/symbol/licenses", s.licenses)
	api.GET("/symbol/:symbol_id/access", s.checkAccess)

	api.GET("/symbol/subscriptions", s.listSubscriptions)
	api.POST("/symbol/subscriptions", s.subscribe)
	api.DELETE("/symbol/subscriptions/:id", s.unsubscribe)
}

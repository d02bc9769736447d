package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter configura el router de Gin con middlewares y rutas base.
func NewRouter(
	logger *zap.Logger,
	sessions SessionAuthenticator,
	states StateReader,
	authH *AuthHandler,
	alertH *AlertHub,
	adminH *AdminHandler,
	walletH *WalletHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.POST("/auth/sign-in", authH.SignIn)

	private := r.Group("")
	private.Use(SessionAuthMiddleware(sessions))
	private.POST("/auth/sign-out", authH.SignOut)
	private.GET("/me", authH.Me)
	private.GET("/me/balances", walletH.Balances)
	private.GET("/alerts/stream", alertH.Stream)

	admin := private.Group("/admin")
	admin.Use(AdminMiddleware(states))
	admin.GET("/withdrawals", adminH.ListWithdrawals)
	admin.GET("/withdrawals/stream", alertH.WithdrawalsStream)
	admin.POST("/withdrawals/:id/approve", adminH.ApproveWithdrawal)
	admin.POST("/deposits", adminH.CreditDeposit)
	admin.GET("/users", adminH.ListUsers)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}

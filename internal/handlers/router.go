package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"duxxan-platform/internal/metrics"
	"duxxan-platform/internal/middleware"
	"duxxan-platform/internal/response"
	ws "duxxan-platform/internal/websocket"
)

// RaffleAPI is the raffle service as seen by public, user and admin routes.
type RaffleAPI interface {
	RaffleService
	CreatorRaffles
	AdminRaffles
}

// UserAPI resolves wallets and edits profiles.
type UserAPI interface {
	UserService
	middleware.WalletResolver
}

// AdminAPI serves the admin routes and checks their tokens.
type AdminAPI interface {
	AdminService
	middleware.TokenParser
}

// RouterDeps is everything the HTTP surface needs.
type RouterDeps struct {
	Log            *zap.Logger
	Production     bool
	AllowedOrigins []string

	Raffles   RaffleAPI
	Tickets   TicketService
	Donations DonationService
	Channels  ChannelService
	Mail      MailService
	Users     UserAPI
	Admin     AdminAPI

	Hub         *ws.Hub
	Metrics     *metrics.Metrics
	RateLimiter *middleware.RateLimiter
}

func NewRouter(d RouterDeps) *gin.Engine {
	RegisterValidators()

	r := gin.New()
	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(d.Log))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
	r.Use(middleware.CORS(d.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if d.Hub != nil {
		wsHandler := NewWebSocketHandler(d.Hub, d.AllowedOrigins, d.Log)
		r.GET("/ws", wsHandler.ServeWs)
	}

	pass := func(c *gin.Context) { c.Next() }
	limitIP, limitWallet := gin.HandlerFunc(pass), gin.HandlerFunc(pass)
	if d.RateLimiter != nil {
		limitIP = d.RateLimiter.Handler()
		limitWallet = d.RateLimiter.PerWallet()
	}
	wallet := middleware.WalletAuth(d.Users, d.Log)

	// writes limits by IP before resolving the wallet, then by wallet.
	writes := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return []gin.HandlerFunc{limitIP, wallet, limitWallet, h}
	}

	raffleHandler := NewRaffleHandler(d.Raffles, d.Log, d.Production)
	ticketHandler := NewTicketHandler(d.Tickets, d.Log, d.Production)
	donationHandler := NewDonationHandler(d.Donations, d.Log, d.Production)
	channelHandler := NewChannelHandler(d.Channels, d.Log, d.Production)
	mailHandler := NewMailHandler(d.Mail, d.Log, d.Production)
	userHandler := NewUserHandler(d.Users, d.Raffles, d.Log, d.Production)
	adminHandler := NewAdminHandler(d.Admin, d.Raffles, d.Users, d.Log, d.Production)

	api := r.Group("/api")
	{
		raffles := api.Group("/raffles")
		raffles.GET("", raffleHandler.List)
		raffles.GET("/:id", raffleHandler.Get)
		raffles.GET("/:id/tickets", raffleHandler.Tickets)
		raffles.GET("/:id/draw", raffleHandler.Draw)
		raffles.POST("", writes(raffleHandler.Create)...)
		raffles.POST("/:id/approve", writes(raffleHandler.Approve)...)

		api.GET("/tickets/my", wallet, ticketHandler.Mine)
		api.POST("/tickets", writes(ticketHandler.Purchase)...)

		donations := api.Group("/donations")
		donations.GET("", donationHandler.List)
		donations.GET("/:id", donationHandler.Get)
		donations.GET("/:id/contributions", donationHandler.Contributions)
		donations.POST("", writes(donationHandler.Create)...)
		donations.POST("/:id/contribute", writes(donationHandler.Contribute)...)
		donations.POST("/:id/contribute/card", writes(donationHandler.ContributeCard)...)

		api.POST("/webhooks/midtrans", donationHandler.HandlePaymentNotification)

		channels := api.Group("/channels")
		channels.GET("", channelHandler.List)
		channels.GET("/:id", channelHandler.Get)
		channels.POST("", writes(channelHandler.Create)...)
		channels.POST("/:id/subscribe", writes(channelHandler.Subscribe)...)
		channels.DELETE("/:id/subscribe", writes(channelHandler.Unsubscribe)...)

		mail := api.Group("/mail")
		mail.GET("/inbox", wallet, mailHandler.Inbox)
		mail.GET("/sent", wallet, mailHandler.Sent)
		mail.GET("/unread-count", wallet, mailHandler.UnreadCount)
		mail.POST("", writes(mailHandler.Send)...)
		mail.PATCH("/:id/read", writes(mailHandler.MarkRead)...)

		users := api.Group("/users/me")
		users.GET("", wallet, userHandler.GetMe)
		users.PATCH("", writes(userHandler.UpdateMe)...)
		users.GET("/raffles", wallet, userHandler.MyRaffles)

		admin := api.Group("/admin")
		admin.POST("/login", limitIP, adminHandler.Login)

		protected := admin.Group("", middleware.AdminAuth(d.Admin, d.Log))
		protected.POST("/raffles", adminHandler.CreateRaffle)
		protected.POST("/raffles/:id/settle", adminHandler.Settle)
		protected.GET("/jobs", adminHandler.Jobs)
		protected.GET("/stats", adminHandler.Stats)
	}

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "Route not found")
	})

	return r
}

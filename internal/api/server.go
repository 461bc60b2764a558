package api

import (
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"github.com/vietanh2810/eventfinder-api/docs"
	v1 "github.com/vietanh2810/eventfinder-api/internal/api/handler/v1"
	"github.com/vietanh2810/eventfinder-api/internal/api/middleware"
	"github.com/vietanh2810/eventfinder-api/internal/chat"
	"github.com/vietanh2810/eventfinder-api/internal/config"
	"github.com/vietanh2810/eventfinder-api/internal/repository"
	"github.com/vietanh2810/eventfinder-api/internal/repository/dao"
	"github.com/vietanh2810/eventfinder-api/internal/service"
)

type Server struct {
	Config *config.AppConfig
	Router *gin.Engine
	// Chat owns the open websocket sessions, which Shutdown must drain
	// separately since the HTTP server does not track them.
	Chat *chat.Handler
}

// NewServer wires every handler against db. Chat rooms are served by
// channel, which is either a local hub or a Redis relay.
func NewServer(conf *config.AppConfig, db *gorm.DB, channel chat.Channel) *Server {
	gin.SetMode(conf.Gin.Mode)
	engine := gin.New()

	s := &Server{
		Config: conf,
		Router: engine,
	}

	s.MountMiddlewares()

	authHandler := s.initAuthHandler(db)
	userHandler := s.initUserHandler(db)
	eventHandler := s.initEventHandler(db)
	chatHandler := s.initChatHandler(db, channel)
	s.MountHandlers(authHandler, userHandler, eventHandler, chatHandler)

	return s
}

func (s *Server) initAuthHandler(db *gorm.DB) *v1.AuthHandler {
	userDAO := dao.NewUserDAO(db)
	repo := repository.NewUserRepository(userDAO)
	svc := service.NewAuthService(repo)
	handler := v1.NewAuthHandler(s.Config.API, svc)

	return handler
}

func (s *Server) initUserHandler(db *gorm.DB) *v1.UserHandler {
	userDAO := dao.NewUserDAO(db)
	repo := repository.NewUserRepository(userDAO)
	svc := service.NewUserService(repo)
	handler := v1.NewUserHandler(svc)

	return handler
}

func (s *Server) initEventHandler(db *gorm.DB) *v1.EventHandler {
	eventDAO := dao.NewEventDAO(db)
	repo := repository.NewEventRepository(eventDAO)
	svc := service.NewEventService(repo)
	uSvc := service.NewUserService(repository.NewUserRepository(dao.NewUserDAO(db)))
	handler := v1.NewEventHandler(svc, uSvc)

	return handler
}

func (s *Server) initChatHandler(db *gorm.DB, channel chat.Channel) *v1.ChatHandler {
	chatConf := s.Config.Chat

	chatRepo := repository.NewChatRepository(dao.NewChatDAO(db))
	eventRepo := repository.NewEventRepository(dao.NewEventDAO(db))
	svc := service.NewChatService(chatRepo, eventRepo, chatConf.PersistWorkers)
	uSvc := service.NewUserService(repository.NewUserRepository(dao.NewUserDAO(db)))

	s.Chat = chat.NewHandler(svc, svc, channel, chat.Options{
		HistoryLimit: chatConf.HistoryLimit,
		SendBuffer:   chatConf.SendBuffer,
	})
	handler := v1.NewChatHandler(s.Chat, svc, uSvc, chat.ClientConfig{
		PingInterval:   chatConf.PingInterval,
		PongWait:       chatConf.PongWait,
		WriteWait:      chatConf.WriteWait,
		MaxMessageSize: chatConf.MaxMessageSize,
	}, s.Config.API.AllowedCORSDomains)

	return handler
}

func (s *Server) MountMiddlewares() {
	s.Router.Use(gin.Recovery())
	s.Router.Use(requestid.New())
	s.Router.Use(middleware.RequestLogger())
	s.Router.Use(middleware.ConfigCORS(s.Config.API.AllowedCORSDomains))
}

func (s *Server) MountHandlers(authHandler *v1.AuthHandler, userHandler *v1.UserHandler, eventHandler *v1.EventHandler, chatHandler *v1.ChatHandler) {
	const basePath = "/api/v1"

	authenticator := middleware.NewAuthenticator(s.Config.API.JWTSigningKey)

	auth := s.Router.Group(basePath)
	{
		auth.POST("/auth/signup", authHandler.HandleSignup)
		auth.POST("/auth/login", authHandler.HandleLogin)
	}

	public := s.Router.Group(basePath)
	{
		public.GET("/events", eventHandler.HandleListEvents)
		public.GET("/events/:eventID", eventHandler.HandleGetEvent)
	}

	private := s.Router.Group(basePath, authenticator.VerifyJWT())
	{
		private.GET("/users/:userID", userHandler.HandleGetUser)

		private.POST("/events", eventHandler.HandleCreateEvent)
		private.PUT("/events/:eventID", eventHandler.HandleUpdateEvent)
		private.POST("/events/:eventID/attendance", eventHandler.HandleSetAttendance)
		private.GET("/me/events", eventHandler.HandleDashboard)

		private.GET("/events/:eventID/messages", chatHandler.HandleGetChatMessages)
	}

	s.Router.GET("/ws/chat/event/:eventID", authenticator.OptionalJWT(), chatHandler.HandleWebSocket)

	s.Router.GET("/", v1.HandleHealthcheck)

	// Setup Swagger UI.
	docs.SwaggerInfo.Host = s.Config.API.BaseURL
	docs.SwaggerInfo.BasePath = basePath
	docs.SwaggerInfo.Title = "Event Finder API"
	docs.SwaggerInfo.Description = "Discover events, RSVP and chat with the other attendees."
	docs.SwaggerInfo.Version = "1.0"
	s.Router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))
}

package api

import (
	"net/http"

	authHandler "github.com/ibheelz/Todoalrojo-sub002/internal/auth/handler"
	"github.com/ibheelz/Todoalrojo-sub002/internal/events"
	identityHandler "github.com/ibheelz/Todoalrojo-sub002/internal/identity/handler"
	journeyHandler "github.com/ibheelz/Todoalrojo-sub002/internal/journey/handler"
	messagingHandler "github.com/ibheelz/Todoalrojo-sub002/internal/messaging/handler"
	operatorsHandler "github.com/ibheelz/Todoalrojo-sub002/internal/operators/handler"
	recyclingHandler "github.com/ibheelz/Todoalrojo-sub002/internal/recycling/handler"

	"github.com/gin-gonic/gin"
)

type API struct {
	router           *gin.RouterGroup
	authHandler      authHandler.Handler
	identityHandler  identityHandler.Handler
	journeyHandler   journeyHandler.Handler
	messagingHandler messagingHandler.Handler
	recyclingHandler recyclingHandler.Handler
	operatorsHandler operatorsHandler.Handler
	wsHub            *events.WSHub
}

func New(
	router *gin.RouterGroup,
	authHandler authHandler.Handler,
	identityHandler identityHandler.Handler,
	journeyHandler journeyHandler.Handler,
	messagingHandler messagingHandler.Handler,
	recyclingHandler recyclingHandler.Handler,
	operatorsHandler operatorsHandler.Handler,
	wsHub *events.WSHub,
) API {
	return API{
		router:           router,
		authHandler:      authHandler,
		identityHandler:  identityHandler,
		journeyHandler:   journeyHandler,
		messagingHandler: messagingHandler,
		recyclingHandler: recyclingHandler,
		operatorsHandler: operatorsHandler,
		wsHub:            wsHub,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	apiGroup := a.router.Group("/api")
	{
		apiGroup.POST("/postbacks", a.journeyHandler.HandlePostback)
		apiGroup.GET("/customers/:id", a.identityHandler.HandleGetCustomer)
		apiGroup.GET("/journeys", a.journeyHandler.HandleGetJourney)
		apiGroup.POST("/journeys/actions", a.journeyHandler.HandleJourneyAction)
		apiGroup.POST("/dispatch/run", a.messagingHandler.HandleDispatchRun)
		apiGroup.GET("/live", a.wsHub.HandleLive)
	}

	adminGroup := apiGroup.Group("/admin")
	adminGroup.POST("/login", a.authHandler.HandleLogin)

	protectedGroup := adminGroup.Group("/", a.authHandler.HandleJWTMiddleware)
	{
		protectedGroup.POST("recycling/rules", a.recyclingHandler.HandleCreateRule)
		protectedGroup.GET("recycling/rules", a.recyclingHandler.HandleListRules)
		protectedGroup.POST("recycling/check", a.recyclingHandler.HandleCheck)
		protectedGroup.POST("recycling/recycle", a.recyclingHandler.HandleRecycle)
		protectedGroup.POST("recycling/run", a.recyclingHandler.HandleRun)
		protectedGroup.GET("recycling/eligible", a.recyclingHandler.HandleListEligible)

		protectedGroup.POST("operators", a.operatorsHandler.HandleCreateOperator)
		protectedGroup.GET("operators", a.operatorsHandler.HandleListOperators)
		protectedGroup.POST("templates", a.operatorsHandler.HandleCreateTemplate)
		protectedGroup.GET("templates", a.operatorsHandler.HandleListTemplates)
	}
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}

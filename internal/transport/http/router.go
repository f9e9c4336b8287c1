package httpserver

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/nmarkou/eshop/internal/handlers"
	"github.com/nmarkou/eshop/internal/service/token"
)

type Deps struct {
	DB              *gorm.DB
	AuthHandler     *handlers.AuthHandler
	GoogleHandler   *handlers.GoogleHandler
	ProductHandler  *handlers.ProductHandler
	CartHandler     *handlers.CartHandler
	PaymentHandler  *handlers.PaymentHandler
	OrderHandler    *handlers.OrderHandler
	DeliveryHandler *handlers.DeliveryHandler
	SearchHandler   *handlers.SearchHandler
	ServiceHandler  *token.TokenService
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.LogOut)
	v1.GET("/google/login", d.GoogleHandler.Login)
	v1.GET("/google/callback", d.GoogleHandler.Callback)
	v1.GET("/search", d.SearchHandler.Search)

	admin := v1.Group("/admin", d.ServiceHandler.AutoRefreshMiddlewareAdmin)

	admin.POST("/products", d.ProductHandler.CreateProduct)
	admin.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	admin.DELETE("/products/:id", d.ProductHandler.DeleteProduct)
	admin.POST("/categories", d.ProductHandler.CreateCategory)

	products := v1.Group("/products")

	products.GET("/:id", d.ProductHandler.GetProduct)
	products.GET("", d.ProductHandler.GetProducts)

	cart := v1.Group("/cart", d.ServiceHandler.AutoRefreshMiddleware)

	cart.GET("", d.CartHandler.GetCart)
	cart.POST("", d.CartHandler.AddToCart)
	cart.DELETE("/:id", d.CartHandler.DeleteOneFromCart)
	cart.DELETE("/:id/all", d.CartHandler.DeleteAllFromCart)

	v1.POST("/delivery", d.CartHandler.SetDeliveryInfo, d.ServiceHandler.AutoRefreshMiddleware)
	v1.GET("/delivery/options", d.DeliveryHandler.Options)
	v1.POST("/delivery/voucher", d.DeliveryHandler.CreateVoucher, d.ServiceHandler.AutoRefreshMiddleware)

	v1.POST("/checkout", d.PaymentHandler.PlaceOrder, d.ServiceHandler.AutoRefreshMiddleware)
	// webhook authenticates with the shared-secret Key header, not a cookie
	v1.POST("/payment/viva/callback/:order_id", d.PaymentHandler.VivaCallback)
	v1.GET("/payment/success", d.PaymentHandler.Success, d.ServiceHandler.AutoRefreshMiddleware)
	v1.GET("/payment/cancel", d.PaymentHandler.Cancel, d.ServiceHandler.AutoRefreshMiddleware)

	v1.GET("/orders", d.OrderHandler.ListOrders, d.ServiceHandler.AutoRefreshMiddleware)
	v1.GET("/orders/:id", d.OrderHandler.GetOrder, d.ServiceHandler.AutoRefreshMiddleware)
}

package gateway

import (
	"net/http"

	"github.com/example/storefront/pkg/collections"
	"github.com/example/storefront/pkg/models"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type setCartReq struct {
	Cart []int64 `json:"cart"`
}

// orderID parses the :id path parameter, writing a 400 on failure.
func (g *Gateway) orderID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := collections.ParseID(c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return primitive.NilObjectID, false
	}
	return id, true
}

func (g *Gateway) startOrder(c *gin.Context) {
	id, err := g.services.Orders.Start(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": id, "message": "Order started"})
}

func (g *Gateway) getOrder(c *gin.Context) {
	id, ok := g.orderID(c)
	if !ok {
		return
	}
	order, err := g.services.Orders.Get(c.Request.Context(), id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (g *Gateway) setCart(c *gin.Context) {
	id, ok := g.orderID(c)
	if !ok {
		return
	}
	var req setCartReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "cart must be a list of product ids"})
		return
	}
	if err := g.services.Orders.SetCart(c.Request.Context(), id, req.Cart); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart updated"})
}

func (g *Gateway) cancelOrder(c *gin.Context) {
	id, ok := g.orderID(c)
	if !ok {
		return
	}
	deleted, err := g.services.Orders.Cancel(c.Request.Context(), id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order Cancelled", "deleted": deleted})
}

func (g *Gateway) submitOrder(c *gin.Context) {
	id, ok := g.orderID(c)
	if !ok {
		return
	}
	var sub models.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid order data"})
		return
	}
	if err := g.services.Orders.Submit(c.Request.Context(), id, sub); err != nil {
		g.fail(c, err)
		return
	}
	g.logger.Info("Order data received",
		zap.String("order_id", id.Hex()),
		zap.Int64s("cart", sub.Cart))
	c.JSON(http.StatusOK, gin.H{"message": "Order submitted successfully!"})
}

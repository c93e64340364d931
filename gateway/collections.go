package gateway

import (
	"net/http"

	"github.com/example/storefront/pkg/collections"
	"github.com/example/storefront/pkg/models"
	"github.com/gin-gonic/gin"
)

func (g *Gateway) listProducts(c *gin.Context) {
	products, err := g.services.Catalog.List(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (g *Gateway) search(c *gin.Context) {
	products, err := g.services.Catalog.Search(c.Request.Context(), c.Query("query"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// collection resolves the :collectionName path parameter. It writes the
// error response itself and returns nil on failure.
func (g *Gateway) collection(c *gin.Context) *collections.Collection {
	coll, err := g.services.Collections.Resolve(c.Param("collectionName"))
	if err != nil {
		g.fail(c, err)
		return nil
	}
	return coll
}

func (g *Gateway) listCollection(c *gin.Context) {
	coll := g.collection(c)
	if coll == nil {
		return
	}
	records, err := coll.List(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(records))
}

func (g *Gateway) listBounded(c *gin.Context) {
	coll := g.collection(c)
	if coll == nil {
		return
	}
	limit, err := collections.ParseMax(c.Param("max"))
	if err != nil {
		g.fail(c, err)
		return
	}
	records, err := coll.ListBounded(c.Request.Context(), limit, c.Param("sortField"), c.Param("direction"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(records))
}

func (g *Gateway) createRecord(c *gin.Context) {
	coll := g.collection(c)
	if coll == nil {
		return
	}
	var rec models.Record
	if err := c.ShouldBindJSON(&rec); err != nil || rec == nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "request body must be a JSON object"})
		return
	}
	id, err := coll.Create(c.Request.Context(), rec)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true, "insertedId": id})
}

func (g *Gateway) updateRecord(c *gin.Context) {
	coll := g.collection(c)
	if coll == nil {
		return
	}
	id, err := collections.ParseID(c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	var patch models.Record
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "request body must be a JSON object"})
		return
	}
	matched, err := coll.Update(c.Request.Context(), id, patch)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": outcome(matched), "matched": matched})
}

func (g *Gateway) deleteRecord(c *gin.Context) {
	coll := g.collection(c)
	if coll == nil {
		return
	}
	id, err := collections.ParseID(c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	deleted, err := coll.Delete(c.Request.Context(), id)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": outcome(deleted), "deleted": deleted})
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// nonNil keeps empty listings encoded as [] rather than null.
func nonNil(records []models.Record) []models.Record {
	if records == nil {
		return []models.Record{}
	}
	return records
}

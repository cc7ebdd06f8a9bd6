package httpapi

import (
	"net/http"

	"call-inbox/internal/mappings"
	"call-inbox/internal/routing"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) ListMappings(c *gin.Context) {
	rows, err := h.Mappings.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handlers) CreateMapping(c *gin.Context) {
	var req mappings.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	m, err := h.Mappings.Create(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handlers) UpdateMapping(c *gin.Context) {
	var req mappings.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	m, err := h.Mappings.Update(c.Request.Context(), c.Param("phone_number"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handlers) DeleteMapping(c *gin.Context) {
	key, err := h.Mappings.Delete(c.Request.Context(), c.Param("phone_number"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "phone_number": key})
}

// ResolveRoute answers the PBX: which extension should this caller reach.
func (h *Handlers) ResolveRoute(c *gin.Context) {
	d, err := h.Routing.Resolve(c.Request.Context(), c.Param("phone"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if c.Query("format") == "twiml" {
		body, err := routing.RenderTwiML(d)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(body))
		return
	}
	c.JSON(http.StatusOK, d)
}

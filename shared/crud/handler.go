package crud

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pavitra93/go-simulation-admin/shared/middleware"
	"github.com/pavitra93/go-simulation-admin/shared/repository"
	"github.com/pavitra93/go-simulation-admin/shared/utils"
)

// Decoder builds a new entity from a create request.
type Decoder[PT any] func(c *gin.Context) (PT, error)

// Patcher turns an update request into repository changes.
type Patcher func(c *gin.Context) (map[string]any, error)

// Handler serves the generic routes of one entity type.
type Handler[T any, PT repository.EntityPtr[T]] struct {
	svc    *Service[T, PT]
	name   string
	decode Decoder[PT]
	patch  Patcher
}

// NewHandler returns the handler for svc. name is used in response messages.
func NewHandler[T any, PT repository.EntityPtr[T]](svc *Service[T, PT], name string, decode Decoder[PT], patch Patcher) *Handler[T, PT] {
	return &Handler[T, PT]{svc: svc, name: name, decode: decode, patch: patch}
}

// Register mounts the routes on rg. guard runs before every write route.
//
//	GET    /          list
//	GET    /search    search by ?q= over ?fields=a,b
//	GET    /:id       get
//	POST   /          create
//	PATCH  /:id       update
//	DELETE /:id       soft delete
//	POST   /:id/restore
func (h *Handler[T, PT]) Register(rg gin.IRoutes, guard ...gin.HandlerFunc) {
	write := func(fn gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, guard...), fn)
	}
	rg.GET("", h.List)
	rg.GET("/search", h.Search)
	rg.GET("/:id", h.Get)
	if h.decode != nil {
		rg.POST("", write(h.Create)...)
	}
	if h.patch != nil {
		rg.PATCH("/:id", write(h.Update)...)
	}
	rg.DELETE("/:id", write(h.Delete)...)
	rg.POST("/:id/restore", write(h.Restore)...)
}

// Scope returns the tenant of the request and the :id parameter. It writes
// the error response and returns false when either is unusable.
func Scope(c *gin.Context, withID bool) (tenantRef, id uuid.UUID, ok bool) {
	tenantRef, ok = middleware.TenantRef(c)
	if !ok {
		utils.UnauthorizedResponse(c, "tenant reference required")
		return uuid.Nil, uuid.Nil, false
	}
	if !withID {
		return tenantRef, uuid.Nil, true
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid id")
		return uuid.Nil, uuid.Nil, false
	}
	return tenantRef, id, true
}

// BindPage reads ?skip= and ?limit=.
func BindPage(c *gin.Context) (repository.Page, bool) {
	var page repository.Page
	if err := c.ShouldBindQuery(&page); err != nil {
		utils.BadRequestResponse(c, "Invalid pagination parameters")
		return page, false
	}
	return page, true
}

// Respond writes a page of items with the window actually applied.
func Respond[PT any](c *gin.Context, opts repository.Options, page repository.Page, items []PT) {
	skip, limit := opts.Window(page)
	utils.PageResponse(c, items, skip, limit)
}

func (h *Handler[T, PT]) List(c *gin.Context) {
	tenantRef, _, ok := Scope(c, false)
	if !ok {
		return
	}
	page, ok := BindPage(c)
	if !ok {
		return
	}
	items, err := h.svc.List(c.Request.Context(), tenantRef, page)
	if err != nil {
		utils.ErrorFromRepository(c, err)
		return
	}
	Respond(c, h.svc.Options(), page, items)
}

func (h *Handler[T, PT]) Search(c *gin.Context) {
	tenantRef, _, ok := Scope(c, false)
	if !ok {
		return
	}
	page, ok := BindPage(c)
	if !ok {
		return
	}
	var fields []string
	if raw := c.Query("fields"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
	}
	items, err := h.svc.Search(c.Request.Context(), tenantRef, c.Query("q"), fields, page)
	if err != nil {
		utils.ErrorFromRepository(c, err)
		return
	}
	Respond(c, h.svc.Options(), page, items)
}

func (h *Handler[T, PT]) Get(c *gin.Context) {
	tenantRef, id, ok := Scope(c, true)
	if !ok {
		return
	}
	item, err := h.svc.Get(c.Request.Context(), tenantRef, id)
	if err != nil {
		utils.ErrorFromRepository(c, err)
		return
	}
	utils.OKResponse(c, "", item)
}

func (h *Handler[T, PT]) Create(c *gin.Context) {
	tenantRef, _, ok := Scope(c, false)
	if !ok {
		return
	}
	entity, err := h.decode(c)
	if err != nil {
		utils.BadRequestResponse(c, err.Error())
		return
	}
	created, err := h.svc.Create(c.Request.Context(), tenantRef, entity)
	if err != nil {
		utils.ErrorFromRepository(c, err)
		return
	}
	utils.CreatedResponse(c, h.name+" created successfully", created)
}

func (h *Handler[T, PT]) Update(c *gin.Context) {
	tenantRef, id, ok := Scope(c, true)
	if !ok {
		return
	}
	changes, err := h.patch(c)
	if err != nil {
		utils.BadRequestResponse(c, err.Error())
		return
	}
	updated, err := h.svc.Update(c.Request.Context(), tenantRef, id, changes)
	if err != nil {
		utils.ErrorFromRepository(c, err)
		return
	}
	utils.OKResponse(c, h.name+" updated successfully", updated)
}

func (h *Handler[T, PT]) Delete(c *gin.Context) {
	tenantRef, id, ok := Scope(c, true)
	if !ok {
		return
	}
	deleted, err := h.svc.Delete(c.Request.Context(), tenantRef, id)
	if err != nil {
		utils.ErrorFromRepository(c, err)
		return
	}
	if !deleted {
		utils.NotFoundResponse(c, h.name+" not found")
		return
	}
	utils.OKResponse(c, h.name+" deleted successfully", nil)
}

func (h *Handler[T, PT]) Restore(c *gin.Context) {
	tenantRef, id, ok := Scope(c, true)
	if !ok {
		return
	}
	restored, err := h.svc.Restore(c.Request.Context(), tenantRef, id)
	if err != nil {
		utils.ErrorFromRepository(c, err)
		return
	}
	utils.OKResponse(c, h.name+" restored successfully", restored)
}

// Changes collects the non-nil fields of a patch request keyed by column.
type Changes map[string]any

// Set records value under column when value is non-nil.
func Set[V any](ch Changes, column string, value *V) {
	if value != nil {
		ch[column] = *value
	}
}

package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cdn-edge/internal/domain"
	"cdn-edge/internal/geo"
	"cdn-edge/internal/multipart"
	"cdn-edge/internal/nodes"
	"cdn-edge/internal/placement"
	"cdn-edge/internal/replication"
)

// Handlers holds the core engines the routes forward to.
type Handlers struct {
	Registry   *nodes.Registry
	Geo        *geo.Router
	Engine     *placement.Engine
	Upload     *multipart.Engine
	Replicator *replication.Scheduler
	Clients    domain.S3ClientFactory
	Cache      domain.Cache
	Bucket     string
	PartSize   int64
	Log        *zap.Logger
}

// Health reports the adapter is up; readiness of dependent systems is
// not asserted here.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetObject resolves object_name to a presigned URL and redirects.
func (h *Handlers) GetObject(c *gin.Context) {
	objectName := c.Param("object_name")

	origin, active, ok := h.activeOrUnavailable(c)
	if !ok {
		return
	}

	closest, found := h.Geo.FindClosest(c.Request.Context(), c.ClientIP(), active)
	if !found {
		closest = origin
	}

	res, err := h.Engine.Resolve(c.Request.Context(), closest, origin, objectName)
	if err != nil {
		h.writeEngineError(c, err)
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, res.URL)
}

// GetStatus reports the upload status of object_name on the origin.
func (h *Handlers) GetStatus(c *gin.Context) {
	objectName := c.Param("object_name")

	origin, err := h.Registry.Origin()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": err.Error()})
		return
	}

	key := domain.UploadKey(domain.CollectionAPI, objectName, "http://"+origin.Endpoint)
	rec, found, err := h.Cache.GetUploadRecord(c.Request.Context(), key)
	if err != nil {
		h.Log.Error("status lookup failed", zap.String("object", objectName), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("%s not found", objectName)})
		return
	}

	c.String(http.StatusOK, "'%s' has status '%s' on node '%s'", objectName, rec.Status, origin.Endpoint)
}

// PostObject ingests a multipart/form-data upload into the origin.
func (h *Handlers) PostObject(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "missing 'file' field"})
		return
	}

	origin, err := h.Registry.Origin()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": err.Error()})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "cannot open upload"})
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	client := h.Clients(origin)
	source := multipart.NewClientStreamSource(file)

	result, err := h.Upload.Upload(c.Request.Context(), client, h.Bucket, fileHeader.Filename, contentType,
		domain.CollectionAPI, domain.StatusInProgress, fileHeader.Size, source)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyUploaded) {
			c.JSON(http.StatusBadRequest, gin.H{
				"detail": fmt.Sprintf("%s was already successfully uploaded. Delete it first to re-upload.", fileHeader.Filename),
			})
			return
		}
		h.Log.Error("upload failed", zap.String("object", fileHeader.Filename), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "upload failed"})
		return
	}

	c.String(http.StatusOK, "Upload of '%s' completed: %s", fileHeader.Filename, result.ETag)
}

// DeleteObject removes object_name from every node it exists on.
func (h *Handlers) DeleteObject(c *gin.Context) {
	objectName := c.Query("object_name")
	if objectName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "object_name is required"})
		return
	}

	active := h.Registry.ActiveNodes()
	endpoints, err := h.Engine.Delete(c.Request.Context(), active, h.Cache, objectName)
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
			return
		}
		h.Log.Error("delete failed", zap.String("object", objectName), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "delete failed"})
		return
	}

	c.String(http.StatusOK, "'%s' removed from: %v", objectName, endpoints)
}

// DebugActivity reports cumulative replication throughput and the most
// recently completed copies, for operator visibility into the
// background replication pipeline.
func (h *Handlers) DebugActivity(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stats":  h.Replicator.Stats(),
		"recent": h.Replicator.RecentActivity(),
		"pool":   h.Replicator.PoolStats(),
	})
}

func (h *Handlers) activeOrUnavailable(c *gin.Context) (origin domain.Node, active domain.ActiveNodeSet, ok bool) {
	origin, err := h.Registry.Origin()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": err.Error()})
		return domain.Node{}, nil, false
	}
	return origin, h.Registry.ActiveNodes(), true
}

func (h *Handlers) writeEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrObjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
	case errors.Is(err, domain.ErrLocationsUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": err.Error()})
	default:
		h.Log.Error("placement resolve failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
	}
}

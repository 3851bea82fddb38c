package inbound

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/goliatone/go-webhook-ingest/webhooks"
)

const contentTypeText = "text/plain; charset=utf-8"

type Receiver interface {
	Receive(ctx context.Context, req webhooks.Request) (webhooks.Receipt, error)
	Dispatch(ctx context.Context, receipt webhooks.Receipt)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves notification routes and the liveness probes.
type Handler struct {
	receiver    Receiver
	store       Pinger
	observer    core.Observer
	pingTimeout time.Duration
}

func NewHandler(receiver Receiver, store Pinger, observer core.Observer) *Handler {
	return &Handler{
		receiver:    receiver,
		store:       store,
		observer:    observer,
		pingTimeout: 2 * time.Second,
	}
}

// Receive hands the untouched request body to the pipeline. Gin must not bind
// or read the body before this runs.
func (h *Handler) Receive(c *gin.Context) {
	ctx := c.Request.Context()
	receipt, err := h.receiver.Receive(ctx, webhooks.Request{
		Method:      c.Request.Method,
		Route:       c.Request.URL.Path,
		ContentType: c.GetHeader("Content-Type"),
		Header:      c.Request.Header,
		Body:        c.Request.Body,
	})
	status := receipt.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if err != nil && status >= http.StatusInternalServerError {
		h.observer.Error(ctx, "webhook request failed", errorFields(err))
	}
	if receipt.Allow != "" {
		c.Header("Allow", receipt.Allow)
	}
	c.Data(status, contentTypeText, []byte(publicBody(status)))
	if err != nil {
		return
	}
	c.Writer.Flush()

	// The request context ends with the response; effects outlive it.
	h.receiver.Dispatch(context.WithoutCancel(ctx), receipt)
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz reports 503 while the configured store cannot be reached. The
// webhook route keeps answering 200 in that state.
func (h *Handler) Readyz(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.pingTimeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.observer.Warn(ctx, "readiness check failed", errorFields(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

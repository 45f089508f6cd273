package handlers

import (
	"fmt"
	"net/http"

	"github.com/Brownie44l1/digit-api/internal/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupRouter wires the prediction, health and metrics endpoints.
// trustedProxies controls which forwarding headers gin honours when
// resolving the client IP; nil means the connection peer is the client.
func SetupRouter(h *Handler, recorder *metrics.Recorder, trustedProxies []string) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	if h.maxUploadBytes > 0 {
		r.MaxMultipartMemory = h.maxUploadBytes
	}

	r.Use(
		RequestID(),
		RequestLogger(),
		recorder.Middleware(),
		gin.Recovery(),
		cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{http.MethodPost, http.MethodGet, http.MethodOptions},
			AllowHeaders:    []string{"Origin", "Content-Type", requestIDHeader},
			ExposeHeaders:   []string{requestIDHeader},
		}),
	)

	r.GET("/health", h.Health)
	r.POST("/predict/", h.Predict)
	r.POST("/predict", h.Predict)
	r.GET("/metrics", gin.WrapH(recorder.Handler()))

	return r, nil
}

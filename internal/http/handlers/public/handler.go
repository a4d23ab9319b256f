package public

import (
	handlershared "github.com/caz-payments/internal/http/handlers/shared"
	"github.com/caz-payments/internal/provider"

	"github.com/gin-gonic/gin"
)

// Handler 支付对外接口处理器入口
type Handler struct {
	*provider.Container
}

// New 创建处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func normalizePagination(page, pageSize int) (int, int) {
	return handlershared.NormalizePagination(page, pageSize)
}

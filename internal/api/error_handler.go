package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/approval-chain/internal/approval"
	"github.com/sirupsen/logrus"
)

// statusByCode 审批错误码对应的 HTTP 状态码
var statusByCode = map[approval.Code]int{
	approval.CodeValidation:       http.StatusBadRequest,
	approval.CodeAlreadyDecided:   http.StatusConflict,
	approval.CodeNotEligible:      http.StatusForbidden,
	approval.CodeAlreadySubmitted: http.StatusConflict,
	approval.CodeNotEditable:      http.StatusConflict,
	approval.CodeStorageConflict:  http.StatusConflict,
	approval.CodeNotFound:         http.StatusNotFound,
}

// StatusFor 错误对应的 HTTP 状态码,未知错误为 500
func StatusFor(err error) int {
	if status, ok := statusByCode[approval.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HandleError 把服务层错误写为错误响应
// 未知错误只记录日志,不把内部细节返回给调用方
func HandleError(c *gin.Context, logger *logrus.Logger, err error) {
	var domainErr *approval.Error
	if errors.As(err, &domainErr) {
		detail := ""
		if domainErr.Err != nil && domainErr.Code == approval.CodeValidation {
			detail = domainErr.Err.Error()
		}
		Error(c, StatusFor(err), string(domainErr.Code), domainErr.Message, detail)
		return
	}

	logger.WithFields(logrus.Fields{
		"request_id": c.GetString(RequestIDKey),
		"path":       c.FullPath(),
	}).WithError(err).Error("request failed")
	Error(c, http.StatusInternalServerError, CodeInternal, "internal server error", "")
}

// ErrorHandlerMiddleware 处理通过 c.Error 记录的错误
func ErrorHandlerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			HandleError(c, logger, c.Errors.Last().Err)
		}
	}
}

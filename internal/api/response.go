package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应格式
// @Description 统一响应格式,包含状态码、消息和数据
type Response struct {
	Code    string      `json:"code" example:"OK"`         // 成功时为 OK
	Message string      `json:"message" example:"success"` // 响应消息
	Data    interface{} `json:"data"`                      // 响应数据
}

// ErrorResponse 错误响应格式
// @Description 错误响应格式,包含错误码、错误消息和错误详情
type ErrorResponse struct {
	Code    string `json:"code" example:"ALREADY_DECIDED"`                            // 错误码
	Message string `json:"message" example:"approval record is no longer pending"`    // 错误消息
	Detail  string `json:"detail,omitempty" example:"record r-1 is already approved"` // 错误详情(可选)
}

// 非审批领域的错误码
const (
	CodeInternal     = "INTERNAL_ERROR"
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeRateLimited  = "RATE_LIMITED"
)

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    "OK",
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    "OK",
		Message: "created",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, status int, code string, message string, detail string) {
	if status < 400 || status >= 600 {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:    code,
		Message: message,
		Detail:  detail,
	})
}

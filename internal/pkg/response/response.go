package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	CodeSuccess          = 0
	CodeParamError       = 1000
	CodeAuthFailed       = 1001
	CodePermissionDenied = 1002
	CodeResourceNotFound = 1003
	CodeDuplicateAction  = 1005

	// 计费
	CodeUnknownPlan          = 2001
	CodeUnknownProvider      = 2002
	CodeOrganizationNotFound = 2003
	CodeProviderUnavailable  = 2004
	CodeSignatureInvalid     = 2005
	CodeUnknownOrder         = 2006

	CodeServerError = 5000
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:              "success",
	CodeParamError:           "参数错误",
	CodeAuthFailed:           "认证失败",
	CodePermissionDenied:     "权限不足",
	CodeResourceNotFound:     "资源不存在",
	CodeDuplicateAction:      "重复操作",
	CodeUnknownPlan:          "套餐不存在",
	CodeUnknownProvider:      "支付渠道不存在",
	CodeOrganizationNotFound: "机构不存在",
	CodeProviderUnavailable:  "支付渠道暂不可用",
	CodeSignatureInvalid:     "签名校验失败",
	CodeUnknownOrder:         "订单不存在",
	CodeServerError:          "服务器内部错误",
}

// 错误码对应的 HTTP 状态码
var codeStatus = map[int]int{
	CodeParamError:           http.StatusBadRequest,
	CodeAuthFailed:           http.StatusUnauthorized,
	CodePermissionDenied:     http.StatusForbidden,
	CodeResourceNotFound:     http.StatusNotFound,
	CodeDuplicateAction:      http.StatusConflict,
	CodeUnknownPlan:          http.StatusBadRequest,
	CodeUnknownProvider:      http.StatusBadRequest,
	CodeOrganizationNotFound: http.StatusNotFound,
	CodeProviderUnavailable:  http.StatusBadGateway,
	CodeSignatureInvalid:     http.StatusUnauthorized,
	CodeUnknownOrder:         http.StatusNotFound,
	CodeServerError:          http.StatusInternalServerError,
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// PageData 分页数据结构
type PageData struct {
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Items    interface{} `json:"items"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// SuccessPage 分页成功响应
func SuccessPage(c *gin.Context, total int64, page, pageSize int, items interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data: PageData{
			Total:    total,
			Page:     page,
			PageSize: pageSize,
			Items:    items,
		},
	})
}

// StatusFor 错误码对应的 HTTP 状态码，未登记的按 500 处理
func StatusFor(code int) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error 错误响应，HTTP 状态码由错误码决定
func Error(c *gin.Context, code int, message string) {
	ErrorWithStatus(c, StatusFor(code), code, message, nil)
}

// ErrorWithStatus 指定 HTTP 状态码的错误响应，data 可为空
func ErrorWithStatus(c *gin.Context, status, code int, message string, data interface{}) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(status, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// ParamError 参数错误
func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

// AuthError 认证失败
func AuthError(c *gin.Context, message string) {
	Error(c, CodeAuthFailed, message)
}

// PermissionError 权限不足
func PermissionError(c *gin.Context, message string) {
	Error(c, CodePermissionDenied, message)
}

// NotFoundError 资源不存在
func NotFoundError(c *gin.Context, message string) {
	Error(c, CodeResourceNotFound, message)
}

// DuplicateError 重复操作
func DuplicateError(c *gin.Context, message string) {
	Error(c, CodeDuplicateAction, message)
}

// ProviderError 支付渠道不可用
func ProviderError(c *gin.Context, message string) {
	Error(c, CodeProviderUnavailable, message)
}

// ServerError 服务器错误
func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

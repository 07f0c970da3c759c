// messages.go - Localized user-facing error messages

package common

import (
	"context"
	"errors"
)

// Error categories shared by every package that surfaces failures to users.
const (
	CategoryNetwork         = "network_error"
	CategoryQuota           = "quota_exceeded"
	CategoryFatal           = "provider_rejected"
	CategoryExhausted       = "all_resources_exhausted"
	CategoryEmptyResponse   = "empty_response"
	CategoryMalformedOutput = "malformed_output"
	CategoryNoChunk         = "no_chunk_succeeded"
	CategoryNothingToMerge  = "nothing_to_merge"
	CategoryInvalidInput    = "invalid_input"
	CategoryNotFound        = "not_found"
	CategoryBusy            = "busy"
	CategoryCancelled       = "cancelled"
	CategoryTimeout         = "timeout"
	CategoryUnknown         = "unknown"
)

// Categorized is implemented by errors that know their user-facing category.
type Categorized interface {
	Category() string
}

var messages = map[string]map[string]string{
	"en": {
		CategoryNetwork:         "The AI service could not be reached. Please check your connection and try again.",
		CategoryQuota:           "The AI quota for this key is used up. Another key or model will be tried.",
		CategoryFatal:           "The AI service rejected the request. Please check the API key and model settings.",
		CategoryExhausted:       "Every model and API key is busy or out of quota. Please wait a few minutes and retry.",
		CategoryEmptyResponse:   "The AI returned an empty answer for this part. Please retry it.",
		CategoryMalformedOutput: "The AI answer could not be read as a transaction list. Please retry this part.",
		CategoryNoChunk:         "No part of the statement could be processed. Please check the file and your API keys.",
		CategoryNothingToMerge:  "There are no processed parts to combine yet.",
		CategoryInvalidInput:    "The request is invalid. Please check the input and try again.",
		CategoryNotFound:        "The requested item was not found.",
		CategoryBusy:            "This statement is still being processed. Please wait or cancel first.",
		CategoryCancelled:       "Processing was cancelled.",
		CategoryTimeout:         "The request took too long. Please try again.",
		CategoryUnknown:         "An unexpected error occurred. Please try again.",
	},
	"vi": {
		CategoryNetwork:         "Không kết nối được dịch vụ AI. Vui lòng kiểm tra mạng và thử lại.",
		CategoryQuota:           "Khóa API này đã hết hạn mức. Hệ thống sẽ thử khóa hoặc mô hình khác.",
		CategoryFatal:           "Dịch vụ AI từ chối yêu cầu. Vui lòng kiểm tra khóa API và cấu hình mô hình.",
		CategoryExhausted:       "Tất cả mô hình và khóa API đều bận hoặc hết hạn mức. Vui lòng chờ vài phút rồi thử lại.",
		CategoryEmptyResponse:   "AI trả về kết quả rỗng cho phần này. Vui lòng thử lại.",
		CategoryMalformedOutput: "Không đọc được kết quả AI thành danh sách giao dịch. Vui lòng thử lại phần này.",
		CategoryNoChunk:         "Không xử lý được phần nào của sao kê. Vui lòng kiểm tra tệp và khóa API.",
		CategoryNothingToMerge:  "Chưa có phần nào đã xử lý để gộp.",
		CategoryInvalidInput:    "Yêu cầu không hợp lệ. Vui lòng kiểm tra dữ liệu đầu vào.",
		CategoryNotFound:        "Không tìm thấy dữ liệu yêu cầu.",
		CategoryBusy:            "Sao kê đang được xử lý. Vui lòng chờ hoặc hủy trước.",
		CategoryCancelled:       "Đã hủy xử lý.",
		CategoryTimeout:         "Yêu cầu mất quá nhiều thời gian. Vui lòng thử lại.",
		CategoryUnknown:         "Đã xảy ra lỗi không mong muốn. Vui lòng thử lại.",
	},
}

// CategoryOf returns the user-facing category of err.
func CategoryOf(err error) string {
	if err == nil {
		return ""
	}
	var c Categorized
	if errors.As(err, &c) {
		return c.Category()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return CategoryCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	}
	return CategoryUnknown
}

// UserMessage maps any failure to a short localized message. Raw provider
// payloads never reach the user; they are logged by the caller instead.
func UserMessage(err error, lang string) string {
	if err == nil {
		return ""
	}
	return MessageFor(CategoryOf(err), lang)
}

// MessageFor returns the localized text for a category, falling back to English.
func MessageFor(category, lang string) string {
	table, ok := messages[lang]
	if !ok {
		table = messages["en"]
	}
	if msg, ok := table[category]; ok {
		return msg
	}
	return table[CategoryUnknown]
}

// ErrorResponse builds the error body returned to API clients.
func ErrorResponse(err error, lang string) map[string]interface{} {
	category := CategoryOf(err)
	resp := map[string]interface{}{
		"error":    category,
		"message":  MessageFor(category, lang),
		"category": category,
	}
	switch category {
	case CategoryNetwork, CategoryExhausted, CategoryEmptyResponse, CategoryMalformedOutput, CategoryTimeout:
		resp["retry_recommended"] = true
	case CategoryQuota:
		resp["retry_after"] = "30-60 seconds"
	case CategoryFatal:
		resp["action_required"] = "check_api_key"
	}
	return resp
}

package worker

import (
	"strings"

	"github.com/matejnovak/govsicrawl/internal/fetcher"
	"github.com/matejnovak/govsicrawl/internal/store"
)

// classifyContentType maps an HTTP Content-Type header to the page_data
// type it should be persisted under, mirroring the dispatch table in the
// worker's content-type step: HTML is handled separately by the caller,
// images become ImageData, recognized document types become PageData
// under MAX_BINARY_TABLE_SIZE, and anything else is stored as an opaque
// BINARY page with no payload.
func classifyContentType(contentType string) (isHTML bool, isImage bool, dataType store.DataTypeCode, recognized bool) {
	ct := strings.ToLower(contentType)

	if fetcher.IsHTMLContent(ct) {
		return true, false, "", false
	}
	if strings.HasPrefix(ct, "image/") {
		return false, true, "", false
	}

	switch {
	case strings.Contains(ct, "application/pdf"):
		return false, false, store.DataTypePDF, true
	case strings.Contains(ct, "application/vnd.openxmlformats-officedocument.wordprocessingml"):
		return false, false, store.DataTypeDOCX, true
	case strings.Contains(ct, "application/msword"):
		return false, false, store.DataTypeDOC, true
	case strings.Contains(ct, "application/vnd.openxmlformats-officedocument.presentationml"):
		return false, false, store.DataTypePPTX, true
	case strings.Contains(ct, "application/vnd.ms-powerpoint"):
		return false, false, store.DataTypePPT, true
	default:
		return false, false, store.DataTypeOther, false
	}
}

package fetcher

import (
	"context"
	"net/http"
	"net/url"

	"github.com/matejnovak/govsicrawl/pkg/failure"
	"github.com/matejnovak/govsicrawl/pkg/retry"
)

type Fetcher interface {
	Init(httpClient *http.Client, userAgent string)
	Fetch(
		ctx context.Context,
		crawlDepth int,
		fetchURL url.URL,
		retryParam retry.RetryParam,
	) (FetchResult, failure.ClassifiedError)
}

// Package managerlogging adds logging hooks to the S3 clients used by manager.Downloader.
package managerlogging

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
)

// LoggingDownloadAPIClient provides pre- and post- hooks on the methods that manager.Downloader may call.
//
// The hooks may be called from any of the goroutines that manager.Downloader uses to download parts in parallel.
type LoggingDownloadAPIClient struct {
	manager.DownloadAPIClient
	PreGetObject  func(context.Context, *s3.GetObjectInput, ...func(*s3.Options))
	PostGetObject func(*s3.GetObjectInput, *s3.GetObjectOutput, error)
}

// WrapDownloadAPIClient wraps the specified manager.DownloadAPIClient as a LoggingDownloadAPIClient.
func WrapDownloadAPIClient(client manager.DownloadAPIClient, optFns ...func(*LoggingDownloadAPIClient)) *LoggingDownloadAPIClient {
	w := &LoggingDownloadAPIClient{DownloadAPIClient: client}
	for _, fn := range optFns {
		fn(w)
	}

	return w
}

// LogRangedGets creates a manager.Downloader option that logs every successful ranged GetObject.
//
// The log messages will be in this format: `got bytes=%d-%d (%s), %d requests so far`.
func LogRangedGets(logger *log.Logger) func(*manager.Downloader) {
	return func(downloader *manager.Downloader) {
		client := &LoggingDownloadAPIClient{DownloadAPIClient: downloader.S3}
		var post func(*s3.GetObjectInput, *s3.GetObjectOutput, error)
		if v, ok := downloader.S3.(*LoggingDownloadAPIClient); ok {
			client.DownloadAPIClient = v.DownloadAPIClient
			client.PreGetObject = v.PreGetObject
			post = v.PostGetObject
		}
		downloader.S3 = client

		var n atomic.Int32
		client.PostGetObject = func(input *s3.GetObjectInput, output *s3.GetObjectOutput, err error) {
			if post != nil {
				post(input, output, err)
			}
			if err != nil {
				return
			}

			rangeBytes := aws.ToString(input.Range)
			if rangeBytes == "" {
				rangeBytes = "bytes=0-"
			}

			logger.Printf("got %s (%s), %d requests so far", rangeBytes, humanize.IBytes(uint64(rangeSize(rangeBytes, output))), n.Add(1))
		}
	}
}

// rangeSize returns the number of bytes described by a "bytes=a-b" value, falling back to the output's
// ContentLength for open-ended ranges.
func rangeSize(rangeBytes string, output *s3.GetObjectOutput) int64 {
	first, last, ok := strings.Cut(strings.TrimPrefix(rangeBytes, "bytes="), "-")
	if ok {
		i, err1 := strconv.ParseInt(first, 10, 64)
		j, err2 := strconv.ParseInt(last, 10, 64)
		if err1 == nil && err2 == nil && j >= i {
			return j - i + 1
		}
	}

	if output != nil {
		return max(aws.ToInt64(output.ContentLength), 0)
	}

	return 0
}

func (l LoggingDownloadAPIClient) GetObject(ctx context.Context, input *s3.GetObjectInput, f ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if l.PreGetObject != nil {
		l.PreGetObject(ctx, input, f...)
	}
	o, err := l.DownloadAPIClient.GetObject(ctx, input, f...)
	if l.PostGetObject != nil {
		l.PostGetObject(input, o, err)
	}
	return o, err
}

var _ manager.DownloadAPIClient = LoggingDownloadAPIClient{}
var _ manager.DownloadAPIClient = &LoggingDownloadAPIClient{}

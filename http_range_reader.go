package ptiff

import (
	"fmt"
	"io"
	"sync"

	"github.com/valyala/fasthttp"
)

// Default read-ahead buffer size (64KB); directory reads and small tiles are
// served from one request
const defaultReadAheadSize = 64 * 1024

// HTTPRangeReader implements io.ReaderAt over HTTP range requests, so a
// remote container can be read without downloading it.
type HTTPRangeReader struct {
	url    string
	client *fasthttp.Client
	size   int64
	mu     sync.Mutex

	// Read-ahead buffer for sequential access optimization
	buffer        []byte
	bufferStart   int64 // Start position of buffer in file
	readAheadSize int
}

// NewHTTPRangeReader creates a reader for url and fetches its size.
func NewHTTPRangeReader(url string, client *fasthttp.Client) (*HTTPRangeReader, error) {
	if client == nil {
		client = &fasthttp.Client{}
	}
	rr := &HTTPRangeReader{
		url:           url,
		client:        client,
		readAheadSize: defaultReadAheadSize,
		bufferStart:   -1,
	}
	size, err := rr.getSize()
	if err != nil {
		return nil, err
	}
	rr.size = size
	return rr, nil
}

// SetReadAheadSize sets the read-ahead buffer size
func (rr *HTTPRangeReader) SetReadAheadSize(size int) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if size > 0 {
		rr.readAheadSize = size
	}
}

// getSize gets the file size using HEAD request
func (rr *HTTPRangeReader) getSize() (int64, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rr.url)
	req.Header.SetMethod(fasthttp.MethodHead)

	if err := rr.client.Do(req, resp); err != nil {
		return 0, ioError("fetch size of "+rr.url, err)
	}
	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusNotFound:
		return 0, fmt.Errorf("%w: %s", ErrNotFound, rr.url)
	case status < 200 || status > 299:
		return 0, ioError("fetch size of "+rr.url, fmt.Errorf("unexpected status code: %d", status))
	}

	contentLength := resp.Header.ContentLength()
	if contentLength < 0 {
		return 0, ioError("fetch size of "+rr.url, fmt.Errorf("server did not report a content length"))
	}
	return int64(contentLength), nil
}

// ReadAt reads len(p) bytes at off. Requests smaller than the read-ahead
// size fetch a full read-ahead window and keep it for the next call.
func (rr *HTTPRangeReader) ReadAt(p []byte, off int64) (int, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if off < 0 {
		return 0, fmt.Errorf("negative offset: %d", off)
	}
	if off >= rr.size {
		return 0, io.EOF
	}
	want := min(int64(len(p)), rr.size-off)

	if rr.bufferStart >= 0 && off >= rr.bufferStart && off+want <= rr.bufferStart+int64(len(rr.buffer)) {
		n := copy(p[:want], rr.buffer[off-rr.bufferStart:])
		return rr.result(n, len(p))
	}

	fetch := max(want, int64(rr.readAheadSize))
	fetch = min(fetch, rr.size-off)
	data, err := rr.fetchRange(off, off+fetch-1)
	if err != nil {
		return 0, err
	}
	if int64(len(data)) > want {
		rr.buffer = data
		rr.bufferStart = off
	}
	n := copy(p[:want], data)
	return rr.result(n, len(p))
}

func (rr *HTTPRangeReader) result(n, want int) (int, error) {
	if n < want {
		return n, io.EOF
	}
	return n, nil
}

// fetchRange fetches a byte range from the server
func (rr *HTTPRangeReader) fetchRange(start, end int64) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rr.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	if err := rr.client.Do(req, resp); err != nil {
		return nil, ioError(fmt.Sprintf("fetch bytes %d-%d", start, end), err)
	}

	statusCode := resp.StatusCode()
	switch statusCode {
	case fasthttp.StatusPartialContent:
	case fasthttp.StatusOK:
		// server ignored the range
		body := resp.Body()
		if int64(len(body)) <= start {
			return nil, nil
		}
		body = body[start:min(int64(len(body)), end+1)]
		return append([]byte(nil), body...), nil
	default:
		return nil, ioError(fmt.Sprintf("fetch bytes %d-%d", start, end), fmt.Errorf("unexpected status code: %d", statusCode))
	}

	// Copy body since response will be released
	return append([]byte(nil), resp.Body()...), nil
}

// ClearBuffer clears the read-ahead buffer to free memory
func (rr *HTTPRangeReader) ClearBuffer() {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.buffer = nil
	rr.bufferStart = -1
}

// Size returns the size of the remote file.
func (rr *HTTPRangeReader) Size() int64 {
	return rr.size
}

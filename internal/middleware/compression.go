// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

// compressionThreshold is the minimum body size worth compressing.
// Small payloads gain nothing and pay the CPU cost.
const compressionThreshold = 1024

var gzipPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	},
}

type gzipResponseWriter struct {
	http.ResponseWriter
	gz          *gzip.Writer
	buf         []byte
	status      int
	wroteHeader bool
	compressing bool
}

func (grw *gzipResponseWriter) WriteHeader(code int) {
	if grw.wroteHeader {
		return
	}
	grw.status = code
	grw.wroteHeader = true
}

func (grw *gzipResponseWriter) Write(b []byte) (int, error) {
	if !grw.wroteHeader {
		grw.WriteHeader(http.StatusOK)
	}
	if grw.compressing {
		return grw.gz.Write(b)
	}

	grw.buf = append(grw.buf, b...)
	if len(grw.buf) >= compressionThreshold {
		grw.startCompression()
	}
	return len(b), nil
}

func (grw *gzipResponseWriter) startCompression() {
	grw.Header().Set("Content-Encoding", "gzip")
	grw.Header().Del("Content-Length")
	grw.ResponseWriter.WriteHeader(grw.status)

	grw.gz.Reset(grw.ResponseWriter)
	grw.compressing = true
	if len(grw.buf) > 0 {
		grw.gz.Write(grw.buf)
		grw.buf = nil
	}
}

// finish flushes buffered data, uncompressed when under the threshold.
func (grw *gzipResponseWriter) finish() error {
	if grw.compressing {
		return grw.gz.Close()
	}
	if !grw.wroteHeader {
		return nil
	}
	grw.ResponseWriter.WriteHeader(grw.status)
	if len(grw.buf) > 0 {
		_, err := grw.ResponseWriter.Write(grw.buf)
		return err
	}
	return nil
}

// Compression gzips responses above a size threshold for clients that
// accept it. Already-encoded responses pass through untouched.
func Compression(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		gz := gzipPool.Get().(*gzip.Writer)
		defer gzipPool.Put(gz)

		grw := &gzipResponseWriter{ResponseWriter: w, gz: gz}
		next.ServeHTTP(grw, r)
		grw.finish()
	})
}

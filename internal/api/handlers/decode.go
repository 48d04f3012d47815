package handlers

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// decodeJSONOrGzip parses a request body as JSON, transparently
// decompressing it first when Content-Encoding: gzip is set -- the
// "JSON or gzip-compressed JSON" admission contract for POST /analysis
// and POST /data/load/{resource_id}.
func decodeJSONOrGzip(r *http.Request, v interface{}) error {
	body := r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			return fmt.Errorf("invalid gzip body: %w", err)
		}
		defer gz.Close()
		body = gz
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if err == io.EOF {
			return fmt.Errorf("empty request body")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

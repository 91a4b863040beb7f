package httpproto

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	statusOK             = "HTTP/1.0 200 OK\r\n"
	statusBadRequest     = "HTTP/1.0 400 Bad Request\r\n"
	statusNotFound       = "HTTP/1.0 404 Not Found\r\n"
	statusMethodNotAllow = "HTTP/1.0 405 Method Not Allowed\r\nAllow: GET, HEAD\r\n"

	notFoundBody = "<p>404 NOT FOUND</p>"
)

var contentTypes = map[string]string{
	".txt":  "text/plain",
	".js":   "text/javascript",
	".css":  "text/css",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".html": "text/html",
}

// contentTypeFor maps the extension after the last "." in target to its
// MIME type, defaulting to text/html for an unknown or missing
// extension, per spec.md §4.6.
func contentTypeFor(target string) string {
	if ct, ok := contentTypes[filepath.Ext(target)]; ok {
		return ct
	}
	return "text/html"
}

// ResolvePath joins target onto docRoot. "/" is rewritten to
// "/index.html" first. No ".." cleaning is performed, matching the
// documented lack of traversal prevention in spec.md §6 — this is a
// plain string join, not filepath.Join, which would otherwise collapse
// ".." segments.
func ResolvePath(docRoot, target string) string {
	if target == "/" {
		target = "/index.html"
	}
	return strings.TrimSuffix(docRoot, "/") + target
}

// ServeGetOrHead implements the GET/HEAD branches of spec.md §4.3's
// Dispatching state and the three emission modes of §4.6. A missing
// file produces the 404 response regardless of method.
func ServeGetOrHead(w io.Writer, docRoot string, target string, headOnly bool) error {
	path := ResolvePath(docRoot, target)

	if !headOnly && isImage(target) {
		if err := streamFile(w, statusOK, contentTypeFor(target), path); err != nil {
			if os.IsNotExist(err) {
				return writeBuffered(w, statusNotFound, "text/html", []byte(notFoundBody))
			}
			return err
		}
		return nil
	}

	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return writeBuffered(w, statusNotFound, "text/html", []byte(notFoundBody))
		}
		return err
	}

	ct := contentTypeFor(target)
	if headOnly {
		return writeHeadOnly(w, statusOK, ct, len(body))
	}
	return writeBuffered(w, statusOK, ct, body)
}

// Serve400 implements spec.md §4.3's "substitute the canonical path
// /400.txt and proceed to §4.6 with a 400 status line": the worker
// looks the path up exactly like a GET, but the status line is forced
// to 400 regardless of whether the file is found.
func Serve400(w io.Writer, docRoot string) error {
	path := ResolvePath(docRoot, "/400.txt")

	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return writeBuffered(w, statusBadRequest, "text/html", []byte(notFoundBody))
		}
		return err
	}
	return writeBuffered(w, statusBadRequest, contentTypeFor("/400.txt"), body)
}

// Serve405 emits the fixed 405 response spec.md §4.6/§8 require:
// status line plus Allow header, no body.
func Serve405(w io.Writer) error {
	_, err := io.WriteString(w, statusMethodNotAllow+"\r\n")
	return err
}

func writeBuffered(w io.Writer, status, contentType string, body []byte) error {
	var buf bytes.Buffer
	buf.WriteString(status)
	buf.WriteString("Content-Type: " + contentType + "\r\n")
	buf.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")
	buf.WriteString("\r\n")
	buf.Write(body)
	buf.WriteString("\r\n")
	_, err := w.Write(buf.Bytes())
	return err
}

func writeHeadOnly(w io.Writer, status, contentType string, bodyLen int) error {
	var buf bytes.Buffer
	buf.WriteString(status)
	buf.WriteString("Content-Type: " + contentType + "\r\n")
	buf.WriteString("Content-Length: " + strconv.Itoa(bodyLen) + "\r\n")
	buf.WriteString("\r\n")
	_, err := w.Write(buf.Bytes())
	return err
}

func streamFile(w io.Writer, status, contentType, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	var hdr bytes.Buffer
	hdr.WriteString(status)
	hdr.WriteString("Content-Type: " + contentType + "\r\n")
	hdr.WriteString("Content-Length: " + strconv.FormatInt(info.Size(), 10) + "\r\n")
	hdr.WriteString("\r\n")
	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}

	_, err = io.Copy(w, f)
	return err
}

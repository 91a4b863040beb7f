package httpproto

import (
	"bytes"
	"errors"
	"strings"

	"github.com/cuemby/relayd/pkg/types"
)

// ErrMalformed is returned by ParseRequest when the buffer does not
// conform to the request-line/header shape spec.md §4.4 requires.
var ErrMalformed = errors.New("httpproto: malformed request")

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}

var knownMethods = map[types.Method]bool{
	types.MethodGET:     true,
	types.MethodHEAD:    true,
	types.MethodPOST:    true,
	types.MethodPUT:     true,
	types.MethodDELETE:  true,
	types.MethodCONNECT: true,
	types.MethodOPTIONS: true,
	types.MethodTRACE:   true,
	types.MethodPATCH:   true,
}

// ParseRequest validates and extracts a Request from the first read off
// a client socket, per spec.md §4.4:
//
//  1. the method token ends at the first space, is <= 8 bytes, and is
//     one of the closed set of methods;
//  2. the request line is "METHOD SP target SP HTTP/X.Y CRLF", target
//     non-empty and starting with "/", protocol starting with "HTTP/";
//  3. every header line contains a colon and ends with CRLF;
//  4. the headers terminate with a blank CRLF within the buffer.
func ParseRequest(raw []byte) (*types.Request, error) {
	lineEnd := bytes.Index(raw, []byte("\r\n"))
	if lineEnd < 0 {
		return nil, ErrMalformed
	}

	fields := bytes.SplitN(raw[:lineEnd], []byte(" "), 3)
	if len(fields) != 3 {
		return nil, ErrMalformed
	}

	methodTok := string(fields[0])
	if len(methodTok) == 0 || len(methodTok) > 8 {
		return nil, ErrMalformed
	}
	method := types.Method(methodTok)
	if !knownMethods[method] {
		return nil, ErrMalformed
	}

	target := string(fields[1])
	if target == "" || !strings.HasPrefix(target, "/") || len(target) > 1024 {
		return nil, ErrMalformed
	}

	protocol := string(fields[2])
	if !strings.HasPrefix(protocol, "HTTP/") {
		return nil, ErrMalformed
	}

	blankIdx := bytes.Index(raw, []byte("\r\n\r\n"))
	if blankIdx < 0 {
		return nil, ErrMalformed
	}

	headerBlock := raw[lineEnd+2 : blankIdx]
	if len(headerBlock) > 0 {
		for _, line := range bytes.Split(headerBlock, []byte("\r\n")) {
			if len(line) == 0 {
				continue
			}
			if !bytes.Contains(line, []byte(":")) {
				return nil, ErrMalformed
			}
		}
	}

	return &types.Request{
		Method:   method,
		Target:   target,
		Protocol: protocol,
		IsImage:  isImage(target),
		Raw:      raw,
	}, nil
}

// isImage reports whether target ends in a recognized image extension,
// matched case-sensitively per spec.md §4.4.
func isImage(target string) bool {
	for _, ext := range imageExtensions {
		if strings.HasSuffix(target, ext) {
			return true
		}
	}
	return false
}

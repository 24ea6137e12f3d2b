// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	downloadFilename    = "ghibli-image.png"
	downloadTimeout     = 30 * time.Second
	maxDownloadBytes    = 32 << 20
	defaultDownloadType = "image/png"
)

// errInternalAddress is returned by the default download client when a
// URL resolves to an address outside the public internet.
var errInternalAddress = errors.New("download: destination address is not public")

// nonPublicPrefixes are routable-looking ranges that still never lead to
// a provider CDN.
var nonPublicPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("64:ff9b::/96"),
}

// ObjectStore fetches objects the service stored itself. Results uploaded
// to the public bucket are read through it instead of over the network.
type ObjectStore interface {
	ExtractKey(rawURL string) (string, bool)
	Download(ctx context.Context, key string) ([]byte, string, error)
}

// Download proxies a generated image so browsers save it as a file.
type Download struct {
	client  *http.Client
	objects ObjectStore
}

// NewDownload creates the download proxy. objects may be nil when storage
// is not configured. A nil client selects one that only connects to public
// addresses.
func NewDownload(client *http.Client, objects ObjectStore) *Download {
	if client == nil {
		client = newPublicClient()
	}
	return &Download{client: client, objects: objects}
}

// newPublicClient returns an HTTP client whose dialer refuses loopback,
// private, link-local and other internal addresses. The check runs on the
// resolved address, so it also covers DNS names and redirects.
func newPublicClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: refuseInternal,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{Timeout: downloadTimeout, Transport: transport}
}

func refuseInternal(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil || !isPublicAddr(ip) {
		return errInternalAddress
	}
	return nil
}

func isPublicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	if !ip.IsGlobalUnicast() || ip.IsPrivate() {
		return false
	}
	for _, p := range nonPublicPrefixes {
		if p.Contains(ip) {
			return false
		}
	}
	return true
}

// ServeHTTP handles GET /api/download?url=. data: URLs are decoded in
// place; http(s) URLs are fetched and streamed through.
func (d *Download) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "Missing url parameter")
		return
	}

	if strings.HasPrefix(raw, "data:") {
		data, ctype, err := decodeDataURL(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid data URL")
			return
		}
		writeAttachment(w, ctype, data)
		return
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusBadRequest, "Unsupported url")
		return
	}

	if d.objects != nil {
		if key, ok := d.objects.ExtractKey(raw); ok {
			data, ctype, err := d.objects.Download(r.Context(), key)
			if err != nil {
				slog.Warn("download from storage failed", "key", key, "error", err)
				writeError(w, http.StatusBadGateway, "Failed to fetch image")
				return
			}
			writeAttachment(w, ctype, data)
			return
		}
	}

	d.proxy(w, r, u.String())
}

func (d *Download) proxy(w http.ResponseWriter, r *http.Request, target string) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unsupported url")
		return
	}

	resp, err := d.client.Do(req)
	if errors.Is(err, errInternalAddress) {
		slog.Warn("download refused internal address", "url", target)
		writeError(w, http.StatusBadRequest, "Unsupported url")
		return
	}
	if err != nil {
		slog.Warn("download fetch failed", "url", target, "error", err)
		writeError(w, http.StatusBadGateway, "Failed to fetch image")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("download upstream status", "url", target, "status", resp.StatusCode)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("Failed to fetch image (status %d)", resp.StatusCode))
		return
	}

	ctype := resp.Header.Get("Content-Type")
	if ctype == "" {
		ctype = defaultDownloadType
	}
	setAttachmentHeaders(w, ctype)
	if resp.ContentLength > 0 && resp.ContentLength <= maxDownloadBytes {
		w.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, io.LimitReader(resp.Body, maxDownloadBytes)); err != nil {
		slog.Warn("download stream interrupted", "url", target, "error", err)
	}
}

// decodeDataURL parses a base64 data URL into its bytes and MIME type.
func decodeDataURL(raw string) ([]byte, string, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return nil, "", errors.New("data url: missing payload")
	}
	ctype, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", errors.New("data url: only base64 payloads are supported")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("data url: %w", err)
	}
	if ctype == "" {
		ctype = defaultDownloadType
	}
	return data, ctype, nil
}

func setAttachmentHeaders(w http.ResponseWriter, ctype string) {
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", `attachment; filename="`+downloadFilename+`"`)
}

func writeAttachment(w http.ResponseWriter, ctype string, data []byte) {
	if ctype == "" {
		ctype = defaultDownloadType
	}
	setAttachmentHeaders(w, ctype)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

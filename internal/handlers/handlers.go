// Package handlers provides HTTP request handlers for the control API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/proxydl/internal/auth"
	"github.com/Rorqualx/proxydl/internal/config"
	"github.com/Rorqualx/proxydl/internal/download"
	"github.com/Rorqualx/proxydl/internal/files"
	"github.com/Rorqualx/proxydl/internal/metrics"
	"github.com/Rorqualx/proxydl/internal/navigator"
	"github.com/Rorqualx/proxydl/internal/report"
	"github.com/Rorqualx/proxydl/internal/security"
	"github.com/Rorqualx/proxydl/internal/session"
	"github.com/Rorqualx/proxydl/internal/types"
	"github.com/Rorqualx/proxydl/pkg/version"
)

// maxBodySize limits request bodies to prevent memory exhaustion.
const maxBodySize = 1 << 20 // 1MB

// Handler handles all control API requests.
type Handler struct {
	sessions   *session.Manager
	navigator  *navigator.Navigator
	downloader *download.Downloader
	config     *config.Config
}

// New creates a new Handler.
func New(sessions *session.Manager, cfg *config.Config, r report.Reporter) *Handler {
	return &Handler{
		sessions:   sessions,
		navigator:  navigator.New(r),
		downloader: download.New(r),
		config:     cfg,
	}
}

// ServeHTTP handles incoming requests (implements http.Handler).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	switch r.URL.Path {
	case "/health":
		if r.Method != http.MethodGet {
			h.writeErrorWithStatus(w, http.StatusMethodNotAllowed, "Method not allowed", startTime)
			return
		}
		h.handleHealth(w, startTime)
	case "/", "/v1":
		if r.Method != http.MethodPost {
			h.writeErrorWithStatus(w, http.StatusMethodNotAllowed, "Method not allowed", startTime)
			return
		}
		h.handleAPI(w, r, startTime)
	default:
		h.writeErrorWithStatus(w, http.StatusNotFound, "Not found", startTime)
	}
}

func (h *Handler) handleAPI(w http.ResponseWriter, r *http.Request, startTime time.Time) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	// Parse request using pooled buffer to reduce GC pressure
	buf := getBuffer()
	defer putBuffer(buf)

	if _, err := io.Copy(buf, r.Body); err != nil {
		log.Warn().Err(err).Msg("Failed to read request body")
		h.writeErrorWithStatus(w, http.StatusBadRequest, "Failed to read request", startTime)
		return
	}

	var req types.Request
	if err := json.Unmarshal(buf.Bytes(), &req); err != nil {
		log.Warn().Err(err).Msg("Failed to decode request")
		h.writeErrorWithStatus(w, http.StatusBadRequest, "Invalid JSON request", startTime)
		return
	}

	if err := req.Validate(); err != nil {
		h.writeErrorWithStatus(w, http.StatusBadRequest, err.Error(), startTime)
		return
	}

	log.Info().
		Str("cmd", req.Cmd).
		Str("url", security.RedactURL(req.URL)).
		Str("session", req.Session).
		Msg("Request received")

	resp, err := h.routeCommand(r.Context(), &req)
	status := types.StatusOK
	if err != nil {
		status = types.StatusError
	}
	metrics.RecordRequest(req.Cmd, status, time.Since(startTime))

	if err != nil {
		log.Warn().Err(err).Str("cmd", req.Cmd).Str("session", req.Session).Msg("Command failed")
		h.writeErrorWithStatus(w, statusFor(err), err.Error(), startTime)
		return
	}

	resp.Status = types.StatusOK
	resp.StartTime = startTime.UnixMilli()
	resp.EndTime = time.Now().UnixMilli()
	resp.Version = version.Full()
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// statusFor maps command errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrSessionAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, types.ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, types.ErrInvalidRequest),
		errors.Is(err, types.ErrUnsupportedAuthScheme),
		errors.Is(err, types.ErrUnsupportedAuthWithoutProxy),
		errors.Is(err, types.ErrClickUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNoFilesDownloaded):
		return http.StatusGatewayTimeout
	case errors.Is(err, types.ErrNavigationFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrProxyNotEnabled),
		errors.Is(err, types.ErrProxyNotStarted),
		errors.Is(err, types.ErrProxyRequiredButDisabled),
		errors.Is(err, types.ErrDownloadFilterNotActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleHealth returns service health information.
func (h *Handler) handleHealth(w http.ResponseWriter, startTime time.Time) {
	resp := types.Response{
		Status:    types.StatusOK,
		Message:   "proxydl is ready",
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

func (h *Handler) handleSessionCreate(ctx context.Context, req *types.Request) (types.Response, error) {
	sess, err := h.sessions.Create(ctx, req.Session)
	if err != nil {
		return types.Response{}, err
	}
	return types.Response{Message: "Session created successfully", Session: sess.ID}, nil
}

func (h *Handler) handleSessionList() (types.Response, error) {
	infos := h.sessions.Infos()
	out := make([]types.SessionInfo, 0, len(infos))
	for _, i := range infos {
		out = append(out, types.SessionInfo{
			ID:        i.ID,
			CreatedAt: i.CreatedAt.UnixMilli(),
			LastUsed:  i.LastUsed.UnixMilli(),
			ProxyAddr: i.ProxyAddr,
			Downloads: i.Downloads,
		})
	}
	return types.Response{Message: "Session list retrieved", Sessions: out}, nil
}

func (h *Handler) handleSessionDestroy(req *types.Request) (types.Response, error) {
	if err := h.sessions.Destroy(req.Session); err != nil {
		return types.Response{}, err
	}
	return types.Response{Message: "Session destroyed successfully", Session: req.Session}, nil
}

func (h *Handler) handlePageOpen(ctx context.Context, sess *session.Session, req *types.Request) (types.Response, error) {
	err := sess.Do(func() error {
		switch {
		case req.Auth != nil:
			creds, err := credentials(req.Auth)
			if err != nil {
				return err
			}
			return h.navigator.OpenWithAuth(ctx, sess, req.URL, creds)
		case req.URL == "":
			return h.navigator.OpenBlank(ctx, sess)
		default:
			return h.navigator.Open(ctx, sess, req.URL)
		}
	})
	if err != nil {
		return types.Response{}, err
	}
	return types.Response{Message: "Page opened", Session: sess.ID}, nil
}

func credentials(a *types.Auth) (auth.Credentials, error) {
	scheme := auth.Basic
	if a.Scheme != "" {
		s, err := auth.ParseScheme(a.Scheme)
		if err != nil {
			return auth.Credentials{}, err
		}
		scheme = s
	}
	return auth.Credentials{Scheme: scheme, Domain: a.Domain, Login: a.Login, Secret: a.Secret}, nil
}

func (h *Handler) handleHistory(ctx context.Context, sess *session.Session, cmd string) (types.Response, error) {
	err := sess.Do(func() error {
		switch cmd {
		case types.CmdPageBack:
			return h.navigator.Back(ctx, sess)
		case types.CmdPageForward:
			return h.navigator.Forward(ctx, sess)
		default:
			return h.navigator.Refresh(ctx, sess)
		}
	})
	if err != nil {
		return types.Response{}, err
	}
	return types.Response{Message: "Navigation completed", Session: sess.ID}, nil
}

func (h *Handler) handleFileDownload(ctx context.Context, sess *session.Session, req *types.Request) (types.Response, error) {
	filter, err := parseFilter(req.Filter)
	if err != nil {
		return types.Response{}, err
	}

	label := req.Selector
	action := download.Click(req.Selector)
	if req.URL != "" {
		target := navigator.Resolve(h.config.BaseURL, req.URL)
		label = security.RedactURL(target)
		action = download.Navigate(target)
	}

	var file *files.DownloadedFile
	err = sess.Do(func() error {
		var err error
		file, err = h.downloader.Download(ctx, sess, label, action, req.Timeout(h.config.Timeout), filter)
		return err
	})
	if err != nil {
		return types.Response{}, err
	}

	f := toFile(file)
	return types.Response{Message: "File downloaded", Session: sess.ID, File: &f}, nil
}

func (h *Handler) handleDownloadsList(sess *session.Session, req *types.Request) (types.Response, error) {
	filter, err := parseFilter(req.Filter)
	if err != nil {
		return types.Response{}, err
	}
	p := sess.Proxy()
	if p == nil {
		return types.Response{}, types.ErrProxyNotEnabled
	}
	df := p.DownloadFilter()
	if df == nil {
		return types.Response{}, types.ErrDownloadFilterNotActive
	}

	matched := df.Downloads().Files(filter)
	out := make([]types.File, 0, len(matched))
	for _, f := range matched {
		out = append(out, toFile(f))
	}
	return types.Response{Message: "Downloads retrieved", Session: sess.ID, Downloads: out}, nil
}

func parseFilter(expr string) (files.Filter, error) {
	if expr == "" {
		return files.None(), nil
	}
	f, err := files.Parse(expr)
	if err != nil {
		return nil, errors.Join(types.ErrInvalidRequest, err)
	}
	return f, nil
}

func toFile(f *files.DownloadedFile) types.File {
	return types.File{
		ID:          f.ID.String(),
		URL:         security.RedactURL(f.URL),
		FileName:    f.FileName,
		ContentType: f.ContentType,
		Size:        f.Size,
		Path:        f.Path,
		Timestamp:   f.Timestamp.UnixMilli(),
	}
}

// writeErrorWithStatus writes an error response with a specific HTTP status code.
func (h *Handler) writeErrorWithStatus(w http.ResponseWriter, statusCode int, message string, startTime time.Time) {
	resp := types.Response{
		Status:    types.StatusError,
		Message:   message,
		StartTime: startTime.UnixMilli(),
		EndTime:   time.Now().UnixMilli(),
		Version:   version.Full(),
	}
	h.writeJSONResponse(w, statusCode, resp)
}

// writeJSONResponse buffers JSON before writing to ensure encoding errors are caught
// before headers are sent.
func (h *Handler) writeJSONResponse(w http.ResponseWriter, statusCode int, resp interface{}) {
	buf := getResponseBuffer()
	defer putResponseBuffer(buf)

	if err := json.NewEncoder(buf).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","message":"internal encoding error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

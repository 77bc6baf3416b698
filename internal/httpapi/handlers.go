package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/sanshiro-tv/tunerd/internal/apperr"
	"github.com/sanshiro-tv/tunerd/internal/filter"
	"github.com/sanshiro-tv/tunerd/internal/models"
	"github.com/sanshiro-tv/tunerd/internal/stream"
	"github.com/sanshiro-tv/tunerd/internal/timeshift"
	"github.com/sanshiro-tv/tunerd/internal/tuner"
)

// subscriberCapacity bounds each live/record reader's lossy delivery
// channel at 32 chunks, twice broadcaster.DefaultSubscriberCapacity.
const subscriberCapacity = 32

// TunerHandler serves the small tuner-inventory surface: GET /api/version
// and GET /api/tuners.
type TunerHandler struct {
	manager *tuner.Manager
	version string
}

// NewTunerHandler builds a TunerHandler over manager, reporting version in
// GET /api/version's response body.
func NewTunerHandler(manager *tuner.Manager, version string) *TunerHandler {
	return &TunerHandler{manager: manager, version: version}
}

// VersionInput is the (empty) input for GET /api/version.
type VersionInput struct{}

// TunersInput is the (empty) input for GET /api/tuners.
type TunersInput struct{}

// VersionOutput is the body of GET /api/version.
type VersionOutput struct {
	Body struct {
		Version string `json:"version"`
	}
}

// TunersOutput is the body of GET /api/tuners.
type TunersOutput struct {
	Body []models.MirakurunTuner `json:"tuners"`
}

// Register registers the documentation-only JSON operations with api.
func (h *TunerHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getVersion",
		Method:      "GET",
		Path:        "/api/version",
		Summary:     "Server version",
		Tags:        []string{"System"},
	}, h.GetVersion)

	huma.Register(api, huma.Operation{
		OperationID: "listTuners",
		Method:      "GET",
		Path:        "/api/tuners",
		Summary:     "List configured tuners and their current state",
		Tags:        []string{"Tuners"},
	}, h.ListTuners)
}

// GetVersion implements GET /api/version.
func (h *TunerHandler) GetVersion(ctx context.Context, input *VersionInput) (*VersionOutput, error) {
	out := &VersionOutput{}
	out.Body.Version = h.version
	return out, nil
}

// ListTuners implements GET /api/tuners.
func (h *TunerHandler) ListTuners(ctx context.Context, input *TunersInput) (*TunersOutput, error) {
	out := &TunersOutput{}
	for _, t := range h.manager.Tuners() {
		out.Body = append(out.Body, tunerInfo(t))
	}
	return out, nil
}

func tunerInfo(t *tuner.Tuner) models.MirakurunTuner {
	types := make([]string, len(t.ChannelTypes))
	for i, ct := range t.ChannelTypes {
		types[i] = string(ct)
	}

	info := models.MirakurunTuner{
		Index:        t.Index,
		Name:         t.Name,
		ChannelTypes: types,
		IsAvailable:  true,
		IsRemote:     false,
		IsFree:       !t.IsActive(),
		IsUsing:      t.IsActive(),
		IsFault:      false,
	}

	session := t.Session()
	if session == nil {
		return info
	}

	cmd := session.Command
	info.Command = &cmd

	if pids := session.PIDs(); len(pids) > 0 {
		pid := int32(pids[0])
		info.PID = &pid
	}

	for _, u := range session.Users() {
		info.Users = append(info.Users, u.Info)
	}

	return info
}

// StreamHandler serves the raw MPEG-TS channel/service/program endpoints.
// Huma's response model commits headers before the body writer runs,
// which is incompatible with a long-lived, possibly-206 stream body, so
// these are registered as raw Chi handlers instead of Huma operations.
type StreamHandler struct {
	tunerManager *tuner.Manager
	decodeFilter filter.Spec
	preFilters   map[string]filter.Spec
	postFilters  map[string]filter.Spec
	logger       *slog.Logger
}

// NewStreamHandler builds a StreamHandler over tunerManager. decodeFilter is
// appended when a request asks for decode=1; preFilters and postFilters are
// name→Spec lookup tables for the pre-filters[]/post-filters[] query
// parameters, keyed by each Spec's configured Name.
func NewStreamHandler(tunerManager *tuner.Manager, decodeFilter filter.Spec, preFilters, postFilters []filter.Spec, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		tunerManager: tunerManager,
		decodeFilter: decodeFilter,
		preFilters:   specsByName(preFilters),
		postFilters:  specsByName(postFilters),
		logger:       logger,
	}
}

func specsByName(specs []filter.Spec) map[string]filter.Spec {
	out := make(map[string]filter.Spec, len(specs))
	for _, s := range specs {
		out[s.Name] = s
	}
	return out
}

// resolveFilters looks up each requested filter name against table,
// preserving request order and failing on an unconfigured name.
func resolveFilters(table map[string]filter.Spec, names []string) ([]filter.Spec, error) {
	specs := make([]filter.Spec, 0, len(names))
	for _, name := range names {
		spec, ok := table[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown filter %q", apperr.ErrInvalidFilter, name)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// RegisterChiRoutes registers the raw streaming routes on router.
func (h *StreamHandler) RegisterChiRoutes(router chi.Router) {
	router.Get("/api/channels/{type}/{channel}/stream", h.streamChannel)
	router.Get("/api/services/{id}/stream", h.streamUnresolvable(apperr.ErrServiceNotFound))
	router.Get("/api/programs/{id}/stream", h.streamUnresolvable(apperr.ErrProgramNotFound))
}

// streamUnresolvable always 404s: service/program id resolution needs an
// EPG feed, which this server does not collect — the handler shape
// (route, status code) is honored; the lookup behind it is not built.
func (h *StreamHandler) streamUnresolvable(err error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, err)
	}
}

// streamChannel implements GET /api/channels/{type}/{channel}/stream.
func (h *StreamHandler) streamChannel(w http.ResponseWriter, r *http.Request) {
	channel := models.Channel{
		Type:    models.ChannelType(chi.URLParam(r, "type")),
		Channel: chi.URLParam(r, "channel"),
	}
	if !channel.Type.Valid() {
		writeError(w, apperr.ErrChannelNotFound)
		return
	}

	fs, err := ParseFilterSetting(r.URL.RawQuery)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pre, err := resolveFilters(h.preFilters, fs.PreFilters)
	if err != nil {
		writeError(w, err)
		return
	}
	post, err := resolveFilters(h.postFilters, fs.PostFilters)
	if err != nil {
		writeError(w, err)
		return
	}

	specs := make([]filter.Spec, 0, len(pre)+len(post)+1)
	specs = append(specs, pre...)
	if fs.Decode {
		specs = append(specs, h.decodeFilter)
	}
	specs = append(specs, post...)

	result, err := filter.Build(filter.Context{
		ChannelType: string(channel.Type),
		Channel:     channel.Channel,
		Decode:      fs.Decode,
	}, specs)
	if err != nil {
		writeError(w, err)
		return
	}

	user := models.TunerUser{Info: models.NewWebUser(r.RemoteAddr, r.UserAgent()), Priority: 0}

	session, subID, err := h.tunerManager.StartStreaming(r.Context(), user, channel, "", result.Commands)
	if err != nil {
		writeError(w, err)
		return
	}

	sub := session.Broadcaster().Subscribe(subID.String())
	src := stream.New(sub.Chunks(), stream.NewStopStreamingTrigger(h.tunerManager, subID))
	defer src.Close()

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("x-mirakurun-tuner-user-id", subID.String())
	w.WriteHeader(http.StatusOK)
	copyStream(w, src, h.logger)
}

// TimeshiftHandler serves the /api/timeshift... query and streaming
// surface.
type TimeshiftHandler struct {
	manager *timeshift.Manager
	logger  *slog.Logger
}

// NewTimeshiftHandler builds a TimeshiftHandler over manager.
func NewTimeshiftHandler(manager *timeshift.Manager, logger *slog.Logger) *TimeshiftHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimeshiftHandler{manager: manager, logger: logger}
}

// RegisterChiRoutes registers the timeshift query and streaming routes.
// Query routes return JSON directly rather than through Huma because they
// share this handler's recorder-lookup helper with the raw streaming
// routes, and keeping both styles next to each other would only add
// indirection.
func (h *TimeshiftHandler) RegisterChiRoutes(router chi.Router) {
	router.Get("/api/timeshift", h.listRecorders)
	router.Get("/api/timeshift/{name}", h.getRecorder)
	router.Get("/api/timeshift/{name}/records", h.listRecords)
	router.Get("/api/timeshift/{name}/records/{id}", h.getRecord)
	router.Get("/api/timeshift/{name}/stream", h.streamLive)
	router.Get("/api/timeshift/{name}/records/{id}/stream", h.streamRecord)
}

func (h *TimeshiftHandler) listRecorders(w http.ResponseWriter, r *http.Request) {
	recs := h.manager.QueryRecorders()
	out := make([]recorderView, 0, len(recs))
	for i, rec := range recs {
		out = append(out, newRecorderView(i, rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *TimeshiftHandler) getRecorder(w http.ResponseWriter, r *http.Request) {
	rec, err := h.manager.QueryRecorder(timeshift.RecorderQuery{Name: chi.URLParam(r, "name")})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRecorderView(-1, rec))
}

func (h *TimeshiftHandler) listRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := h.manager.QueryRecords(timeshift.RecorderQuery{Name: chi.URLParam(r, "name")})
	if err != nil {
		writeError(w, err)
		return
	}
	if len(recs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *TimeshiftHandler) getRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.ErrRecordNotFound)
		return
	}
	rec, err := h.manager.QueryRecord(timeshift.RecorderQuery{Name: chi.URLParam(r, "name")}, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *TimeshiftHandler) streamLive(w http.ResponseWriter, r *http.Request) {
	reader, err := h.manager.CreateLiveStreamSource(timeshift.RecorderQuery{Name: chi.URLParam(r, "name")}, subscriberCapacity)
	if err != nil {
		writeError(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "video/mp2t")
	w.WriteHeader(http.StatusOK)
	copyStream(w, stream.New(reader.Chunks()), h.logger)
}

func (h *TimeshiftHandler) streamRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperr.ErrRecordNotFound)
		return
	}
	q := timeshift.RecorderQuery{Name: chi.URLParam(r, "name")}

	rec, err := h.manager.QueryRecord(q, id)
	if err != nil {
		writeError(w, err)
		return
	}

	startOffset, status, contentRange := resolveRange(r, rec)

	reader, err := h.manager.CreateRecordStreamSource(q, id, startOffset, subscriberCapacity)
	if err != nil {
		writeError(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Set("Accept-Ranges", "bytes")
	if contentRange != "" {
		w.Header().Set("Content-Range", contentRange)
	}
	w.WriteHeader(status)
	copyStream(w, stream.New(reader.Chunks()), h.logger)
}

// resolveRange interprets an optional "Range: bytes=N-" request header
// against a closed record's [0, length) byte space, returning the byte
// offset to start reading from, the HTTP status to report (200 or 206),
// and the Content-Range header value (empty for a full-body response).
// Only the open-ended "bytes=N-" form is honored (seeking into a
// timeshift record); anything else is treated as "no range requested",
// not general multi-range HTTP semantics.
func resolveRange(r *http.Request, rec models.TimeshiftRecord) (startOffset int64, status int, contentRange string) {
	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		return 0, http.StatusOK, ""
	}

	var n int64
	if _, err := fmt.Sscanf(rangeHeader, "bytes=%d-", &n); err != nil || n < 0 {
		return 0, http.StatusOK, ""
	}

	length := rec.EndPos - rec.StartPos
	if rec.Recording {
		length = -1
	}
	if length >= 0 {
		if n >= length {
			return 0, http.StatusRequestedRangeNotSatisfiable, fmt.Sprintf("bytes */%d", length)
		}
		return n, http.StatusPartialContent, fmt.Sprintf("bytes %d-%d/%d", n, length-1, length)
	}
	return n, http.StatusPartialContent, fmt.Sprintf("bytes %d-/*", n)
}

func parseRecordID(s string) (models.TimeshiftRecordId, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return models.TimeshiftRecordId(n), nil
}

// recorderView is the JSON shape for GET /api/timeshift and
// GET /api/timeshift/{name}.
type recorderView struct {
	Index           int                       `json:"index,omitempty"`
	Name            string                    `json:"name"`
	State           string                    `json:"state"`
	Started         bool                      `json:"started"`
	CurrentRecordID *models.TimeshiftRecordId `json:"currentRecordId,omitempty"`
}

func newRecorderView(index int, rec *timeshift.Recorder) recorderView {
	v := recorderView{
		Name:    rec.Name(),
		State:   rec.State().String(),
		Started: rec.Started(),
	}
	if index >= 0 {
		v.Index = index
	}
	if id, ok := rec.CurrentRecordID(); ok {
		v.CurrentRecordID = &id
	}
	return v
}

// copyStream drains src to w, flushing after every chunk so clients see
// data as it arrives rather than buffered until the handler returns.
// Client disconnects surface as write errors here and are logged at
// Debug, not Error: a dropped consumer is a routine disconnect, not a
// failure worth alarming on.
func copyStream(w http.ResponseWriter, src *stream.Stream, logger *slog.Logger) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				logger.Debug("stream: client disconnected", "error", werr)
				break
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			break
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// FilterConfig is the default filter set RegisterRoutes wires into the
// channel streaming route: the decode filter applied when a request asks
// for decode=1, and the named pre-/post-filter tables the
// pre-filters[]/post-filters[] query parameters look up into.
type FilterConfig struct {
	Decode filter.Spec
	Pre    []filter.Spec
	Post   []filter.Spec
}

// RegisterRoutes wires every handler this package provides onto srv: the
// Huma-documented JSON operations (version, tuners) and the raw Chi
// streaming routes (channel/service/program and timeshift).
func RegisterRoutes(srv *Server, tunerManager *tuner.Manager, timeshiftManager *timeshift.Manager, filters FilterConfig, version string, logger *slog.Logger) {
	NewTunerHandler(tunerManager, version).Register(srv.API())
	NewStreamHandler(tunerManager, filters.Decode, filters.Pre, filters.Post, logger).RegisterChiRoutes(srv.Router())
	NewTimeshiftHandler(timeshiftManager, logger).RegisterChiRoutes(srv.Router())
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	var cmdErr *apperr.CommandError
	msg := err.Error()
	if errors.As(err, &cmdErr) {
		msg = cmdErr.Error()
	}
	http.Error(w, msg, status)
}

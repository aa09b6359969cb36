package main

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediaforge/internal/classify"
	"mediaforge/internal/codec"
	"mediaforge/internal/dispatcher"
	"mediaforge/internal/history"
	"mediaforge/internal/joberror"
	"mediaforge/internal/models"
)

// createJobForm holds the multipart fields next to the uploaded file. Extract
// is not offered: its result is a directory, which cannot be downloaded as one
// file.
type createJobForm struct {
	Operation    string `validate:"required,oneof=convert slim upscale compress"`
	TargetFormat string `validate:"required_if=Operation convert,max=8"`
	Profile      string `validate:"omitempty,oneof=light balanced extreme"`
	Variant      string `validate:"omitempty,oneof=photo anime"`
	Muted        bool
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbErr := a.history.Ping(r.Context())
	qErr := a.queue.Ping(r.Context())

	if dbErr != nil || qErr != nil {
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]any{
			"status":  "degraded",
			"history": errStr(dbErr),
			"redis":   errStr(qErr),
		})
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "api",
	})
}

type formatsResponse struct {
	Convert map[string]formatSet  `json:"convert"`
	Slim    []string              `json:"slim"`
	Upscale []string              `json:"upscale"`
	Profile []models.Tier         `json:"profiles"`
	Variant []models.ModelVariant `json:"variants"`
}

type formatSet struct {
	Input  []string `json:"input"`
	Output []string `json:"output"`
}

var documentInputs = []string{"jpg", "jpeg", "png", "gif", "tiff", "tif", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "html", "htm", "txt"}

func (a *app) handleFormats(w http.ResponseWriter, r *http.Request) {
	var slim []string
	for _, cat := range []models.Category{models.CategoryImage, models.CategoryVideo, models.CategoryAudio, models.CategoryPDF} {
		slim = append(slim, classify.Extensions(cat)...)
	}
	resp := formatsResponse{
		Convert: map[string]formatSet{
			"image":    {Input: classify.Extensions(models.CategoryImage), Output: codec.TargetSpellings()},
			"video":    {Input: classify.Extensions(models.CategoryVideo), Output: []string{"mp4"}},
			"audio":    {Input: append(classify.Extensions(models.CategoryAudio), "mp4", "mov", "mkv"), Output: []string{"mp3"}},
			"document": {Input: documentInputs, Output: []string{"pdf"}},
		},
		Slim:    slim,
		Upscale: []string{"png", "jpg", "jpeg", "webp"},
		Profile: []models.Tier{models.TierLight, models.TierBalanced, models.TierExtreme},
		Variant: []models.ModelVariant{models.VariantPhoto, models.VariantAnime},
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, r, http.StatusOK, resp)
}

func (a *app) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.API.MaxFileSize+10<<20)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File too large. Maximum: %s", formatBytes(a.cfg.API.MaxFileSize)))
			return
		}
		writeError(w, r, http.StatusBadRequest, "Invalid form data")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			r.MultipartForm.RemoveAll()
		}
	}()

	form := createJobForm{
		Operation:    strings.ToLower(strings.TrimSpace(r.FormValue("operation"))),
		TargetFormat: strings.ToLower(strings.TrimSpace(r.FormValue("target_format"))),
		Profile:      strings.ToLower(strings.TrimSpace(r.FormValue("profile"))),
		Variant:      strings.ToLower(strings.TrimSpace(r.FormValue("variant"))),
		Muted:        r.FormValue("muted") == "true",
	}
	if err := a.validate.Struct(&form); err != nil {
		writeError(w, r, http.StatusBadRequest, formatValidationErrors(err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "No file provided. Use field name 'file'.")
		return
	}
	defer file.Close()

	if header.Size > a.cfg.API.MaxFileSize {
		writeError(w, r, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File too large (%s). Maximum: %s",
				formatBytes(header.Size), formatBytes(a.cfg.API.MaxFileSize)))
		return
	}
	if header.Size == 0 {
		writeError(w, r, http.StatusBadRequest, "File is empty")
		return
	}

	name := filepath.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	req := models.JobRequest{
		InputPath:    name,
		Operation:    models.Operation(form.Operation),
		TargetFormat: form.TargetFormat,
		Tier:         models.Tier(form.Profile),
		ModelVariant: models.ModelVariant(form.Variant),
		Muted:        form.Muted,
	}
	op, err := dispatcher.Route(req)
	if err == nil {
		err = checkInput(op, req)
	}
	if err != nil {
		writeJobError(w, r, http.StatusBadRequest, err)
		return
	}
	// Paths are chosen by the worker.
	req.InputPath = ""

	job, err := a.history.CreateJob(ctx, history.CreateJobParams{
		Operation:    op,
		OriginalName: name,
		InputSize:    header.Size,
		Request:      req,
	}, a.cfg.RetentionPeriod())
	if err != nil {
		logger.Error().Err(err).Msg("create job")
		writeError(w, r, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if _, err := a.storage.SaveInput(job.ID, file); err != nil {
		logger.Error().Err(err).Str("job_id", job.ID).Msg("store upload")
		a.discard(r, job.ID)
		writeError(w, r, http.StatusInternalServerError, "Failed to process upload")
		return
	}

	if err := a.queue.Enqueue(ctx, job.ID); err != nil {
		logger.Error().Err(err).Str("job_id", job.ID).Msg("enqueue")
		a.discard(r, job.ID)
		writeError(w, r, http.StatusInternalServerError, "Failed to queue job")
		return
	}

	logger.Info().
		Str("job_id", job.ID).
		Str("operation", op).
		Str("file", name).
		Int64("bytes", header.Size).
		Msg("job created")

	writeJSON(w, r, http.StatusCreated, job.ToResponse())
}

// checkInput rejects uploads the worker would refuse anyway.
func checkInput(op string, req models.JobRequest) error {
	var err error
	switch op {
	case dispatcher.OpConvertImage:
		if _, err = classify.Require(req.InputPath, classify.Extensions(models.CategoryImage)); err == nil {
			_, err = codec.ParseFormat(req.TargetFormat)
		}
	case dispatcher.OpConvertPDF:
		_, err = classify.Document(req.InputPath)
	case dispatcher.OpConvertVideo:
		_, err = classify.VideoSource(req.InputPath)
	case dispatcher.OpConvertAudio:
		_, err = classify.AudioSource(req.InputPath)
	case dispatcher.OpSlim:
		_, err = classify.SlimSource(req.InputPath)
	case dispatcher.OpUpscale:
		_, err = classify.UpscaleSource(req.InputPath)
	}
	return err
}

func (a *app) discard(r *http.Request, jobID string) {
	logger := zerolog.Ctx(r.Context())
	if _, err := a.history.DeleteJob(r.Context(), jobID); err != nil {
		logger.Warn().Err(err).Str("job_id", jobID).Msg("delete job")
	}
	if err := a.storage.DeleteJobFiles(jobID); err != nil {
		logger.Warn().Err(err).Str("job_id", jobID).Msg("delete job files")
	}
}

// loadJob fetches the job named in the URL, writing the error response itself
// when it cannot.
func (a *app) loadJob(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	jobID := chi.URLParam(r, "id")
	if !isValidUUID(jobID) {
		writeError(w, r, http.StatusBadRequest, "Invalid job ID")
		return nil, false
	}

	job, err := a.history.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "Job not found")
		} else {
			zerolog.Ctx(r.Context()).Error().Err(err).Str("job_id", jobID).Msg("history error")
			writeError(w, r, http.StatusInternalServerError, "Database error")
		}
		return nil, false
	}
	return job, true
}

func (a *app) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, localizedResponse(job, r))
}

func localizedResponse(job *models.Job, r *http.Request) models.JobResponse {
	resp := job.ToResponse()
	if resp.ErrorKind != nil {
		var detail string
		if resp.ErrorMessage != nil {
			detail = *resp.ErrorMessage
		}
		msg := joberror.Message(*resp.ErrorKind, detail, localeFromCtx(r))
		resp.ErrorMessage = &msg
	}
	return resp
}

func (a *app) handleDownload(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}

	if job.Status != models.StatusCompleted {
		switch job.Status {
		case models.StatusPending, models.StatusProcessing:
			writeError(w, r, http.StatusConflict, "Job is still processing")
		case models.StatusFailed:
			resp := localizedResponse(job, r)
			msg := "Job failed"
			if resp.ErrorMessage != nil {
				msg = *resp.ErrorMessage
			}
			writeJSON(w, r, http.StatusUnprocessableEntity, models.ErrorResponse{Error: msg, Kind: job.ErrorKind.String})
		default:
			writeError(w, r, http.StatusConflict, "Job not ready for download")
		}
		return
	}

	if !a.storage.OutputExists(job.ID) {
		writeError(w, r, http.StatusNotFound, "Output file not found (may have expired)")
		return
	}

	outputName := "download"
	if job.OutputFilename.Valid && job.OutputFilename.String != "" {
		outputName = job.OutputFilename.String
	}

	w.Header().Set("Content-Type", models.MimeForExtension(filepath.Ext(outputName)))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"`, sanitizeFilename(outputName)))
	if job.OutputSize.Valid && job.OutputSize.Int64 > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(job.OutputSize.Int64, 10))
	}
	w.Header().Set("Cache-Control", "no-store")

	if err := a.storage.StreamOutput(job.ID, w); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("job_id", job.ID).Msg("decrypt stream error")
	}
}

func (a *app) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if !isValidUUID(jobID) {
		writeError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}
	logger := zerolog.Ctx(r.Context())

	deleted, err := a.history.DeleteJob(r.Context(), jobID)
	if err != nil {
		logger.Error().Err(err).Str("job_id", jobID).Msg("delete job")
		writeError(w, r, http.StatusInternalServerError, "Database error")
		return
	}
	if !deleted {
		writeError(w, r, http.StatusNotFound, "Job not found")
		return
	}

	if err := a.storage.DeleteJobFiles(jobID); err != nil {
		logger.Warn().Err(err).Str("job_id", jobID).Msg("delete job files")
	}

	logger.Info().Str("job_id", jobID).Msg("job deleted")
	writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "deleted",
		"id":     jobID,
	})
}

func (a *app) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.history.Stats(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("stats error")
		writeError(w, r, http.StatusInternalServerError, "Failed to fetch stats")
		return
	}

	stats.StorageUsedMB = a.storage.UsedMB()
	if n, err := a.queue.Length(r.Context()); err == nil {
		stats.QueueLength = int(n)
	}

	writeJSON(w, r, http.StatusOK, stats)
}

func formatValidationErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := formField(fe.Field())
		switch fe.Tag() {
		case "required", "required_if":
			msgs = append(msgs, field+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", ")))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(msgs, "; ")
}

func formField(name string) string {
	switch name {
	case "TargetFormat":
		return "target_format"
	default:
		return strings.ToLower(name)
	}
}

func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "\x00", "")
	name = strings.ReplaceAll(name, "\"", "'")
	if name == "" {
		name = "download"
	}
	return name
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

func errStr(err error) string {
	if err == nil {
		return "ok"
	}
	return err.Error()
}

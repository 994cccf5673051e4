package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/landfill/clairkeys/cache"
	"github.com/landfill/clairkeys/logger"
	"github.com/landfill/clairkeys/model"
	"github.com/landfill/clairkeys/repository"
	"github.com/landfill/clairkeys/storage"
)

// maxPDFSize caps uploaded sheet music PDFs at 20MB.
const maxPDFSize = 20 << 20

// UploadSheetHandler accepts a PDF, stores it, registers a sheet record and
// hands the file to the OMR service. Recognition continues in the background;
// the response carries the sheet ID and job ID for status polling.
func (h *APIHandler) UploadSheetHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxPDFSize); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "PDF file is required")
		return
	}
	defer file.Close()

	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}
	composer := r.FormValue("composer")
	isPublic := r.FormValue("isPublic") == "true"

	var categoryID int64
	if v := r.FormValue("categoryId"); v != "" {
		categoryID, _ = strconv.ParseInt(v, 10, 64)
	}

	// The PDF is needed twice, for storage and the OMR submit, so buffer it.
	raw, err := io.ReadAll(io.LimitReader(file, maxPDFSize+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read PDF")
		return
	}
	if len(raw) > maxPDFSize {
		respondError(w, http.StatusRequestEntityTooLarge, "PDF exceeds the size limit")
		return
	}

	pdfKey := storage.PDFKey(userID, header.Filename)
	if err := storage.UploadPDF(r.Context(), pdfKey, bytes.NewReader(raw), int64(len(raw))); err != nil {
		logger.Error("PDF upload failed", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to store PDF")
		return
	}

	sheet := &model.SheetMusic{
		UserID:     userID,
		CategoryID: categoryID,
		Title:      title,
		Composer:   composer,
		PDFKey:     pdfKey,
		Status:     model.SheetStatusPending,
		IsPublic:   isPublic,
	}
	if err := h.sheetRepo.Create(sheet); err != nil {
		logger.Error("failed to create sheet record", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to create sheet")
		return
	}

	submit, err := h.omrClient.SubmitPDF(r.Context(), header.Filename, bytes.NewReader(raw), title, composer, userID)
	if err != nil {
		logger.Error("OMR submit failed", logger.ErrorField(err))
		h.sheetRepo.UpdateStatus(sheet.ID, model.SheetStatusFailed)
		respondError(w, http.StatusBadGateway, "Recognition service unavailable")
		return
	}

	sheet.JobID = submit.JobID
	sheet.Status = model.SheetStatusProcessing
	if err := h.sheetRepo.Update(sheet); err != nil {
		logger.Error("failed to record job id", logger.ErrorField(err))
	}

	cache.SetJobStatus(r.Context(), cache.JobStatus{
		JobID:   submit.JobID,
		SheetID: sheet.ID,
		Status:  model.SheetStatusProcessing,
	})

	go h.trackRecognition(sheet.ID, submit.JobID)

	logger.Info("sheet submitted for recognition",
		logger.Int64("sheet", sheet.ID),
		logger.String("job", submit.JobID))

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"sheetId": sheet.ID,
		"jobId":   submit.JobID,
		"status":  model.SheetStatusProcessing,
	})
}

// trackRecognition follows an OMR job to completion, then stores the
// resulting animation and flips the sheet record to completed.
func (h *APIHandler) trackRecognition(sheetID int64, jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	fail := func(msg string, err error) {
		logger.Error(msg, logger.String("job", jobID), logger.ErrorField(err))
		h.sheetRepo.UpdateStatus(sheetID, model.SheetStatusFailed)
		cache.SetJobStatus(ctx, cache.JobStatus{
			JobID:   jobID,
			SheetID: sheetID,
			Status:  model.SheetStatusFailed,
			Message: msg,
		})
	}

	state, err := h.omrClient.WaitForCompletion(ctx, jobID, 2*time.Second)
	if err != nil {
		fail("recognition failed", err)
		return
	}
	if state.Result == nil || state.Result.AnimationDataURL == "" {
		fail("recognition returned no result", nil)
		return
	}

	data, err := h.omrClient.FetchAnimation(ctx, state.Result.AnimationDataURL)
	if err != nil {
		fail("failed to fetch animation data", err)
		return
	}

	raw, err := json.Marshal(data)
	if err != nil {
		fail("failed to encode animation data", err)
		return
	}

	key := storage.AnimationKey(sheetID)
	if err := storage.UploadAnimation(ctx, key, raw); err != nil {
		fail("failed to store animation data", err)
		return
	}
	if err := h.sheetRepo.SetAnimationKey(sheetID, key); err != nil {
		fail("failed to update sheet record", err)
		return
	}
	if err := h.sheetRepo.UpdateStatus(sheetID, model.SheetStatusCompleted); err != nil {
		fail("failed to update sheet status", err)
		return
	}

	cache.SetAnimation(ctx, sheetID, data)
	cache.SetJobStatus(ctx, cache.JobStatus{
		JobID:   jobID,
		SheetID: sheetID,
		Status:  model.SheetStatusCompleted,
	})

	logger.Info("recognition completed",
		logger.Int64("sheet", sheetID),
		logger.String("job", jobID),
		logger.Int("notes", len(data.Notes)))
}

// JobStatusHandler reports recognition progress for a job the caller started.
func (h *APIHandler) JobStatusHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]

	if status, err := cache.GetJobStatus(r.Context(), jobID); err == nil && status != nil {
		respondJSON(w, http.StatusOK, status)
		return
	}

	// Cache miss: fall back to the sheet record.
	sheet, err := h.sheetRepo.GetByJobID(jobID)
	if err != nil {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	respondJSON(w, http.StatusOK, cache.JobStatus{
		JobID:   jobID,
		SheetID: sheet.ID,
		Status:  sheet.Status,
	})
}

// ListSheetsHandler lists the caller's sheets.
func (h *APIHandler) ListSheetsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	sheets, err := h.sheetRepo.ListByUser(userID)
	if err != nil {
		logger.Error("failed to list sheets", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to list sheets")
		return
	}
	respondJSON(w, http.StatusOK, sheets)
}

// ListPublicSheetsHandler lists completed public sheets for browsing.
func (h *APIHandler) ListPublicSheetsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	sheets, err := h.sheetRepo.ListPublic(limit)
	if err != nil {
		logger.Error("failed to list public sheets", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to list sheets")
		return
	}
	respondJSON(w, http.StatusOK, sheets)
}

// GetSheetHandler returns one sheet record the caller may see.
func (h *APIHandler) GetSheetHandler(w http.ResponseWriter, r *http.Request) {
	sheet, ok := h.loadVisibleSheet(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sheet)
}

// UpdateSheetHandler edits mutable sheet metadata.
func (h *APIHandler) UpdateSheetHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	sheet, ok := h.loadOwnedSheet(w, r, userID)
	if !ok {
		return
	}

	var req struct {
		Title      *string `json:"title"`
		Composer   *string `json:"composer"`
		IsPublic   *bool   `json:"isPublic"`
		CategoryID *int64  `json:"categoryId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Title != nil {
		sheet.Title = *req.Title
	}
	if req.Composer != nil {
		sheet.Composer = *req.Composer
	}
	if req.IsPublic != nil {
		sheet.IsPublic = *req.IsPublic
	}
	if req.CategoryID != nil {
		sheet.CategoryID = *req.CategoryID
	}

	if err := h.sheetRepo.Update(sheet); err != nil {
		logger.Error("failed to update sheet", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to update sheet")
		return
	}
	respondJSON(w, http.StatusOK, sheet)
}

// DeleteSheetHandler removes a sheet with its stored objects and cache entry.
func (h *APIHandler) DeleteSheetHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	sheet, ok := h.loadOwnedSheet(w, r, userID)
	if !ok {
		return
	}

	if sheet.PDFKey != "" {
		storage.RemoveObject(r.Context(), sheet.PDFKey)
	}
	if sheet.AnimationKey != "" {
		storage.RemoveObject(r.Context(), sheet.AnimationKey)
	}
	cache.InvalidateAnimation(r.Context(), sheet.ID)

	if err := h.sheetRepo.Delete(sheet.ID); err != nil {
		logger.Error("failed to delete sheet", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to delete sheet")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": sheet.ID})
}

// GetAnimationHandler serves the animation data for a sheet: cache first,
// then object storage with a cache fill.
func (h *APIHandler) GetAnimationHandler(w http.ResponseWriter, r *http.Request) {
	sheet, ok := h.loadVisibleSheet(w, r)
	if !ok {
		return
	}
	if sheet.Status != model.SheetStatusCompleted || sheet.AnimationKey == "" {
		respondError(w, http.StatusConflict, "Sheet is not processed yet")
		return
	}

	if data, err := cache.GetAnimation(r.Context(), sheet.ID); err == nil && data != nil {
		respondJSON(w, http.StatusOK, data)
		return
	}

	raw, err := storage.FetchAnimation(r.Context(), sheet.AnimationKey)
	if err != nil {
		logger.Error("failed to fetch animation", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch animation data")
		return
	}
	data, err := model.ParseAnimationData(raw)
	if err != nil {
		logger.Error("stored animation data is invalid",
			logger.Int64("sheet", sheet.ID), logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Stored animation data is invalid")
		return
	}

	cache.SetAnimation(r.Context(), sheet.ID, data)
	respondJSON(w, http.StatusOK, data)
}

// CreateCategoryHandler creates a category for the caller.
func (h *APIHandler) CreateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		respondError(w, http.StatusBadRequest, "Category name is required")
		return
	}

	cat := &model.Category{UserID: userID, Name: req.Name}
	if err := h.sheetRepo.CreateCategory(cat); err != nil {
		logger.Error("failed to create category", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to create category")
		return
	}
	respondJSON(w, http.StatusCreated, cat)
}

// ListCategoriesHandler lists the caller's categories.
func (h *APIHandler) ListCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	cats, err := h.sheetRepo.ListCategories(userID)
	if err != nil {
		logger.Error("failed to list categories", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Failed to list categories")
		return
	}
	respondJSON(w, http.StatusOK, cats)
}

// DeleteCategoryHandler deletes one of the caller's categories.
func (h *APIHandler) DeleteCategoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid category id")
		return
	}

	cats, err := h.sheetRepo.ListCategories(userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete category")
		return
	}
	owned := false
	for _, c := range cats {
		if c.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		respondError(w, http.StatusNotFound, "Category not found")
		return
	}

	if err := h.sheetRepo.DeleteCategory(id); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete category")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

// loadOwnedSheet resolves {id} to a sheet owned by userID, writing the error
// response itself on failure.
func (h *APIHandler) loadOwnedSheet(w http.ResponseWriter, r *http.Request, userID int64) (*model.SheetMusic, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid sheet id")
		return nil, false
	}

	sheet, err := h.sheetRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrSheetNotFound) {
			respondError(w, http.StatusNotFound, "Sheet not found")
		} else {
			respondError(w, http.StatusInternalServerError, "Failed to load sheet")
		}
		return nil, false
	}
	if sheet.UserID != userID {
		respondError(w, http.StatusForbidden, "Not your sheet")
		return nil, false
	}
	return sheet, true
}

// loadVisibleSheet resolves {id} to a sheet the caller may read: their own,
// or any public one.
func (h *APIHandler) loadVisibleSheet(w http.ResponseWriter, r *http.Request) (*model.SheetMusic, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid sheet id")
		return nil, false
	}

	sheet, err := h.sheetRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrSheetNotFound) {
			respondError(w, http.StatusNotFound, "Sheet not found")
		} else {
			respondError(w, http.StatusInternalServerError, "Failed to load sheet")
		}
		return nil, false
	}

	if !sheet.IsPublic {
		userID, err := GetUserIDFromContext(r.Context())
		if err != nil || sheet.UserID != userID {
			respondError(w, http.StatusForbidden, "Not your sheet")
			return nil, false
		}
	}
	return sheet, true
}

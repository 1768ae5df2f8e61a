package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/VineLedger/internal/ingest"
	"github.com/dharsanguruparan/VineLedger/internal/model"
	"github.com/dharsanguruparan/VineLedger/internal/signing"
	"github.com/dharsanguruparan/VineLedger/internal/vine"
)

// writeError maps service errors to a status and a single message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case ingest.IsInputError(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, vine.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, vine.ErrNoSource):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func account(r *http.Request) model.Account {
	acct, _ := AccountFromContext(r.Context())
	return acct
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, http.StatusBadRequest, "expecting multipart form")
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer part.Close()
	data, err := io.ReadAll(io.LimitReader(part, s.cfg.MaxFileSize+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "file exceeds limit")
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds limit (%d bytes)", s.cfg.MaxFileSize))
		return
	}
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "empty file")
		return
	}
	filename := part.FileName()
	if filename == "" {
		filename = "upload.xlsx"
	}

	res, err := s.svc.Ingest(r.Context(), account(r), filename, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msg := "File processed successfully"
	if !res.ValuationComplete {
		msg = "File stored; valuation will be retried"
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"message":           msg,
		"uploadId":          res.UploadID,
		"ordersCount":       res.OrdersCount,
		"valuationComplete": res.ValuationComplete,
	})
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := s.svc.ListUploads(r.Context(), account(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"uploads": uploads})
}

func (s *Server) handleOrdersPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	result, err := s.svc.OrdersPage(r.Context(), account(r).ID, chi.URLParam(r, "id"), model.PageQuery{
		Page:      page,
		Limit:     limit,
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteUpload(r.Context(), account(r).ID, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Upload deleted successfully"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.UploadStats(r.Context(), account(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	s.serveExport(w, r, account(r).ID, chi.URLParam(r, "id"))
}

func (s *Server) serveExport(w http.ResponseWriter, r *http.Request, accountID, uploadID string) {
	exp, err := s.svc.ExportCSV(r.Context(), accountID, uploadID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := exp.Write(&buf); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleExportURL(w http.ResponseWriter, r *http.Request) {
	acct := account(r)
	upload, err := s.svc.Upload(r.Context(), acct.ID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	link := s.signer.Issue(upload.ID, acct.ID, s.now(), s.cfg.SignedURLTTL)
	respondJSON(w, http.StatusOK, map[string]any{
		"url":     "/exports?" + link.Query().Encode(),
		"expires": link.Expires.Unix(),
	})
}

func (s *Server) handleSignedExport(w http.ResponseWriter, r *http.Request) {
	link, err := s.signer.Verify(r.URL.Query(), s.now())
	switch {
	case errors.Is(err, signing.ErrMissing):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusUnauthorized, err.Error())
		return
	}
	s.serveExport(w, r, link.AccountID, link.UploadID)
}

func (s *Server) handleSourceURL(w http.ResponseWriter, r *http.Request) {
	url, err := s.svc.SourceURL(r.Context(), account(r).ID, chi.URLParam(r, "id"), s.cfg.SignedURLTTL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleRevalue(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RequestRevalue(r.Context(), account(r).ID, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.GetOrder(r.Context(), account(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

type annotationRequest struct {
	UserNotes *string         `json:"userNotes"`
	UserFMV   json.RawMessage `json:"userFmv"`
	UserValue json.RawMessage `json:"userValue"`
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req annotationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	raw := req.UserFMV
	if len(raw) == 0 {
		raw = req.UserValue
	}
	value, err := parseUserValue(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := s.svc.UpdateOrderAnnotation(r.Context(), account(r).ID, chi.URLParam(r, "id"), req.UserNotes, value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// parseUserValue accepts a JSON number or numeric string. Absent, null and
// blank values clear the field.
func parseUserValue(raw json.RawMessage) (decimal.NullDecimal, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return decimal.NullDecimal{}, nil
	}
	if strings.HasPrefix(text, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return decimal.NullDecimal{}, errors.New("invalid userFmv")
		}
		text = strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(str))
		if text == "" {
			return decimal.NullDecimal{}, nil
		}
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.NullDecimal{}, errors.New("userFmv must be a number")
	}
	return decimal.NewNullDecimal(d.Round(2)), nil
}
